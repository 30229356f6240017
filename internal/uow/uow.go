package uow

import (
	"context"

	"github.com/kirinyoku/bookit/internal/repository"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// UoW represents a unit of work over a repository.Store.
type UoW struct {
	store repository.Store
}

func NewUoW(store repository.Store) *UoW {
	return &UoW{store: store}
}

// Do runs fn inside a transaction. Hooks registered through after run in
// registration order once the transaction has committed, and are dropped
// when it rolls back.
//
// Parameters:
//   - ctx: request-scoped context.
//   - fn: transactional body; tx is valid only for the duration of fn.
//
// Returns:
//   - error: whatever fn returned, or a commit failure.
func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Repos, after func(AfterCommit)) error,
) error {
	var hooks []AfterCommit

	err := u.store.RunTx(ctx, func(ctx context.Context, tx repository.Repos) error {
		// RunTx may retry fn; hooks from a failed attempt must not leak.
		hooks = hooks[:0]

		return fn(ctx, tx, func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
