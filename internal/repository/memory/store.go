// Package memory provides an in-process repository.Store for development and
// tests. A single mutex owns all state. RunTx holds it for the whole
// transaction body, so other callers never observe uncommitted writes; a
// failed body is undone from a journal before the lock is released.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/bookit/internal/domain"
	"github.com/kirinyoku/bookit/internal/repository"
)

type confirmedKey struct {
	email string
	slot  repository.SlotKey
}

type Store struct {
	mu sync.Mutex

	activities    map[uuid.UUID]*domain.Activity
	activityOrder []uuid.UUID

	bookings     map[string]*domain.Booking
	bookingOrder []string
	confirmed    map[confirmedKey]string

	promos     map[string]*domain.PromoCode
	promoOrder []string

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		activities: make(map[uuid.UUID]*domain.Activity),
		bookings:   make(map[string]*domain.Booking),
		confirmed:  make(map[confirmedKey]string),
		promos:     make(map[string]*domain.PromoCode),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Activities() repository.ActivityRepo { return &activityRepo{s: s} }
func (s *Store) Slots() repository.SlotLedger        { return &slotLedger{s: s} }
func (s *Store) Bookings() repository.BookingRepo    { return &bookingRepo{s: s} }
func (s *Store) Promos() repository.PromoRepo        { return &promoRepo{s: s} }

// RunTx runs fn with the store lock held against repositories that journal
// their writes. If fn fails, or ctx is done when it returns, the journal is
// replayed backwards before the lock is released.
//
// fn must only use the tx it is given: the Store's own repositories would
// wait for the lock RunTx holds.
func (s *Store) RunTx(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Repos) error,
) error {
	const op = "memory.Store.RunTx"

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &txn{}
	if err := fn(ctx, txRepos{s: s, t: t}); err != nil {
		t.rollback()
		return err
	}

	if err := ctx.Err(); err != nil {
		t.rollback()
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// lock takes the store lock for a single call. Repositories bound to a
// transaction run under the lock RunTx already holds.
func (s *Store) lock(t *txn) func() {
	if t != nil {
		return func() {}
	}

	s.mu.Lock()
	return s.mu.Unlock
}

// txn is an undo journal. Entries run with the store lock held.
type txn struct {
	undo []func()
}

func (t *txn) record(f func()) {
	if t != nil {
		t.undo = append(t.undo, f)
	}
}

func (t *txn) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

type txRepos struct {
	s *Store
	t *txn
}

func (r txRepos) Activities() repository.ActivityRepo { return &activityRepo{s: r.s, t: r.t} }
func (r txRepos) Slots() repository.SlotLedger        { return &slotLedger{s: r.s, t: r.t} }
func (r txRepos) Bookings() repository.BookingRepo    { return &bookingRepo{s: r.s, t: r.t} }
func (r txRepos) Promos() repository.PromoRepo        { return &promoRepo{s: r.s, t: r.t} }

type activityRepo struct {
	s *Store
	t *txn
}

func (r *activityRepo) Create(_ context.Context, a *domain.Activity) error {
	const op = "memory.activityRepo.Create"

	s := r.s
	defer s.lock(r.t)()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if _, ok := s.activities[a.ID]; ok {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	if err := uniqueLabels(a.Slots); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	a.CreatedAt = s.now()
	for i := range a.Slots {
		for j := range a.Slots[i].Times {
			a.Slots[i].Times[j].Refresh()
		}
	}

	id := a.ID
	s.activities[id] = cloneActivity(a)
	s.activityOrder = append(s.activityOrder, id)

	r.t.record(func() {
		delete(s.activities, id)
		s.activityOrder = slices.DeleteFunc(s.activityOrder, func(v uuid.UUID) bool { return v == id })
	})

	return nil
}

func (r *activityRepo) Get(_ context.Context, id uuid.UUID) (*domain.Activity, error) {
	s := r.s
	defer s.lock(r.t)()

	a, ok := s.activities[id]
	if !ok {
		return nil, fmt.Errorf("memory.activityRepo.Get:%w", repository.ErrNotFound)
	}

	return cloneActivity(a), nil
}

func (r *activityRepo) List(_ context.Context, search string) ([]domain.Activity, error) {
	s := r.s
	defer s.lock(r.t)()

	out := []domain.Activity{}
	for _, id := range s.activityOrder {
		a := s.activities[id]
		if a.Matches(search) {
			out = append(out, cloneActivity(a).WithoutSlots())
		}
	}

	return out, nil
}

type slotLedger struct {
	s *Store
	t *txn
}

func (l *slotLedger) Reserve(_ context.Context, key repository.SlotKey, qty int) (int, error) {
	const op = "memory.slotLedger.Reserve"

	if qty <= 0 {
		return 0, fmt.Errorf("%s:%w", op, repository.ErrInvalidQuantity)
	}

	s := l.s
	defer s.lock(l.t)()

	ts, err := s.timeSlotLocked(key)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	if ts.AvailableCapacity < qty {
		return 0, fmt.Errorf("%s:%w", op, &repository.CapacityError{Available: ts.AvailableCapacity})
	}

	ts.AvailableCapacity -= qty
	ts.Refresh()

	l.t.record(func() {
		ts.AvailableCapacity += qty
		ts.Refresh()
	})

	return ts.AvailableCapacity, nil
}

func (s *Store) timeSlotLocked(key repository.SlotKey) (*domain.TimeSlot, error) {
	a, ok := s.activities[key.ActivityID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	d, ok := a.FindDate(key.Date)
	if !ok {
		return nil, repository.ErrNotFound
	}

	ts, ok := d.FindTime(key.Time)
	if !ok {
		return nil, repository.ErrNotFound
	}

	return ts, nil
}

type bookingRepo struct {
	s *Store
	t *txn
}

func (r *bookingRepo) Insert(_ context.Context, b *domain.Booking) error {
	const op = "memory.bookingRepo.Insert"

	s := r.s
	defer s.lock(r.t)()

	if _, ok := s.activities[b.ActivityID]; !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	if _, ok := s.bookings[b.Ref]; ok {
		return fmt.Errorf("%s:%w", op, repository.ErrDuplicateReference)
	}

	ck := confirmedKey{
		email: b.UserEmail,
		slot:  repository.SlotKey{ActivityID: b.ActivityID, Date: b.Date, Time: b.Time},
	}
	if b.Status == domain.BookingConfirmed {
		if _, ok := s.confirmed[ck]; ok {
			return fmt.Errorf("%s:%w", op, repository.ErrDuplicateBooking)
		}
	}

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.CreatedAt = s.now()

	cp := *b
	ref := b.Ref
	s.bookings[ref] = &cp
	s.bookingOrder = append(s.bookingOrder, ref)
	if b.Status == domain.BookingConfirmed {
		s.confirmed[ck] = ref
	}

	r.t.record(func() {
		delete(s.bookings, ref)
		s.bookingOrder = slices.DeleteFunc(s.bookingOrder, func(v string) bool { return v == ref })
		if s.confirmed[ck] == ref {
			delete(s.confirmed, ck)
		}
	})

	return nil
}

func (r *bookingRepo) ExistsConfirmed(_ context.Context, email string, key repository.SlotKey) (bool, error) {
	s := r.s
	defer s.lock(r.t)()

	_, ok := s.confirmed[confirmedKey{email: email, slot: key}]
	return ok, nil
}

func (r *bookingRepo) GetByRef(_ context.Context, ref string) (*domain.BookingWithActivity, error) {
	s := r.s
	defer s.lock(r.t)()

	b, ok := s.bookings[ref]
	if !ok {
		return nil, fmt.Errorf("memory.bookingRepo.GetByRef:%w", repository.ErrNotFound)
	}

	return s.joinLocked(b), nil
}

func (r *bookingRepo) List(_ context.Context) ([]domain.BookingWithActivity, error) {
	s := r.s
	defer s.lock(r.t)()

	out := make([]domain.BookingWithActivity, 0, len(s.bookingOrder))
	for i := len(s.bookingOrder) - 1; i >= 0; i-- {
		out = append(out, *s.joinLocked(s.bookings[s.bookingOrder[i]]))
	}

	return out, nil
}

func (s *Store) joinLocked(b *domain.Booking) *domain.BookingWithActivity {
	out := &domain.BookingWithActivity{Booking: *b}
	if a, ok := s.activities[b.ActivityID]; ok {
		joined := cloneActivity(a).WithoutSlots()
		out.Activity = &joined
	}
	return out
}

type promoRepo struct {
	s *Store
	t *txn
}

func (r *promoRepo) Create(_ context.Context, p *domain.PromoCode) error {
	s := r.s
	defer s.lock(r.t)()

	if _, ok := s.promos[p.Code]; ok {
		return fmt.Errorf("memory.promoRepo.Create:%w", repository.ErrConflict)
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = s.now()

	cp := *p
	code := p.Code
	s.promos[code] = &cp
	s.promoOrder = append(s.promoOrder, code)

	r.t.record(func() {
		delete(s.promos, code)
		s.promoOrder = slices.DeleteFunc(s.promoOrder, func(v string) bool { return v == code })
	})

	return nil
}

func (r *promoRepo) GetActiveByCode(_ context.Context, code string) (*domain.PromoCode, error) {
	s := r.s
	defer s.lock(r.t)()

	p, ok := s.promos[code]
	if !ok || !p.Active {
		return nil, fmt.Errorf("memory.promoRepo.GetActiveByCode:%w", repository.ErrNotFound)
	}

	cp := *p
	return &cp, nil
}

func (r *promoRepo) List(_ context.Context) ([]domain.PromoCode, error) {
	s := r.s
	defer s.lock(r.t)()

	out := make([]domain.PromoCode, 0, len(s.promoOrder))
	for _, code := range s.promoOrder {
		out = append(out, *s.promos[code])
	}

	return out, nil
}

// uniqueLabels mirrors the per-activity date and per-date time uniqueness
// the SQL schema enforces.
func uniqueLabels(slots []domain.SlotDate) error {
	dates := make(map[string]struct{}, len(slots))
	for _, d := range slots {
		if _, dup := dates[d.Date]; dup {
			return repository.ErrConflict
		}
		dates[d.Date] = struct{}{}

		times := make(map[string]struct{}, len(d.Times))
		for _, t := range d.Times {
			if _, dup := times[t.Time]; dup {
				return repository.ErrConflict
			}
			times[t.Time] = struct{}{}
		}
	}

	return nil
}

func cloneActivity(a *domain.Activity) *domain.Activity {
	cp := *a
	cp.Included = slices.Clone(a.Included)
	cp.Slots = make([]domain.SlotDate, len(a.Slots))
	for i, d := range a.Slots {
		cp.Slots[i] = domain.SlotDate{Date: d.Date, Times: slices.Clone(d.Times)}
	}
	return &cp
}

var _ repository.Store = (*Store)(nil)
