package redisrepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type ActivitiesPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewActivitiesPubSub(rdb *redis.Client) *ActivitiesPubSub {
	return &ActivitiesPubSub{
		rdb:     rdb,
		channel: ChannelActivitiesChanged(),
	}
}

type activityChangedMsg struct {
	Type       string    `json:"type"`
	ActivityID uuid.UUID `json:"activity_id"`
	TsUnix     int64     `json:"ts_unix"`
}

// PublishActivityChanged announces that an activity's slots changed. It is
// a no-op on a nil receiver.
func (p *ActivitiesPubSub) PublishActivityChanged(ctx context.Context, id uuid.UUID) error {
	if p == nil {
		return nil
	}

	msg := activityChangedMsg{
		Type:       "activity_changed",
		ActivityID: id,
		TsUnix:     time.Now().Unix(),
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe calls handler for every activity change until ctx is done.
// Malformed messages are skipped.
func (p *ActivitiesPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, id uuid.UUID)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	// Block until the server confirms the subscription.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev activityChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil &&
				ev.ActivityID != uuid.Nil {
				handler(ctx, ev.ActivityID)
			}
		}
	}
}
