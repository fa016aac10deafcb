package progress

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisRelay fans events out over a shared Redis pub/sub channel so any
// instance can serve the stream for a task processed on another instance.
type RedisRelay struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewRedisRelay(rdb *redis.Client, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{rdb: rdb, logger: logger}
}

var _ Relay = (*RedisRelay)(nil)

func channelFor(taskID uuid.UUID) string {
	return "progress:" + taskID.String()
}

func (r *RedisRelay) Subscribe(taskID uuid.UUID) (*Subscription, error) {
	ps := r.rdb.Subscribe(context.Background(), channelFor(taskID))
	// Force the SUBSCRIBE round-trip so a broken connection fails here,
	// not silently in the forwarding loop.
	if _, err := ps.Receive(context.Background()); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &Subscription{
		taskID: taskID,
		ch:     make(chan Event, subscriptionBuffer),
		closeFn: func(*Subscription) {
			_ = ps.Close()
		},
	}

	go func() {
		defer close(sub.ch)
		for msg := range ps.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Warn("drop malformed progress event", "task_id", taskID, "error", err)
				continue
			}
			select {
			case sub.ch <- ev:
			default:
				// Slow consumer: drop rather than block the forwarder.
			}
		}
	}()
	return sub, nil
}

func (r *RedisRelay) Publish(ctx context.Context, taskID uuid.UUID, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, channelFor(taskID), payload).Err()
}
