package metering

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamKey is the Redis stream usage events are appended to. Billing
// consumers read it with consumer groups.
const StreamKey = "brikk:usage"

// streamMaxLen caps the stream length (approximate trimming) so an idle
// billing consumer cannot grow Redis without bound.
const streamMaxLen = 100000

// recordTimeout bounds the append round-trip.
const recordTimeout = 2 * time.Second

// RedisStreamRecorder appends usage events to a capped Redis stream.
type RedisStreamRecorder struct {
	client redis.Cmdable
}

// NewRedisStreamRecorder wraps an existing Redis client.
func NewRedisStreamRecorder(client redis.Cmdable) *RedisStreamRecorder {
	return &RedisStreamRecorder{client: client}
}

// Record validates and appends one event.
func (r *RedisStreamRecorder) Record(ctx context.Context, event Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()

	values := map[string]interface{}{
		"org_id":     event.OrgID,
		"event_type": string(event.EventType),
		"quantity":   event.Quantity,
		"timestamp":  event.Timestamp.Format(time.RFC3339Nano),
	}
	for k, v := range event.Metadata {
		values["meta_"+k] = v
	}

	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("append usage event: %w", err)
	}
	return nil
}
