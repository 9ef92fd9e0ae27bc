package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/venlo/procflow/internal/observability"
	"github.com/venlo/procflow/model"
)

// RedisBridge forwards bus events to Redis pub/sub channels so out-of-process
// consumers (real-time transports, notification services) can react to
// transitions without linking against the core.
//
// Channel layout:
//   - <prefix>.events.<topic>                    every matched event
//   - <prefix>.source.<sourceType>.<sourceID>    phase-changed events only
type RedisBridge struct {
	client *redis.Client
	prefix string
}

// NewRedisBridge creates a bridge publishing through client with the given
// channel prefix.
func NewRedisBridge(client *redis.Client, prefix string) *RedisBridge {
	if prefix == "" {
		prefix = "procflow"
	}
	return &RedisBridge{client: client, prefix: prefix}
}

// Forward is the bus handler. It serializes the event to JSON and publishes
// it to the per-topic channel, plus the per-source channel for phase changes.
func (rb *RedisBridge) Forward(ctx context.Context, evt model.Event) (err error) {
	ctx, span := observability.StartSpan(ctx, "bus.forward_event",
		observability.AttrEventTopic.String(evt.Topic),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("redis bridge: marshal event %s: %w", evt.ID, err)
	}

	channel := fmt.Sprintf("%s.events.%s", rb.prefix, evt.Topic)
	if err := rb.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redis bridge: publish %s: %w", channel, err)
	}

	if phase, ok := evt.Payload.(model.PhasePayload); ok {
		sourceChannel := fmt.Sprintf("%s.source.%s.%s", rb.prefix, phase.Source.Type, phase.Source.ID)
		if err := rb.client.Publish(ctx, sourceChannel, data).Err(); err != nil {
			return fmt.Errorf("redis bridge: publish %s: %w", sourceChannel, err)
		}
	}

	return nil
}

// HealthCheck pings the Redis backend.
func (rb *RedisBridge) HealthCheck(ctx context.Context) error {
	return rb.client.Ping(ctx).Err()
}
