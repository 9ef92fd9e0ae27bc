// Package bus implements the in-process publish/subscribe hub decoupling the
// engine from its consumers. Dispatch is fire-and-forget: publishers never
// block on subscriber completion and subscriber failures never propagate back.
package bus

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/venlo/procflow/model"
)

// Handler consumes one event. A non-nil return is logged, never retried by
// the bus and never surfaced to the publisher.
type Handler func(ctx context.Context, evt model.Event) error

type subscription struct {
	name    string
	pattern string
	handler Handler
}

// Bus is an in-process event hub with wildcard topic matching. It is
// constructed once at process start and injected into components that
// publish or subscribe; there is no ambient global.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *zap.Logger
	wg     sync.WaitGroup
	closed bool
}

// New creates an event bus.
func New(logger *zap.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers a handler for all topics matching pattern. Patterns
// are dot-separated topic names where a trailing "*" segment matches any
// remainder, e.g. "instance.*" or "*". The name identifies the subscriber
// in logs.
func (b *Bus) Subscribe(name, pattern string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, pattern: pattern, handler: handler})
}

// Publish fans evt out to every matching subscriber, each on its own
// goroutine. A panic or error in one subscriber is caught and logged; it
// never blocks or fails the others, and never reaches the publisher.
func (b *Bus) Publish(ctx context.Context, evt model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if !Match(sub.pattern, evt.Topic) {
			continue
		}
		sub := sub
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					b.logger.Error("event subscriber panicked",
						zap.String("subscriber", sub.name),
						zap.String("topic", evt.Topic),
						zap.Any("panic", rec),
					)
				}
			}()
			if err := sub.handler(ctx, evt); err != nil {
				b.logger.Warn("event subscriber failed",
					zap.String("subscriber", sub.name),
					zap.String("topic", evt.Topic),
					zap.Error(err),
				)
			}
		}()
	}
}

// Drain waits for all in-flight deliveries to finish. Used by tests and
// shutdown; publishers keep fire-and-forget semantics.
func (b *Bus) Drain() {
	b.wg.Wait()
}

// Close stops accepting publishes and waits for in-flight deliveries.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}

// Match reports whether a dot-separated topic matches a subscription
// pattern. A trailing "*" segment matches any remaining segments.
func Match(pattern, topic string) bool {
	if pattern == "*" || pattern == topic {
		return true
	}

	pp := strings.Split(pattern, ".")
	tp := strings.Split(topic, ".")

	for i, seg := range pp {
		if seg == "*" {
			return i == len(pp)-1
		}
		if i >= len(tp) || seg != tp[i] {
			return false
		}
	}
	return len(pp) == len(tp)
}
