// Package dispatch wires the built-in subscribers onto the event bus: the
// audit logger, the Prometheus instrumentation and the optional Redis
// bridge. Each subscriber is registered independently so a failure in one
// never affects the others.
package dispatch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/venlo/procflow/internal/bus"
	"github.com/venlo/procflow/internal/observability"
	"github.com/venlo/procflow/model"
)

// Register attaches the standard subscribers to b. bridge may be nil when no
// Redis backend is configured.
func Register(b *bus.Bus, logger *zap.Logger, metrics *observability.Metrics, bridge *bus.RedisBridge) {
	b.Subscribe("audit-log", "*", auditLog(logger))
	b.Subscribe("metrics", "*", instrument(metrics))
	if bridge != nil {
		b.Subscribe("redis-bridge", "*", bridge.Forward)
	}
}

// auditLog returns a handler logging every event with its payload fields.
func auditLog(logger *zap.Logger) bus.Handler {
	return func(_ context.Context, evt model.Event) error {
		fields := []zap.Field{
			zap.String("event_id", evt.ID),
			zap.String("topic", evt.Topic),
			zap.String("type", string(evt.Type)),
		}

		switch p := evt.Payload.(type) {
		case model.InstancePayload:
			fields = append(fields,
				zap.String("instance_id", p.InstanceID),
				zap.String("instance_number", p.InstanceNumber),
				zap.String("status", string(p.Status)),
				zap.Int("progress", p.Progress),
			)
			if p.ErrorMessage != "" {
				fields = append(fields, zap.String("error", p.ErrorMessage))
			}
		case model.StepPayload:
			fields = append(fields,
				zap.String("instance_id", p.InstanceID),
				zap.String("step_id", p.StepID),
				zap.String("step_name", p.StepName),
				zap.String("status", string(p.Status)),
				zap.Int("retry_count", p.RetryCount),
			)
			if p.Error != "" {
				fields = append(fields, zap.String("error", p.Error))
			}
		case model.ContextPayload:
			fields = append(fields, zap.String("instance_id", p.InstanceID))
		case model.PhasePayload:
			fields = append(fields,
				zap.String("instance_id", p.InstanceID),
				zap.String("source_type", p.Source.Type),
				zap.String("source_id", p.Source.ID),
				zap.String("phase", string(p.Phase)),
			)
		}

		switch evt.Type {
		case model.EventInstanceFailed, model.EventStepFailed, model.EventErrorOccurred:
			logger.Warn("event", fields...)
		default:
			logger.Info("event", fields...)
		}
		return nil
	}
}

// instrument returns a handler updating the Prometheus instruments. The
// active-instance gauge is derived from a resident set of instance IDs so
// transitions arriving for never-started instances cannot drive it negative.
func instrument(metrics *observability.Metrics) bus.Handler {
	var mu sync.Mutex
	active := make(map[string]struct{})

	return func(_ context.Context, evt model.Event) error {
		metrics.EventsPublishedTotal.WithLabelValues(evt.Topic).Inc()

		switch p := evt.Payload.(type) {
		case model.InstancePayload:
			metrics.InstanceTransitionsTotal.WithLabelValues(string(evt.Type)).Inc()
			metrics.InstanceProgress.Observe(float64(p.Progress))

			mu.Lock()
			switch p.Status {
			case model.InstanceRunning, model.InstancePaused:
				active[p.InstanceID] = struct{}{}
			case model.InstanceCompleted, model.InstanceFailed, model.InstanceCancelled:
				delete(active, p.InstanceID)
			}
			metrics.InstancesActive.Set(float64(len(active)))
			mu.Unlock()

		case model.StepPayload:
			metrics.StepTransitionsTotal.WithLabelValues(string(evt.Type)).Inc()
			if evt.Type == model.EventStepCompleted && p.DurationMs > 0 {
				metrics.StepDuration.WithLabelValues(string(p.Kind)).Observe(float64(p.DurationMs) / 1000)
			}
			if evt.Type == model.EventStepRetried {
				metrics.StepRetriesTotal.Inc()
			}
		}
		return nil
	}
}

// LedgerHook returns the history append callback feeding the ledger counter.
func LedgerHook(metrics *observability.Metrics) func(model.HistoryEntry) {
	return func(entry model.HistoryEntry) {
		metrics.HistoryAppendsTotal.WithLabelValues(string(entry.Type), string(entry.Severity)).Inc()
	}
}
