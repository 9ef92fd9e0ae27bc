package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/venlo/procflow/internal/bus"
	"github.com/venlo/procflow/internal/history"
	"github.com/venlo/procflow/internal/observability"
	"github.com/venlo/procflow/model"
)

const defaultMaxRetries = 3

// Tracker owns the lifecycle of steps within instances. Retry is a state
// reset, not a re-execution: the external executor re-runs the work and
// calls Start again; the tracker only keeps the budget and status honest.
type Tracker struct {
	engine     *Engine
	steps      StepStore
	ledger     *history.Ledger
	bus        *bus.Bus
	logger     *zap.Logger
	maxRetries int
}

// NewTracker creates a step tracker rolling progress up into the given
// engine. maxRetries is the default budget for steps created without one.
func NewTracker(engine *Engine, steps StepStore, ledger *history.Ledger, eventBus *bus.Bus, logger *zap.Logger, maxRetries int) *Tracker {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Tracker{
		engine:     engine,
		steps:      steps,
		ledger:     ledger,
		bus:        eventBus,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// CreateStepInput carries the fields for step creation.
type CreateStepInput struct {
	InstanceID string
	TemplateID string
	Name       string
	Kind       model.StepKind
	Order      int
	Input      map[string]any
	MaxRetries int
	ActorID    string
}

// Create registers a new pending step under an instance.
func (t *Tracker) Create(ctx context.Context, in CreateStepInput) (_ model.Step, err error) {
	ctx, span := observability.StartSpan(ctx, "tracker.create_step",
		observability.AttrInstanceID.String(in.InstanceID),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	var fieldErrs []model.FieldError
	if in.InstanceID == "" {
		fieldErrs = append(fieldErrs, model.FieldError{Field: "instance_id", Code: "required", Message: "instance id is required"})
	}
	if in.Name == "" {
		fieldErrs = append(fieldErrs, model.FieldError{Field: "name", Code: "required", Message: "name is required"})
	}
	if len(fieldErrs) > 0 {
		return model.Step{}, model.NewValidationError(fieldErrs...)
	}

	unlock := t.engine.locks.Lock(in.InstanceID)
	defer unlock()

	inst, err := t.engine.instances.Get(ctx, in.InstanceID)
	if err != nil {
		return model.Step{}, err
	}
	if inst.Status.Terminal() {
		return model.Step{}, model.NewInvalidStateError(
			fmt.Sprintf("instance %s is %s, cannot add steps", inst.Number, inst.Status),
		)
	}

	if in.Kind == "" {
		in.Kind = model.StepKindAction
	}
	if in.MaxRetries <= 0 {
		in.MaxRetries = t.maxRetries
	}

	now := time.Now().UTC()
	step := model.Step{
		ID:         uuid.New().String(),
		InstanceID: in.InstanceID,
		TemplateID: in.TemplateID,
		Name:       in.Name,
		Kind:       in.Kind,
		Status:     model.StepPending,
		Order:      in.Order,
		Input:      in.Input,
		MaxRetries: in.MaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := t.steps.Create(ctx, step); err != nil {
		return model.Step{}, err
	}

	if err := t.record(ctx, step, model.EventStepCreated, model.TopicStepCreated,
		model.SeverityInfo, fmt.Sprintf("step %q created on instance %s", step.Name, inst.Number), in.ActorID); err != nil {
		return model.Step{}, err
	}

	if err := t.rollupLocked(ctx, in.InstanceID); err != nil {
		return model.Step{}, err
	}

	span.SetAttributes(observability.AttrStepID.String(step.ID))
	t.logger.Info("step created",
		zap.String("step_id", step.ID),
		zap.String("instance_id", step.InstanceID),
		zap.String("name", step.Name),
		zap.String("kind", string(step.Kind)),
	)
	return step, nil
}

// Get returns a step by ID.
func (t *Tracker) Get(ctx context.Context, id string) (model.Step, error) {
	return t.steps.Get(ctx, id)
}

// ListByInstance returns all steps of one instance in order.
func (t *Tracker) ListByInstance(ctx context.Context, instanceID string) ([]model.Step, error) {
	return t.steps.ListByInstance(ctx, instanceID)
}

// Start moves a pending or waiting step to running.
func (t *Tracker) Start(ctx context.Context, id, jobRef, actorID string) (model.Step, error) {
	return t.mutate(ctx, id, "tracker.start_step", func(step *model.Step) (model.EventType, string, model.Severity, *model.ErrorEnvelope) {
		if step.Status != model.StepPending && step.Status != model.StepWaiting {
			return "", "", "", model.NewInvalidStateError(
				fmt.Sprintf("step %q is %s, cannot start", step.Name, step.Status),
			)
		}
		now := time.Now().UTC()
		step.Status = model.StepRunning
		step.StartedAt = &now
		if jobRef != "" {
			step.JobRef = jobRef
		}
		return model.EventStepStarted, model.TopicStepStarted, model.SeverityInfo, nil
	}, actorID, false)
}

// Complete moves a running step to completed, computes its duration and
// rolls progress up into the owning instance.
func (t *Tracker) Complete(ctx context.Context, id string, output map[string]any, actorID string) (model.Step, error) {
	return t.mutate(ctx, id, "tracker.complete_step", func(step *model.Step) (model.EventType, string, model.Severity, *model.ErrorEnvelope) {
		if step.Status != model.StepRunning {
			return "", "", "", model.NewInvalidStateError(
				fmt.Sprintf("step %q is %s, cannot complete", step.Name, step.Status),
			)
		}
		now := time.Now().UTC()
		step.Status = model.StepCompleted
		step.CompletedAt = &now
		step.Output = output
		if step.StartedAt != nil {
			step.DurationMs = now.Sub(*step.StartedAt).Milliseconds()
		}
		return model.EventStepCompleted, model.TopicStepCompleted, model.SeverityInfo, nil
	}, actorID, true)
}

// Fail moves a running step to failed, storing the error and duration, and
// rolls progress up. The caller decides whether to retry or fail the
// parent instance.
func (t *Tracker) Fail(ctx context.Context, id, errorMessage string, errorDetails map[string]any, actorID string) (model.Step, error) {
	return t.mutate(ctx, id, "tracker.fail_step", func(step *model.Step) (model.EventType, string, model.Severity, *model.ErrorEnvelope) {
		if step.Status != model.StepRunning {
			return "", "", "", model.NewInvalidStateError(
				fmt.Sprintf("step %q is %s, cannot fail", step.Name, step.Status),
			)
		}
		now := time.Now().UTC()
		step.Status = model.StepFailed
		step.CompletedAt = &now
		step.ErrorMessage = errorMessage
		step.ErrorDetails = errorDetails
		if step.StartedAt != nil {
			step.DurationMs = now.Sub(*step.StartedAt).Milliseconds()
		}
		return model.EventStepFailed, model.TopicStepFailed, model.SeverityError, nil
	}, actorID, true)
}

// Retry resets a failed step to pending while budget remains. Calling it at
// the limit raises RETRY_EXHAUSTED and leaves the step unchanged.
func (t *Tracker) Retry(ctx context.Context, id, actorID string) (model.Step, error) {
	return t.mutate(ctx, id, "tracker.retry_step", func(step *model.Step) (model.EventType, string, model.Severity, *model.ErrorEnvelope) {
		if step.Status != model.StepFailed {
			return "", "", "", model.NewInvalidStateError(
				fmt.Sprintf("step %q is %s, only failed steps can be retried", step.Name, step.Status),
			)
		}
		if step.RetryCount >= step.MaxRetries {
			return "", "", "", model.NewRetryExhaustedError(
				fmt.Sprintf("step %q has exhausted its retry budget (%d)", step.Name, step.MaxRetries),
			)
		}
		step.RetryCount++
		step.Status = model.StepPending
		step.CompletedAt = nil
		step.StartedAt = nil
		step.DurationMs = 0
		step.ErrorMessage = ""
		step.ErrorDetails = nil
		return model.EventStepRetried, model.TopicStepRetried, model.SeverityWarning, nil
	}, actorID, true)
}

// Skip marks a pending, running or waiting step as skipped.
func (t *Tracker) Skip(ctx context.Context, id, actorID string) (model.Step, error) {
	return t.mutate(ctx, id, "tracker.skip_step", func(step *model.Step) (model.EventType, string, model.Severity, *model.ErrorEnvelope) {
		switch step.Status {
		case model.StepPending, model.StepRunning, model.StepWaiting:
		default:
			return "", "", "", model.NewInvalidStateError(
				fmt.Sprintf("step %q is %s, cannot skip", step.Name, step.Status),
			)
		}
		step.Status = model.StepSkipped
		return model.EventStepSkipped, model.TopicStepSkipped, model.SeverityInfo, nil
	}, actorID, true)
}

// MarkWaiting parks a running step until external input arrives (approval
// and wait steps).
func (t *Tracker) MarkWaiting(ctx context.Context, id, actorID string) (model.Step, error) {
	return t.mutate(ctx, id, "tracker.mark_waiting", func(step *model.Step) (model.EventType, string, model.Severity, *model.ErrorEnvelope) {
		if step.Status != model.StepRunning {
			return "", "", "", model.NewInvalidStateError(
				fmt.Sprintf("step %q is %s, cannot wait", step.Name, step.Status),
			)
		}
		step.Status = model.StepWaiting
		return model.EventStepWaiting, model.TopicStepWaiting, model.SeverityInfo, nil
	}, actorID, false)
}

// mutate runs a step transition under the owning instance's lock: apply the
// change, persist, record history and event, optionally roll progress up.
func (t *Tracker) mutate(
	ctx context.Context,
	id string,
	op string,
	apply func(step *model.Step) (model.EventType, string, model.Severity, *model.ErrorEnvelope),
	actorID string,
	rollup bool,
) (_ model.Step, err error) {
	ctx, span := observability.StartSpan(ctx, op,
		observability.AttrStepID.String(id),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	step, err := t.steps.Get(ctx, id)
	if err != nil {
		return model.Step{}, err
	}

	unlock := t.engine.locks.Lock(step.InstanceID)
	defer unlock()

	// Re-read under the lock; a concurrent transition may have advanced it.
	step, err = t.steps.Get(ctx, id)
	if err != nil {
		return model.Step{}, err
	}
	span.SetAttributes(observability.AttrInstanceID.String(step.InstanceID))

	eventType, topic, severity, stateErr := apply(&step)
	if stateErr != nil {
		return model.Step{}, stateErr
	}

	step.UpdatedAt = time.Now().UTC()
	if err := t.steps.Update(ctx, step); err != nil {
		return model.Step{}, err
	}

	message := fmt.Sprintf("step %q %s", step.Name, step.Status)
	if step.ErrorMessage != "" {
		message = fmt.Sprintf("step %q failed: %s", step.Name, step.ErrorMessage)
	}
	if err := t.record(ctx, step, eventType, topic, severity, message, actorID); err != nil {
		return model.Step{}, err
	}

	if rollup {
		if err := t.rollupLocked(ctx, step.InstanceID); err != nil {
			return model.Step{}, err
		}
	}

	t.logger.Info("step transition",
		zap.String("step_id", step.ID),
		zap.String("instance_id", step.InstanceID),
		zap.String("name", step.Name),
		zap.String("status", string(step.Status)),
		zap.Int("retry_count", step.RetryCount),
	)
	return step, nil
}

// rollupLocked recounts the instance's steps and advances its progress. The
// caller holds the instance lock, so concurrent completions cannot lose
// updates.
func (t *Tracker) rollupLocked(ctx context.Context, instanceID string) error {
	steps, err := t.steps.ListByInstance(ctx, instanceID)
	if err != nil {
		return err
	}

	inst, err := t.engine.instances.Get(ctx, instanceID)
	if err != nil {
		return err
	}

	// A definition may declare more steps than have been materialized yet;
	// the declared total keeps the denominator stable.
	total := len(steps)
	if inst.TotalSteps > total {
		total = inst.TotalSteps
	}
	completed := 0
	currentID, currentName := "", ""
	for _, s := range steps {
		switch s.Status {
		case model.StepCompleted, model.StepSkipped:
			completed++
		default:
			if currentID == "" {
				currentID, currentName = s.ID, s.Name
			}
		}
	}

	_, err = t.engine.advanceProgressLocked(ctx, instanceID, completed, total, currentID, currentName)
	return err
}

// record appends the history entry for a step transition and publishes the
// matching event.
func (t *Tracker) record(
	ctx context.Context,
	step model.Step,
	eventType model.EventType,
	topic string,
	severity model.Severity,
	message string,
	actorID string,
) error {
	entry := model.HistoryEntry{
		InstanceID: step.InstanceID,
		StepID:     step.ID,
		Type:       eventType,
		Severity:   severity,
		Message:    message,
		ActorID:    actorID,
		NewState:   map[string]any{"status": string(step.Status), "retry_count": step.RetryCount},
	}
	if step.ErrorMessage != "" {
		entry.Details = map[string]any{"error": step.ErrorMessage}
	}
	if _, err := t.ledger.Append(ctx, entry); err != nil {
		return err
	}

	t.bus.Publish(ctx, model.Event{
		ID:        uuid.New().String(),
		Topic:     topic,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload: model.StepPayload{
			InstanceID: step.InstanceID,
			StepID:     step.ID,
			StepName:   step.Name,
			Kind:       step.Kind,
			Status:     step.Status,
			ActorID:    actorID,
			RetryCount: step.RetryCount,
			DurationMs: step.DurationMs,
			Output:     step.Output,
			Error:      step.ErrorMessage,
		},
	})
	return nil
}
