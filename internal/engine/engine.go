// Package engine owns the lifecycle of running process instances and the
// steps inside them. Every transition appends a history entry and publishes
// a matching event; writers are serialized per instance.
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

// DefinitionResolver looks up a process definition by ID. The catalog
// satisfies it; the engine consumes it as a boundary so the two components
// stay independently testable.
type DefinitionResolver interface {
	Get(ctx context.Context, id string) (model.Definition, error)
}

// Engine manages the lifecycle of process instances.
type Engine struct {
	instances   InstanceStore
	steps       StepStore
	ledger      *history.Ledger
	bus         *bus.Bus
	definitions DefinitionResolver
	numbers     *NumberGenerator
	locks       *lockTable
	logger      *zap.Logger
}

// NewEngine creates an instance engine. definitions may be nil when running
// without a catalog (ad hoc instances only).
func NewEngine(
	instances InstanceStore,
	steps StepStore,
	ledger *history.Ledger,
	eventBus *bus.Bus,
	definitions DefinitionResolver,
	numbers *NumberGenerator,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		instances:   instances,
		steps:       steps,
		ledger:      ledger,
		bus:         eventBus,
		definitions: definitions,
		numbers:     numbers,
		locks:       newLockTable(),
		logger:      logger,
	}
}

// CreateInstanceInput carries the fields for instance creation.
type CreateInstanceInput struct {
	DefinitionID string
	SourceType   string
	SourceID     string
	SourceNumber string
	Context      map[string]any
	Priority     model.Priority
	DueAt        *time.Time
	ActorID      string
}

// Create validates the input, generates the instance number, persists the
// instance in pending status and records instance_created.
func (e *Engine) Create(ctx context.Context, in CreateInstanceInput) (_ model.Instance, err error) {
	ctx, span := observability.StartSpan(ctx, "engine.create_instance",
		observability.AttrDefinitionID.String(in.DefinitionID),
		observability.AttrSourceType.String(in.SourceType),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	var fieldErrs []model.FieldError
	if in.SourceType == "" {
		fieldErrs = append(fieldErrs, model.FieldError{Field: "source_type", Code: "required", Message: "source type is required"})
	}
	if in.SourceID == "" {
		fieldErrs = append(fieldErrs, model.FieldError{Field: "source_id", Code: "required", Message: "source id is required"})
	}
	if in.SourceNumber == "" {
		fieldErrs = append(fieldErrs, model.FieldError{Field: "source_number", Code: "required", Message: "source number is required"})
	}
	if len(fieldErrs) > 0 {
		return model.Instance{}, model.NewValidationError(fieldErrs...)
	}

	totalSteps := 0
	if in.DefinitionID != "" {
		if e.definitions == nil {
			return model.Instance{}, model.NewNotFoundError(fmt.Sprintf("definition %q not found", in.DefinitionID))
		}
		def, err := e.definitions.Get(ctx, in.DefinitionID)
		if err != nil {
			return model.Instance{}, err
		}
		totalSteps = len(def.Steps)
	}

	if in.Priority == "" {
		in.Priority = model.PriorityNormal
	}

	now := time.Now().UTC()
	inst := model.Instance{
		ID:           uuid.New().String(),
		Number:       e.numbers.Next(now),
		DefinitionID: in.DefinitionID,
		Status:       model.InstancePending,
		Priority:     in.Priority,
		Context:      in.Context,
		Source: model.SourceRef{
			Type:   in.SourceType,
			ID:     in.SourceID,
			Number: in.SourceNumber,
		},
		TotalSteps: totalSteps,
		Version:    1,
		CreatedAt:  now,
		DueAt:      in.DueAt,
		UpdatedAt:  now,
	}

	if err := e.instances.Create(ctx, inst); err != nil {
		return model.Instance{}, err
	}

	if err := e.recordTransition(ctx, inst, model.EventInstanceCreated, model.TopicInstanceCreated,
		model.SeverityInfo, fmt.Sprintf("instance %s created for %s %s", inst.Number, inst.Source.Type, inst.Source.Number),
		nil, statusSnapshot(inst.Status), in.ActorID); err != nil {
		return model.Instance{}, err
	}

	span.SetAttributes(observability.AttrInstanceID.String(inst.ID))
	e.logger.Info("instance created",
		zap.String("instance_id", inst.ID),
		zap.String("instance_number", inst.Number),
		zap.String("source_type", inst.Source.Type),
		zap.String("source_id", inst.Source.ID),
	)
	return inst, nil
}

// Get returns an instance by internal ID.
func (e *Engine) Get(ctx context.Context, id string) (model.Instance, error) {
	return e.instances.Get(ctx, id)
}

// GetByNumber returns an instance by its instance number.
func (e *Engine) GetByNumber(ctx context.Context, number string) (model.Instance, error) {
	return e.instances.GetByNumber(ctx, number)
}

// GetBySource returns the instances tracking one business object.
func (e *Engine) GetBySource(ctx context.Context, sourceType, sourceID string) ([]model.Instance, error) {
	return e.instances.GetBySource(ctx, sourceType, sourceID)
}

// List returns instances matching the filters.
func (e *Engine) List(ctx context.Context, filters model.InstanceFilters) ([]model.Instance, error) {
	return e.instances.List(ctx, filters)
}

// Start moves a pending instance to running and records instance_started.
func (e *Engine) Start(ctx context.Context, id, actorID string) (model.Instance, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	inst, err := e.instances.Get(ctx, id)
	if err != nil {
		return model.Instance{}, err
	}
	if inst.Status != model.InstancePending {
		return model.Instance{}, model.NewInvalidStateError(
			fmt.Sprintf("instance %s is %s, cannot start", inst.Number, inst.Status),
		)
	}

	prev := inst.Status
	now := time.Now().UTC()
	inst.Status = model.InstanceRunning
	inst.StartedAt = &now

	return e.applyTransition(ctx, inst, prev, model.EventInstanceStarted, model.TopicInstanceStarted,
		model.SeverityInfo, fmt.Sprintf("instance %s started", inst.Number), actorID)
}

// Pause moves a running instance to paused.
func (e *Engine) Pause(ctx context.Context, id, actorID string) (model.Instance, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	inst, err := e.instances.Get(ctx, id)
	if err != nil {
		return model.Instance{}, err
	}
	if inst.Status != model.InstanceRunning {
		return model.Instance{}, model.NewInvalidStateError(
			fmt.Sprintf("instance %s is %s, cannot pause", inst.Number, inst.Status),
		)
	}

	prev := inst.Status
	inst.Status = model.InstancePaused

	return e.applyTransition(ctx, inst, prev, model.EventInstancePaused, model.TopicInstancePaused,
		model.SeverityInfo, fmt.Sprintf("instance %s paused", inst.Number), actorID)
}

// Resume moves a paused instance back to running.
func (e *Engine) Resume(ctx context.Context, id, actorID string) (model.Instance, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	inst, err := e.instances.Get(ctx, id)
	if err != nil {
		return model.Instance{}, err
	}
	if inst.Status != model.InstancePaused {
		return model.Instance{}, model.NewInvalidStateError(
			fmt.Sprintf("instance %s is %s, cannot resume", inst.Number, inst.Status),
		)
	}

	prev := inst.Status
	inst.Status = model.InstanceRunning

	return e.applyTransition(ctx, inst, prev, model.EventInstanceResumed, model.TopicInstanceResumed,
		model.SeverityInfo, fmt.Sprintf("instance %s resumed", inst.Number), actorID)
}

// Complete moves a running or paused instance to completed and forces
// progress to 100.
func (e *Engine) Complete(ctx context.Context, id, actorID string) (model.Instance, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	inst, err := e.instances.Get(ctx, id)
	if err != nil {
		return model.Instance{}, err
	}
	if inst.Status != model.InstanceRunning && inst.Status != model.InstancePaused {
		return model.Instance{}, model.NewInvalidStateError(
			fmt.Sprintf("instance %s is %s, cannot complete", inst.Number, inst.Status),
		)
	}

	prev := inst.Status
	now := time.Now().UTC()
	inst.Status = model.InstanceCompleted
	inst.CompletedAt = &now
	if inst.TotalSteps > 0 {
		inst.CompletedSteps = inst.TotalSteps
	}
	inst.Progress = 100

	return e.applyTransition(ctx, inst, prev, model.EventInstanceCompleted, model.TopicInstanceCompleted,
		model.SeverityInfo, fmt.Sprintf("instance %s completed", inst.Number), actorID)
}

// Fail moves any non-terminal instance to failed, storing the error.
func (e *Engine) Fail(ctx context.Context, id, errorMessage string, errorDetails map[string]any, actorID string) (model.Instance, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	inst, err := e.instances.Get(ctx, id)
	if err != nil {
		return model.Instance{}, err
	}
	if inst.Status.Terminal() {
		return model.Instance{}, model.NewInvalidStateError(
			fmt.Sprintf("instance %s is %s, cannot fail", inst.Number, inst.Status),
		)
	}

	prev := inst.Status
	now := time.Now().UTC()
	inst.Status = model.InstanceFailed
	inst.CompletedAt = &now
	inst.ErrorMessage = errorMessage
	inst.ErrorDetails = errorDetails

	return e.applyTransition(ctx, inst, prev, model.EventInstanceFailed, model.TopicInstanceFailed,
		model.SeverityError, fmt.Sprintf("instance %s failed: %s", inst.Number, errorMessage), actorID)
}

// Cancel moves any non-terminal instance to cancelled.
func (e *Engine) Cancel(ctx context.Context, id, reason, actorID string) (model.Instance, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	inst, err := e.instances.Get(ctx, id)
	if err != nil {
		return model.Instance{}, err
	}
	if inst.Status.Terminal() {
		return model.Instance{}, model.NewInvalidStateError(
			fmt.Sprintf("instance %s is %s, cannot cancel", inst.Number, inst.Status),
		)
	}

	prev := inst.Status
	now := time.Now().UTC()
	inst.Status = model.InstanceCancelled
	inst.CompletedAt = &now
	if reason != "" {
		inst.ErrorMessage = reason
	}

	return e.applyTransition(ctx, inst, prev, model.EventInstanceCancelled, model.TopicInstanceCancelled,
		model.SeverityWarning, fmt.Sprintf("instance %s cancelled", inst.Number), actorID)
}

// UpdateContext shallow-merges partial into the instance context, later keys
// winning. An empty partial is a no-op: no write, no history entry, no
// event.
func (e *Engine) UpdateContext(ctx context.Context, id string, partial map[string]any, actorID string) (_ model.Instance, err error) {
	ctx, span := observability.StartSpan(ctx, "engine.update_context",
		observability.AttrInstanceID.String(id),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	unlock := e.locks.Lock(id)
	defer unlock()

	inst, err := e.instances.Get(ctx, id)
	if err != nil {
		return model.Instance{}, err
	}
	if len(partial) == 0 {
		return inst, nil
	}

	previous := copyMap(inst.Context)
	merged := copyMap(inst.Context)
	for k, v := range partial {
		merged[k] = v
	}
	inst.Context = merged
	inst.UpdatedAt = time.Now().UTC()

	if err := e.instances.Update(ctx, inst); err != nil {
		return model.Instance{}, err
	}
	inst.Version++

	if _, err := e.ledger.Append(ctx, model.HistoryEntry{
		InstanceID:    inst.ID,
		Type:          model.EventContextUpdated,
		Severity:      model.SeverityInfo,
		Message:       fmt.Sprintf("context updated on instance %s", inst.Number),
		PreviousState: previous,
		NewState:      merged,
		ActorID:       actorID,
	}); err != nil {
		return model.Instance{}, err
	}

	e.bus.Publish(ctx, model.Event{
		ID:        uuid.New().String(),
		Topic:     model.TopicContextUpdated,
		Type:      model.EventContextUpdated,
		Timestamp: time.Now().UTC(),
		Payload: model.ContextPayload{
			InstanceID: inst.ID,
			ActorID:    actorID,
			Previous:   previous,
			Current:    merged,
		},
	})

	return inst, nil
}

// AdvanceProgress recomputes the progress percentage and updates the
// current-step pointer. The step tracker calls it on every step completion
// or failure.
func (e *Engine) AdvanceProgress(ctx context.Context, id string, completedSteps, totalSteps int, currentStepID, currentStepName string) (model.Instance, error) {
	unlock := e.locks.Lock(id)
	defer unlock()
	return e.advanceProgressLocked(ctx, id, completedSteps, totalSteps, currentStepID, currentStepName)
}

// advanceProgressLocked is AdvanceProgress for callers already holding the
// instance lock.
func (e *Engine) advanceProgressLocked(ctx context.Context, id string, completedSteps, totalSteps int, currentStepID, currentStepName string) (model.Instance, error) {
	inst, err := e.instances.Get(ctx, id)
	if err != nil {
		return model.Instance{}, err
	}

	inst.CompletedSteps = completedSteps
	inst.TotalSteps = totalSteps
	inst.Progress = model.ProgressPercentage(completedSteps, totalSteps)
	if currentStepID != "" {
		inst.CurrentStepID = currentStepID
		inst.CurrentStep = currentStepName
	}
	inst.UpdatedAt = time.Now().UTC()

	if err := e.instances.Update(ctx, inst); err != nil {
		return model.Instance{}, err
	}
	inst.Version++
	return inst, nil
}

// ExistsForDefinition satisfies the catalog's reference check.
func (e *Engine) ExistsForDefinition(ctx context.Context, definitionID string) (bool, error) {
	return e.instances.ExistsForDefinition(ctx, definitionID)
}

// CountByStatus exposes instance counts for the stats rollup.
func (e *Engine) CountByStatus(ctx context.Context, status model.InstanceStatus) (int, error) {
	return e.instances.CountByStatus(ctx, status)
}

// applyTransition persists a status change and records its history entry
// and events. The caller holds the instance lock and has already set the
// new status on inst.
func (e *Engine) applyTransition(
	ctx context.Context,
	inst model.Instance,
	previous model.InstanceStatus,
	eventType model.EventType,
	topic string,
	severity model.Severity,
	message string,
	actorID string,
) (_ model.Instance, err error) {
	ctx, span := observability.StartSpan(ctx, "engine."+string(eventType),
		observability.AttrInstanceID.String(inst.ID),
		observability.AttrSourceType.String(inst.Source.Type),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	inst.UpdatedAt = time.Now().UTC()
	if err := e.instances.Update(ctx, inst); err != nil {
		return model.Instance{}, err
	}
	inst.Version++

	if err := e.recordTransition(ctx, inst, eventType, topic, severity, message,
		statusSnapshot(previous), statusSnapshot(inst.Status), actorID); err != nil {
		return model.Instance{}, err
	}

	e.logger.Info("instance transition",
		zap.String("instance_id", inst.ID),
		zap.String("instance_number", inst.Number),
		zap.String("from", string(previous)),
		zap.String("to", string(inst.Status)),
	)
	return inst, nil
}

// recordTransition appends the history entry for an instance transition and
// publishes the matching event plus the phase-changed event.
func (e *Engine) recordTransition(
	ctx context.Context,
	inst model.Instance,
	eventType model.EventType,
	topic string,
	severity model.Severity,
	message string,
	previousState, newState map[string]any,
	actorID string,
) error {
	entry := model.HistoryEntry{
		InstanceID:    inst.ID,
		Type:          eventType,
		Severity:      severity,
		Message:       message,
		PreviousState: previousState,
		NewState:      newState,
		ActorID:       actorID,
	}
	if inst.ErrorMessage != "" {
		entry.Details = map[string]any{"error": inst.ErrorMessage}
	}
	if _, err := e.ledger.Append(ctx, entry); err != nil {
		return err
	}

	now := time.Now().UTC()
	e.bus.Publish(ctx, model.Event{
		ID:        uuid.New().String(),
		Topic:     topic,
		Type:      eventType,
		Timestamp: now,
		Payload: model.InstancePayload{
			InstanceID:     inst.ID,
			InstanceNumber: inst.Number,
			Status:         inst.Status,
			Source:         inst.Source,
			ActorID:        actorID,
			ErrorMessage:   inst.ErrorMessage,
			Progress:       inst.Progress,
		},
	})
	e.bus.Publish(ctx, model.Event{
		ID:        uuid.New().String(),
		Topic:     model.TopicPhaseChanged,
		Type:      model.EventPhaseChanged,
		Timestamp: now,
		Payload: model.PhasePayload{
			InstanceID:     inst.ID,
			InstanceNumber: inst.Number,
			Source:         inst.Source,
			Phase:          inst.Status,
			Progress:       inst.Progress,
		},
	})

	return nil
}

func statusSnapshot(status model.InstanceStatus) map[string]any {
	return map[string]any{"status": string(status)}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
