package model

import "time"

// Bus topics. Subscribers may match exact topics or wildcard patterns such
// as "instance.*" or "*".
const (
	TopicInstanceCreated   = "instance.created"
	TopicInstanceStarted   = "instance.started"
	TopicInstancePaused    = "instance.paused"
	TopicInstanceResumed   = "instance.resumed"
	TopicInstanceCompleted = "instance.completed"
	TopicInstanceFailed    = "instance.failed"
	TopicInstanceCancelled = "instance.cancelled"
	TopicContextUpdated    = "instance.context_updated"
	TopicStepCreated       = "step.created"
	TopicStepStarted       = "step.started"
	TopicStepCompleted     = "step.completed"
	TopicStepFailed        = "step.failed"
	TopicStepRetried       = "step.retried"
	TopicStepSkipped       = "step.skipped"
	TopicStepWaiting       = "step.waiting"
	TopicPhaseChanged      = "phase.changed"
)

// Event is the in-process pub/sub message emitted alongside each history
// entry. The payload carries the same data written to the ledger, so
// subscribers needing the audit record never require a second store read.
type Event struct {
	ID        string       `json:"id"`
	Topic     string       `json:"topic"`
	Type      EventType    `json:"type"`
	Payload   EventPayload `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
}

// EventPayload is the tagged union of event payload shapes. Subscribers
// type-switch exhaustively at their boundary instead of probing untyped maps.
type EventPayload interface {
	isEventPayload()
}

// InstancePayload accompanies every instance-level transition.
type InstancePayload struct {
	InstanceID     string         `json:"instance_id"`
	InstanceNumber string         `json:"instance_number"`
	Status         InstanceStatus `json:"status"`
	Source         SourceRef      `json:"source"`
	ActorID        string         `json:"actor_id,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	Progress       int            `json:"progress"`
}

func (InstancePayload) isEventPayload() {}

// StepPayload accompanies every step-level transition.
type StepPayload struct {
	InstanceID string         `json:"instance_id"`
	StepID     string         `json:"step_id"`
	StepName   string         `json:"step_name"`
	Kind       StepKind       `json:"kind"`
	Status     StepStatus     `json:"status"`
	ActorID    string         `json:"actor_id,omitempty"`
	RetryCount int            `json:"retry_count"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
}

func (StepPayload) isEventPayload() {}

// ContextPayload accompanies context updates, carrying both snapshots.
type ContextPayload struct {
	InstanceID string         `json:"instance_id"`
	ActorID    string         `json:"actor_id,omitempty"`
	Previous   map[string]any `json:"previous"`
	Current    map[string]any `json:"current"`
}

func (ContextPayload) isEventPayload() {}

// PhasePayload is the specialized shape subscribers key off of to group
// updates by business object.
type PhasePayload struct {
	InstanceID     string         `json:"instance_id"`
	InstanceNumber string         `json:"instance_number"`
	Source         SourceRef      `json:"source"`
	Phase          InstanceStatus `json:"phase"`
	Progress       int            `json:"progress"`
}

func (PhasePayload) isEventPayload() {}
