package model

import "time"

// EventType is the closed taxonomy of auditable occurrences.
type EventType string

// Instance events.
const (
	EventInstanceCreated   EventType = "instance_created"
	EventInstanceStarted   EventType = "instance_started"
	EventInstancePaused    EventType = "instance_paused"
	EventInstanceResumed   EventType = "instance_resumed"
	EventInstanceCompleted EventType = "instance_completed"
	EventInstanceFailed    EventType = "instance_failed"
	EventInstanceCancelled EventType = "instance_cancelled"
)

// Step events.
const (
	EventStepCreated   EventType = "step_created"
	EventStepStarted   EventType = "step_started"
	EventStepCompleted EventType = "step_completed"
	EventStepFailed    EventType = "step_failed"
	EventStepRetried   EventType = "step_retried"
	EventStepSkipped   EventType = "step_skipped"
	EventStepWaiting   EventType = "step_waiting"
)

// Remaining taxonomy: cross-cutting occurrences reported through the ledger
// by collaborators.
const (
	EventActionExecuted   EventType = "action_executed"
	EventNotificationSent EventType = "notification_sent"
	EventApprovalDecided  EventType = "approval_decided"
	EventContextUpdated   EventType = "context_updated"
	EventErrorOccurred    EventType = "error_occurred"
	EventIntegrationCall  EventType = "integration_call"
	EventPhaseChanged     EventType = "phase_changed"
)

// Severity grades a history entry for human triage.
type Severity string

// Severities.
const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityDebug   Severity = "debug"
)

// HistoryEntry is one immutable audit record. Entries are created exactly
// once per significant transition and never mutated or deleted.
type HistoryEntry struct {
	ID            string         `json:"id"`
	InstanceID    string         `json:"instance_id,omitempty"`
	StepID        string         `json:"step_id,omitempty"`
	Type          EventType      `json:"type"`
	Severity      Severity       `json:"severity"`
	Message       string         `json:"message"`
	Details       map[string]any `json:"details,omitempty"`
	EventData     map[string]any `json:"event_data,omitempty"`
	PreviousState map[string]any `json:"previous_state,omitempty"`
	NewState      map[string]any `json:"new_state,omitempty"`
	SourceEvent   string         `json:"source_event,omitempty"`
	SourceModule  string         `json:"source_module,omitempty"`
	ActorID       string         `json:"actor_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// HistoryFilters are optional filters for reading the ledger by event type.
type HistoryFilters struct {
	Type     EventType
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
}
