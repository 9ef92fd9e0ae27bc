package model

import "time"

// StepKind categorizes how an external executor interprets a step. The core
// stores and returns it but never branches on it.
type StepKind string

// Step kinds.
const (
	StepKindAction       StepKind = "action"
	StepKindCondition    StepKind = "condition"
	StepKindApproval     StepKind = "approval"
	StepKindNotification StepKind = "notification"
	StepKindIntegration  StepKind = "integration"
	StepKindWait         StepKind = "wait"
)

// StepStatus is the lifecycle status of a tracked unit of work.
type StepStatus string

// Step lifecycle statuses.
const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
	StepWaiting   StepStatus = "waiting"
)

// Step is one tracked unit of work within an instance. The core tracks
// status, timing and retry budget; an external executor performs the work
// and reports outcomes. Steps are never deleted.
type Step struct {
	ID           string         `json:"id"`
	InstanceID   string         `json:"instance_id"`
	TemplateID   string         `json:"template_id,omitempty"`
	Name         string         `json:"name"`
	Kind         StepKind       `json:"kind"`
	Status       StepStatus     `json:"status"`
	Order        int            `json:"order"`
	JobRef       string         `json:"job_ref,omitempty"`
	Input        map[string]any `json:"input,omitempty"`
	Output       map[string]any `json:"output,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ErrorDetails map[string]any `json:"error_details,omitempty"`
	RetryCount   int            `json:"retry_count"`
	MaxRetries   int            `json:"max_retries"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	DurationMs   int64          `json:"duration_ms,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
