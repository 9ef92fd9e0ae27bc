package model

import (
	"math"
	"time"
)

// InstanceStatus is the lifecycle status of a process instance.
type InstanceStatus string

// Instance lifecycle statuses. Completed, failed and cancelled are terminal;
// no transition leaves them.
const (
	InstancePending   InstanceStatus = "pending"
	InstanceRunning   InstanceStatus = "running"
	InstancePaused    InstanceStatus = "paused"
	InstanceCompleted InstanceStatus = "completed"
	InstanceFailed    InstanceStatus = "failed"
	InstanceCancelled InstanceStatus = "cancelled"
)

// Terminal reports whether s permits no further transitions.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceCompleted || s == InstanceFailed || s == InstanceCancelled
}

// Priority orders instances for human consumers; the core stores it opaquely.
type Priority string

// Instance priorities.
const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// SourceRef identifies the external business object an instance tracks,
// e.g. an order or a purchase requisition.
type SourceRef struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Number string `json:"number"`
}

// Instance is one running (or finished) execution of a process against a
// specific business source object. Instances are never deleted; terminal
// instances are retained for audit.
type Instance struct {
	ID             string         `json:"id"`
	Number         string         `json:"number"`
	DefinitionID   string         `json:"definition_id,omitempty"`
	Status         InstanceStatus `json:"status"`
	Priority       Priority       `json:"priority"`
	Context        map[string]any `json:"context,omitempty"`
	CurrentStepID  string         `json:"current_step_id,omitempty"`
	CurrentStep    string         `json:"current_step,omitempty"`
	Source         SourceRef      `json:"source"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	ErrorDetails   map[string]any `json:"error_details,omitempty"`
	TotalSteps     int            `json:"total_steps"`
	CompletedSteps int            `json:"completed_steps"`
	Progress       int            `json:"progress"`
	Version        int            `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	DueAt          *time.Time     `json:"due_at,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ProgressPercentage computes round(completed/total*100), or 0 when total
// is 0.
func ProgressPercentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// InstanceFilters are optional filters for listing instances.
type InstanceFilters struct {
	Status     InstanceStatus
	Priority   Priority
	SourceType string
	Limit      int
	Offset     int
}
