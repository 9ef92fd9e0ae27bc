package model

import "time"

// ProcessType categorizes what kind of business process a definition models.
type ProcessType string

// Known process types.
const (
	ProcessOrderFulfillment  ProcessType = "order_fulfillment"
	ProcessProcurement       ProcessType = "procurement"
	ProcessQualityInspection ProcessType = "quality_inspection"
	ProcessCustom            ProcessType = "custom"
)

// Valid reports whether t is a member of the closed process-type set.
func (t ProcessType) Valid() bool {
	switch t {
	case ProcessOrderFulfillment, ProcessProcurement, ProcessQualityInspection, ProcessCustom:
		return true
	}
	return false
}

// DefinitionStatus is the lifecycle status of a process definition.
type DefinitionStatus string

// Definition lifecycle statuses.
const (
	DefinitionDraft    DefinitionStatus = "draft"
	DefinitionActive   DefinitionStatus = "active"
	DefinitionInactive DefinitionStatus = "inactive"
	DefinitionArchived DefinitionStatus = "archived"
)

// Trigger names an external event that instantiates a definition, with
// optional match conditions on the event payload.
type Trigger struct {
	Event      string            `json:"event" yaml:"event"`
	Conditions map[string]string `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// StepTemplate describes one step of a process template. Successors declare
// the step graph; the core stores but does not validate it.
type StepTemplate struct {
	ID         string            `json:"id" yaml:"id"`
	Name       string            `json:"name" yaml:"name"`
	Kind       StepKind          `json:"kind" yaml:"kind"`
	Actions    []string          `json:"actions,omitempty" yaml:"actions,omitempty"`
	Successors []string          `json:"successors,omitempty" yaml:"successors,omitempty"`
	Guards     map[string]string `json:"guards,omitempty" yaml:"guards,omitempty"`
	MaxRetries int               `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// Definition is a named, versioned process template. A definition referenced
// by any instance is never structurally mutated in place; changes bump the
// version. Definitions are never hard-deleted while instances reference them.
type Definition struct {
	ID        string           `json:"id" yaml:"id"`
	Name      string           `json:"name" yaml:"name"`
	Type      ProcessType      `json:"type" yaml:"type"`
	Status    DefinitionStatus `json:"status" yaml:"status"`
	Version   int              `json:"version" yaml:"version"`
	Triggers  []Trigger        `json:"triggers,omitempty" yaml:"triggers,omitempty"`
	Steps     []StepTemplate   `json:"steps,omitempty" yaml:"steps,omitempty"`
	Metadata  map[string]any   `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at" yaml:"-"`
	UpdatedAt time.Time        `json:"updated_at" yaml:"-"`
}

// StepTemplateByID looks up a step template within the definition.
func (d Definition) StepTemplateByID(id string) *StepTemplate {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i]
		}
	}
	return nil
}

// DefinitionPatch carries the mutable fields of a definition update. Nil
// fields are left unchanged.
type DefinitionPatch struct {
	Name     *string        `json:"name,omitempty"`
	Triggers []Trigger      `json:"triggers,omitempty"`
	Steps    []StepTemplate `json:"steps,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DefinitionFilters are optional filters for listing definitions.
type DefinitionFilters struct {
	Type   ProcessType
	Status DefinitionStatus
}
