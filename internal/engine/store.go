package engine

import (
	"context"

	"github.com/venlo/procflow/model"
)

// InstanceStore persists process instances. Updates use optimistic locking
// on the instance version as a backstop for multi-process deployments; the
// engine additionally serializes writers per instance in-process.
type InstanceStore interface {
	// Create persists a new instance.
	Create(ctx context.Context, inst model.Instance) error

	// Get retrieves an instance by internal ID.
	Get(ctx context.Context, id string) (model.Instance, error)

	// GetByNumber retrieves an instance by its unique instance number.
	GetByNumber(ctx context.Context, number string) (model.Instance, error)

	// GetBySource retrieves instances tracking one business object, newest
	// first.
	GetBySource(ctx context.Context, sourceType, sourceID string) ([]model.Instance, error)

	// List returns instances matching the filters, newest first.
	List(ctx context.Context, filters model.InstanceFilters) ([]model.Instance, error)

	// Update persists a changed instance. The version must match the stored
	// version; returns CONFLICT otherwise.
	Update(ctx context.Context, inst model.Instance) error

	// CountByStatus returns the number of instances with the given status,
	// or all instances when status is empty.
	CountByStatus(ctx context.Context, status model.InstanceStatus) (int, error)

	// ExistsForDefinition reports whether any instance references the given
	// definition.
	ExistsForDefinition(ctx context.Context, definitionID string) (bool, error)
}

// StepStore persists steps. Steps are exclusively owned by their instance
// and never deleted.
type StepStore interface {
	// Create persists a new step.
	Create(ctx context.Context, step model.Step) error

	// Get retrieves a step by ID.
	Get(ctx context.Context, id string) (model.Step, error)

	// ListByInstance returns all steps of one instance ordered by ordinal
	// position.
	ListByInstance(ctx context.Context, instanceID string) ([]model.Step, error)

	// Update persists a changed step.
	Update(ctx context.Context, step model.Step) error
}
