package catalog

import (
	"context"

	"github.com/venlo/procflow/model"
)

// Store persists process definitions. Name is unique across all
// definitions; Create returns CONFLICT on a duplicate.
type Store interface {
	// Create persists a new definition.
	Create(ctx context.Context, def model.Definition) error

	// Get retrieves a definition by ID. Returns NOT_FOUND if absent.
	Get(ctx context.Context, id string) (model.Definition, error)

	// GetByName retrieves a definition by its unique name.
	GetByName(ctx context.Context, name string) (model.Definition, error)

	// List returns definitions matching the filters, newest first.
	List(ctx context.Context, filters model.DefinitionFilters) ([]model.Definition, error)

	// Update persists a changed definition.
	Update(ctx context.Context, def model.Definition) error

	// Count returns the number of definitions matching the filters.
	Count(ctx context.Context, filters model.DefinitionFilters) (int, error)
}
