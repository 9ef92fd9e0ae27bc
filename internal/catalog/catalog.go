// Package catalog manages immutable-per-version process templates. Catalog
// operations are idempotent metadata operations: no retries, failures are
// reported synchronously.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/venlo/procflow/model"
)

// ReferenceChecker reports whether any instance references the given
// definition. The engine supplies it so structural updates can bump the
// version instead of mutating a referenced template in place.
type ReferenceChecker func(ctx context.Context, definitionID string) (bool, error)

// Catalog owns definition lifecycle: create, update, activate, deactivate,
// archive, list, get.
type Catalog struct {
	store      Store
	referenced ReferenceChecker
}

// New creates a catalog backed by the given store. The reference checker may
// be nil, in which case structural updates always bump the version.
func New(store Store, referenced ReferenceChecker) *Catalog {
	return &Catalog{store: store, referenced: referenced}
}

// Create validates and persists a new definition with status draft and
// version 1.
func (c *Catalog) Create(ctx context.Context, def model.Definition) (model.Definition, error) {
	var fieldErrs []model.FieldError
	if def.Name == "" {
		fieldErrs = append(fieldErrs, model.FieldError{Field: "name", Code: "required", Message: "name is required"})
	}
	if def.Type == "" {
		def.Type = model.ProcessCustom
	}
	if !def.Type.Valid() {
		fieldErrs = append(fieldErrs, model.FieldError{Field: "type", Code: "invalid", Message: fmt.Sprintf("unknown process type %q", def.Type)})
	}
	if len(fieldErrs) > 0 {
		return model.Definition{}, model.NewValidationError(fieldErrs...)
	}

	now := time.Now().UTC()
	def.ID = uuid.New().String()
	def.Status = model.DefinitionDraft
	def.Version = 1
	def.CreatedAt = now
	def.UpdatedAt = now

	if err := c.store.Create(ctx, def); err != nil {
		return model.Definition{}, err
	}
	return def, nil
}

// Get returns a definition by ID.
func (c *Catalog) Get(ctx context.Context, id string) (model.Definition, error) {
	return c.store.Get(ctx, id)
}

// List returns definitions matching the filters.
func (c *Catalog) List(ctx context.Context, filters model.DefinitionFilters) ([]model.Definition, error) {
	return c.store.List(ctx, filters)
}

// Update applies a patch to a definition. A structural change (steps or
// triggers) to a definition referenced by any instance bumps the version so
// existing instances keep their version contract intact.
func (c *Catalog) Update(ctx context.Context, id string, patch model.DefinitionPatch) (model.Definition, error) {
	def, err := c.store.Get(ctx, id)
	if err != nil {
		return model.Definition{}, err
	}

	structural := patch.Steps != nil || patch.Triggers != nil
	if structural {
		bump := true
		if c.referenced != nil {
			bump, err = c.referenced(ctx, id)
			if err != nil {
				return model.Definition{}, err
			}
		}
		if bump {
			def.Version++
		}
	}

	if patch.Name != nil {
		def.Name = *patch.Name
	}
	if patch.Steps != nil {
		def.Steps = patch.Steps
	}
	if patch.Triggers != nil {
		def.Triggers = patch.Triggers
	}
	if patch.Metadata != nil {
		def.Metadata = patch.Metadata
	}
	def.UpdatedAt = time.Now().UTC()

	if err := c.store.Update(ctx, def); err != nil {
		return model.Definition{}, err
	}
	return def, nil
}

// Activate transitions a draft or inactive definition to active.
func (c *Catalog) Activate(ctx context.Context, id string) (model.Definition, error) {
	return c.transition(ctx, id, model.DefinitionActive, model.DefinitionDraft, model.DefinitionInactive)
}

// Deactivate transitions an active definition to inactive.
func (c *Catalog) Deactivate(ctx context.Context, id string) (model.Definition, error) {
	return c.transition(ctx, id, model.DefinitionInactive, model.DefinitionActive)
}

// Archive transitions a draft or inactive definition to archived.
func (c *Catalog) Archive(ctx context.Context, id string) (model.Definition, error) {
	return c.transition(ctx, id, model.DefinitionArchived, model.DefinitionDraft, model.DefinitionInactive)
}

func (c *Catalog) transition(ctx context.Context, id string, to model.DefinitionStatus, from ...model.DefinitionStatus) (model.Definition, error) {
	def, err := c.store.Get(ctx, id)
	if err != nil {
		return model.Definition{}, err
	}

	allowed := false
	for _, s := range from {
		if def.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return model.Definition{}, model.NewInvalidStateError(
			fmt.Sprintf("definition %q is %s, cannot transition to %s", def.Name, def.Status, to),
		)
	}

	def.Status = to
	def.UpdatedAt = time.Now().UTC()
	if err := c.store.Update(ctx, def); err != nil {
		return model.Definition{}, err
	}
	return def, nil
}

// Counts returns the total and active definition counts for the stats
// rollup.
func (c *Catalog) Counts(ctx context.Context) (total, active int, err error) {
	total, err = c.store.Count(ctx, model.DefinitionFilters{})
	if err != nil {
		return 0, 0, err
	}
	active, err = c.store.Count(ctx, model.DefinitionFilters{Status: model.DefinitionActive})
	if err != nil {
		return 0, 0, err
	}
	return total, active, nil
}
