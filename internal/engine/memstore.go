package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/venlo/procflow/model"
)

// MemoryInstanceStore is an in-memory InstanceStore for testing.
type MemoryInstanceStore struct {
	mu        sync.RWMutex
	instances map[string]model.Instance // key: instance ID
	byNumber  map[string]string         // instance number -> ID
}

// NewMemoryInstanceStore creates a new in-memory instance store.
func NewMemoryInstanceStore() *MemoryInstanceStore {
	return &MemoryInstanceStore{
		instances: make(map[string]model.Instance),
		byNumber:  make(map[string]string),
	}
}

// Create persists a new instance.
func (s *MemoryInstanceStore) Create(_ context.Context, inst model.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.instances[inst.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("instance %q already exists", inst.ID))
	}
	if _, exists := s.byNumber[inst.Number]; exists {
		return model.NewConflictError(fmt.Sprintf("instance number %q already exists", inst.Number))
	}

	s.instances[inst.ID] = inst
	s.byNumber[inst.Number] = inst.ID
	return nil
}

// Get retrieves an instance by internal ID.
func (s *MemoryInstanceStore) Get(_ context.Context, id string) (model.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, exists := s.instances[id]
	if !exists {
		return model.Instance{}, model.NewNotFoundError(fmt.Sprintf("instance %q not found", id))
	}
	return inst, nil
}

// GetByNumber retrieves an instance by its unique instance number.
func (s *MemoryInstanceStore) GetByNumber(_ context.Context, number string) (model.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byNumber[number]
	if !exists {
		return model.Instance{}, model.NewNotFoundError(fmt.Sprintf("instance number %q not found", number))
	}
	return s.instances[id], nil
}

// GetBySource retrieves instances tracking one business object, newest first.
func (s *MemoryInstanceStore) GetBySource(_ context.Context, sourceType, sourceID string) ([]model.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Instance
	for _, inst := range s.instances {
		if inst.Source.Type == sourceType && inst.Source.ID == sourceID {
			result = append(result, inst)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

// List returns instances matching the filters, newest first.
func (s *MemoryInstanceStore) List(_ context.Context, filters model.InstanceFilters) ([]model.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Instance
	for _, inst := range s.instances {
		if filters.Status != "" && inst.Status != filters.Status {
			continue
		}
		if filters.Priority != "" && inst.Priority != filters.Priority {
			continue
		}
		if filters.SourceType != "" && inst.Source.Type != filters.SourceType {
			continue
		}
		result = append(result, inst)
	}
	sortNewestFirst(result)

	if filters.Offset > 0 {
		if filters.Offset >= len(result) {
			return []model.Instance{}, nil
		}
		result = result[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(result) {
		result = result[:filters.Limit]
	}
	return result, nil
}

// Update persists an updated instance with optimistic locking. The caller
// stamps UpdatedAt so the copy it returns matches the persisted row.
func (s *MemoryInstanceStore) Update(_ context.Context, inst model.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.instances[inst.ID]
	if !exists {
		return model.NewNotFoundError(fmt.Sprintf("instance %q not found", inst.ID))
	}
	if existing.Version != inst.Version {
		return model.NewConflictError(
			fmt.Sprintf("instance %q version conflict (expected %d, got %d)", inst.ID, inst.Version, existing.Version),
		)
	}

	inst.Version++
	s.instances[inst.ID] = inst
	return nil
}

// CountByStatus returns the number of instances with the given status.
func (s *MemoryInstanceStore) CountByStatus(_ context.Context, status model.InstanceStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if status == "" {
		return len(s.instances), nil
	}
	count := 0
	for _, inst := range s.instances {
		if inst.Status == status {
			count++
		}
	}
	return count, nil
}

// ExistsForDefinition reports whether any instance references the
// definition.
func (s *MemoryInstanceStore) ExistsForDefinition(_ context.Context, definitionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inst := range s.instances {
		if inst.DefinitionID == definitionID {
			return true, nil
		}
	}
	return false, nil
}

func sortNewestFirst(instances []model.Instance) {
	sort.Slice(instances, func(i, j int) bool {
		if instances[i].CreatedAt.Equal(instances[j].CreatedAt) {
			return instances[i].Number > instances[j].Number
		}
		return instances[i].CreatedAt.After(instances[j].CreatedAt)
	})
}

// MemoryStepStore is an in-memory StepStore for testing.
type MemoryStepStore struct {
	mu    sync.RWMutex
	steps map[string]model.Step // key: step ID
}

// NewMemoryStepStore creates a new in-memory step store.
func NewMemoryStepStore() *MemoryStepStore {
	return &MemoryStepStore{steps: make(map[string]model.Step)}
}

// Create persists a new step.
func (s *MemoryStepStore) Create(_ context.Context, step model.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.steps[step.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("step %q already exists", step.ID))
	}
	s.steps[step.ID] = step
	return nil
}

// Get retrieves a step by ID.
func (s *MemoryStepStore) Get(_ context.Context, id string) (model.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	step, exists := s.steps[id]
	if !exists {
		return model.Step{}, model.NewNotFoundError(fmt.Sprintf("step %q not found", id))
	}
	return step, nil
}

// ListByInstance returns all steps of one instance ordered by position.
func (s *MemoryStepStore) ListByInstance(_ context.Context, instanceID string) ([]model.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Step
	for _, step := range s.steps {
		if step.InstanceID == instanceID {
			result = append(result, step)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Order < result[j].Order
	})
	return result, nil
}

// Update persists a changed step. The caller stamps UpdatedAt.
func (s *MemoryStepStore) Update(_ context.Context, step model.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.steps[step.ID]; !exists {
		return model.NewNotFoundError(fmt.Sprintf("step %q not found", step.ID))
	}
	s.steps[step.ID] = step
	return nil
}
