package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/venlo/procflow/model"
)

// MemoryStore is an in-memory Store for testing.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]model.Definition
	byName map[string]string // name -> ID
}

// NewMemoryStore creates a new in-memory definition store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]model.Definition),
		byName: make(map[string]string),
	}
}

// Create persists a new definition, enforcing name uniqueness.
func (s *MemoryStore) Create(_ context.Context, def model.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[def.Name]; exists {
		return model.NewConflictError(fmt.Sprintf("definition named %q already exists", def.Name))
	}

	s.byID[def.ID] = def
	s.byName[def.Name] = def.ID
	return nil
}

// Get retrieves a definition by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (model.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, exists := s.byID[id]
	if !exists {
		return model.Definition{}, model.NewNotFoundError(fmt.Sprintf("definition %q not found", id))
	}
	return def, nil
}

// GetByName retrieves a definition by its unique name.
func (s *MemoryStore) GetByName(_ context.Context, name string) (model.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byName[name]
	if !exists {
		return model.Definition{}, model.NewNotFoundError(fmt.Sprintf("definition named %q not found", name))
	}
	return s.byID[id], nil
}

// List returns definitions matching the filters, newest first.
func (s *MemoryStore) List(_ context.Context, filters model.DefinitionFilters) ([]model.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Definition
	for _, def := range s.byID {
		if !matches(def, filters) {
			continue
		}
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Update persists a changed definition, keeping the name index current.
func (s *MemoryStore) Update(_ context.Context, def model.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.byID[def.ID]
	if !exists {
		return model.NewNotFoundError(fmt.Sprintf("definition %q not found", def.ID))
	}

	if existing.Name != def.Name {
		if _, taken := s.byName[def.Name]; taken {
			return model.NewConflictError(fmt.Sprintf("definition named %q already exists", def.Name))
		}
		delete(s.byName, existing.Name)
		s.byName[def.Name] = def.ID
	}

	s.byID[def.ID] = def
	return nil
}

// Count returns the number of definitions matching the filters.
func (s *MemoryStore) Count(_ context.Context, filters model.DefinitionFilters) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, def := range s.byID {
		if matches(def, filters) {
			count++
		}
	}
	return count, nil
}

func matches(def model.Definition, filters model.DefinitionFilters) bool {
	if filters.Type != "" && def.Type != filters.Type {
		return false
	}
	if filters.Status != "" && def.Status != filters.Status {
		return false
	}
	return true
}
