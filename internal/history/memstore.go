package history

import (
	"context"
	"sync"

	"github.com/venlo/procflow/model"
)

// MemoryStore is an in-memory Store for testing. Entries keep their append
// sequence so reads stay strictly ordered even when timestamps collide.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []model.HistoryEntry
	byInst  map[string][]int // instance ID -> indexes into entries
}

// NewMemoryStore creates a new in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byInst: make(map[string][]int)}
}

// Append persists a new entry.
func (s *MemoryStore) Append(_ context.Context, entry model.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := len(s.entries)
	s.entries = append(s.entries, entry)
	if entry.InstanceID != "" {
		s.byInst[entry.InstanceID] = append(s.byInst[entry.InstanceID], idx)
	}
	return nil
}

// ByInstance returns entries for one instance, newest first.
func (s *MemoryStore) ByInstance(_ context.Context, instanceID string, limit int) ([]model.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	indexes := s.byInst[instanceID]
	result := make([]model.HistoryEntry, 0, min(limit, len(indexes)))
	for i := len(indexes) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.entries[indexes[i]])
	}
	return result, nil
}

// ByEventType returns entries of one event type within a date range, newest
// first.
func (s *MemoryStore) ByEventType(_ context.Context, filters model.HistoryFilters) ([]model.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.HistoryEntry, 0, filters.Limit)
	for i := len(s.entries) - 1; i >= 0 && len(result) < filters.Limit; i-- {
		e := s.entries[i]
		if e.Type != filters.Type {
			continue
		}
		if filters.FromDate != nil && e.CreatedAt.Before(*filters.FromDate) {
			continue
		}
		if filters.ToDate != nil && e.CreatedAt.After(*filters.ToDate) {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

// Recent returns the most recent entries, newest first.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]model.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.HistoryEntry, 0, min(limit, len(s.entries)))
	for i := len(s.entries) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.entries[i])
	}
	return result, nil
}

// Len returns the total number of entries. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
