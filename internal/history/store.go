package history

import (
	"context"

	"github.com/venlo/procflow/model"
)

// Store persists history entries. Implementations must preserve per-instance
// append order and support the range reads below; no update or delete
// operation exists.
type Store interface {
	// Append persists a new entry.
	Append(ctx context.Context, entry model.HistoryEntry) error

	// ByInstance returns up to limit entries for one instance in strict
	// reverse-chronological order.
	ByInstance(ctx context.Context, instanceID string, limit int) ([]model.HistoryEntry, error)

	// ByEventType returns entries of one event type within an optional date
	// range, newest first.
	ByEventType(ctx context.Context, filters model.HistoryFilters) ([]model.HistoryEntry, error)

	// Recent returns the most recent entries across all instances, newest
	// first.
	Recent(ctx context.Context, limit int) ([]model.HistoryEntry, error)
}
