// Package history implements the append-only audit ledger. Entries are
// written once per significant transition and never mutated or deleted; the
// ledger is the system of record for what happened.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/venlo/procflow/model"
)

const defaultReadLimit = 50

// Ledger records and reads audit entries through a Store.
type Ledger struct {
	store    Store
	onAppend func(model.HistoryEntry)
}

// NewLedger creates a ledger backed by the given store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// OnAppend registers a callback invoked after each successful append. Used
// for instrumentation; must be set before the ledger is shared.
func (l *Ledger) OnAppend(fn func(model.HistoryEntry)) {
	l.onAppend = fn
}

// Append assigns identity and creation time to the entry and persists it.
// Severity defaults to info when unset.
func (l *Ledger) Append(ctx context.Context, entry model.HistoryEntry) (model.HistoryEntry, error) {
	entry.ID = uuid.New().String()
	entry.CreatedAt = time.Now().UTC()
	if entry.Severity == "" {
		entry.Severity = model.SeverityInfo
	}

	if err := l.store.Append(ctx, entry); err != nil {
		return model.HistoryEntry{}, err
	}
	if l.onAppend != nil {
		l.onAppend(entry)
	}
	return entry, nil
}

// ByInstance returns entries for one instance, newest first.
func (l *Ledger) ByInstance(ctx context.Context, instanceID string, limit int) ([]model.HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultReadLimit
	}
	return l.store.ByInstance(ctx, instanceID, limit)
}

// ByEventType returns entries of one event type within an optional date
// range, newest first.
func (l *Ledger) ByEventType(ctx context.Context, filters model.HistoryFilters) ([]model.HistoryEntry, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultReadLimit
	}
	return l.store.ByEventType(ctx, filters)
}

// Recent returns the global feed of most recent entries, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultReadLimit
	}
	return l.store.Recent(ctx, limit)
}
