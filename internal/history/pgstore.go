package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/venlo/procflow/model"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5. The insert-only schema
// carries a bigserial seq column so reads are strictly ordered even when
// created_at values collide.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL history store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const historyColumns = `id, instance_id, step_id, event_type, severity, message,
		details, event_data, previous_state, new_state,
		source_event, source_module, actor_id, created_at`

// Append inserts a new history entry.
func (s *PgStore) Append(ctx context.Context, entry model.HistoryEntry) error {
	details, err := marshalMap(entry.Details)
	if err != nil {
		return err
	}
	eventData, err := marshalMap(entry.EventData)
	if err != nil {
		return err
	}
	prevState, err := marshalMap(entry.PreviousState)
	if err != nil {
		return err
	}
	newState, err := marshalMap(entry.NewState)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO history_entries (
			id, instance_id, step_id, event_type, severity, message,
			details, event_data, previous_state, new_state,
			source_event, source_module, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		entry.ID, nullable(entry.InstanceID), nullable(entry.StepID),
		entry.Type, entry.Severity, entry.Message,
		details, eventData, prevState, newState,
		nullable(entry.SourceEvent), nullable(entry.SourceModule),
		nullable(entry.ActorID), entry.CreatedAt,
	)
	if err != nil {
		return model.NewPersistenceError(fmt.Sprintf("insert history entry: %v", err))
	}
	return nil
}

// ByInstance returns entries for one instance, newest first.
func (s *PgStore) ByInstance(ctx context.Context, instanceID string, limit int) ([]model.HistoryEntry, error) {
	return s.query(ctx, `
		SELECT `+historyColumns+`
		FROM history_entries
		WHERE instance_id = $1
		ORDER BY seq DESC
		LIMIT $2`,
		instanceID, limit,
	)
}

// ByEventType returns entries of one event type within a date range, newest
// first.
func (s *PgStore) ByEventType(ctx context.Context, filters model.HistoryFilters) ([]model.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM history_entries WHERE event_type = $1`
	args := []any{filters.Type}
	argIdx := 2

	if filters.FromDate != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *filters.FromDate)
		argIdx++
	}
	if filters.ToDate != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *filters.ToDate)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY seq DESC LIMIT $%d", argIdx)
	args = append(args, filters.Limit)

	return s.query(ctx, query, args...)
}

// Recent returns the most recent entries across all instances.
func (s *PgStore) Recent(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	return s.query(ctx, `
		SELECT `+historyColumns+`
		FROM history_entries
		ORDER BY seq DESC
		LIMIT $1`,
		limit,
	)
}

func (s *PgStore) query(ctx context.Context, query string, args ...any) ([]model.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, model.NewPersistenceError(fmt.Sprintf("query history entries: %v", err))
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		var instanceID, stepID, sourceEvent, sourceModule, actorID *string
		var details, eventData, prevState, newState []byte
		if err := rows.Scan(
			&e.ID, &instanceID, &stepID, &e.Type, &e.Severity, &e.Message,
			&details, &eventData, &prevState, &newState,
			&sourceEvent, &sourceModule, &actorID, &e.CreatedAt,
		); err != nil {
			return nil, model.NewPersistenceError(fmt.Sprintf("scan history entry: %v", err))
		}
		e.InstanceID = deref(instanceID)
		e.StepID = deref(stepID)
		e.SourceEvent = deref(sourceEvent)
		e.SourceModule = deref(sourceModule)
		e.ActorID = deref(actorID)
		unmarshalMap(details, &e.Details)
		unmarshalMap(eventData, &e.EventData)
		unmarshalMap(prevState, &e.PreviousState)
		unmarshalMap(newState, &e.NewState)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewPersistenceError(fmt.Sprintf("read history entries: %v", err))
	}
	return entries, nil
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, model.NewPersistenceError(fmt.Sprintf("marshal history payload: %v", err))
	}
	return data, nil
}

func unmarshalMap(data []byte, dst *map[string]any) {
	if len(data) > 0 {
		_ = json.Unmarshal(data, dst)
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
