package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/venlo/procflow/model"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5. Name uniqueness is
// enforced by a unique index on definitions(name).
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL definition store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const definitionColumns = `id, name, process_type, status, version, triggers, steps, metadata, created_at, updated_at`

// Create inserts a new definition.
func (s *PgStore) Create(ctx context.Context, def model.Definition) error {
	triggers, steps, metadata, err := marshalDefinition(def)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO definitions (
			id, name, process_type, status, version, triggers, steps, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		def.ID, def.Name, def.Type, def.Status, def.Version,
		triggers, steps, metadata, def.CreatedAt, def.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.NewConflictError(fmt.Sprintf("definition named %q already exists", def.Name))
		}
		return model.NewPersistenceError(fmt.Sprintf("insert definition: %v", err))
	}
	return nil
}

// Get retrieves a definition by ID.
func (s *PgStore) Get(ctx context.Context, id string) (model.Definition, error) {
	return s.queryOne(ctx, `SELECT `+definitionColumns+` FROM definitions WHERE id = $1`, id)
}

// GetByName retrieves a definition by its unique name.
func (s *PgStore) GetByName(ctx context.Context, name string) (model.Definition, error) {
	return s.queryOne(ctx, `SELECT `+definitionColumns+` FROM definitions WHERE name = $1`, name)
}

// List returns definitions matching the filters, newest first.
func (s *PgStore) List(ctx context.Context, filters model.DefinitionFilters) ([]model.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM definitions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filters.Type != "" {
		query += fmt.Sprintf(" AND process_type = $%d", argIdx)
		args = append(args, filters.Type)
		argIdx++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filters.Status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, model.NewPersistenceError(fmt.Sprintf("query definitions: %v", err))
	}
	defer rows.Close()

	var defs []model.Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewPersistenceError(fmt.Sprintf("read definitions: %v", err))
	}
	return defs, nil
}

// Update persists a changed definition.
func (s *PgStore) Update(ctx context.Context, def model.Definition) error {
	triggers, steps, metadata, err := marshalDefinition(def)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE definitions SET
			name = $1, status = $2, version = $3,
			triggers = $4, steps = $5, metadata = $6, updated_at = $7
		WHERE id = $8`,
		def.Name, def.Status, def.Version,
		triggers, steps, metadata, def.UpdatedAt, def.ID,
	)
	if err != nil {
		return model.NewPersistenceError(fmt.Sprintf("update definition: %v", err))
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("definition %q not found", def.ID))
	}
	return nil
}

// Count returns the number of definitions matching the filters.
func (s *PgStore) Count(ctx context.Context, filters model.DefinitionFilters) (int, error) {
	query := `SELECT COUNT(*) FROM definitions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filters.Type != "" {
		query += fmt.Sprintf(" AND process_type = $%d", argIdx)
		args = append(args, filters.Type)
		argIdx++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filters.Status)
	}

	var count int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, model.NewPersistenceError(fmt.Sprintf("count definitions: %v", err))
	}
	return count, nil
}

func (s *PgStore) queryOne(ctx context.Context, query string, arg any) (model.Definition, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return model.Definition{}, model.NewPersistenceError(fmt.Sprintf("query definition: %v", err))
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return model.Definition{}, model.NewPersistenceError(fmt.Sprintf("query definition: %v", err))
		}
		return model.Definition{}, model.NewNotFoundError(fmt.Sprintf("definition %v not found", arg))
	}
	return scanDefinition(rows)
}

func scanDefinition(row pgx.Row) (model.Definition, error) {
	var def model.Definition
	var triggers, steps, metadata []byte
	if err := row.Scan(
		&def.ID, &def.Name, &def.Type, &def.Status, &def.Version,
		&triggers, &steps, &metadata, &def.CreatedAt, &def.UpdatedAt,
	); err != nil {
		return model.Definition{}, model.NewPersistenceError(fmt.Sprintf("scan definition: %v", err))
	}
	if len(triggers) > 0 {
		_ = json.Unmarshal(triggers, &def.Triggers)
	}
	if len(steps) > 0 {
		_ = json.Unmarshal(steps, &def.Steps)
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &def.Metadata)
	}
	return def, nil
}

func marshalDefinition(def model.Definition) (triggers, steps, metadata []byte, err error) {
	if triggers, err = json.Marshal(def.Triggers); err != nil {
		return nil, nil, nil, model.NewPersistenceError(fmt.Sprintf("marshal triggers: %v", err))
	}
	if steps, err = json.Marshal(def.Steps); err != nil {
		return nil, nil, nil, model.NewPersistenceError(fmt.Sprintf("marshal steps: %v", err))
	}
	if metadata, err = json.Marshal(def.Metadata); err != nil {
		return nil, nil, nil, model.NewPersistenceError(fmt.Sprintf("marshal metadata: %v", err))
	}
	return triggers, steps, metadata, nil
}
