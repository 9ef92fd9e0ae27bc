package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/venlo/procflow/model"
)

// PgInstanceStore is a PostgreSQL-backed InstanceStore using pgx/v5.
type PgInstanceStore struct {
	pool *pgxpool.Pool
}

// NewPgInstanceStore creates a new PostgreSQL instance store.
func NewPgInstanceStore(pool *pgxpool.Pool) *PgInstanceStore {
	return &PgInstanceStore{pool: pool}
}

// HealthCheck pings the database.
func (s *PgInstanceStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const instanceColumns = `id, number, definition_id, status, priority, context,
		current_step_id, current_step, source_type, source_id, source_number,
		error_message, error_details, total_steps, completed_steps, progress,
		version, created_at, started_at, completed_at, due_at, updated_at`

// Create inserts a new instance.
func (s *PgInstanceStore) Create(ctx context.Context, inst model.Instance) error {
	contextJSON, err := json.Marshal(inst.Context)
	if err != nil {
		return model.NewPersistenceError(fmt.Sprintf("marshal context: %v", err))
	}
	detailsJSON, err := json.Marshal(inst.ErrorDetails)
	if err != nil {
		return model.NewPersistenceError(fmt.Sprintf("marshal error details: %v", err))
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO instances (
			id, number, definition_id, status, priority, context,
			current_step_id, current_step, source_type, source_id, source_number,
			error_message, error_details, total_steps, completed_steps, progress,
			version, created_at, started_at, completed_at, due_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22
		)`,
		inst.ID, inst.Number, nullable(inst.DefinitionID), inst.Status, inst.Priority, contextJSON,
		nullable(inst.CurrentStepID), nullable(inst.CurrentStep),
		inst.Source.Type, inst.Source.ID, inst.Source.Number,
		nullable(inst.ErrorMessage), detailsJSON,
		inst.TotalSteps, inst.CompletedSteps, inst.Progress,
		inst.Version, inst.CreatedAt, inst.StartedAt, inst.CompletedAt, inst.DueAt, inst.UpdatedAt,
	)
	if err != nil {
		return model.NewPersistenceError(fmt.Sprintf("insert instance: %v", err))
	}
	return nil
}

// Get retrieves an instance by internal ID.
func (s *PgInstanceStore) Get(ctx context.Context, id string) (model.Instance, error) {
	return s.queryOne(ctx, `SELECT `+instanceColumns+` FROM instances WHERE id = $1`, id)
}

// GetByNumber retrieves an instance by its unique instance number.
func (s *PgInstanceStore) GetByNumber(ctx context.Context, number string) (model.Instance, error) {
	return s.queryOne(ctx, `SELECT `+instanceColumns+` FROM instances WHERE number = $1`, number)
}

// GetBySource retrieves instances tracking one business object.
func (s *PgInstanceStore) GetBySource(ctx context.Context, sourceType, sourceID string) ([]model.Instance, error) {
	return s.queryMany(ctx, `
		SELECT `+instanceColumns+`
		FROM instances
		WHERE source_type = $1 AND source_id = $2
		ORDER BY created_at DESC`,
		sourceType, sourceID,
	)
}

// List returns instances matching the filters, newest first.
func (s *PgInstanceStore) List(ctx context.Context, filters model.InstanceFilters) ([]model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filters.Status)
		argIdx++
	}
	if filters.Priority != "" {
		query += fmt.Sprintf(" AND priority = $%d", argIdx)
		args = append(args, filters.Priority)
		argIdx++
	}
	if filters.SourceType != "" {
		query += fmt.Sprintf(" AND source_type = $%d", argIdx)
		args = append(args, filters.SourceType)
		argIdx++
	}
	query += " ORDER BY created_at DESC"
	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		argIdx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filters.Offset)
	}

	return s.queryMany(ctx, query, args...)
}

// Update persists an updated instance with optimistic locking.
func (s *PgInstanceStore) Update(ctx context.Context, inst model.Instance) error {
	contextJSON, err := json.Marshal(inst.Context)
	if err != nil {
		return model.NewPersistenceError(fmt.Sprintf("marshal context: %v", err))
	}
	detailsJSON, err := json.Marshal(inst.ErrorDetails)
	if err != nil {
		return model.NewPersistenceError(fmt.Sprintf("marshal error details: %v", err))
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE instances SET
			status = $1, priority = $2, context = $3,
			current_step_id = $4, current_step = $5,
			error_message = $6, error_details = $7,
			total_steps = $8, completed_steps = $9, progress = $10,
			version = $11, started_at = $12, completed_at = $13, updated_at = $14
		WHERE id = $15 AND version = $16`,
		inst.Status, inst.Priority, contextJSON,
		nullable(inst.CurrentStepID), nullable(inst.CurrentStep),
		nullable(inst.ErrorMessage), detailsJSON,
		inst.TotalSteps, inst.CompletedSteps, inst.Progress,
		inst.Version+1, inst.StartedAt, inst.CompletedAt, inst.UpdatedAt,
		inst.ID, inst.Version,
	)
	if err != nil {
		return model.NewPersistenceError(fmt.Sprintf("update instance: %v", err))
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(fmt.Sprintf("instance %q version conflict (expected %d)", inst.ID, inst.Version))
	}
	return nil
}

// CountByStatus returns the number of instances with the given status.
func (s *PgInstanceStore) CountByStatus(ctx context.Context, status model.InstanceStatus) (int, error) {
	query := `SELECT COUNT(*) FROM instances`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}

	var count int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, model.NewPersistenceError(fmt.Sprintf("count instances: %v", err))
	}
	return count, nil
}

// ExistsForDefinition reports whether any instance references the
// definition.
func (s *PgInstanceStore) ExistsForDefinition(ctx context.Context, definitionID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM instances WHERE definition_id = $1)`,
		definitionID,
	).Scan(&exists)
	if err != nil {
		return false, model.NewPersistenceError(fmt.Sprintf("check definition references: %v", err))
	}
	return exists, nil
}

func (s *PgInstanceStore) queryOne(ctx context.Context, query string, arg any) (model.Instance, error) {
	row := s.pool.QueryRow(ctx, query, arg)
	inst, err := scanInstance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Instance{}, model.NewNotFoundError(fmt.Sprintf("instance %v not found", arg))
	}
	if err != nil {
		return model.Instance{}, model.NewPersistenceError(fmt.Sprintf("query instance: %v", err))
	}
	return inst, nil
}

func (s *PgInstanceStore) queryMany(ctx context.Context, query string, args ...any) ([]model.Instance, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, model.NewPersistenceError(fmt.Sprintf("query instances: %v", err))
	}
	defer rows.Close()

	var instances []model.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, model.NewPersistenceError(fmt.Sprintf("scan instance: %v", err))
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewPersistenceError(fmt.Sprintf("read instances: %v", err))
	}
	return instances, nil
}

func scanInstance(row pgx.Row) (model.Instance, error) {
	var inst model.Instance
	var definitionID, currentStepID, currentStep, errorMessage *string
	var contextJSON, detailsJSON []byte
	err := row.Scan(
		&inst.ID, &inst.Number, &definitionID, &inst.Status, &inst.Priority, &contextJSON,
		&currentStepID, &currentStep, &inst.Source.Type, &inst.Source.ID, &inst.Source.Number,
		&errorMessage, &detailsJSON, &inst.TotalSteps, &inst.CompletedSteps, &inst.Progress,
		&inst.Version, &inst.CreatedAt, &inst.StartedAt, &inst.CompletedAt, &inst.DueAt, &inst.UpdatedAt,
	)
	if err != nil {
		return model.Instance{}, err
	}
	inst.DefinitionID = deref(definitionID)
	inst.CurrentStepID = deref(currentStepID)
	inst.CurrentStep = deref(currentStep)
	inst.ErrorMessage = deref(errorMessage)
	if len(contextJSON) > 0 {
		_ = json.Unmarshal(contextJSON, &inst.Context)
	}
	if len(detailsJSON) > 0 {
		_ = json.Unmarshal(detailsJSON, &inst.ErrorDetails)
	}
	return inst, nil
}

// PgStepStore is a PostgreSQL-backed StepStore using pgx/v5.
type PgStepStore struct {
	pool *pgxpool.Pool
}

// NewPgStepStore creates a new PostgreSQL step store.
func NewPgStepStore(pool *pgxpool.Pool) *PgStepStore {
	return &PgStepStore{pool: pool}
}

const stepColumns = `id, instance_id, template_id, name, kind, status, ordinal,
		job_ref, input, output, error_message, error_details,
		retry_count, max_retries, started_at, completed_at, duration_ms,
		created_at, updated_at`

// Create inserts a new step.
func (s *PgStepStore) Create(ctx context.Context, step model.Step) error {
	inputJSON, outputJSON, detailsJSON, err := marshalStep(step)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO steps (
			id, instance_id, template_id, name, kind, status, ordinal,
			job_ref, input, output, error_message, error_details,
			retry_count, max_retries, started_at, completed_at, duration_ms,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19
		)`,
		step.ID, step.InstanceID, nullable(step.TemplateID), step.Name, step.Kind, step.Status, step.Order,
		nullable(step.JobRef), inputJSON, outputJSON,
		nullable(step.ErrorMessage), detailsJSON,
		step.RetryCount, step.MaxRetries, step.StartedAt, step.CompletedAt, step.DurationMs,
		step.CreatedAt, step.UpdatedAt,
	)
	if err != nil {
		return model.NewPersistenceError(fmt.Sprintf("insert step: %v", err))
	}
	return nil
}

// Get retrieves a step by ID.
func (s *PgStepStore) Get(ctx context.Context, id string) (model.Step, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+stepColumns+` FROM steps WHERE id = $1`, id)
	step, err := scanStep(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Step{}, model.NewNotFoundError(fmt.Sprintf("step %q not found", id))
	}
	if err != nil {
		return model.Step{}, model.NewPersistenceError(fmt.Sprintf("query step: %v", err))
	}
	return step, nil
}

// ListByInstance returns all steps of one instance ordered by position.
func (s *PgStepStore) ListByInstance(ctx context.Context, instanceID string) ([]model.Step, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+stepColumns+`
		FROM steps
		WHERE instance_id = $1
		ORDER BY ordinal ASC, created_at ASC`,
		instanceID,
	)
	if err != nil {
		return nil, model.NewPersistenceError(fmt.Sprintf("query steps: %v", err))
	}
	defer rows.Close()

	var steps []model.Step
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, model.NewPersistenceError(fmt.Sprintf("scan step: %v", err))
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewPersistenceError(fmt.Sprintf("read steps: %v", err))
	}
	return steps, nil
}

// Update persists a changed step.
func (s *PgStepStore) Update(ctx context.Context, step model.Step) error {
	inputJSON, outputJSON, detailsJSON, err := marshalStep(step)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE steps SET
			status = $1, job_ref = $2, input = $3, output = $4,
			error_message = $5, error_details = $6,
			retry_count = $7, started_at = $8, completed_at = $9,
			duration_ms = $10, updated_at = $11
		WHERE id = $12`,
		step.Status, nullable(step.JobRef), inputJSON, outputJSON,
		nullable(step.ErrorMessage), detailsJSON,
		step.RetryCount, step.StartedAt, step.CompletedAt,
		step.DurationMs, step.UpdatedAt,
		step.ID,
	)
	if err != nil {
		return model.NewPersistenceError(fmt.Sprintf("update step: %v", err))
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("step %q not found", step.ID))
	}
	return nil
}

func scanStep(row pgx.Row) (model.Step, error) {
	var step model.Step
	var templateID, jobRef, errorMessage *string
	var inputJSON, outputJSON, detailsJSON []byte
	err := row.Scan(
		&step.ID, &step.InstanceID, &templateID, &step.Name, &step.Kind, &step.Status, &step.Order,
		&jobRef, &inputJSON, &outputJSON, &errorMessage, &detailsJSON,
		&step.RetryCount, &step.MaxRetries, &step.StartedAt, &step.CompletedAt, &step.DurationMs,
		&step.CreatedAt, &step.UpdatedAt,
	)
	if err != nil {
		return model.Step{}, err
	}
	step.TemplateID = deref(templateID)
	step.JobRef = deref(jobRef)
	step.ErrorMessage = deref(errorMessage)
	if len(inputJSON) > 0 {
		_ = json.Unmarshal(inputJSON, &step.Input)
	}
	if len(outputJSON) > 0 {
		_ = json.Unmarshal(outputJSON, &step.Output)
	}
	if len(detailsJSON) > 0 {
		_ = json.Unmarshal(detailsJSON, &step.ErrorDetails)
	}
	return step, nil
}

func marshalStep(step model.Step) (input, output, details []byte, err error) {
	if input, err = json.Marshal(step.Input); err != nil {
		return nil, nil, nil, model.NewPersistenceError(fmt.Sprintf("marshal step input: %v", err))
	}
	if output, err = json.Marshal(step.Output); err != nil {
		return nil, nil, nil, model.NewPersistenceError(fmt.Sprintf("marshal step output: %v", err))
	}
	if details, err = json.Marshal(step.ErrorDetails); err != nil {
		return nil, nil, nil, model.NewPersistenceError(fmt.Sprintf("marshal step error details: %v", err))
	}
	return input, output, details, nil
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
