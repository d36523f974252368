package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/onboarding-workflow/internal/application/port"
	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
	"github.com/garyjia/onboarding-workflow/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

const instanceColumns = `
	id, workflow_name, task_queue, employee_id, employee_email, phase, status,
	input_json, state_json, form_filled_signaled, error,
	started_at, completed_at, updated_at`

// Create inserts a new onboarding instance
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.OnboardingInstance) error {
	input, err := marshalState(instance.Input)
	if err != nil {
		return err
	}
	state, err := marshalState(instance.State)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO onboarding_instances (
			id, workflow_name, task_queue, employee_id, employee_email, phase, status,
			input_json, state_json, form_filled_signaled, error,
			started_at, completed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		instance.ID,
		instance.WorkflowName,
		instance.TaskQueue,
		instance.EmployeeID,
		instance.EmployeeEmail,
		instance.Phase,
		instance.Status,
		input,
		state,
		instance.FormFilledSignaled,
		instance.Error,
		instance.StartedAt,
		instance.CompletedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create instance", zap.String("id", instance.ID), zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	return nil
}

// GetByID returns the instance, or nil if it does not exist
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*entity.OnboardingInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM onboarding_instances WHERE id = ?`

	instance, err := scanInstance(sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	return instance, nil
}

// UpdateState stores the latest snapshot and phase
func (r *InstanceRepository) UpdateState(ctx context.Context, id string, phase string, state entity.OnboardingState) error {
	data, err := marshalState(&state)
	if err != nil {
		return err
	}

	query := `
		UPDATE onboarding_instances
		SET phase = ?, state_json = ?, updated_at = ?
		WHERE id = ?
	`
	return r.exec(ctx, "update state", id, true, query, phase, data, time.Now().UTC(), id)
}

// MarkSignaled records the form-filled signal on a running instance
func (r *InstanceRepository) MarkSignaled(ctx context.Context, id string) error {
	query := `
		UPDATE onboarding_instances
		SET form_filled_signaled = 1, updated_at = ?
		WHERE id = ? AND status = ?
	`
	// Matches nothing once the instance has finished
	return r.exec(ctx, "mark signaled", id, false, query, time.Now().UTC(), id, entity.InstanceStatusRunning)
}

// Finish sets the final execution status
func (r *InstanceRepository) Finish(ctx context.Context, id string, status entity.InstanceStatus, errMsg string, at time.Time) error {
	query := `
		UPDATE onboarding_instances
		SET status = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`
	return r.exec(ctx, "finish", id, true, query, status, errMsg, at, at, id)
}

// ListByStatus returns instances of a task queue in the given status, oldest first
func (r *InstanceRepository) ListByStatus(ctx context.Context, taskQueue string, status entity.InstanceStatus) ([]*entity.OnboardingInstance, error) {
	query := `SELECT ` + instanceColumns + `
		FROM onboarding_instances
		WHERE task_queue = ? AND status = ?
		ORDER BY started_at ASC, id ASC`

	return r.query(ctx, query, taskQueue, status)
}

// List returns instances newest first
func (r *InstanceRepository) List(ctx context.Context, limit, offset int) ([]*entity.OnboardingInstance, error) {
	query := `SELECT ` + instanceColumns + `
		FROM onboarding_instances
		ORDER BY started_at DESC, id ASC
		LIMIT ? OFFSET ?`

	return r.query(ctx, query, limit, offset)
}

func (r *InstanceRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.OnboardingInstance, error) {
	rows, err := sqlite.GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	instances := make([]*entity.OnboardingInstance, 0)
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, instance)
	}

	return instances, rows.Err()
}

func (r *InstanceRepository) exec(ctx context.Context, op, id string, mustMatch bool, query string, args ...interface{}) error {
	result, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	if !mustMatch {
		return nil
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to %s: instance %s not found", op, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (*entity.OnboardingInstance, error) {
	var instance entity.OnboardingInstance
	var employeeID, stateJSON, errMsg sql.NullString
	var inputJSON string
	var completedAt sql.NullTime

	err := row.Scan(
		&instance.ID,
		&instance.WorkflowName,
		&instance.TaskQueue,
		&employeeID,
		&instance.EmployeeEmail,
		&instance.Phase,
		&instance.Status,
		&inputJSON,
		&stateJSON,
		&instance.FormFilledSignaled,
		&errMsg,
		&instance.StartedAt,
		&completedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	instance.EmployeeID = employeeID.String
	instance.Error = errMsg.String
	if completedAt.Valid {
		instance.CompletedAt = &completedAt.Time
	}

	if instance.Input, err = unmarshalState(inputJSON); err != nil {
		return nil, err
	}
	if stateJSON.Valid {
		if instance.State, err = unmarshalState(stateJSON.String); err != nil {
			return nil, err
		}
	}

	return &instance, nil
}

func marshalState(state *entity.OnboardingState) (interface{}, error) {
	if state == nil {
		return nil, nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal onboarding state: %w", err)
	}
	return string(data), nil
}

func unmarshalState(data string) (*entity.OnboardingState, error) {
	if data == "" {
		return nil, nil
	}
	var state entity.OnboardingState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal onboarding state: %w", err)
	}
	return &state, nil
}
