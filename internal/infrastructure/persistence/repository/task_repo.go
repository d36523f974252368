package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/onboarding-workflow/internal/application/port"
	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
	"github.com/garyjia/onboarding-workflow/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// TaskRepository implements port.TaskRepository
type TaskRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTaskRepository creates a new follow-up task repository
func NewTaskRepository(db *sql.DB, logger *zap.Logger) port.TaskRepository {
	return &TaskRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a follow-up task
func (r *TaskRepository) Create(ctx context.Context, task *entity.TrackedTask) error {
	query := `
		INSERT INTO follow_up_tasks (
			id, instance_id, name, priority, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		task.ID,
		task.InstanceID,
		task.Name,
		task.Priority,
		task.Status,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create follow-up task", zap.String("task_id", task.ID), zap.Error(err))
		return fmt.Errorf("failed to create follow-up task: %w", err)
	}

	return nil
}

// GetByID returns the task, or nil if it does not exist
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*entity.TrackedTask, error) {
	query := `
		SELECT id, instance_id, name, priority, status, created_at, updated_at
		FROM follow_up_tasks
		WHERE id = ?
	`
	return r.get(ctx, query, id)
}

// GetByInstanceID returns the most recent task of an instance, or nil
func (r *TaskRepository) GetByInstanceID(ctx context.Context, instanceID string) (*entity.TrackedTask, error) {
	query := `
		SELECT id, instance_id, name, priority, status, created_at, updated_at
		FROM follow_up_tasks
		WHERE instance_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.get(ctx, query, instanceID)
}

// Update overwrites name, priority and status
func (r *TaskRepository) Update(ctx context.Context, task *entity.TrackedTask) error {
	query := `
		UPDATE follow_up_tasks
		SET name = ?, priority = ?, status = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		task.Name,
		task.Priority,
		task.Status,
		task.UpdatedAt,
		task.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update follow-up task", zap.String("task_id", task.ID), zap.Error(err))
		return fmt.Errorf("failed to update follow-up task: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("follow-up task %s not found", task.ID)
	}

	return nil
}

func (r *TaskRepository) get(ctx context.Context, query string, arg string) (*entity.TrackedTask, error) {
	var task entity.TrackedTask
	err := sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, arg).Scan(
		&task.ID,
		&task.InstanceID,
		&task.Name,
		&task.Priority,
		&task.Status,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get follow-up task", zap.String("key", arg), zap.Error(err))
		return nil, fmt.Errorf("failed to get follow-up task: %w", err)
	}

	return &task, nil
}
