package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/onboarding-workflow/internal/application/port"
	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
	"github.com/google/uuid"
)

// TaskService is the built-in ticketing system for HR follow-up tasks.
// It implements port.TaskTracker on top of the task repository.
type TaskService struct {
	taskRepo  port.TaskRepository
	txManager port.TransactionManager
	logger    Logger
	now       func() time.Time
}

var _ port.TaskTracker = (*TaskService)(nil)

// NewTaskService creates a new TaskService
func NewTaskService(
	taskRepo port.TaskRepository,
	txManager port.TransactionManager,
	logger Logger,
) *TaskService {
	return &TaskService{
		taskRepo:  taskRepo,
		txManager: txManager,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateTask opens a task for the instance. An open task that already exists
// for the instance is returned instead, so a retried activity never creates
// a second ticket.
func (s *TaskService) CreateTask(ctx context.Context, instanceID string, task entity.FollowUpTask) (entity.FollowUpTask, error) {
	var created entity.FollowUpTask

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.taskRepo.GetByInstanceID(txCtx, instanceID)
		if err != nil {
			return fmt.Errorf("check existing task: %w", err)
		}
		if existing != nil && existing.Status != entity.TaskStatusCompleted {
			s.logger.Info("Follow-up task already exists",
				"instance_id", instanceID,
				"task_id", existing.ID)
			created = existing.FollowUpTask
			return nil
		}

		now := s.now().UTC()
		tracked := &entity.TrackedTask{
			FollowUpTask: task,
			InstanceID:   instanceID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if tracked.ID == "" {
			tracked.ID = uuid.NewString()
		}
		if tracked.Status == "" {
			tracked.Status = entity.TaskStatusNew
		}

		if err := s.taskRepo.Create(txCtx, tracked); err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		created = tracked.FollowUpTask
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create follow-up task", "error", err, "instance_id", instanceID)
		return entity.FollowUpTask{}, err
	}

	s.logger.Info("Follow-up task created",
		"instance_id", instanceID,
		"task_id", created.ID,
		"priority", created.Priority)

	return created, nil
}

// UpdateTask overwrites priority and status. The name is only replaced when set.
func (s *TaskService) UpdateTask(ctx context.Context, task entity.FollowUpTask) (entity.FollowUpTask, error) {
	var updated entity.FollowUpTask

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.load(txCtx, task.ID)
		if err != nil {
			return err
		}
		if existing.Status == entity.TaskStatusCompleted {
			return fmt.Errorf("%w: %s", ErrTaskCompleted, task.ID)
		}

		if task.Name != "" {
			existing.Name = task.Name
		}
		existing.Priority = task.Priority
		existing.Status = task.Status
		existing.UpdatedAt = s.now().UTC()

		if err := s.taskRepo.Update(txCtx, existing); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		updated = existing.FollowUpTask
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update follow-up task", "error", err, "task_id", task.ID)
		return entity.FollowUpTask{}, err
	}

	s.logger.Info("Follow-up task updated",
		"task_id", updated.ID,
		"priority", updated.Priority,
		"status", updated.Status)

	return updated, nil
}

// CompleteTask marks the task COMPLETED. Completing twice is not an error.
func (s *TaskService) CompleteTask(ctx context.Context, taskID string) (entity.FollowUpTask, error) {
	var completed entity.FollowUpTask

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.load(txCtx, taskID)
		if err != nil {
			return err
		}
		if existing.Status != entity.TaskStatusCompleted {
			existing.Status = entity.TaskStatusCompleted
			existing.UpdatedAt = s.now().UTC()
			if err := s.taskRepo.Update(txCtx, existing); err != nil {
				return fmt.Errorf("complete task: %w", err)
			}
		}
		completed = existing.FollowUpTask
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to complete follow-up task", "error", err, "task_id", taskID)
		return entity.FollowUpTask{}, err
	}

	s.logger.Info("Follow-up task completed", "task_id", taskID)
	return completed, nil
}

// GetForInstance returns the latest task of an instance, or nil
func (s *TaskService) GetForInstance(ctx context.Context, instanceID string) (*entity.TrackedTask, error) {
	task, err := s.taskRepo.GetByInstanceID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("get task for instance: %w", err)
	}
	return task, nil
}

func (s *TaskService) load(ctx context.Context, taskID string) (*entity.TrackedTask, error) {
	existing, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return existing, nil
}
