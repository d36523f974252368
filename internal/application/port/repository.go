package port

import (
	"context"
	"time"

	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
)

// InstanceRepository defines persistence operations for OnboardingInstance
type InstanceRepository interface {
	Create(ctx context.Context, instance *entity.OnboardingInstance) error
	GetByID(ctx context.Context, id string) (*entity.OnboardingInstance, error)
	UpdateState(ctx context.Context, id string, phase string, state entity.OnboardingState) error
	MarkSignaled(ctx context.Context, id string) error
	Finish(ctx context.Context, id string, status entity.InstanceStatus, errMsg string, at time.Time) error
	ListByStatus(ctx context.Context, taskQueue string, status entity.InstanceStatus) ([]*entity.OnboardingInstance, error)
	List(ctx context.Context, limit, offset int) ([]*entity.OnboardingInstance, error)
}

// HistoryRepository stores the replay log of each instance
type HistoryRepository interface {
	// Append records the event. Appending an existing (instance, seq) pair fails.
	Append(ctx context.Context, evt *entity.HistoryEvent) error

	// ListByInstance returns all events of an instance ordered by seq.
	ListByInstance(ctx context.Context, instanceID string) ([]*entity.HistoryEvent, error)
}

// TaskRepository defines persistence operations for follow-up tasks
type TaskRepository interface {
	Create(ctx context.Context, task *entity.TrackedTask) error
	GetByID(ctx context.Context, id string) (*entity.TrackedTask, error)
	GetByInstanceID(ctx context.Context, instanceID string) (*entity.TrackedTask, error)
	Update(ctx context.Context, task *entity.TrackedTask) error
}

// MessageRepository records outbound emails
type MessageRepository interface {
	Create(ctx context.Context, msg *entity.SentMessage) error
	ListByInstance(ctx context.Context, instanceID string) ([]*entity.SentMessage, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
