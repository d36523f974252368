package port

import (
	"context"

	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
)

// Message is an outbound email
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers email messages and returns the provider's message ID
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// MessageComposer renders the email for a given purpose and onboarding state
type MessageComposer interface {
	Compose(ctx context.Context, kind entity.MessageKind, state entity.OnboardingState) (Message, error)
}

// TaskTracker is the ticketing system that owns follow-up tasks
type TaskTracker interface {
	// CreateTask opens a task for the instance and returns it with its assigned ID.
	CreateTask(ctx context.Context, instanceID string, task entity.FollowUpTask) (entity.FollowUpTask, error)

	// UpdateTask overwrites priority and status of an existing task.
	UpdateTask(ctx context.Context, task entity.FollowUpTask) (entity.FollowUpTask, error)

	// CompleteTask marks the task COMPLETED.
	CompleteTask(ctx context.Context, taskID string) (entity.FollowUpTask, error)
}
