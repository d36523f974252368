package port

import (
	"context"

	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
)

// Activities are the side-effecting operations the onboarding state machine
// invokes. Each takes the full state and returns the updated state; the input
// is never mutated. Every operation is idempotent with respect to its flag,
// except SendReminderEmail, where each call is a distinct reminder.
type Activities interface {
	// SendWelcomeEmail is a no-op when WelcomeEmailSent is already true.
	SendWelcomeEmail(ctx context.Context, state entity.OnboardingState) (entity.OnboardingState, error)

	// SendThankyouEmail is a no-op when ThankyouEmailSent is already true.
	SendThankyouEmail(ctx context.Context, state entity.OnboardingState) (entity.OnboardingState, error)

	// SendReminderEmail always sends and increments RemindersSent.
	SendReminderEmail(ctx context.Context, state entity.OnboardingState) (entity.OnboardingState, error)

	// CreateOrUpdateFollowUpTask creates the task when absent, otherwise
	// recomputes its priority and marks it IN_PROGRESS.
	CreateOrUpdateFollowUpTask(ctx context.Context, state entity.OnboardingState) (entity.OnboardingState, error)

	// CompleteFollowUpTask is a no-op when no task exists.
	CompleteFollowUpTask(ctx context.Context, state entity.OnboardingState) (entity.OnboardingState, error)
}
