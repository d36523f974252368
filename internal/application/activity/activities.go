// Package activity implements the side-effecting onboarding operations the
// state machine calls. Each operation guards on its state flag so that a
// re-evaluation after a crash never repeats a completed side effect.
package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/garyjia/onboarding-workflow/internal/application/port"
	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
	"go.uber.org/zap"
)

// ErrFormNotFilled is returned when a thank-you email is requested before the form is filled
var ErrFormNotFilled = errors.New("employee form has not been filled")

// FollowUpTaskName is the descriptive template for HR follow-up tasks
const FollowUpTaskName = "Follow up: %s has not completed the new employee form"

// Activities implements port.Activities
type Activities struct {
	mailer   port.Mailer
	composer port.MessageComposer
	tracker  port.TaskTracker
	messages port.MessageRepository
	logger   *zap.Logger
}

// Option configures Activities
type Option func(*Activities)

// WithMessageRepository records every sent email for auditing
func WithMessageRepository(repo port.MessageRepository) Option {
	return func(a *Activities) {
		a.messages = repo
	}
}

// New creates the onboarding activities
func New(mailer port.Mailer, composer port.MessageComposer, tracker port.TaskTracker, logger *zap.Logger, opts ...Option) *Activities {
	a := &Activities{
		mailer:   mailer,
		composer: composer,
		tracker:  tracker,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SendWelcomeEmail sends the welcome email once
func (a *Activities) SendWelcomeEmail(ctx context.Context, state entity.OnboardingState) (entity.OnboardingState, error) {
	next := state.Clone()
	if next.WelcomeEmailSent {
		a.logger.Debug("Welcome email already sent, skipping", zap.String("employee_email", next.Employee.Email))
		return next, nil
	}

	if err := a.send(ctx, entity.MessageWelcome, next); err != nil {
		return state, err
	}

	next.WelcomeEmailSent = true
	return next, nil
}

// SendThankyouEmail sends the thank-you email once, after the form is filled
func (a *Activities) SendThankyouEmail(ctx context.Context, state entity.OnboardingState) (entity.OnboardingState, error) {
	next := state.Clone()
	if next.ThankyouEmailSent {
		a.logger.Debug("Thank-you email already sent, skipping", zap.String("employee_email", next.Employee.Email))
		return next, nil
	}
	if !next.FormFilled {
		// Retrying cannot fill the form
		return state, backoff.Permanent(ErrFormNotFilled)
	}

	if err := a.send(ctx, entity.MessageThankyou, next); err != nil {
		return state, err
	}

	next.ThankyouEmailSent = true
	return next, nil
}

// SendReminderEmail sends one reminder and counts it. The open task's
// priority follows the new count at once; the tracker catches up in
// CreateOrUpdateFollowUpTask.
func (a *Activities) SendReminderEmail(ctx context.Context, state entity.OnboardingState) (entity.OnboardingState, error) {
	next := state.Clone()
	next.RemindersSent++
	next.RefreshTaskPriority()

	// The composed reminder already carries its ordinal
	if err := a.send(ctx, entity.MessageReminder, next); err != nil {
		return state, err
	}

	return next, nil
}

// CreateOrUpdateFollowUpTask opens the HR task or escalates the existing one
func (a *Activities) CreateOrUpdateFollowUpTask(ctx context.Context, state entity.OnboardingState) (entity.OnboardingState, error) {
	next := state.Clone()
	priority := entity.PriorityFor(next.RemindersSent)

	if next.FollowUpTaskCreated && next.FollowUpTask != nil {
		task := *next.FollowUpTask
		task.Priority = priority
		task.Status = entity.TaskStatusInProgress

		updated, err := a.tracker.UpdateTask(ctx, task)
		if err != nil {
			return state, fmt.Errorf("failed to update follow-up task %s: %w", task.ID, err)
		}

		a.logger.Info("Follow-up task escalated",
			zap.String("task_id", updated.ID),
			zap.String("priority", string(updated.Priority)),
			zap.Int("reminders_sent", next.RemindersSent))

		next.FollowUpTask = &updated
		return next, nil
	}

	created, err := a.tracker.CreateTask(ctx, instanceID(ctx), entity.FollowUpTask{
		Name:     fmt.Sprintf(FollowUpTaskName, next.Employee.FullName()),
		Priority: priority,
		Status:   entity.TaskStatusNew,
	})
	if err != nil {
		return state, fmt.Errorf("failed to create follow-up task: %w", err)
	}

	a.logger.Info("Follow-up task created",
		zap.String("task_id", created.ID),
		zap.String("priority", string(created.Priority)))

	next.FollowUpTaskCreated = true
	next.FollowUpTask = &created
	return next, nil
}

// CompleteFollowUpTask closes the HR task if one exists
func (a *Activities) CompleteFollowUpTask(ctx context.Context, state entity.OnboardingState) (entity.OnboardingState, error) {
	next := state.Clone()
	if next.FollowUpTask == nil {
		return next, nil
	}
	if next.FollowUpTask.Status == entity.TaskStatusCompleted {
		return next, nil
	}

	completed, err := a.tracker.CompleteTask(ctx, next.FollowUpTask.ID)
	if err != nil {
		return state, fmt.Errorf("failed to complete follow-up task %s: %w", next.FollowUpTask.ID, err)
	}

	a.logger.Info("Follow-up task completed", zap.String("task_id", completed.ID))

	next.FollowUpTask = &completed
	return next, nil
}

func (a *Activities) send(ctx context.Context, kind entity.MessageKind, state entity.OnboardingState) error {
	msg, err := a.composer.Compose(ctx, kind, state)
	if err != nil {
		return fmt.Errorf("failed to compose %s email: %w", kind, err)
	}

	messageID, err := a.mailer.Send(ctx, msg)
	if err != nil {
		a.logger.Error("Failed to send email",
			zap.String("kind", string(kind)),
			zap.String("to", msg.To),
			zap.Error(err))
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}

	a.logger.Info("Email sent",
		zap.String("kind", string(kind)),
		zap.String("to", msg.To),
		zap.String("message_id", messageID))

	if a.messages != nil {
		record := &entity.SentMessage{
			InstanceID:        instanceID(ctx),
			Kind:              kind,
			Recipient:         msg.To,
			Subject:           msg.Subject,
			ProviderMessageID: messageID,
			SentAt:            time.Now().UTC(),
		}
		if err := a.messages.Create(ctx, record); err != nil {
			// The email is out; losing the audit row must not trigger a resend
			a.logger.Warn("Failed to record sent email", zap.Error(err))
		}
	}

	return nil
}

func instanceID(ctx context.Context) string {
	if info, ok := port.ActivityInfoFrom(ctx); ok {
		return info.InstanceID
	}
	return ""
}

var _ port.Activities = (*Activities)(nil)
