// Package onboarding holds the onboarding control loop. It decides what
// happens next and leaves every side effect and every wait to its
// Environment.
package onboarding

import (
	"context"
	"fmt"

	"github.com/garyjia/onboarding-workflow/internal/application/port"
	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
	"github.com/garyjia/onboarding-workflow/internal/domain/workflow"
	"github.com/garyjia/onboarding-workflow/internal/race"
	"go.uber.org/zap"
)

// Result is the final snapshot of a run and the terminal phase it reached
type Result struct {
	State entity.OnboardingState `json:"state"`
	Phase workflow.State         `json:"phase"`
}

// StateMachine drives one onboarding from welcome email to a terminal phase
type StateMachine struct {
	activities port.Activities
	logger     *zap.Logger
}

// NewStateMachine creates a state machine over the given activities
func NewStateMachine(activities port.Activities, logger *zap.Logger) *StateMachine {
	return &StateMachine{
		activities: activities,
		logger:     logger,
	}
}

type run struct {
	m      *StateMachine
	env    Environment
	phases workflow.StateMachine
	state  entity.OnboardingState
	logger *zap.Logger
}

// Run executes the onboarding. It returns when the form is filled or the
// reminders are exhausted; an activity error or a cancelled wait ends the
// run early with that error.
func (m *StateMachine) Run(ctx context.Context, env Environment, initial entity.OnboardingState) (Result, error) {
	if err := initial.ValidateInitial(); err != nil {
		return Result{State: initial, Phase: workflow.StateAwaitingForm}, err
	}

	r := &run{
		m:      m,
		env:    env,
		phases: NewPhaseMachine(workflow.StateAwaitingForm),
		state:  initial.Clone(),
		logger: m.logger.With(zap.String("employee_email", initial.Employee.Email)),
	}

	if err := r.activity(ctx, ActivitySendWelcomeEmail, m.activities.SendWelcomeEmail); err != nil {
		return r.result(), err
	}
	r.logger.Info("Employee Welcome Email Sent")

	outcome, err := env.Race(ctx, RaceFormDeadline, r.state.FormFillDeadline.Std())
	if err != nil {
		return r.result(), err
	}
	if outcome == race.OutcomeSignal {
		return r.complete(ctx)
	}

	r.logger.Info("Form fill deadline expired, starting reminders",
		zap.Stringer("deadline", r.state.FormFillDeadline))
	if err := r.fire(ctx, workflow.TriggerDeadlineExpired); err != nil {
		return r.result(), err
	}

	for cycle := 1; r.state.RemindersSent < r.state.ReminderLimit; cycle++ {
		r.logger.Info("Reminder cycle",
			zap.Int("cycle", cycle),
			zap.Int("reminder_limit", r.state.ReminderLimit))

		if err := r.activity(ctx, ActivitySendReminderEmail, m.activities.SendReminderEmail); err != nil {
			return r.result(), err
		}
		if err := r.activity(ctx, ActivityCreateOrUpdateFollowUpTask, m.activities.CreateOrUpdateFollowUpTask); err != nil {
			return r.result(), err
		}

		outcome, err := env.Race(ctx, RaceReminderInterval, r.state.ReminderInterval.Std())
		if err != nil {
			return r.result(), err
		}
		if outcome == race.OutcomeSignal {
			return r.complete(ctx)
		}

		if r.state.RemindersSent < r.state.ReminderLimit {
			if err := r.fire(ctx, workflow.TriggerIntervalExpired); err != nil {
				return r.result(), err
			}
		}
	}

	r.logger.Warn("Reminder limit reached without form completion",
		zap.Int("reminders_sent", r.state.RemindersSent))
	if err := r.fire(ctx, workflow.TriggerReminderLimitReached); err != nil {
		return r.result(), err
	}

	return r.result(), nil
}

func (r *run) complete(ctx context.Context) (Result, error) {
	r.state.FormFilled = true
	r.logger.Info("New employee form filled")

	if err := r.activity(ctx, ActivityCompleteFollowUpTask, r.m.activities.CompleteFollowUpTask); err != nil {
		return r.result(), err
	}
	if err := r.activity(ctx, ActivitySendThankyouEmail, r.m.activities.SendThankyouEmail); err != nil {
		return r.result(), err
	}
	r.logger.Info("Employee Thank You Email Sent")

	if err := r.fire(ctx, workflow.TriggerFormFilled); err != nil {
		return r.result(), err
	}
	return r.result(), nil
}

func (r *run) activity(ctx context.Context, name string, fn ActivityFunc) error {
	next, err := r.env.ExecuteActivity(ctx, name, fn, r.state.Clone())
	if err != nil {
		return fmt.Errorf("activity %s failed: %w", name, err)
	}
	r.state = next
	return nil
}

func (r *run) fire(ctx context.Context, trigger workflow.Trigger) error {
	from := r.phases.State()
	if err := r.phases.Fire(ctx, trigger); err != nil {
		return err
	}

	return r.env.RecordTransition(ctx, entity.Transition{
		From:          from.String(),
		To:            r.phases.State().String(),
		Trigger:       trigger.String(),
		RemindersSent: r.state.RemindersSent,
	}, r.state.Clone())
}

func (r *run) result() Result {
	return Result{State: r.state.Clone(), Phase: r.phases.State()}
}
