package onboarding

import (
	"context"
	"time"

	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
	"github.com/garyjia/onboarding-workflow/internal/race"
)

// ActivityFunc is one side-effecting step. It receives the full state and
// returns the updated state without mutating its input.
type ActivityFunc func(ctx context.Context, state entity.OnboardingState) (entity.OnboardingState, error)

// Environment is everything the state machine needs from the execution
// engine. It is the only way the machine suspends or touches the outside.
type Environment interface {
	// ExecuteActivity runs fn under the engine's timeout and retry policy and
	// returns its result. A result already recorded for this step is returned
	// without invoking fn again.
	ExecuteActivity(ctx context.Context, name string, fn ActivityFunc, state entity.OnboardingState) (entity.OnboardingState, error)

	// Race waits for the form-filled signal or for timeout to elapse. A
	// cancelled race returns an error.
	Race(ctx context.Context, name string, timeout time.Duration) (race.Outcome, error)

	// RecordTransition appends a phase change to the instance's log.
	RecordTransition(ctx context.Context, transition entity.Transition, state entity.OnboardingState) error
}

// Activity names as recorded in history.
const (
	ActivitySendWelcomeEmail           = "SendWelcomeEmail"
	ActivitySendThankyouEmail          = "SendThankyouEmail"
	ActivitySendReminderEmail          = "SendReminderEmail"
	ActivityCreateOrUpdateFollowUpTask = "CreateOrUpdateFollowUpTask"
	ActivityCompleteFollowUpTask       = "CompleteFollowUpTask"
)

// Race names as recorded in history.
const (
	RaceFormDeadline     = "FormFillDeadline"
	RaceReminderInterval = "ReminderInterval"
)
