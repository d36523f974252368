package onboarding

import "github.com/garyjia/onboarding-workflow/internal/domain/workflow"

// NewPhaseMachine returns the onboarding transition table positioned at initial.
func NewPhaseMachine(initial workflow.State) workflow.StateMachine {
	b := workflow.NewBuilder()

	b.Configure(workflow.StateAwaitingForm).
		Permit(workflow.TriggerFormFilled, workflow.StateCompleted).
		Permit(workflow.TriggerDeadlineExpired, workflow.StateReminding)

	b.Configure(workflow.StateReminding).
		Permit(workflow.TriggerFormFilled, workflow.StateCompleted).
		PermitReentry(workflow.TriggerIntervalExpired).
		Permit(workflow.TriggerReminderLimitReached, workflow.StateEscalatedUnresolved)

	// A late signal on a finished onboarding changes nothing
	b.Configure(workflow.StateCompleted).
		Ignore(workflow.TriggerFormFilled)
	b.Configure(workflow.StateEscalatedUnresolved).
		Ignore(workflow.TriggerFormFilled)

	return b.Build(initial)
}
