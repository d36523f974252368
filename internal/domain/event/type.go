package event

// Type identifies the type of domain event
type Type string

const (
	TypeOnboardingStarted      Type = "onboarding.started"
	TypeOnboardingTransitioned Type = "onboarding.transitioned"
	TypeOnboardingCompleted    Type = "onboarding.completed"
	TypeOnboardingEscalated    Type = "onboarding.escalated"
	TypeOnboardingFailed       Type = "onboarding.failed"
	TypeFormFilled             Type = "form.filled"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeOnboardingStarted,
		TypeOnboardingTransitioned,
		TypeOnboardingCompleted,
		TypeOnboardingEscalated,
		TypeOnboardingFailed,
		TypeFormFilled:
		return true
	default:
		return false
	}
}
