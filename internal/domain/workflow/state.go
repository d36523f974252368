package workflow

// State is a phase of the onboarding lifecycle
type State string

const (
	StateAwaitingForm        State = "AWAITING_FORM"
	StateReminding           State = "REMINDING"
	StateCompleted           State = "COMPLETED"
	StateEscalatedUnresolved State = "ESCALATED_UNRESOLVED"
)

var validStates = map[State]bool{
	StateAwaitingForm:        true,
	StateReminding:           true,
	StateCompleted:           true,
	StateEscalatedUnresolved: true,
}

var terminalStates = map[State]bool{
	StateCompleted:           true,
	StateEscalatedUnresolved: true,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid onboarding phase
func (s State) IsValid() bool {
	return validStates[s]
}
