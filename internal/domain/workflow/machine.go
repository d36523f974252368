package workflow

import "context"

// StateMachine tracks the current phase and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is permitted in the current state
	CanFire(trigger Trigger) bool

	// Fire attempts to execute the trigger, transitioning to the new state if allowed.
	// Ignored triggers return an error wrapping ErrIgnored and leave the state unchanged.
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns all triggers that can be fired in the current state
	PermittedTriggers() []Trigger

	// Table returns the full transition table, sorted by source state and trigger
	Table() []TableEntry
}

// TableEntry is one row of a transition table
type TableEntry struct {
	From    State
	Trigger Trigger
	To      State
	Guarded bool
}
