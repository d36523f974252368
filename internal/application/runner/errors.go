package runner

import "errors"

var (
	// ErrInstanceNotFound is returned when no onboarding exists under the id
	ErrInstanceNotFound = errors.New("onboarding instance not found")

	// ErrAlreadyStarted is returned when an onboarding with the same id exists
	ErrAlreadyStarted = errors.New("onboarding instance already started")

	// ErrUnknownSignal is returned for signal names the workflow does not handle
	ErrUnknownSignal = errors.New("unknown signal")

	// ErrUnknownQuery is returned for query names the workflow does not answer
	ErrUnknownQuery = errors.New("unknown query")

	// ErrNonDeterministic is returned when a replayed step does not match history
	ErrNonDeterministic = errors.New("workflow replay diverged from history")

	// ErrStopped is returned once the runner has been stopped
	ErrStopped = errors.New("runner stopped")
)
