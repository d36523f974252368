package service

import "errors"

// Logger is the key-value logging surface used by services
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

var (
	// ErrTaskNotFound is returned when a follow-up task ID is unknown
	ErrTaskNotFound = errors.New("follow-up task not found")

	// ErrTaskCompleted is returned when updating a task that is already closed
	ErrTaskCompleted = errors.New("follow-up task already completed")
)
