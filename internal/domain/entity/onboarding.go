package entity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfiguration is returned when an onboarding cannot be started
// because its initial state or timing parameters are unusable.
var ErrInvalidConfiguration = errors.New("invalid onboarding configuration")

// Employee identifies the person being onboarded. It never changes once the
// onboarding has started.
type Employee struct {
	ID        string `json:"id,omitempty"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// FullName returns "First Last".
func (e Employee) FullName() string {
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

// Priority of a follow-up task
type Priority string

const (
	PriorityNormal   Priority = "NORMAL"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Rank orders priorities so escalation can be compared.
func (p Priority) Rank() int {
	switch p {
	case PriorityNormal:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	default:
		return 0
	}
}

// PriorityFor maps the number of reminders already sent to a task priority.
func PriorityFor(remindersSent int) Priority {
	switch {
	case remindersSent <= 1:
		return PriorityNormal
	case remindersSent <= 2:
		return PriorityHigh
	default:
		return PriorityCritical
	}
}

// TaskStatus of a follow-up task
type TaskStatus string

const (
	TaskStatusNew        TaskStatus = "NEW"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
)

// FollowUpTask is the HR task tracked once escalation has begun.
type FollowUpTask struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Priority Priority   `json:"priority"`
	Status   TaskStatus `json:"status"`
}

// OnboardingState is the durable record of one employee's onboarding.
//
// Only the state machine (through activity results) and the form-filled
// signal handler write to it. Read-only copies are handed out with Clone.
type OnboardingState struct {
	Employee            Employee      `json:"employee"`
	WelcomeEmailSent    bool          `json:"welcomeEmailSent"`
	ThankyouEmailSent   bool          `json:"thankyouEmailSent"`
	FormFilled          bool          `json:"newEmployeeFormFilled"`
	FollowUpTaskCreated bool          `json:"followUpTaskCreated"`
	FollowUpTask        *FollowUpTask `json:"followUpTask,omitempty"`
	RemindersSent       int           `json:"numberOfRemindersSent"`
	FormFillDeadline    Duration      `json:"periodGivenForFormFilling"`
	ReminderInterval    Duration      `json:"formFilingReminderDuration"`
	ReminderLimit       int           `json:"reminderLimit"`
}

// NewOnboardingState builds the initial state a client submits.
func NewOnboardingState(employee Employee, deadline, interval Duration, limit int) OnboardingState {
	return OnboardingState{
		Employee:         employee,
		FormFillDeadline: deadline,
		ReminderInterval: interval,
		ReminderLimit:    limit,
	}
}

// Clone returns a deep copy.
func (s OnboardingState) Clone() OnboardingState {
	out := s
	if s.FollowUpTask != nil {
		task := *s.FollowUpTask
		out.FollowUpTask = &task
	}
	return out
}

// ValidateInitial checks a state submitted to start a new onboarding.
func (s OnboardingState) ValidateInitial() error {
	if s.Employee.Email == "" {
		return fmt.Errorf("%w: employee email is required", ErrInvalidConfiguration)
	}
	if s.Employee.FullName() == "" {
		return fmt.Errorf("%w: employee name is required", ErrInvalidConfiguration)
	}
	if s.FormFillDeadline <= 0 {
		return fmt.Errorf("%w: form fill deadline must be positive, got %s", ErrInvalidConfiguration, s.FormFillDeadline)
	}
	if s.ReminderInterval <= 0 {
		return fmt.Errorf("%w: reminder interval must be positive, got %s", ErrInvalidConfiguration, s.ReminderInterval)
	}
	if s.ReminderLimit <= 0 {
		return fmt.Errorf("%w: reminder limit must be positive, got %d", ErrInvalidConfiguration, s.ReminderLimit)
	}
	if s.WelcomeEmailSent || s.ThankyouEmailSent || s.FormFilled || s.FollowUpTaskCreated ||
		s.FollowUpTask != nil || s.RemindersSent != 0 {
		return fmt.Errorf("%w: initial state must have all flags cleared", ErrInvalidConfiguration)
	}
	return nil
}

// CheckInvariants reports the first structural invariant the state breaks.
func (s OnboardingState) CheckInvariants() error {
	if s.FollowUpTaskCreated != (s.FollowUpTask != nil) {
		return fmt.Errorf("follow-up task presence (%t) does not match created flag (%t)",
			s.FollowUpTask != nil, s.FollowUpTaskCreated)
	}
	if s.RemindersSent < 0 {
		return fmt.Errorf("reminders sent is negative: %d", s.RemindersSent)
	}
	if s.ReminderLimit > 0 && s.RemindersSent > s.ReminderLimit {
		return fmt.Errorf("reminders sent %d exceeds limit %d", s.RemindersSent, s.ReminderLimit)
	}
	if s.ThankyouEmailSent && !s.FormFilled {
		return fmt.Errorf("thank-you email sent before form was filled")
	}
	if s.FollowUpTask != nil && s.FollowUpTask.Status != TaskStatusCompleted &&
		s.FollowUpTask.Priority != PriorityFor(s.RemindersSent) {
		return fmt.Errorf("follow-up task priority %s is stale for %d reminders",
			s.FollowUpTask.Priority, s.RemindersSent)
	}
	return nil
}

// RefreshTaskPriority sets an open task's priority from the reminder count.
func (s *OnboardingState) RefreshTaskPriority() {
	if s.FollowUpTask != nil && s.FollowUpTask.Status != TaskStatusCompleted {
		s.FollowUpTask.Priority = PriorityFor(s.RemindersSent)
	}
}

// CheckMonotonic reports whether next regressed any flag or counter of prev.
func CheckMonotonic(prev, next OnboardingState) error {
	switch {
	case prev.WelcomeEmailSent && !next.WelcomeEmailSent:
		return fmt.Errorf("welcome email flag was reset")
	case prev.ThankyouEmailSent && !next.ThankyouEmailSent:
		return fmt.Errorf("thank-you email flag was reset")
	case prev.FormFilled && !next.FormFilled:
		return fmt.Errorf("form filled flag was reset")
	case next.RemindersSent < prev.RemindersSent:
		return fmt.Errorf("reminders sent decreased from %d to %d", prev.RemindersSent, next.RemindersSent)
	}
	return nil
}
