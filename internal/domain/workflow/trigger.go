package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	// TriggerFormFilled fires when the employee's form-filled signal wins a race.
	TriggerFormFilled Trigger = "FORM_FILLED"
	// TriggerDeadlineExpired fires when the initial form fill deadline wins.
	TriggerDeadlineExpired Trigger = "DEADLINE_EXPIRED"
	// TriggerIntervalExpired fires when a reminder interval elapses with reminders left.
	TriggerIntervalExpired Trigger = "INTERVAL_EXPIRED"
	// TriggerReminderLimitReached fires when the last reminder interval elapses.
	TriggerReminderLimitReached Trigger = "REMINDER_LIMIT_REACHED"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
