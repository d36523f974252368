package entity

import "time"

// InstanceStatus is the execution status of an onboarding instance, as seen by
// the runner. It is independent of the business phase.
type InstanceStatus string

const (
	InstanceStatusRunning   InstanceStatus = "RUNNING"
	InstanceStatusCompleted InstanceStatus = "COMPLETED"
	InstanceStatusFailed    InstanceStatus = "FAILED"
)

// OnboardingInstance is the persisted record of one workflow run. Input is
// the state the client started with and is what a replay begins from; State
// is the latest snapshot.
type OnboardingInstance struct {
	ID                 string           `json:"id"`
	WorkflowName       string           `json:"workflow_name"`
	TaskQueue          string           `json:"task_queue"`
	EmployeeID         string           `json:"employee_id,omitempty"`
	EmployeeEmail      string           `json:"employee_email"`
	Phase              string           `json:"phase"`
	Status             InstanceStatus   `json:"status"`
	Input              *OnboardingState `json:"input,omitempty"`
	State              *OnboardingState `json:"state,omitempty"`
	FormFilledSignaled bool             `json:"form_filled_signaled"`
	Error              string           `json:"error,omitempty"`
	StartedAt          time.Time        `json:"started_at"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// HistoryKind classifies an entry of the replay log.
type HistoryKind string

const (
	HistoryActivity     HistoryKind = "activity"
	HistoryTimerStarted HistoryKind = "timer_started"
	HistoryRaceResolved HistoryKind = "race_resolved"
	HistoryTransition   HistoryKind = "transition"
)

// HistoryEvent is one recorded step of an instance. Seq is dense and starts at 1.
type HistoryEvent struct {
	InstanceID string      `json:"instance_id"`
	Seq        int         `json:"seq"`
	Kind       HistoryKind `json:"kind"`
	Name       string      `json:"name"`
	Payload    []byte      `json:"payload,omitempty"`
	RecordedAt time.Time   `json:"recorded_at"`
}

// Transition is the payload of a HistoryTransition event.
type Transition struct {
	From          string    `json:"from"`
	To            string    `json:"to"`
	Trigger       string    `json:"trigger"`
	RemindersSent int       `json:"reminders_sent"`
	At            time.Time `json:"at"`
}

// TrackedTask is a follow-up task as stored by the ticketing system.
type TrackedTask struct {
	FollowUpTask
	InstanceID string    `json:"instance_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MessageKind identifies the purpose of an outbound email.
type MessageKind string

const (
	MessageWelcome    MessageKind = "WELCOME"
	MessageReminder   MessageKind = "REMINDER"
	MessageThankyou   MessageKind = "THANKYOU"
	MessageEscalation MessageKind = "ESCALATION"
)

// SentMessage is the audit record of an email handed to the mail provider.
type SentMessage struct {
	ID                int64       `json:"id"`
	InstanceID        string      `json:"instance_id"`
	Kind              MessageKind `json:"kind"`
	Recipient         string      `json:"recipient"`
	Subject           string      `json:"subject"`
	ProviderMessageID string      `json:"provider_message_id,omitempty"`
	SentAt            time.Time   `json:"sent_at"`
}
