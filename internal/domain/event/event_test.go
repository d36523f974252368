package event

import (
	"testing"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		eventType Type
		want      bool
	}{
		{TypeOnboardingStarted, true},
		{TypeOnboardingTransitioned, true},
		{TypeOnboardingCompleted, true},
		{TypeOnboardingEscalated, true},
		{TypeOnboardingFailed, true},
		{TypeFormFilled, true},
		{Type("instance.approved"), false},
		{Type(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEvent(t *testing.T) {
	evt := NewEvent(TypeOnboardingStarted, "onboarding-emp1", nil)

	if evt.ID == "" {
		t.Error("NewEvent() should generate an ID")
	}
	if evt.Payload == nil {
		t.Error("NewEvent() should never leave payload nil")
	}
	if evt.Timestamp.IsZero() {
		t.Error("NewEvent() should set a timestamp")
	}

	other := NewEvent(TypeOnboardingStarted, "onboarding-emp1", nil)
	if evt.ID == other.ID {
		t.Error("NewEvent() IDs should be unique")
	}
}

func TestEvent_WithPayload_IsImmutable(t *testing.T) {
	original := NewEvent(TypeOnboardingTransitioned, "onboarding-emp1", map[string]interface{}{
		"from": "AWAITING_FORM",
	})

	updated := original.WithPayload("to", "REMINDING")

	if _, ok := original.Payload["to"]; ok {
		t.Error("WithPayload() mutated the original event")
	}
	if updated.GetPayloadString("to") != "REMINDING" {
		t.Errorf("GetPayloadString(to) = %q, want REMINDING", updated.GetPayloadString("to"))
	}
	if updated.ID != original.ID {
		t.Error("WithPayload() should keep the event ID")
	}
}

func TestEvent_GetPayloadInt(t *testing.T) {
	evt := NewEvent(TypeOnboardingEscalated, "onboarding-emp1", map[string]interface{}{
		"reminders_int":   3,
		"reminders_float": float64(4),
		"reminders_str":   "5",
	})

	if got := evt.GetPayloadInt("reminders_int"); got != 3 {
		t.Errorf("GetPayloadInt(int) = %d, want 3", got)
	}
	if got := evt.GetPayloadInt("reminders_float"); got != 4 {
		t.Errorf("GetPayloadInt(float) = %d, want 4", got)
	}
	if got := evt.GetPayloadInt("reminders_str"); got != 0 {
		t.Errorf("GetPayloadInt(string) = %d, want 0", got)
	}
}
