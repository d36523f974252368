package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/onboarding-workflow/internal/application/port"
	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
	"github.com/garyjia/onboarding-workflow/internal/domain/event"
)

// NotificationService tells HR about onboardings that ended without the
// new employee form being filled
type NotificationService struct {
	instanceRepo port.InstanceRepository
	messageRepo  port.MessageRepository
	composer     port.MessageComposer
	mailer       port.Mailer
	hrEmail      string
	logger       Logger
}

// NewNotificationService creates a new NotificationService. hrEmail receives
// escalation notices; an empty address disables them.
func NewNotificationService(
	instanceRepo port.InstanceRepository,
	messageRepo port.MessageRepository,
	composer port.MessageComposer,
	mailer port.Mailer,
	hrEmail string,
	logger Logger,
) *NotificationService {
	return &NotificationService{
		instanceRepo: instanceRepo,
		messageRepo:  messageRepo,
		composer:     composer,
		mailer:       mailer,
		hrEmail:      hrEmail,
		logger:       logger,
	}
}

// HandleEscalated is a dispatcher handler for onboarding.escalated events
func (s *NotificationService) HandleEscalated(ctx context.Context, evt *event.Event) error {
	if evt.Type != event.TypeOnboardingEscalated {
		return nil
	}
	return s.NotifyEscalation(ctx, evt.InstanceID)
}

// NotifyEscalation emails HR about the escalated instance
func (s *NotificationService) NotifyEscalation(ctx context.Context, instanceID string) error {
	if s.hrEmail == "" {
		s.logger.Info("Escalation notice skipped, no HR address configured", "instance_id", instanceID)
		return nil
	}

	instance, err := s.instanceRepo.GetByID(ctx, instanceID)
	if err != nil {
		s.logger.Error("Failed to get instance", "error", err, "instance_id", instanceID)
		return fmt.Errorf("get instance: %w", err)
	}
	if instance == nil || instance.State == nil {
		return fmt.Errorf("instance %s not found", instanceID)
	}

	msg, err := s.composer.Compose(ctx, entity.MessageEscalation, *instance.State)
	if err != nil {
		s.logger.Error("Failed to compose escalation notice", "error", err, "instance_id", instanceID)
		return fmt.Errorf("compose escalation: %w", err)
	}
	msg.To = s.hrEmail

	providerID, err := s.mailer.Send(ctx, msg)
	if err != nil {
		s.logger.Error("Failed to send escalation notice", "error", err, "instance_id", instanceID)
		return fmt.Errorf("send escalation: %w", err)
	}

	if s.messageRepo != nil {
		record := &entity.SentMessage{
			InstanceID:        instanceID,
			Kind:              entity.MessageEscalation,
			Recipient:         msg.To,
			Subject:           msg.Subject,
			ProviderMessageID: providerID,
			SentAt:            time.Now().UTC(),
		}
		if err := s.messageRepo.Create(ctx, record); err != nil {
			s.logger.Error("Failed to record escalation notice", "error", err, "instance_id", instanceID)
		}
	}

	s.logger.Info("Escalation notice sent",
		"instance_id", instanceID,
		"hr_email", s.hrEmail,
		"reminders_sent", instance.State.RemindersSent,
	)

	return nil
}
