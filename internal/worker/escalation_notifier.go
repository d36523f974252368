package worker

import (
	"context"

	"github.com/garyjia/onboarding-workflow/internal/application/dispatcher"
	"github.com/garyjia/onboarding-workflow/internal/domain/event"
	"go.uber.org/zap"
)

const escalationHandlerName = "escalation-notifier"

// Subscriber is the part of the dispatcher the notifier needs
type Subscriber interface {
	SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler)
	Unsubscribe(eventType event.Type, name string)
}

// EscalationNotifier forwards onboarding.escalated events to a handler that
// alerts HR while it is started
type EscalationNotifier struct {
	events  Subscriber
	handler dispatcher.Handler
	logger  *zap.Logger
}

// NewEscalationNotifier creates a new EscalationNotifier
func NewEscalationNotifier(events Subscriber, handler dispatcher.Handler, logger *zap.Logger) *EscalationNotifier {
	return &EscalationNotifier{events: events, handler: handler, logger: logger}
}

// Name implements Worker
func (n *EscalationNotifier) Name() string {
	return escalationHandlerName
}

// Start implements Worker
func (n *EscalationNotifier) Start(ctx context.Context) error {
	n.events.SubscribeNamed(event.TypeOnboardingEscalated, escalationHandlerName, func(ctx context.Context, evt *event.Event) error {
		if err := n.handler(ctx, evt); err != nil {
			n.logger.Error("Escalation notice failed",
				zap.String("instance_id", evt.InstanceID),
				zap.Error(err))
			return err
		}
		return nil
	})
	return nil
}

// Stop implements Worker
func (n *EscalationNotifier) Stop() {
	n.events.Unsubscribe(event.TypeOnboardingEscalated, escalationHandlerName)
}
