// Package websocket receives external events over long-lived connections and
// turns them into workflow signals.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	larkdispatcher "github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"go.uber.org/zap"

	"github.com/garyjia/onboarding-workflow/internal/application/runner"
	"github.com/garyjia/onboarding-workflow/internal/infrastructure/external/lark"
)

const approvalInstanceEvent = "approval_instance"

// Signaler delivers workflow signals
type Signaler interface {
	Signal(ctx context.Context, id, name string) error
}

// SubmissionSource resolves form instances to their submitter
type SubmissionSource interface {
	Subscribe(ctx context.Context, approvalCode string) error
	Submission(ctx context.Context, instanceCode string) (*lark.Submission, error)
}

// FormListenerConfig configures the new employee form listener
type FormListenerConfig struct {
	AppID     string
	AppSecret string
	// FormCode is the approval code of the new employee form
	FormCode string
	// DoneStatus is the instance status that counts as filled, APPROVED by default
	DoneStatus string
}

// FormListener listens for new employee form submissions on the Lark event
// websocket and sends the form-filled signal to the submitter's onboarding.
// The submitter's Lark user id is taken as the employee id.
type FormListener struct {
	cfg         FormListenerConfig
	submissions SubmissionSource
	signaler    Signaler
	instanceID  func(employeeID string) string
	logger      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewFormListener creates a listener. instanceID maps an employee id to the
// onboarding instance id.
func NewFormListener(cfg FormListenerConfig, submissions SubmissionSource, signaler Signaler, instanceID func(string) string, logger *zap.Logger) *FormListener {
	if cfg.DoneStatus == "" {
		cfg.DoneStatus = "APPROVED"
	}
	return &FormListener{
		cfg:         cfg,
		submissions: submissions,
		signaler:    signaler,
		instanceID:  instanceID,
		logger:      logger,
	}
}

// Name implements worker.Worker
func (l *FormListener) Name() string {
	return "lark-form-listener"
}

// Start subscribes to the form's events and connects the websocket in the
// background. It returns once the subscription is in place.
func (l *FormListener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return fmt.Errorf("form listener already started")
	}

	if err := l.submissions.Subscribe(ctx, l.cfg.FormCode); err != nil {
		return err
	}

	handler := larkdispatcher.NewEventDispatcher("", "")
	handler.OnCustomizedEvent(approvalInstanceEvent, func(ctx context.Context, evt *larkevent.EventReq) error {
		return l.HandleEvent(ctx, evt.Body)
	})
	client := larkws.NewClient(l.cfg.AppID, l.cfg.AppSecret, larkws.WithEventHandler(handler))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.cancel = cancel

	go func() {
		l.logger.Info("Lark form listener connecting", zap.String("form_code", l.cfg.FormCode))
		if err := client.Start(runCtx); err != nil && runCtx.Err() == nil {
			l.logger.Error("Lark websocket client stopped", zap.Error(err))
		}
	}()

	return nil
}

// Stop disconnects the websocket. The SDK client only stops with its context
// and may not return promptly, so Stop does not wait for it.
func (l *FormListener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel == nil {
		return
	}
	l.cancel()
	l.cancel = nil
	l.logger.Info("Lark form listener stopped")
}

type approvalInstancePayload struct {
	Event struct {
		ApprovalCode string `json:"approval_code"`
		InstanceCode string `json:"instance_code"`
		Status       string `json:"status"`
	} `json:"event"`
}

// HandleEvent processes one approval_instance event body
func (l *FormListener) HandleEvent(ctx context.Context, body []byte) error {
	var payload approvalInstancePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		l.logger.Error("Failed to parse form event", zap.Error(err))
		return fmt.Errorf("failed to parse event payload: %w", err)
	}

	evt := payload.Event
	if evt.ApprovalCode != l.cfg.FormCode {
		return nil
	}
	if !strings.EqualFold(evt.Status, l.cfg.DoneStatus) || evt.InstanceCode == "" {
		l.logger.Debug("Ignoring form event",
			zap.String("instance_code", evt.InstanceCode),
			zap.String("status", evt.Status))
		return nil
	}

	sub, err := l.submissions.Submission(ctx, evt.InstanceCode)
	if err != nil {
		return err
	}
	if sub.UserID == "" {
		l.logger.Warn("Form submission has no user id", zap.String("instance_code", evt.InstanceCode))
		return nil
	}

	id := l.instanceID(sub.UserID)
	err = l.signaler.Signal(ctx, id, runner.SignalFormFilled)
	if errors.Is(err, runner.ErrInstanceNotFound) {
		l.logger.Info("No onboarding for form submitter",
			zap.String("user_id", sub.UserID),
			zap.String("instance_id", id))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to signal %s: %w", id, err)
	}

	l.logger.Info("Form filled via Lark",
		zap.String("instance_id", id),
		zap.String("form_instance", evt.InstanceCode))
	return nil
}
