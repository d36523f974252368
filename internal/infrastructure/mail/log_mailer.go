package mail

import (
	"context"
	"fmt"

	"github.com/garyjia/onboarding-workflow/internal/application/port"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogMailer writes messages to the log instead of delivering them. It is the
// mailer used when no provider is configured.
type LogMailer struct {
	logger *zap.Logger
}

var _ port.Mailer = (*LogMailer)(nil)

// NewLogMailer creates a new LogMailer
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the message and returns a generated message ID
func (m *LogMailer) Send(ctx context.Context, msg port.Message) (string, error) {
	if msg.To == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}

	id := "log-" + uuid.NewString()
	m.logger.Info("Email",
		zap.String("message_id", id),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))

	return id, nil
}
