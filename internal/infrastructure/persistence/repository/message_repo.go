package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/onboarding-workflow/internal/application/port"
	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
	"github.com/garyjia/onboarding-workflow/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// MessageRepository implements port.MessageRepository
type MessageRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMessageRepository creates a new sent message repository
func NewMessageRepository(db *sql.DB, logger *zap.Logger) port.MessageRepository {
	return &MessageRepository{
		db:     db,
		logger: logger,
	}
}

// Create records an email handed to the provider
func (r *MessageRepository) Create(ctx context.Context, msg *entity.SentMessage) error {
	query := `
		INSERT INTO sent_messages (
			instance_id, kind, recipient, subject, provider_message_id, sent_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		msg.InstanceID,
		msg.Kind,
		msg.Recipient,
		msg.Subject,
		msg.ProviderMessageID,
		msg.SentAt,
	)
	if err != nil {
		r.logger.Error("Failed to record sent message", zap.String("instance_id", msg.InstanceID), zap.Error(err))
		return fmt.Errorf("failed to record sent message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	msg.ID = id
	return nil
}

// ListByInstance returns the emails of an instance in send order
func (r *MessageRepository) ListByInstance(ctx context.Context, instanceID string) ([]*entity.SentMessage, error) {
	query := `
		SELECT id, instance_id, kind, recipient, subject, provider_message_id, sent_at
		FROM sent_messages
		WHERE instance_id = ?
		ORDER BY id ASC
	`

	rows, err := sqlite.GetExecutor(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to list sent messages", zap.String("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list sent messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*entity.SentMessage, 0)
	for rows.Next() {
		var msg entity.SentMessage
		var instID, subject, providerID sql.NullString
		if err := rows.Scan(
			&msg.ID,
			&instID,
			&msg.Kind,
			&msg.Recipient,
			&subject,
			&providerID,
			&msg.SentAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sent message: %w", err)
		}
		msg.InstanceID = instID.String
		msg.Subject = subject.String
		msg.ProviderMessageID = providerID.String
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}
