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

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append records one history event. The (instance_id, seq) primary key
// rejects a second writer for the same step.
func (r *HistoryRepository) Append(ctx context.Context, evt *entity.HistoryEvent) error {
	query := `
		INSERT INTO onboarding_history (
			instance_id, seq, kind, name, payload, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		evt.InstanceID,
		evt.Seq,
		evt.Kind,
		evt.Name,
		string(evt.Payload),
		evt.RecordedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append history",
			zap.String("instance_id", evt.InstanceID),
			zap.Int("seq", evt.Seq),
			zap.Error(err))
		return fmt.Errorf("failed to append history: %w", err)
	}

	return nil
}

// ListByInstance returns the events of an instance ordered by seq
func (r *HistoryRepository) ListByInstance(ctx context.Context, instanceID string) ([]*entity.HistoryEvent, error) {
	query := `
		SELECT instance_id, seq, kind, name, payload, recorded_at
		FROM onboarding_history
		WHERE instance_id = ?
		ORDER BY seq ASC
	`

	rows, err := sqlite.GetExecutor(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to get history", zap.String("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	events := make([]*entity.HistoryEvent, 0)
	for rows.Next() {
		var evt entity.HistoryEvent
		var payload sql.NullString
		if err := rows.Scan(
			&evt.InstanceID,
			&evt.Seq,
			&evt.Kind,
			&evt.Name,
			&payload,
			&evt.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		if payload.Valid {
			evt.Payload = []byte(payload.String)
		}
		events = append(events, &evt)
	}

	return events, rows.Err()
}
