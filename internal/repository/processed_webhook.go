package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/commercekit/payments/internal/domain"
)

// ProcessedWebhook is one external provider event this system has already
// applied, with the cached reconciliation result returned on redelivery.
type ProcessedWebhook struct {
	Provider        domain.Provider
	ExternalEventID string
	Result          json.RawMessage
	ProcessedAt     time.Time
}

type ProcessedWebhookRepository struct {
	db *sql.DB
}

func NewProcessedWebhookRepository(db *sql.DB) *ProcessedWebhookRepository {
	return &ProcessedWebhookRepository{db: db}
}

func (r *ProcessedWebhookRepository) Get(ctx context.Context, provider domain.Provider, externalEventID string) (*ProcessedWebhook, error) {
	var w ProcessedWebhook
	var result []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT provider, external_event_id, result, processed_at
		FROM processed_webhook_events
		WHERE provider = $1 AND external_event_id = $2`,
		provider, externalEventID,
	).Scan(&w.Provider, &w.ExternalEventID, &result, &w.ProcessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	w.Result = result
	return &w, nil
}

// Mark records the external event as processed. It runs inside the caller's
// transaction so the mark commits atomically with the state mutation it
// guards. A second writer racing on the same event id gets
// domain.ErrDuplicateWebhook from the primary key.
func (r *ProcessedWebhookRepository) Mark(ctx context.Context, tx *sql.Tx, w *ProcessedWebhook) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO processed_webhook_events (provider, external_event_id, result, processed_at)
		VALUES ($1, $2, $3, $4)`,
		w.Provider, w.ExternalEventID, []byte(w.Result), w.ProcessedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("Mark: %w", domain.ErrDuplicateWebhook)
		}
		return fmt.Errorf("Mark: %w", err)
	}
	return nil
}
