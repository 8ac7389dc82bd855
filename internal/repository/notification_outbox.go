package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusPending    NotificationStatus = "pending"
	NotificationStatusDispatched NotificationStatus = "dispatched"
	NotificationStatusFailed     NotificationStatus = "failed"
)

// OutboxNotification is one queued notification derived from a dispatched
// domain event. EventID is unique: the bus delivers at least once, the
// outbox absorbs the duplicates.
type OutboxNotification struct {
	ID          uuid.UUID
	EventID     uuid.UUID
	EventType   string
	Payload     json.RawMessage
	Status      NotificationStatus
	Attempts    int
	LastAttempt *time.Time
	CreatedAt   time.Time
}

const notificationColumns = `id, event_id, event_type, payload, status,
	attempts, last_attempt, created_at`

type NotificationOutboxRepository struct {
	db *sql.DB
}

func NewNotificationOutboxRepository(db *sql.DB) *NotificationOutboxRepository {
	return &NotificationOutboxRepository{db: db}
}

func (r *NotificationOutboxRepository) Enqueue(ctx context.Context, n *OutboxNotification) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notification_outbox (
			id, event_id, event_type, payload, status, attempts, last_attempt, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING`,
		n.ID, n.EventID, n.EventType, []byte(n.Payload),
		n.Status, n.Attempts, n.LastAttempt, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Enqueue: %w", err)
	}
	return nil
}

func (r *NotificationOutboxRepository) GetPending(ctx context.Context, limit int) ([]OutboxNotification, error) {
	// SKIP LOCKED keeps concurrent dispatchers off the same rows.
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notification_outbox
		WHERE status = $1 ORDER BY created_at LIMIT $2 FOR UPDATE SKIP LOCKED`,
		NotificationStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("GetPending: %w", err)
	}
	defer rows.Close()

	var pending []OutboxNotification
	for rows.Next() {
		var n OutboxNotification
		var payload []byte
		err := rows.Scan(
			&n.ID, &n.EventID, &n.EventType, &payload,
			&n.Status, &n.Attempts, &n.LastAttempt, &n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("GetPending: scan: %w", err)
		}
		n.Payload = payload
		pending = append(pending, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetPending: rows: %w", err)
	}
	return pending, nil
}

func (r *NotificationOutboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status NotificationStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notification_outbox SET status = $1, attempts = attempts + 1, last_attempt = now()
		WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	return requireRow(res, "UpdateStatus")
}
