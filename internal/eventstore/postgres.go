package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/commercekit/payments/internal/domain"
)

const eventColumns = `event_id, event_type, aggregate_id, aggregate_type,
	payload, metadata, occurred_at, schema_version`

// PostgresStore persists streams in the event_log table. The primary key on
// (aggregate_id, stream_position) is what turns two concurrent writers with
// the same expected version into exactly one winner.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, aggregateID uuid.UUID, events []domain.DomainEvent, expectedVersion int) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Append: begin tx: %w", err)
	}
	defer tx.Rollback()

	var current int
	err = tx.QueryRowContext(ctx,
		`SELECT count(*) FROM event_log WHERE aggregate_id = $1`, aggregateID,
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("Append: read version: %w", err)
	}
	if current != expectedVersion {
		return fmt.Errorf("Append: expected version %d, stream at %d: %w",
			expectedVersion, current, domain.ErrConcurrencyConflict)
	}

	for i, e := range events {
		metadata, err := marshalMetadata(e.Metadata)
		if err != nil {
			return fmt.Errorf("Append: metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO event_log (
				aggregate_id, stream_position, event_id, event_type,
				aggregate_type, payload, metadata, occurred_at, schema_version
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			aggregateID, expectedVersion+i+1, e.ID, e.Type,
			e.AggregateType, []byte(e.Payload), metadata, e.OccurredAt, e.Version,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("Append: position %d taken: %w",
					expectedVersion+i+1, domain.ErrConcurrencyConflict)
			}
			return fmt.Errorf("Append: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Append: commit: %w", domain.ErrConcurrencyConflict)
		}
		return fmt.Errorf("Append: commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) Read(ctx context.Context, aggregateID uuid.UUID, fromVersion int) ([]domain.DomainEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM event_log
		WHERE aggregate_id = $1 AND stream_position > $2
		ORDER BY stream_position`,
		aggregateID, fromVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("Read: %w", err)
	}
	defer rows.Close()

	events, err := collectEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("Read: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) ReadAll(ctx context.Context, fromVersion int) ([]domain.DomainEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM event_log
		ORDER BY global_position
		OFFSET $1`,
		fromVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("ReadAll: %w", err)
	}
	defer rows.Close()

	events, err := collectEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("ReadAll: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) Version(ctx context.Context, aggregateID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM event_log WHERE aggregate_id = $1`, aggregateID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("Version: %w", err)
	}
	return n, nil
}

func collectEvents(rows *sql.Rows) ([]domain.DomainEvent, error) {
	var events []domain.DomainEvent
	for rows.Next() {
		var e domain.DomainEvent
		var payload, metadata []byte
		err := rows.Scan(
			&e.ID, &e.Type, &e.AggregateID, &e.AggregateType,
			&payload, &metadata, &e.OccurredAt, &e.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		e.Payload = payload
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return events, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
