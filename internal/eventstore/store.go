package eventstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/commercekit/payments/internal/domain"
)

// Store is an append-only log of domain events keyed by aggregate id.
//
// Append fails with domain.ErrConcurrencyConflict when the stream's current
// length differs from expectedVersion; on success the whole batch becomes
// visible to readers atomically. A stream's length is the aggregate's
// current version. Events are never mutated, reordered or deleted.
type Store interface {
	Append(ctx context.Context, aggregateID uuid.UUID, events []domain.DomainEvent, expectedVersion int) error

	// Read returns the aggregate's events in append order, skipping the
	// first fromVersion events. fromVersion 0 reads the full stream.
	Read(ctx context.Context, aggregateID uuid.UUID, fromVersion int) ([]domain.DomainEvent, error)

	// ReadAll returns every stored event across aggregates in commit order.
	ReadAll(ctx context.Context, fromVersion int) ([]domain.DomainEvent, error)

	// Version returns the current stream length for the aggregate.
	Version(ctx context.Context, aggregateID uuid.UUID) (int, error)
}
