package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/commercekit/payments/internal/domain"
	"github.com/commercekit/payments/internal/logging"
)

// transitionRequest describes one status change for a payment aggregate.
// updateRow mutates the materialized payments row inside the transaction;
// inTx, when set, runs in the same transaction so callers can commit
// side effects (such as a webhook dedup mark) atomically with the row.
type transitionRequest struct {
	payment   *domain.PaymentRecord
	target    domain.PaymentStatus
	reason    *string
	metadata  map[string]string
	updateRow func(ctx context.Context, tx *sql.Tx) error
	inTx      func(ctx context.Context, tx *sql.Tx) error
}

// applyTransition serializes writers on the aggregate, appends the event
// implied by the target status (unless the stream already ends in it),
// commits the row update, then publishes the appended event. The returned
// event is nil when the stream already reflected the outcome, which is
// how redelivered webhooks stay side-effect free.
func (s *Service) applyTransition(ctx context.Context, req transitionRequest) (*domain.DomainEvent, error) {
	logger := logging.FromContext(ctx)
	p := req.payment

	mu := s.lock(p.ID)
	mu.Lock()
	defer mu.Unlock()

	events, err := s.store.Read(ctx, p.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("applyTransition: read stream: %w", err)
	}

	implied := domain.StatusFromEvents(events)
	var appended *domain.DomainEvent
	if implied != req.target {
		if !implied.CanTransitionTo(req.target) {
			return nil, fmt.Errorf("applyTransition: %s to %s: %w", implied, req.target, domain.ErrInvalidStateTransition)
		}
		eventType, ok := domain.EventTypeForStatus(req.target)
		if !ok {
			return nil, fmt.Errorf("applyTransition: no event type for status %s", req.target)
		}
		event, err := domain.NewPaymentEvent(eventType, p, req.reason, req.metadata)
		if err != nil {
			return nil, fmt.Errorf("applyTransition: %w", err)
		}
		if err := s.store.Append(ctx, p.ID, []domain.DomainEvent{event}, len(events)); err != nil {
			return nil, fmt.Errorf("applyTransition: %w", err)
		}
		appended = &event
	} else {
		logger.InfoContext(ctx, "stream already reflects status, skipping append",
			"payment_id", p.ID, "status", req.target)
	}

	if err := s.commitRow(ctx, req); err != nil {
		// The event is durable; a redelivery or status sync repairs the
		// row on the skip-append path above.
		return nil, fmt.Errorf("applyTransition: %w", err)
	}
	p.Status = req.target
	p.UpdatedAt = time.Now()

	if appended != nil {
		if err := s.bus.Publish(ctx, *appended); err != nil {
			logger.ErrorContext(ctx, "failed to publish payment event",
				"payment_id", p.ID, "event_type", appended.Type, "error", err)
		}
	}
	return appended, nil
}

func (s *Service) commitRow(ctx context.Context, req transitionRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := req.updateRow(ctx, tx); err != nil {
		return err
	}
	if req.inTx != nil {
		if err := req.inTx(ctx, tx); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func statusUpdate(s *Service, id uuid.UUID, status domain.PaymentStatus, failureReason *string, confirmedAt *time.Time) func(ctx context.Context, tx *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		return s.payments.UpdateStatus(ctx, tx, id, status, failureReason, confirmedAt)
	}
}

func isConflict(err error) bool {
	return errors.Is(err, domain.ErrConcurrencyConflict)
}
