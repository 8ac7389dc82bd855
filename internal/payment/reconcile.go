package payment

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/commercekit/payments/internal/domain"
	"github.com/commercekit/payments/internal/logging"
	"github.com/commercekit/payments/internal/provider"
)

// ReconcileParams carries one externally observed outcome for a payment,
// identified the way providers identify it. InTx runs inside the row
// update transaction, so webhook dedup marks commit atomically with the
// state they guard.
type ReconcileParams struct {
	Provider          domain.Provider
	ProviderPaymentID string
	Outcome           provider.Outcome
	Reason            *string
	InTx              func(ctx context.Context, tx *sql.Tx) error
}

// ReconcileResult reports what a reconciliation did. Applied is false
// when the payment already reflected the outcome and only the InTx side
// effect was committed.
type ReconcileResult struct {
	Payment *domain.PaymentRecord
	Applied bool
}

// Reconcile drives a payment to the status implied by an outcome observed
// outside the request path. Redeliveries converge: once the stream ends in
// the outcome's event, further reconciliations update nothing and publish
// nothing.
func (s *Service) Reconcile(ctx context.Context, params ReconcileParams) (*ReconcileResult, error) {
	logger := logging.FromContext(ctx)

	p, err := s.payments.GetByProviderPaymentID(ctx, params.Provider, params.ProviderPaymentID)
	if err != nil {
		return nil, fmt.Errorf("Reconcile: %w", err)
	}

	target, ok := statusForOutcome(params.Outcome)
	if !ok {
		return nil, fmt.Errorf("Reconcile: outcome %q has no payment status", params.Outcome)
	}

	if p.Status == target || !p.Status.CanTransitionTo(target) {
		if p.Status != target {
			logger.WarnContext(ctx, "reconciliation outcome not reachable from stored status, keeping stored status",
				"payment_id", p.ID, "status", p.Status, "reported", target)
		}
		if err := s.commitSideEffect(ctx, params.InTx); err != nil {
			return nil, fmt.Errorf("Reconcile: %w", err)
		}
		return &ReconcileResult{Payment: p, Applied: false}, nil
	}

	var confirmedAt *time.Time
	if target == domain.PaymentStatusSucceeded {
		now := time.Now()
		confirmedAt = &now
	}
	var failureReason *string
	if target == domain.PaymentStatusFailed || target == domain.PaymentStatusCancelled {
		failureReason = params.Reason
	}

	event, err := s.applyTransition(ctx, transitionRequest{
		payment:   p,
		target:    target,
		reason:    params.Reason,
		updateRow: statusUpdate(s, p.ID, target, failureReason, confirmedAt),
		inTx:      params.InTx,
	})
	if err != nil {
		if isConflict(err) {
			// Another writer won the race; re-read and let the
			// redelivery path converge.
			return s.Reconcile(ctx, params)
		}
		return nil, fmt.Errorf("Reconcile: %w", err)
	}
	if confirmedAt != nil {
		p.ConfirmedAt = confirmedAt
	}
	if failureReason != nil {
		p.FailureReason = failureReason
	}

	logger.InfoContext(ctx, "payment reconciled",
		"payment_id", p.ID,
		"provider", params.Provider,
		"status", target,
		"event_appended", event != nil,
	)
	return &ReconcileResult{Payment: p, Applied: event != nil}, nil
}

// SyncStatus queries the provider for the payment's current state and
// reconciles any divergence. Terminal payments are returned as stored.
func (s *Service) SyncStatus(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("SyncStatus: %w", err)
	}
	if p.Status.IsTerminal() {
		return p, nil
	}
	prov, err := s.providers.Get(p.Provider)
	if err != nil {
		return nil, fmt.Errorf("SyncStatus: %w", err)
	}

	status, err := prov.Retrieve(ctx, p.ProviderPaymentID)
	if err != nil {
		return nil, fmt.Errorf("SyncStatus: %w", err)
	}

	switch status {
	case provider.StatusSucceeded, provider.StatusFailed, provider.StatusCancelled:
		result, err := s.Reconcile(ctx, ReconcileParams{
			Provider:          p.Provider,
			ProviderPaymentID: p.ProviderPaymentID,
			Outcome:           outcomeForStatus(status),
		})
		if err != nil {
			return nil, fmt.Errorf("SyncStatus: %w", err)
		}
		return result.Payment, nil
	case provider.StatusPending:
		if p.Status == domain.PaymentStatusPending {
			if _, err := s.applyTransition(ctx, transitionRequest{
				payment:   p,
				target:    domain.PaymentStatusProcessing,
				updateRow: statusUpdate(s, p.ID, domain.PaymentStatusProcessing, nil, nil),
			}); err != nil {
				return nil, fmt.Errorf("SyncStatus: %w", err)
			}
		}
		return p, nil
	default:
		return p, nil
	}
}

func (s *Service) commitSideEffect(ctx context.Context, inTx func(ctx context.Context, tx *sql.Tx) error) error {
	if inTx == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := inTx(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func statusForOutcome(o provider.Outcome) (domain.PaymentStatus, bool) {
	switch o {
	case provider.OutcomeSucceeded:
		return domain.PaymentStatusSucceeded, true
	case provider.OutcomeFailed:
		return domain.PaymentStatusFailed, true
	case provider.OutcomeCancelled:
		return domain.PaymentStatusCancelled, true
	default:
		return "", false
	}
}

func outcomeForStatus(s provider.Status) provider.Outcome {
	switch s {
	case provider.StatusSucceeded:
		return provider.OutcomeSucceeded
	case provider.StatusFailed:
		return provider.OutcomeFailed
	case provider.StatusCancelled:
		return provider.OutcomeCancelled
	default:
		return provider.OutcomeIgnored
	}
}
