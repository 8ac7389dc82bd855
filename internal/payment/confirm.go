package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/commercekit/payments/internal/domain"
	"github.com/commercekit/payments/internal/logging"
	"github.com/commercekit/payments/internal/provider"
)

// Confirm settles a pending payment against its provider. The provider's
// answer is the source of truth: anything other than a succeeded capture
// marks the payment FAILED with the provider's reason. A provider outage
// (transient errors exhausted) leaves the payment untouched so the caller
// can retry.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	logger := logging.FromContext(ctx)

	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Confirm: %w", err)
	}
	if p.Status != domain.PaymentStatusPending {
		return nil, fmt.Errorf("Confirm: payment is %s: %w", p.Status, domain.ErrInvalidStateTransition)
	}
	prov, err := s.providers.Get(p.Provider)
	if err != nil {
		return nil, fmt.Errorf("Confirm: %w", err)
	}

	status, err := prov.Confirm(ctx, p.ProviderPaymentID)
	if err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) {
			return nil, fmt.Errorf("Confirm: %w", err)
		}
		var provErr *provider.Error
		if errors.As(err, &provErr) && provErr.Kind == provider.Permanent {
			// The provider definitively rejected the capture.
			reason := provErr.Error()
			if _, terr := s.applyTransition(ctx, transitionRequest{
				payment:   p,
				target:    domain.PaymentStatusFailed,
				reason:    &reason,
				updateRow: statusUpdate(s, p.ID, domain.PaymentStatusFailed, &reason, nil),
			}); terr != nil {
				return nil, fmt.Errorf("Confirm: %w", terr)
			}
			p.FailureReason = &reason
			return p, nil
		}
		return nil, fmt.Errorf("Confirm: %w", err)
	}

	switch status {
	case provider.StatusSucceeded:
		now := time.Now()
		if _, err := s.applyTransition(ctx, transitionRequest{
			payment:   p,
			target:    domain.PaymentStatusSucceeded,
			updateRow: statusUpdate(s, p.ID, domain.PaymentStatusSucceeded, nil, &now),
		}); err != nil {
			return nil, fmt.Errorf("Confirm: %w", err)
		}
		p.ConfirmedAt = &now
	default:
		reason := fmt.Sprintf("provider reported status %s", status)
		logger.WarnContext(ctx, "payment confirmation did not succeed",
			"payment_id", p.ID, "provider_status", status)
		if _, err := s.applyTransition(ctx, transitionRequest{
			payment:   p,
			target:    domain.PaymentStatusFailed,
			reason:    &reason,
			updateRow: statusUpdate(s, p.ID, domain.PaymentStatusFailed, &reason, nil),
		}); err != nil {
			return nil, fmt.Errorf("Confirm: %w", err)
		}
		p.FailureReason = &reason
	}
	return p, nil
}
