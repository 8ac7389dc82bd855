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

type RefundParams struct {
	PaymentID uuid.UUID
	// Amount in minor units. Zero means refund the full captured amount.
	Amount int64
	Reason *string
}

// Refund reverses a succeeded payment with its provider and marks it
// REFUNDED. Only full or partial refunds up to the captured amount are
// accepted; a refund is a single terminal transition, not a ledger.
func (s *Service) Refund(ctx context.Context, params RefundParams) (*domain.PaymentRecord, error) {
	logger := logging.FromContext(ctx)

	p, err := s.payments.GetByID(ctx, params.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}
	if p.Status != domain.PaymentStatusSucceeded {
		return nil, fmt.Errorf("Refund: payment is %s: %w", p.Status, domain.ErrInvalidStateTransition)
	}

	amount := params.Amount
	if amount == 0 {
		amount = p.Amount
	}
	if amount < 0 || amount > p.Amount {
		return nil, fmt.Errorf("Refund: amount %d of %d: %w", amount, p.Amount, domain.ErrInvalidAmount)
	}

	prov, err := s.providers.Get(p.Provider)
	if err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}

	var reason string
	if params.Reason != nil {
		reason = *params.Reason
	}
	receipt, err := prov.Refund(ctx, provider.RefundRequest{
		ProviderPaymentID: p.ProviderPaymentID,
		Amount:            amount,
		Currency:          p.Currency,
		Reason:            reason,
	})
	if err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}

	refundedAt := time.Now()
	if _, err := s.applyTransition(ctx, transitionRequest{
		payment: p,
		target:  domain.PaymentStatusRefunded,
		reason:  params.Reason,
		updateRow: func(ctx context.Context, tx *sql.Tx) error {
			return s.payments.UpdateRefund(ctx, tx, p.ID, amount, params.Reason, refundedAt)
		},
	}); err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}
	p.RefundedAmount = &amount
	p.RefundReason = params.Reason
	p.RefundedAt = &refundedAt

	logger.InfoContext(ctx, "payment refunded",
		"payment_id", p.ID,
		"provider_refund_id", receipt.RefundID,
		"amount", amount,
	)
	return p, nil
}
