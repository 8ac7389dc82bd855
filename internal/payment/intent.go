package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/commercekit/payments/internal/domain"
	"github.com/commercekit/payments/internal/logging"
	"github.com/commercekit/payments/internal/provider"
)

type CreateIntentParams struct {
	OrderID         uuid.UUID
	UserID          uuid.UUID
	Amount          int64
	Currency        string
	Provider        domain.Provider
	PaymentMethodID *string
	Metadata        json.RawMessage
}

type CreateIntentResult struct {
	Payment      *domain.PaymentRecord
	ClientSecret string
	ApprovalURL  string
}

// CreateIntent registers the intent with the provider and records the
// payment as PENDING. No domain event is emitted: an empty stream is the
// pending state, and replaying it yields PENDING.
func (s *Service) CreateIntent(ctx context.Context, params CreateIntentParams) (*CreateIntentResult, error) {
	logger := logging.FromContext(ctx)

	if params.Amount <= 0 {
		return nil, fmt.Errorf("CreateIntent: amount %d: %w", params.Amount, domain.ErrInvalidAmount)
	}
	if !domain.ValidCurrency(params.Currency) {
		return nil, fmt.Errorf("CreateIntent: currency %q: %w", params.Currency, domain.ErrInvalidCurrency)
	}
	prov, err := s.providers.Get(params.Provider)
	if err != nil {
		return nil, fmt.Errorf("CreateIntent: %w", err)
	}

	paymentID := uuid.New()
	handle, err := prov.CreateIntent(ctx, provider.CreateIntentRequest{
		Amount:   params.Amount,
		Currency: params.Currency,
		Metadata: map[string]string{
			"paymentId": paymentID.String(),
			"orderId":   params.OrderID.String(),
			"userId":    params.UserID.String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("CreateIntent: %w", err)
	}

	now := time.Now()
	record := &domain.PaymentRecord{
		ID:                paymentID,
		OrderID:           params.OrderID,
		UserID:            params.UserID,
		Amount:            params.Amount,
		Currency:          params.Currency,
		Provider:          params.Provider,
		ProviderPaymentID: handle.ProviderPaymentID,
		Status:            domain.PaymentStatusPending,
		PaymentMethodID:   params.PaymentMethodID,
		Metadata:          params.Metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateIntent: begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := s.payments.Create(ctx, tx, record); err != nil {
		return nil, fmt.Errorf("CreateIntent: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("CreateIntent: commit tx: %w", err)
	}

	logger.InfoContext(ctx, "payment intent created",
		"payment_id", record.ID,
		"order_id", record.OrderID,
		"provider", record.Provider,
		"provider_payment_id", record.ProviderPaymentID,
		"amount", record.Amount,
		"currency", record.Currency,
	)
	return &CreateIntentResult{
		Payment:      record,
		ClientSecret: handle.ClientSecret,
		ApprovalURL:  handle.ApprovalURL,
	}, nil
}
