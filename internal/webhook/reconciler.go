// Package webhook turns provider callbacks into payment reconciliations
// with exactly-once effect: signatures are verified against the raw body,
// every delivery is deduplicated by the provider's event id, and the dedup
// mark commits in the same transaction as the state it guards.
package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/commercekit/payments/internal/domain"
	"github.com/commercekit/payments/internal/logging"
	"github.com/commercekit/payments/internal/payment"
	"github.com/commercekit/payments/internal/provider"
	"github.com/commercekit/payments/internal/repository"
)

const (
	StatusProcessed = "processed"
	StatusIgnored   = "ignored"
	StatusUnmatched = "unmatched"
)

// Result is what a webhook delivery resolved to. Redeliveries replay the
// result recorded for the first delivery.
type Result struct {
	Status    string     `json:"status"`
	EventType string     `json:"event_type,omitempty"`
	PaymentID *uuid.UUID `json:"payment_id,omitempty"`
	Duplicate bool       `json:"-"`
}

type reconcileService interface {
	Reconcile(ctx context.Context, params payment.ReconcileParams) (*payment.ReconcileResult, error)
}

type guard interface {
	Get(ctx context.Context, prov domain.Provider, externalEventID string) (*repository.ProcessedWebhook, error)
	Mark(ctx context.Context, tx *sql.Tx, w *repository.ProcessedWebhook) error
}

type Reconciler struct {
	providers *provider.Registry
	payments  reconcileService
	guard     guard
	db        *sql.DB
}

func NewReconciler(providers *provider.Registry, payments *payment.Service, guard *repository.ProcessedWebhookRepository, db *sql.DB) *Reconciler {
	return &Reconciler{
		providers: providers,
		payments:  payments,
		guard:     guard,
		db:        db,
	}
}

// Handle verifies, parses, and applies one webhook delivery.
func (r *Reconciler) Handle(ctx context.Context, providerName string, body []byte, headers http.Header) (*Result, error) {
	logger := logging.FromContext(ctx)

	kind := domain.Provider(providerName)
	prov, err := r.providers.Get(kind)
	if err != nil {
		return nil, fmt.Errorf("Handle: %w", err)
	}

	if err := prov.VerifySignature(body, headers); err != nil {
		logger.WarnContext(ctx, "webhook signature verification failed",
			"provider", kind, "error", err)
		return nil, fmt.Errorf("Handle: %w", err)
	}

	evt, err := prov.ParseWebhook(body)
	if err != nil {
		return nil, fmt.Errorf("Handle: %w: %v", domain.ErrInvalidRequest, err)
	}

	seen, err := r.guard.Get(ctx, kind, evt.ExternalEventID)
	if err != nil {
		return nil, fmt.Errorf("Handle: %w", err)
	}
	if seen != nil {
		logger.InfoContext(ctx, "duplicate webhook delivery, replaying recorded result",
			"provider", kind, "external_event_id", evt.ExternalEventID)
		return r.replay(ctx, kind, evt.ExternalEventID)
	}

	switch evt.Outcome {
	case provider.OutcomeIgnored:
		return r.acknowledge(ctx, kind, evt, StatusIgnored)
	case provider.OutcomeDisputed:
		// Disputes are surfaced for operators; they do not move the
		// payment state machine.
		logger.WarnContext(ctx, "payment disputed",
			"provider", kind,
			"provider_payment_id", evt.ProviderPaymentID,
			"event_type", evt.EventType,
		)
		return r.acknowledge(ctx, kind, evt, StatusIgnored)
	}

	result := &Result{Status: StatusProcessed, EventType: evt.EventType}
	recResult, err := r.payments.Reconcile(ctx, payment.ReconcileParams{
		Provider:          kind,
		ProviderPaymentID: evt.ProviderPaymentID,
		Outcome:           evt.Outcome,
		Reason:            reasonFor(evt),
		InTx: func(ctx context.Context, tx *sql.Tx) error {
			return r.mark(ctx, tx, kind, evt.ExternalEventID, result)
		},
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.WarnContext(ctx, "webhook references unknown payment",
				"provider", kind, "provider_payment_id", evt.ProviderPaymentID)
			return r.acknowledge(ctx, kind, evt, StatusUnmatched)
		}
		if errors.Is(err, domain.ErrDuplicateWebhook) {
			// A concurrent delivery won the mark; replay its result.
			return r.replay(ctx, kind, evt.ExternalEventID)
		}
		return nil, fmt.Errorf("Handle: %w", err)
	}
	result.PaymentID = &recResult.Payment.ID
	return result, nil
}

// acknowledge records a delivery that requires no state change, so its
// redeliveries replay the same answer.
func (r *Reconciler) acknowledge(ctx context.Context, kind domain.Provider, evt *provider.WebhookEvent, status string) (*Result, error) {
	result := &Result{Status: status, EventType: evt.EventType}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("acknowledge: begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := r.mark(ctx, tx, kind, evt.ExternalEventID, result); err != nil {
		if errors.Is(err, domain.ErrDuplicateWebhook) {
			result.Duplicate = true
			return result, nil
		}
		return nil, fmt.Errorf("acknowledge: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("acknowledge: commit tx: %w", err)
	}
	return result, nil
}

func (r *Reconciler) replay(ctx context.Context, kind domain.Provider, externalEventID string) (*Result, error) {
	seen, err := r.guard.Get(ctx, kind, externalEventID)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if seen == nil {
		return nil, fmt.Errorf("replay: %s/%s: %w", kind, externalEventID, domain.ErrNotFound)
	}
	var cached Result
	if err := json.Unmarshal(seen.Result, &cached); err != nil {
		return nil, fmt.Errorf("replay: decode cached result: %w", err)
	}
	cached.Duplicate = true
	return &cached, nil
}

func (r *Reconciler) mark(ctx context.Context, tx *sql.Tx, kind domain.Provider, externalEventID string, result *Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("mark: encode result: %w", err)
	}
	return r.guard.Mark(ctx, tx, &repository.ProcessedWebhook{
		Provider:        kind,
		ExternalEventID: externalEventID,
		Result:          payload,
		ProcessedAt:     time.Now(),
	})
}

func reasonFor(evt *provider.WebhookEvent) *string {
	switch evt.Outcome {
	case provider.OutcomeFailed, provider.OutcomeCancelled:
		reason := fmt.Sprintf("provider event %s", evt.EventType)
		return &reason
	default:
		return nil
	}
}
