package provider

import (
	"context"
	"net/http"

	"github.com/commercekit/payments/internal/domain"
)

// Status is the normalized vocabulary every adapter maps its native
// statuses onto. Anything an adapter doesn't recognize must map to
// StatusPending and be logged, never treated as terminal.
type Status string

const (
	StatusCreated   Status = "created"
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Outcome is the normalized result of a provider webhook.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeDisputed  Outcome = "disputed"

	// OutcomeIgnored marks event types this system acknowledges but
	// intentionally does not act on.
	OutcomeIgnored Outcome = "ignored"
)

type CreateIntentRequest struct {
	Amount   int64
	Currency string
	Metadata map[string]string
}

// IntentHandle is the provider-side handle for a created intent. Exactly
// one of ClientSecret and ApprovalURL is set, depending on the rail.
type IntentHandle struct {
	ProviderPaymentID string
	ClientSecret      string
	ApprovalURL       string
}

type RefundRequest struct {
	ProviderPaymentID string
	Amount            int64
	Currency          string
	Reason            string
}

type RefundReceipt struct {
	RefundID string
	Amount   int64
	Status   Status
}

// WebhookEvent is a provider webhook normalized into the fields the
// reconciler needs.
type WebhookEvent struct {
	ExternalEventID   string
	ProviderPaymentID string
	EventType         string
	Outcome           Outcome
}

// Adapter normalizes one payment provider's API into a single contract.
// Mutating calls carry idempotency keys where the provider supports them.
type Adapter interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentHandle, error)
	Retrieve(ctx context.Context, providerPaymentID string) (Status, error)
	Confirm(ctx context.Context, providerPaymentID string) (Status, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundReceipt, error)
}

// Provider is a full rail integration: the payment operations plus the
// provider's webhook verification and parsing scheme.
type Provider interface {
	Adapter
	Name() domain.Provider

	// VerifySignature checks the provider's signature over the raw body.
	// It returns domain.ErrInvalidSignature on any verification failure.
	VerifySignature(body []byte, headers http.Header) error

	ParseWebhook(body []byte) (*WebhookEvent, error)
}
