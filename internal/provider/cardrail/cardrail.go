// Package cardrail integrates the card-rail provider: API-key auth,
// idempotency keys on mutating calls, and timestamped HMAC webhook
// signatures.
package cardrail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/commercekit/payments/internal/domain"
	"github.com/commercekit/payments/internal/logging"
	"github.com/commercekit/payments/internal/provider"
)

type Config struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
	Retry         provider.RetryPolicy
}

type Client struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	retry         provider.RetryPolicy
	httpClient    *http.Client
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		retry:         cfg.Retry,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() domain.Provider { return domain.ProviderCardrail }

type intentResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

func (c *Client) CreateIntent(ctx context.Context, req provider.CreateIntentRequest) (*provider.IntentHandle, error) {
	body := map[string]any{
		"amount":   req.Amount,
		"currency": req.Currency,
		"metadata": req.Metadata,
	}

	// One key for the whole logical call, so retried attempts dedupe
	// provider-side.
	idemKey := uuid.NewString()
	resp, err := provider.Do(ctx, c.retry, "cardrail.CreateIntent", func(ctx context.Context) (*intentResponse, error) {
		return post[intentResponse](ctx, c, "/v1/payment_intents", body, idemKey)
	})
	if err != nil {
		return nil, fmt.Errorf("CreateIntent: %w", err)
	}

	return &provider.IntentHandle{
		ProviderPaymentID: resp.ID,
		ClientSecret:      resp.ClientSecret,
	}, nil
}

func (c *Client) Retrieve(ctx context.Context, providerPaymentID string) (provider.Status, error) {
	resp, err := provider.Do(ctx, c.retry, "cardrail.Retrieve", func(ctx context.Context) (*intentResponse, error) {
		return get[intentResponse](ctx, c, "/v1/payment_intents/"+providerPaymentID)
	})
	if err != nil {
		return "", fmt.Errorf("Retrieve: %w", err)
	}
	return c.mapStatus(ctx, resp.Status), nil
}

func (c *Client) Confirm(ctx context.Context, providerPaymentID string) (provider.Status, error) {
	idemKey := uuid.NewString()
	resp, err := provider.Do(ctx, c.retry, "cardrail.Confirm", func(ctx context.Context) (*intentResponse, error) {
		return post[intentResponse](ctx, c, "/v1/payment_intents/"+providerPaymentID+"/confirm", map[string]any{}, idemKey)
	})
	if err != nil {
		return "", fmt.Errorf("Confirm: %w", err)
	}
	return c.mapStatus(ctx, resp.Status), nil
}

func (c *Client) Refund(ctx context.Context, req provider.RefundRequest) (*provider.RefundReceipt, error) {
	body := map[string]any{
		"payment_intent": req.ProviderPaymentID,
		"amount":         req.Amount,
		"reason":         req.Reason,
	}

	idemKey := uuid.NewString()
	resp, err := provider.Do(ctx, c.retry, "cardrail.Refund", func(ctx context.Context) (*refundResponse, error) {
		return post[refundResponse](ctx, c, "/v1/refunds", body, idemKey)
	})
	if err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}

	return &provider.RefundReceipt{
		RefundID: resp.ID,
		Amount:   resp.Amount,
		Status:   c.mapStatus(ctx, resp.Status),
	}, nil
}

// mapStatus folds the provider's native vocabulary onto the normalized
// set. Unknown statuses stay pending and get logged; they are never read
// as terminal.
func (c *Client) mapStatus(ctx context.Context, native string) provider.Status {
	switch native {
	case "requires_payment_method", "requires_confirmation", "requires_action":
		return provider.StatusCreated
	case "processing":
		return provider.StatusPending
	case "succeeded":
		return provider.StatusSucceeded
	case "payment_failed":
		return provider.StatusFailed
	case "canceled":
		return provider.StatusCancelled
	default:
		logging.FromContext(ctx).Warn("unmapped cardrail status", "status", native)
		return provider.StatusPending
	}
}

func post[T any](ctx context.Context, c *Client, path string, body any, idemKey string) (*T, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	return send[T](c, req)
}

func get[T any](ctx context.Context, c *Client, path string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return send[T](c, req)
}
