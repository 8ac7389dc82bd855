// Package wallet integrates the wallet-rail provider: OAuth
// client-credentials auth with a proactively refreshed token cache,
// major-unit decimal amounts on the wire, and HMAC webhook signatures.
package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/commercekit/payments/internal/domain"
	"github.com/commercekit/payments/internal/logging"
	"github.com/commercekit/payments/internal/provider"
)

type Config struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	Timeout       time.Duration
	Retry         provider.RetryPolicy
}

type Client struct {
	baseURL       string
	webhookSecret string
	retry         provider.RetryPolicy
	http          *transport
	tokens        *tokenCache
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	tr := newTransport(cfg.BaseURL, timeout)
	return &Client{
		baseURL:       cfg.BaseURL,
		webhookSecret: cfg.WebhookSecret,
		retry:         cfg.Retry,
		http:          tr,
		tokens:        newTokenCache(tr, cfg.ClientID, cfg.ClientSecret),
	}
}

func (c *Client) Name() domain.Provider { return domain.ProviderWallet }

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount struct {
		Value        string `json:"value"`
		CurrencyCode string `json:"currency_code"`
	} `json:"amount"`
}

func (c *Client) CreateIntent(ctx context.Context, req provider.CreateIntentRequest) (*provider.IntentHandle, error) {
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"amount": map[string]string{
				"currency_code": req.Currency,
				"value":         majorUnits(req.Amount),
			},
			"reference_id": req.Metadata["orderId"],
		}},
	}

	resp, err := provider.Do(ctx, c.retry, "wallet.CreateIntent", func(ctx context.Context) (*orderResponse, error) {
		return c.post(ctx, "/v2/checkout/orders", body)
	})
	if err != nil {
		return nil, fmt.Errorf("CreateIntent: %w", err)
	}

	handle := &provider.IntentHandle{ProviderPaymentID: resp.ID}
	for _, link := range resp.Links {
		if link.Rel == "approve" {
			handle.ApprovalURL = link.Href
			break
		}
	}
	return handle, nil
}

func (c *Client) Retrieve(ctx context.Context, providerPaymentID string) (provider.Status, error) {
	resp, err := provider.Do(ctx, c.retry, "wallet.Retrieve", func(ctx context.Context) (*orderResponse, error) {
		return c.get(ctx, "/v2/checkout/orders/"+providerPaymentID)
	})
	if err != nil {
		return "", fmt.Errorf("Retrieve: %w", err)
	}
	return c.mapStatus(ctx, resp.Status), nil
}

func (c *Client) Confirm(ctx context.Context, providerPaymentID string) (provider.Status, error) {
	resp, err := provider.Do(ctx, c.retry, "wallet.Confirm", func(ctx context.Context) (*orderResponse, error) {
		return c.post(ctx, "/v2/checkout/orders/"+providerPaymentID+"/capture", map[string]any{})
	})
	if err != nil {
		return "", fmt.Errorf("Confirm: %w", err)
	}
	return c.mapStatus(ctx, resp.Status), nil
}

func (c *Client) Refund(ctx context.Context, req provider.RefundRequest) (*provider.RefundReceipt, error) {
	body := map[string]any{
		"amount": map[string]string{
			"currency_code": req.Currency,
			"value":         majorUnits(req.Amount),
		},
		"note_to_payer": req.Reason,
	}

	resp, err := provider.Do(ctx, c.retry, "wallet.Refund", func(ctx context.Context) (*refundResponse, error) {
		return postJSON[refundResponse](ctx, c, "/v2/payments/captures/"+req.ProviderPaymentID+"/refund", body)
	})
	if err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}

	amount, err := minorUnits(resp.Amount.Value)
	if err != nil {
		return nil, fmt.Errorf("Refund: parse amount %q: %w", resp.Amount.Value, err)
	}

	return &provider.RefundReceipt{
		RefundID: resp.ID,
		Amount:   amount,
		Status:   c.mapStatus(ctx, resp.Status),
	}, nil
}

// mapStatus folds the wallet provider's vocabulary onto the normalized
// set. DENIED is a definitive rejection, so it maps to failed rather than
// pending. Unknowns stay pending and get logged.
func (c *Client) mapStatus(ctx context.Context, native string) provider.Status {
	switch strings.ToUpper(native) {
	case "CREATED":
		return provider.StatusCreated
	case "APPROVED", "SAVED", "PAYER_ACTION_REQUIRED":
		return provider.StatusPending
	case "COMPLETED":
		return provider.StatusSucceeded
	case "FAILED", "DENIED":
		return provider.StatusFailed
	case "CANCELLED", "VOIDED":
		return provider.StatusCancelled
	default:
		logging.FromContext(ctx).Warn("unmapped wallet status", "status", native)
		return provider.StatusPending
	}
}

// majorUnits renders minor currency units as the decimal string the wallet
// API expects, e.g. 1050 -> "10.50".
func majorUnits(amount int64) string {
	return decimal.NewFromInt(amount).Shift(-2).StringFixed(2)
}

func minorUnits(value string) (int64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, err
	}
	return d.Shift(2).IntPart(), nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*orderResponse, error) {
	return postJSON[orderResponse](ctx, c, path, body)
}

func (c *Client) get(ctx context.Context, path string) (*orderResponse, error) {
	return getJSON[orderResponse](ctx, c, path)
}
