package wallet

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/commercekit/payments/internal/domain"
	"github.com/commercekit/payments/internal/provider"
)

const (
	signatureHeader    = "Wallet-Transmission-Sig"
	transmissionHeader = "Wallet-Transmission-Id"
	timestampHeader    = "Wallet-Transmission-Time"
)

// VerifySignature checks the hex HMAC-SHA256 of
// "<transmission-id>|<timestamp>|<body>" with the shared webhook secret.
func (c *Client) VerifySignature(body []byte, headers http.Header) error {
	sig := strings.TrimSpace(headers.Get(signatureHeader))
	transmissionID := strings.TrimSpace(headers.Get(transmissionHeader))
	timestamp := strings.TrimSpace(headers.Get(timestampHeader))
	if sig == "" || transmissionID == "" || timestamp == "" {
		return fmt.Errorf("VerifySignature: missing headers: %w", domain.ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(transmissionID))
	mac.Write([]byte("|"))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("|"))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return fmt.Errorf("VerifySignature: signature mismatch: %w", domain.ErrInvalidSignature)
	}
	return nil
}

type webhookEnvelope struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID string `json:"id"`
	} `json:"resource"`
}

func (c *Client) ParseWebhook(body []byte) (*provider.WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("ParseWebhook: %w: %w", domain.ErrInvalidRequest, err)
	}
	if env.ID == "" || env.Resource.ID == "" {
		return nil, fmt.Errorf("ParseWebhook: missing event or resource id: %w", domain.ErrInvalidRequest)
	}

	return &provider.WebhookEvent{
		ExternalEventID:   env.ID,
		ProviderPaymentID: env.Resource.ID,
		EventType:         env.EventType,
		Outcome:           mapEventType(env.EventType),
	}, nil
}

func mapEventType(eventType string) provider.Outcome {
	switch eventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		return provider.OutcomeSucceeded
	case "PAYMENT.CAPTURE.DENIED":
		return provider.OutcomeFailed
	case "CHECKOUT.ORDER.CANCELLED":
		return provider.OutcomeCancelled
	case "CUSTOMER.DISPUTE.CREATED":
		return provider.OutcomeDisputed
	default:
		// CHECKOUT.ORDER.APPROVED and friends are acknowledged but carry
		// no transition for us.
		return provider.OutcomeIgnored
	}
}
