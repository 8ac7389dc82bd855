package cardrail

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

const signatureHeader = "Cardrail-Signature"

// VerifySignature checks the provider's "t=<ts>,v1=<hex>" signature header:
// HMAC-SHA256 with the shared secret over "<ts>.<body>". Multiple v1
// entries are accepted to allow secret rotation.
func (c *Client) VerifySignature(body []byte, headers http.Header) error {
	header := strings.TrimSpace(headers.Get(signatureHeader))
	if header == "" {
		return fmt.Errorf("VerifySignature: missing header: %w", domain.ErrInvalidSignature)
	}

	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return fmt.Errorf("VerifySignature: %w", domain.ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return fmt.Errorf("VerifySignature: no matching signature: %w", domain.ErrInvalidSignature)
}

func parseSignatureHeader(header string) (timestamp string, signatures []string, err error) {
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return "", nil, fmt.Errorf("malformed element %q", part)
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			signatures = append(signatures, v)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, fmt.Errorf("missing timestamp or signature")
	}
	return timestamp, signatures, nil
}

type webhookEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

func (c *Client) ParseWebhook(body []byte) (*provider.WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("ParseWebhook: %w: %w", domain.ErrInvalidRequest, err)
	}
	if env.ID == "" || env.Data.Object.ID == "" {
		return nil, fmt.Errorf("ParseWebhook: missing event or object id: %w", domain.ErrInvalidRequest)
	}

	return &provider.WebhookEvent{
		ExternalEventID:   env.ID,
		ProviderPaymentID: env.Data.Object.ID,
		EventType:         env.Type,
		Outcome:           mapEventType(env.Type),
	}, nil
}

func mapEventType(eventType string) provider.Outcome {
	switch eventType {
	case "payment_intent.succeeded":
		return provider.OutcomeSucceeded
	case "payment_intent.payment_failed":
		return provider.OutcomeFailed
	case "payment_intent.canceled":
		return provider.OutcomeCancelled
	case "charge.dispute.created":
		return provider.OutcomeDisputed
	default:
		return provider.OutcomeIgnored
	}
}
