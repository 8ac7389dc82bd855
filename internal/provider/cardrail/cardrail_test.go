package cardrail_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/payments/internal/domain"
	"github.com/commercekit/payments/internal/provider"
	"github.com/commercekit/payments/internal/provider/cardrail"
)

func newTestClient(t *testing.T, handler http.Handler) *cardrail.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := cardrail.New(cardrail.Config{
		BaseURL:       srv.URL,
		APIKey:        "sk_test_123",
		WebhookSecret: "whsec_test",
		Retry:         provider.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	})
	return client
}

func TestCreateIntent(t *testing.T) {
	var gotAuth, gotIdemKey string
	var gotBody map[string]any

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotIdemKey = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]any{
			"id":            "pi_abc",
			"status":        "requires_confirmation",
			"client_secret": "pi_abc_secret_xyz",
		})
	}))

	handle, err := client.CreateIntent(context.Background(), provider.CreateIntentRequest{
		Amount:   2500,
		Currency: "USD",
		Metadata: map[string]string{"orderId": "order-1"},
	})

	require.NoError(t, err)
	assert.Equal(t, "pi_abc", handle.ProviderPaymentID)
	assert.Equal(t, "pi_abc_secret_xyz", handle.ClientSecret)
	assert.Empty(t, handle.ApprovalURL)

	assert.Equal(t, "Bearer sk_test_123", gotAuth)
	assert.NotEmpty(t, gotIdemKey)
	assert.Equal(t, float64(2500), gotBody["amount"])
	assert.Equal(t, "USD", gotBody["currency"])
}

func TestCreateIntent_IdempotencyKeyStableAcrossRetries(t *testing.T) {
	var calls atomic.Int32
	keys := make(chan string, 3)

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys <- r.Header.Get("Idempotency-Key")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "pi_retry", "status": "requires_confirmation"})
	}))

	handle, err := client.CreateIntent(context.Background(), provider.CreateIntentRequest{Amount: 100, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, "pi_retry", handle.ProviderPaymentID)

	first := <-keys
	assert.Equal(t, first, <-keys)
	assert.Equal(t, first, <-keys)
}

func TestConfirm_StatusMapping(t *testing.T) {
	tests := []struct {
		native string
		want   provider.Status
	}{
		{"succeeded", provider.StatusSucceeded},
		{"processing", provider.StatusPending},
		{"payment_failed", provider.StatusFailed},
		{"canceled", provider.StatusCancelled},
		{"requires_action", provider.StatusCreated},
		{"something_new", provider.StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.native, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/v1/payment_intents/pi_1/confirm", r.URL.Path)
				json.NewEncoder(w).Encode(map[string]any{"id": "pi_1", "status": tt.native})
			}))

			status, err := client.Confirm(context.Background(), "pi_1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestConfirm_DeclineIsPermanent(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, `{"error":{"code":"card_declined"}}`)
	}))

	_, err := client.Confirm(context.Background(), "pi_declined")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var provErr *provider.Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, provider.Permanent, provErr.Kind)
}

func TestRetrieve(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/payment_intents/pi_9", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"id": "pi_9", "status": "succeeded"})
	}))

	status, err := client.Retrieve(context.Background(), "pi_9")
	require.NoError(t, err)
	assert.Equal(t, provider.StatusSucceeded, status)
}

func TestRefund(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/refunds", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{"id": "re_1", "amount": 1500, "status": "succeeded"})
	}))

	receipt, err := client.Refund(context.Background(), provider.RefundRequest{
		ProviderPaymentID: "pi_1",
		Amount:            1500,
		Currency:          "USD",
		Reason:            "requested_by_customer",
	})

	require.NoError(t, err)
	assert.Equal(t, "re_1", receipt.RefundID)
	assert.Equal(t, int64(1500), receipt.Amount)
	assert.Equal(t, provider.StatusSucceeded, receipt.Status)
	assert.Equal(t, "pi_1", gotBody["payment_intent"])
	assert.Equal(t, float64(1500), gotBody["amount"])
}

func signBody(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	client := cardrail.New(cardrail.Config{WebhookSecret: "whsec_test"})
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	ts := "1700000000"

	t.Run("valid", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("Cardrail-Signature", fmt.Sprintf("t=%s,v1=%s", ts, signBody("whsec_test", ts, body)))
		require.NoError(t, client.VerifySignature(body, headers))
	})

	t.Run("rotation accepts any matching v1", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("Cardrail-Signature", fmt.Sprintf("t=%s,v1=%s,v1=%s",
			ts, signBody("old_secret", ts, body), signBody("whsec_test", ts, body)))
		require.NoError(t, client.VerifySignature(body, headers))
	})

	t.Run("wrong secret", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("Cardrail-Signature", fmt.Sprintf("t=%s,v1=%s", ts, signBody("wrong", ts, body)))
		require.ErrorIs(t, client.VerifySignature(body, headers), domain.ErrInvalidSignature)
	})

	t.Run("tampered body", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("Cardrail-Signature", fmt.Sprintf("t=%s,v1=%s", ts, signBody("whsec_test", ts, body)))
		require.ErrorIs(t, client.VerifySignature([]byte(`{"id":"evt_2"}`), headers), domain.ErrInvalidSignature)
	})

	t.Run("missing header", func(t *testing.T) {
		require.ErrorIs(t, client.VerifySignature(body, http.Header{}), domain.ErrInvalidSignature)
	})

	t.Run("malformed header", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("Cardrail-Signature", "garbage")
		require.ErrorIs(t, client.VerifySignature(body, headers), domain.ErrInvalidSignature)
	})
}

func TestParseWebhook(t *testing.T) {
	client := cardrail.New(cardrail.Config{})

	tests := []struct {
		eventType string
		want      provider.Outcome
	}{
		{"payment_intent.succeeded", provider.OutcomeSucceeded},
		{"payment_intent.payment_failed", provider.OutcomeFailed},
		{"payment_intent.canceled", provider.OutcomeCancelled},
		{"charge.dispute.created", provider.OutcomeDisputed},
		{"payment_intent.created", provider.OutcomeIgnored},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			body := fmt.Sprintf(`{"id":"evt_1","type":%q,"data":{"object":{"id":"pi_1"}}}`, tt.eventType)
			event, err := client.ParseWebhook([]byte(body))
			require.NoError(t, err)
			assert.Equal(t, "evt_1", event.ExternalEventID)
			assert.Equal(t, "pi_1", event.ProviderPaymentID)
			assert.Equal(t, tt.eventType, event.EventType)
			assert.Equal(t, tt.want, event.Outcome)
		})
	}

	t.Run("missing ids", func(t *testing.T) {
		_, err := client.ParseWebhook([]byte(`{"type":"payment_intent.succeeded"}`))
		require.ErrorIs(t, err, domain.ErrInvalidRequest)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := client.ParseWebhook([]byte(`{`))
		require.ErrorIs(t, err, domain.ErrInvalidRequest)
	})
}
