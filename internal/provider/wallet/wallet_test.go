package wallet_test

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
	"github.com/commercekit/payments/internal/provider/wallet"
)

// walletServer fakes the wallet API: a token endpoint plus whatever handler
// the test supplies for everything else. It counts token requests so tests
// can assert on cache behavior.
type walletServer struct {
	srv        *httptest.Server
	tokenCalls atomic.Int32
}

func newWalletServer(t *testing.T, handler http.HandlerFunc) *walletServer {
	t.Helper()
	ws := &walletServer{}
	ws.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			ws.tokenCalls.Add(1)
			user, pass, ok := r.BasicAuth()
			if !ok || user != "client-id" || pass != "client-secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "tok_abc",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
			return
		}
		handler(w, r)
	}))
	t.Cleanup(ws.srv.Close)
	return ws
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*wallet.Client, *walletServer) {
	t.Helper()
	ws := newWalletServer(t, handler)
	client := wallet.New(wallet.Config{
		BaseURL:       ws.srv.URL,
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
		WebhookSecret: "wallet-secret",
		Retry:         provider.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	})
	return client, ws
}

func TestCreateIntent(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/checkout/orders", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]any{
			"id":     "ORDER-1",
			"status": "CREATED",
			"links": []map[string]string{
				{"href": "https://wallet.example/self", "rel": "self"},
				{"href": "https://wallet.example/approve/ORDER-1", "rel": "approve"},
			},
		})
	})

	handle, err := client.CreateIntent(context.Background(), provider.CreateIntentRequest{
		Amount:   1050,
		Currency: "USD",
		Metadata: map[string]string{"orderId": "order-7"},
	})

	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", handle.ProviderPaymentID)
	assert.Equal(t, "https://wallet.example/approve/ORDER-1", handle.ApprovalURL)
	assert.Empty(t, handle.ClientSecret)
	assert.Equal(t, "Bearer tok_abc", gotAuth)

	units := gotBody["purchase_units"].([]any)
	amount := units[0].(map[string]any)["amount"].(map[string]any)
	assert.Equal(t, "10.50", amount["value"])
	assert.Equal(t, "USD", amount["currency_code"])
}

func TestTokenIsCachedAcrossCalls(t *testing.T) {
	client, ws := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "ORDER-1", "status": "COMPLETED"})
	})

	for i := 0; i < 3; i++ {
		_, err := client.Retrieve(context.Background(), "ORDER-1")
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), ws.tokenCalls.Load())
}

func TestUnauthorizedInvalidatesToken(t *testing.T) {
	var apiCalls atomic.Int32
	client, ws := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if apiCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "ORDER-1", "status": "COMPLETED"})
	})

	// First call fails with 401 (permanent), dropping the cached token.
	_, err := client.Retrieve(context.Background(), "ORDER-1")
	require.Error(t, err)

	status, err := client.Retrieve(context.Background(), "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, provider.StatusSucceeded, status)
	assert.Equal(t, int32(2), ws.tokenCalls.Load())
}

func TestConfirm_StatusMapping(t *testing.T) {
	tests := []struct {
		native string
		want   provider.Status
	}{
		{"COMPLETED", provider.StatusSucceeded},
		{"DENIED", provider.StatusFailed},
		{"FAILED", provider.StatusFailed},
		{"APPROVED", provider.StatusPending},
		{"CREATED", provider.StatusCreated},
		{"VOIDED", provider.StatusCancelled},
		{"SOMETHING_ELSE", provider.StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.native, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/v2/checkout/orders/ORDER-1/capture", r.URL.Path)
				json.NewEncoder(w).Encode(map[string]any{"id": "ORDER-1", "status": tt.native})
			})

			status, err := client.Confirm(context.Background(), "ORDER-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestRefund(t *testing.T) {
	var gotBody map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/payments/captures/CAP-1/refund", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "REF-1",
			"status": "COMPLETED",
			"amount": map[string]string{"value": "10.50", "currency_code": "USD"},
		})
	})

	receipt, err := client.Refund(context.Background(), provider.RefundRequest{
		ProviderPaymentID: "CAP-1",
		Amount:            1050,
		Currency:          "USD",
		Reason:            "customer request",
	})

	require.NoError(t, err)
	assert.Equal(t, "REF-1", receipt.RefundID)
	assert.Equal(t, int64(1050), receipt.Amount)
	assert.Equal(t, provider.StatusSucceeded, receipt.Status)

	amount := gotBody["amount"].(map[string]any)
	assert.Equal(t, "10.50", amount["value"])
	assert.Equal(t, "customer request", gotBody["note_to_payer"])
}

func signWallet(secret, transmissionID, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s|%s|", transmissionID, timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	client := wallet.New(wallet.Config{WebhookSecret: "wallet-secret"})
	body := []byte(`{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED"}`)

	headers := func(sig, id, ts string) http.Header {
		h := http.Header{}
		h.Set("Wallet-Transmission-Sig", sig)
		h.Set("Wallet-Transmission-Id", id)
		h.Set("Wallet-Transmission-Time", ts)
		return h
	}

	t.Run("valid", func(t *testing.T) {
		sig := signWallet("wallet-secret", "tx-1", "2026-01-01T00:00:00Z", body)
		require.NoError(t, client.VerifySignature(body, headers(sig, "tx-1", "2026-01-01T00:00:00Z")))
	})

	t.Run("wrong secret", func(t *testing.T) {
		sig := signWallet("other", "tx-1", "2026-01-01T00:00:00Z", body)
		require.ErrorIs(t, client.VerifySignature(body, headers(sig, "tx-1", "2026-01-01T00:00:00Z")), domain.ErrInvalidSignature)
	})

	t.Run("transmission id mismatch", func(t *testing.T) {
		sig := signWallet("wallet-secret", "tx-1", "2026-01-01T00:00:00Z", body)
		require.ErrorIs(t, client.VerifySignature(body, headers(sig, "tx-2", "2026-01-01T00:00:00Z")), domain.ErrInvalidSignature)
	})

	t.Run("missing headers", func(t *testing.T) {
		require.ErrorIs(t, client.VerifySignature(body, http.Header{}), domain.ErrInvalidSignature)
	})
}

func TestParseWebhook(t *testing.T) {
	client := wallet.New(wallet.Config{})

	tests := []struct {
		eventType string
		want      provider.Outcome
	}{
		{"PAYMENT.CAPTURE.COMPLETED", provider.OutcomeSucceeded},
		{"PAYMENT.CAPTURE.DENIED", provider.OutcomeFailed},
		{"CHECKOUT.ORDER.CANCELLED", provider.OutcomeCancelled},
		{"CUSTOMER.DISPUTE.CREATED", provider.OutcomeDisputed},
		{"CHECKOUT.ORDER.APPROVED", provider.OutcomeIgnored},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			body := fmt.Sprintf(`{"id":"WH-1","event_type":%q,"resource":{"id":"ORDER-1"}}`, tt.eventType)
			event, err := client.ParseWebhook([]byte(body))
			require.NoError(t, err)
			assert.Equal(t, "WH-1", event.ExternalEventID)
			assert.Equal(t, "ORDER-1", event.ProviderPaymentID)
			assert.Equal(t, tt.want, event.Outcome)
		})
	}

	t.Run("missing resource id", func(t *testing.T) {
		_, err := client.ParseWebhook([]byte(`{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED"}`))
		require.ErrorIs(t, err, domain.ErrInvalidRequest)
	})
}
