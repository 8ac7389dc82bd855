// mock-provider simulates both payment rails for local development: the
// card rail under /cardrail and the wallet rail under /wallet. After a
// successful capture it posts the matching signed webhook to the API, so
// the whole intent-confirm-webhook loop runs without real providers.
package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/commercekit/payments/internal/logging"
)

// Amount that makes a capture fail, for exercising the failure paths.
const declineAmount = 999

type intent struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
}

type server struct {
	mu      sync.Mutex
	intents map[string]*intent

	callbackURL    string
	cardrailSecret string
	walletSecret   string
	webhookDelay   time.Duration
	httpClient     *http.Client
}

func main() {
	logging.Init("mock-provider", "info", os.Getenv("APP_ENV"))

	delay := 500 * time.Millisecond
	if v := os.Getenv("WEBHOOK_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			delay = time.Duration(ms) * time.Millisecond
		}
	}

	s := &server{
		intents:        make(map[string]*intent),
		callbackURL:    envOr("CALLBACK_BASE_URL", "http://api:8080/api/v1/webhooks"),
		cardrailSecret: envOr("CARDRAIL_WEBHOOK_SECRET", "cardrail-secret"),
		walletSecret:   envOr("WALLET_WEBHOOK_SECRET", "wallet-secret"),
		webhookDelay:   delay,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /cardrail/v1/payment_intents", s.cardrailCreateIntent)
	mux.HandleFunc("GET /cardrail/v1/payment_intents/{id}", s.cardrailGetIntent)
	mux.HandleFunc("POST /cardrail/v1/payment_intents/{id}/confirm", s.cardrailConfirm)
	mux.HandleFunc("POST /cardrail/v1/refunds", s.cardrailRefund)

	mux.HandleFunc("POST /wallet/v1/oauth2/token", s.walletToken)
	mux.HandleFunc("POST /wallet/v2/checkout/orders", s.walletCreateOrder)
	mux.HandleFunc("GET /wallet/v2/checkout/orders/{id}", s.walletGetOrder)
	mux.HandleFunc("POST /wallet/v2/checkout/orders/{id}/capture", s.walletCapture)
	mux.HandleFunc("POST /wallet/v2/payments/captures/{id}/refund", s.walletRefund)

	addr := ":" + envOr("PORT", "8081")
	slog.Info("mock provider started", "addr", addr, "callback_url", s.callbackURL)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// --- card rail ---

func (s *server) cardrailCreateIntent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	in := &intent{
		ID:       "pi_" + uuid.NewString()[:12],
		Amount:   req.Amount,
		Currency: req.Currency,
		Status:   "requires_confirmation",
	}
	s.put(in)

	respond(w, http.StatusOK, map[string]any{
		"id":            in.ID,
		"status":        in.Status,
		"client_secret": in.ID + "_secret_" + uuid.NewString()[:8],
	})
}

func (s *server) cardrailGetIntent(w http.ResponseWriter, r *http.Request) {
	in, ok := s.get(r.PathValue("id"))
	if !ok {
		respond(w, http.StatusNotFound, map[string]string{"error": "no such payment_intent"})
		return
	}
	respond(w, http.StatusOK, map[string]any{"id": in.ID, "status": in.Status})
}

func (s *server) cardrailConfirm(w http.ResponseWriter, r *http.Request) {
	in, ok := s.get(r.PathValue("id"))
	if !ok {
		respond(w, http.StatusNotFound, map[string]string{"error": "no such payment_intent"})
		return
	}

	eventType := "payment_intent.succeeded"
	if in.Amount == declineAmount {
		s.setStatus(in.ID, "payment_failed")
		eventType = "payment_intent.payment_failed"
	} else {
		s.setStatus(in.ID, "succeeded")
	}

	go s.sendCardrailWebhook(eventType, in.ID)
	in, _ = s.get(in.ID)
	respond(w, http.StatusOK, map[string]any{"id": in.ID, "status": in.Status})
}

func (s *server) cardrailRefund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentIntent string `json:"payment_intent"`
		Amount        int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if _, ok := s.get(req.PaymentIntent); !ok {
		respond(w, http.StatusNotFound, map[string]string{"error": "no such payment_intent"})
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"id":     "re_" + uuid.NewString()[:12],
		"amount": req.Amount,
		"status": "succeeded",
	})
}

func (s *server) sendCardrailWebhook(eventType, intentID string) {
	time.Sleep(s.webhookDelay)

	body, _ := json.Marshal(map[string]any{
		"id":   "evt_" + uuid.NewString()[:12],
		"type": eventType,
		"data": map[string]any{"object": map[string]any{"id": intentID}},
	})

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(s.cardrailSecret))
	fmt.Fprintf(mac, "%s.", ts)
	mac.Write(body)
	sig := fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	s.postWebhook(s.callbackURL+"/cardrail", body, http.Header{"Cardrail-Signature": {sig}})
}

// --- wallet rail ---

func (s *server) walletToken(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := r.BasicAuth(); !ok {
		respond(w, http.StatusUnauthorized, map[string]string{"error": "missing client credentials"})
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"access_token": "mock-" + uuid.NewString(),
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func (s *server) walletCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PurchaseUnits []struct {
			Amount struct {
				CurrencyCode string `json:"currency_code"`
				Value        string `json:"value"`
			} `json:"amount"`
		} `json:"purchase_units"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.PurchaseUnits) == 0 {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	var amount int64
	if f, err := strconv.ParseFloat(req.PurchaseUnits[0].Amount.Value, 64); err == nil {
		amount = int64(f * 100)
	}

	in := &intent{
		ID:       uuid.NewString()[:17],
		Amount:   amount,
		Currency: req.PurchaseUnits[0].Amount.CurrencyCode,
		Status:   "CREATED",
	}
	s.put(in)

	respond(w, http.StatusCreated, map[string]any{
		"id":     in.ID,
		"status": in.Status,
		"links": []map[string]string{
			{"href": "https://wallet.example/approve/" + in.ID, "rel": "approve"},
		},
	})
}

func (s *server) walletGetOrder(w http.ResponseWriter, r *http.Request) {
	in, ok := s.get(r.PathValue("id"))
	if !ok {
		respond(w, http.StatusNotFound, map[string]string{"error": "no such order"})
		return
	}
	respond(w, http.StatusOK, map[string]any{"id": in.ID, "status": in.Status})
}

func (s *server) walletCapture(w http.ResponseWriter, r *http.Request) {
	in, ok := s.get(r.PathValue("id"))
	if !ok {
		respond(w, http.StatusNotFound, map[string]string{"error": "no such order"})
		return
	}

	eventType := "PAYMENT.CAPTURE.COMPLETED"
	if in.Amount == declineAmount {
		s.setStatus(in.ID, "DENIED")
		eventType = "PAYMENT.CAPTURE.DENIED"
	} else {
		s.setStatus(in.ID, "COMPLETED")
	}

	go s.sendWalletWebhook(eventType, in.ID)
	in, _ = s.get(in.ID)
	respond(w, http.StatusCreated, map[string]any{"id": in.ID, "status": in.Status})
}

func (s *server) walletRefund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount struct {
			CurrencyCode string `json:"currency_code"`
			Value        string `json:"value"`
		} `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	respond(w, http.StatusCreated, map[string]any{
		"id":     uuid.NewString()[:17],
		"status": "COMPLETED",
		"amount": map[string]string{
			"currency_code": req.Amount.CurrencyCode,
			"value":         req.Amount.Value,
		},
	})
}

func (s *server) sendWalletWebhook(eventType, orderID string) {
	time.Sleep(s.webhookDelay)

	body, _ := json.Marshal(map[string]any{
		"id":         "WH-" + uuid.NewString()[:12],
		"event_type": eventType,
		"resource":   map[string]any{"id": orderID},
	})

	transmissionID := uuid.NewString()
	ts := time.Now().UTC().Format(time.RFC3339)
	mac := hmac.New(sha256.New, []byte(s.walletSecret))
	fmt.Fprintf(mac, "%s|%s|", transmissionID, ts)
	mac.Write(body)

	s.postWebhook(s.callbackURL+"/wallet", body, http.Header{
		"Wallet-Transmission-Id":   {transmissionID},
		"Wallet-Transmission-Time": {ts},
		"Wallet-Transmission-Sig":  {hex.EncodeToString(mac.Sum(nil))},
	})
}

// --- shared ---

func (s *server) postWebhook(url string, body []byte, headers http.Header) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		slog.Error("failed to build webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		slog.Error("failed to deliver webhook", "url", url, "error", err)
		return
	}
	defer resp.Body.Close()
	slog.Info("webhook delivered", "url", url, "status", resp.StatusCode)
}

func (s *server) put(in *intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[in.ID] = in
}

func (s *server) get(id string) (*intent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[id]
	if !ok {
		return nil, false
	}
	copied := *in
	return &copied, true
}

func (s *server) setStatus(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in, ok := s.intents[id]; ok {
		in.Status = status
	}
}

func respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
