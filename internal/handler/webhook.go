package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/commercekit/payments/internal/logging"
	"github.com/commercekit/payments/internal/webhook"
)

type webhookReconciler interface {
	Handle(ctx context.Context, providerName string, body []byte, headers http.Header) (*webhook.Result, error)
}

type WebhookHandler struct {
	reconciler webhookReconciler
}

func NewWebhookHandler(reconciler webhookReconciler) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// Receive processes one provider callback. The raw body is read before any
// parsing because signatures are computed over the exact bytes sent.
// Ignored, unmatched, and duplicate deliveries are all acknowledged with
// 200 so providers stop redelivering them.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	providerName := r.PathValue("provider")
	result, err := h.reconciler.Handle(r.Context(), providerName, body, r.Header)
	if err != nil {
		log.Warn("webhook processing failed", "provider", providerName, "error", err)
		RespondDomainError(w, err)
		return
	}

	status := result.Status
	if result.Duplicate {
		status = "already_received"
	}
	log.Info("webhook processed",
		"provider", providerName,
		"event_type", result.EventType,
		"status", status,
	)
	RespondSuccess(w, http.StatusOK, map[string]string{"status": status})
}
