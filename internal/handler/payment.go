package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/commercekit/payments/internal/domain"
	"github.com/commercekit/payments/internal/logging"
	"github.com/commercekit/payments/internal/payment"
	"github.com/commercekit/payments/internal/repository"
)

type paymentService interface {
	CreateIntent(ctx context.Context, params payment.CreateIntentParams) (*payment.CreateIntentResult, error)
	Confirm(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error)
	Refund(ctx context.Context, params payment.RefundParams) (*domain.PaymentRecord, error)
	SyncStatus(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error)
	ListPayments(ctx context.Context, filter repository.ListFilter) ([]domain.PaymentRecord, error)
}

type PaymentHandler struct {
	payments paymentService
}

func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type createIntentRequest struct {
	OrderID         string          `json:"order_id"`
	UserID          string          `json:"user_id"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	Provider        string          `json:"provider"`
	PaymentMethodID *string         `json:"payment_method_id,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
}

func (r createIntentRequest) Validate() []FieldError {
	var errs []FieldError

	if r.OrderID == "" {
		errs = append(errs, FieldError{Field: "order_id", Message: "required"})
	} else if _, err := uuid.Parse(r.OrderID); err != nil {
		errs = append(errs, FieldError{Field: "order_id", Message: "must be a uuid"})
	}

	if r.UserID == "" {
		errs = append(errs, FieldError{Field: "user_id", Message: "required"})
	} else if _, err := uuid.Parse(r.UserID); err != nil {
		errs = append(errs, FieldError{Field: "user_id", Message: "must be a uuid"})
	}

	if r.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}

	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.ValidCurrency(r.Currency) {
		errs = append(errs, FieldError{Field: "currency", Message: "unsupported currency"})
	}

	if r.Provider == "" {
		errs = append(errs, FieldError{Field: "provider", Message: "required"})
	} else if !domain.Provider(r.Provider).IsValid() {
		errs = append(errs, FieldError{Field: "provider", Message: "must be cardrail or wallet"})
	}

	return errs
}

type refundRequest struct {
	Amount int64   `json:"amount,omitempty"`
	Reason *string `json:"reason,omitempty"`
}

type paymentDTO struct {
	ID                uuid.UUID       `json:"id"`
	OrderID           uuid.UUID       `json:"order_id"`
	UserID            uuid.UUID       `json:"user_id"`
	Amount            int64           `json:"amount"`
	Currency          string          `json:"currency"`
	Provider          string          `json:"provider"`
	ProviderPaymentID string          `json:"provider_payment_id"`
	Status            string          `json:"status"`
	PaymentMethodID   *string         `json:"payment_method_id,omitempty"`
	FailureReason     *string         `json:"failure_reason,omitempty"`
	RefundedAmount    *int64          `json:"refunded_amount,omitempty"`
	RefundReason      *string         `json:"refund_reason,omitempty"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	ConfirmedAt       *time.Time      `json:"confirmed_at,omitempty"`
	RefundedAt        *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type intentDTO struct {
	Payment      paymentDTO `json:"payment"`
	ClientSecret string     `json:"client_secret,omitempty"`
	ApprovalURL  string     `json:"approval_url,omitempty"`
}

func toPaymentDTO(p *domain.PaymentRecord) paymentDTO {
	return paymentDTO{
		ID:                p.ID,
		OrderID:           p.OrderID,
		UserID:            p.UserID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Provider:          string(p.Provider),
		ProviderPaymentID: p.ProviderPaymentID,
		Status:            string(p.Status),
		PaymentMethodID:   p.PaymentMethodID,
		FailureReason:     p.FailureReason,
		RefundedAmount:    p.RefundedAmount,
		RefundReason:      p.RefundReason,
		Metadata:          p.Metadata,
		ConfirmedAt:       p.ConfirmedAt,
		RefundedAt:        p.RefundedAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	orderID, _ := uuid.Parse(req.OrderID)
	userID, _ := uuid.Parse(req.UserID)

	result, err := h.payments.CreateIntent(r.Context(), payment.CreateIntentParams{
		OrderID:         orderID,
		UserID:          userID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Provider:        domain.Provider(req.Provider),
		PaymentMethodID: req.PaymentMethodID,
		Metadata:        req.Metadata,
	})
	if err != nil {
		log.Warn("payment intent creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/payments/%s", result.Payment.ID))
	RespondSuccess(w, http.StatusCreated, intentDTO{
		Payment:      toPaymentDTO(result.Payment),
		ClientSecret: result.ClientSecret,
		ApprovalURL:  result.ApprovalURL,
	})
}

func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	p, err := h.payments.Confirm(r.Context(), paymentID)
	if err != nil {
		log.Warn("payment confirmation failed", "payment_id", paymentID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toPaymentDTO(p))
}

func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req refundRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondAppError(w, ErrInvalidRequest, nil)
			return
		}
	}

	p, err := h.payments.Refund(r.Context(), payment.RefundParams{
		PaymentID: paymentID,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		log.Warn("payment refund failed", "payment_id", paymentID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toPaymentDTO(p))
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	p, err := h.payments.GetPayment(r.Context(), paymentID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toPaymentDTO(p))
}

func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, fields := listFilterFromQuery(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	payments, err := h.payments.ListPayments(r.Context(), filter)
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment list failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]paymentDTO, 0, len(payments))
	for i := range payments {
		dtos = append(dtos, toPaymentDTO(&payments[i]))
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

// Status re-queries the provider and returns the possibly corrected
// payment.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	p, err := h.payments.SyncStatus(r.Context(), paymentID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment status sync failed", "payment_id", paymentID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toPaymentDTO(p))
}

func listFilterFromQuery(r *http.Request) (repository.ListFilter, []FieldError) {
	var filter repository.ListFilter
	var errs []FieldError
	q := r.URL.Query()

	if v := q.Get("order_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			errs = append(errs, FieldError{Field: "order_id", Message: "must be a uuid"})
		} else {
			filter.OrderID = &id
		}
	}
	if v := q.Get("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			errs = append(errs, FieldError{Field: "user_id", Message: "must be a uuid"})
		} else {
			filter.UserID = &id
		}
	}
	if v := q.Get("status"); v != "" {
		status := domain.PaymentStatus(v)
		if !status.IsValid() {
			errs = append(errs, FieldError{Field: "status", Message: "unknown status"})
		} else {
			filter.Status = &status
		}
	}
	return filter, errs
}
