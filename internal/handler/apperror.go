package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidAmount          = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount is invalid"}
	ErrInvalidCurrency        = &AppError{http.StatusBadRequest, "INVALID_CURRENCY", "Invalid currency"}
	ErrUnsupportedProvider    = &AppError{http.StatusBadRequest, "UNSUPPORTED_PROVIDER", "Unsupported payment provider"}
	ErrInvalidStateTransition = &AppError{http.StatusUnprocessableEntity, "INVALID_STATE_TRANSITION", "Payment state does not allow this operation"}
	ErrConcurrencyConflict    = &AppError{http.StatusConflict, "CONCURRENCY_CONFLICT", "Resource was modified concurrently, please retry"}
	ErrInvalidSignature       = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature verification failed"}
	ErrProviderUnavailable    = &AppError{http.StatusBadGateway, "PROVIDER_UNAVAILABLE", "Payment provider is unavailable, please retry"}
	ErrProviderRejected       = &AppError{http.StatusUnprocessableEntity, "PROVIDER_REJECTED", "Payment provider rejected the request"}

	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
)
