package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidCurrency        = errors.New("invalid currency")
	ErrUnsupportedProvider    = errors.New("unsupported payment provider")
	ErrInvalidStateTransition = errors.New("invalid payment state transition")
	ErrConcurrencyConflict    = errors.New("event stream version conflict")
	ErrInvalidSignature       = errors.New("invalid webhook signature")
	ErrDuplicateWebhook       = errors.New("webhook event already processed")
	ErrProviderUnavailable    = errors.New("payment provider unavailable")
)
