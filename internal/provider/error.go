package provider

import (
	"context"
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// Transient failures (timeouts, network errors, 5xx) are eligible
	// for retry.
	Transient ErrorKind = iota
	// Permanent failures (4xx, validation) are surfaced immediately.
	Permanent
)

func (k ErrorKind) String() string {
	if k == Transient {
		return "transient"
	}
	return "permanent"
}

type Error struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s provider error (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s provider error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPError turns an HTTP status into a provider error of the right kind.
// 5xx and 429 are retryable; everything else in the 4xx range is a
// definitive provider decision.
func HTTPError(op string, status int, body []byte) *Error {
	kind := Permanent
	if status >= 500 || status == 429 {
		kind = Transient
	}
	return &Error{Kind: kind, Op: op, StatusCode: status, Err: fmt.Errorf("%s", truncate(body, 256))}
}

// TransportError wraps a transport-level failure as transient. Context
// cancellation is passed through untouched so callers can distinguish their
// own cancellation from the provider misbehaving.
func TransportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &Error{Kind: Transient, Op: op, Err: err}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == Transient
}
