// Package apperr defines the error taxonomy shared by the client engine.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Wrap them with fmt.Errorf("...: %w") or HTTPError.
var (
	// ErrAuth means the token is missing or was rejected; the user must log in again.
	ErrAuth = errors.New("authentication required")
	// ErrNotFound means the backend answered 404; screens render it as "no results".
	ErrNotFound = errors.New("not found")
	// ErrNetwork means no usable response reached us (transport error or timeout).
	ErrNetwork = errors.New("network unavailable")
	// ErrPersistence means the local key-value store failed.
	ErrPersistence = errors.New("local storage failure")
	// ErrPartialBatch marks a single failed item inside a batch.
	ErrPartialBatch = errors.New("batch item failed")
)

// Kind is a coarse error class carried in view models.
type Kind string

// Kind constants.
const (
	KindNone        Kind = ""
	KindAuth        Kind = "auth"
	KindNotFound    Kind = "not_found"
	KindNetwork     Kind = "network"
	KindPersistence Kind = "persistence"
	KindServer      Kind = "server"
	KindCanceled    Kind = "canceled"
)

// Retryable reports whether a manual retry can help.
func (k Kind) Retryable() bool {
	return k == KindNetwork || k == KindServer
}

// HTTPError is a non-2xx answer from the backend.
type HTTPError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: http status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: http status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap maps 401/403 to ErrAuth and 404 to ErrNotFound.
func (e *HTTPError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// KindOf classifies err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAuth):
		return KindAuth
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	default:
		return KindServer
	}
}

// Network wraps a transport failure so errors.Is(err, ErrNetwork) holds
// while keeping the cause.
func Network(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrNetwork, err)
}
