package kma

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError reports a non-200 upstream HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("typhoon info API: status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether a retry can plausibly succeed.
func (e *StatusError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// PayloadError reports a malformed or partial upstream payload. data.go.kr
// intermittently truncates responses under load, so these are transient.
type PayloadError struct {
	Reason string
	Err    error
}

func (e *PayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("typhoon info payload: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("typhoon info payload: %s", e.Reason)
}

func (e *PayloadError) Unwrap() error   { return e.Err }
func (e *PayloadError) Transient() bool { return true }

func payloadErr(reason string, err error) error {
	return &PayloadError{Reason: reason, Err: err}
}

// APIError reports a non-normal result code from the service envelope,
// e.g. an invalid or expired service key. Not retryable.
type APIError struct {
	Code string
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("typhoon info API: result %s: %s", e.Code, e.Msg)
}

func (e *APIError) Transient() bool { return false }

// transienter is implemented by errors that know their own retryability.
type transienter interface {
	Transient() bool
}

// IsTransient classifies an upstream error for the retry layer. Errors that
// do not self-classify (transport failures, timeouts) default to transient.
func IsTransient(err error) bool {
	var t transienter
	if errors.As(err, &t) {
		return t.Transient()
	}
	return true
}
