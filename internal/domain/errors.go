package domain

import "fmt"

// NotFoundError reports that a queried storm has no published data.
// It is user-correctable and never indicates an internal failure.
type NotFoundError struct {
	Resource string // e.g. "typhoon 2512"
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: no published data", e.Resource)
}

// ValidationError rejects malformed caller input before any fetch happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UpstreamUnavailableError surfaces after the fetch layer has exhausted
// retries and holds no cached value, stale or otherwise, for the key.
// Callers may retry later.
type UpstreamUnavailableError struct {
	Key string
	Err error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("upstream unavailable for %q: %v", e.Key, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error { return e.Err }
