package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActivity is returned when the remote platform has no activity to sync.
	ErrNoActivity = errors.New("no activity found")
	// ErrRecordNotFound is returned when an update or delete targets a missing row.
	ErrRecordNotFound = errors.New("record not found")
	// ErrMalformedActivity is returned when an upstream record lacks its identifier.
	ErrMalformedActivity = errors.New("activity record missing id")
)

// ConfigurationError reports a required setting that is absent. The sync
// feature is disabled while it is outstanding.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("activity sync disabled: %s is not configured", e.Setting)
}

// UpstreamAuthError reports a rejected credential exchange.
type UpstreamAuthError struct {
	Status int
	Body   string
}

func (e *UpstreamAuthError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("token exchange rejected (status %d): %s", e.Status, e.Body)
	}
	return fmt.Sprintf("token exchange rejected (status %d)", e.Status)
}

// UpstreamFetchError reports a failed call to the remote activity API, either a
// transport failure (Status 0) or a 4xx/5xx response.
type UpstreamFetchError struct {
	Status int
	Body   string
	URL    string
	Err    error
}

func (e *UpstreamFetchError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	case e.Body != "":
		return fmt.Sprintf("fetch %s failed (status %d): %s", e.URL, e.Status, e.Body)
	default:
		return fmt.Sprintf("fetch %s failed (status %d)", e.URL, e.Status)
	}
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

// UpstreamTimeoutError reports a remote call that exceeded its deadline.
type UpstreamTimeoutError struct {
	Op  string
	Err error
}

func (e *UpstreamTimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
}

func (e *UpstreamTimeoutError) Unwrap() error { return e.Err }

// IsUpstream reports whether err originates from the remote platform (auth,
// fetch or timeout).
func IsUpstream(err error) bool {
	var (
		authErr    *UpstreamAuthError
		fetchErr   *UpstreamFetchError
		timeoutErr *UpstreamTimeoutError
	)
	return errors.As(err, &authErr) || errors.As(err, &fetchErr) || errors.As(err, &timeoutErr)
}

// ValidationError describes invalid caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}
