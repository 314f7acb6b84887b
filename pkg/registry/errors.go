package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a crate the registry does not know.
	ErrNotFound = errors.New("crate not found")
	// ErrRateLimited reports an HTTP 429 from the registry.
	ErrRateLimited = errors.New("rate limited by registry")
	// ErrUpstreamDown reports registry server errors or an open circuit.
	ErrUpstreamDown = errors.New("registry unavailable")
)

// NotFoundError names the crate that was not found.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("crate %q not found on registry", e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StatusError is an unexpected HTTP status from the registry.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("registry returned status %d for %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("registry returned status %d for %s: %s", e.StatusCode, e.URL, e.Body)
}
