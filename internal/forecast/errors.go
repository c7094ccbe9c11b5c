package forecast

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when deployment context needed by the run is missing.
	ErrConfiguration = errors.New("configuration error")
	// ErrSecretNotFound is returned when a named secret is missing or inaccessible.
	ErrSecretNotFound = errors.New("secret not found")
	// ErrTransport is returned on network failure talking to the forecast API.
	ErrTransport = errors.New("transport error")
	// ErrUpstream is returned when the forecast API answers with a non-2xx status.
	ErrUpstream = errors.New("upstream error")
	// ErrMalformedResponse is returned when series do not line up.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrLoad is returned when the warehouse rejects the batch.
	ErrLoad = errors.New("load error")
	// ErrRunInProgress is returned when a refresh is triggered while another is running.
	ErrRunInProgress = errors.New("refresh already in progress")
)

// UpstreamError carries the failing status of a forecast API call.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream error: status %d: %s", e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return ErrUpstream
}

// RunError reports where a pipeline run failed.
type RunError struct {
	RunID    string
	State    State
	Location string
	Err      error
}

func (e *RunError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("refresh %s failed while %s (%s): %v", e.RunID, e.State, e.Location, e.Err)
	}
	return fmt.Sprintf("refresh %s failed while %s: %v", e.RunID, e.State, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Malformed builds an ErrMalformedResponse with context.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}
