package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-forecast-etl/internal/forecast"
)

// RequestObserver is notified after every upstream request. Status is 0 when
// the request never got a response.
type RequestObserver interface {
	ObserveRequest(provider string, status int, elapsed time.Duration)
}

var errNoHTTPClient = errors.New("http client not configured")

// maxErrorBody bounds how much of a failed response is kept for the error message.
const maxErrorBody = 512

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: reachedUpstream,
	})
}

// reachedUpstream reports whether err counts as a success for the breaker.
// Network failures and 5xx answers trip it; 4xx answers do not.
func reachedUpstream(err error) bool {
	if err == nil {
		return true
	}
	var upstream *forecast.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode >= 400 && upstream.StatusCode < 500
	}
	return false
}

// doRequest executes req exactly once through the circuit breaker.
// Network failures and an open breaker map to forecast.ErrTransport,
// non-2xx answers to *forecast.UpstreamError.
func doRequest(
	ctx context.Context,
	provider string,
	client *http.Client,
	cb *gobreaker.CircuitBreaker,
	observer RequestObserver,
	req *http.Request,
) (*http.Response, error) {
	if client == nil {
		return nil, errNoHTTPClient
	}

	// Ensure the request obeys context cancellation.
	req = req.WithContext(ctx)

	start := time.Now()
	status := 0
	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := client.Do(req)
		if execErr != nil {
			return nil, fmt.Errorf("%w: %v", forecast.ErrTransport, execErr)
		}
		status = resp.StatusCode

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			resp.Body.Close()
			return nil, &forecast.UpstreamError{
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(body)),
			}
		}
		return resp, nil
	})
	if observer != nil {
		observer.ObserveRequest(provider, status, time.Since(start))
	}

	if err != nil {
		// If circuit is open, fail fast without touching the network. The
		// breaker only trips on network failures and 5xx answers.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s unavailable after repeated failures (circuit breaker %v)", forecast.ErrTransport, provider, err)
		}
		return nil, err
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return resp, nil
}
