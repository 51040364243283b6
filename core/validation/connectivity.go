package validation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ConnectivityResult is the outcome of one reachability probe.
type ConnectivityResult struct {
	Reachable  bool
	StatusCode int
	Message    string
	Latency    time.Duration
	Error      error
}

// ConnectivityChecker probes the generation endpoint with a HEAD request.
// Any HTTP response counts as reachable; the endpoint is expected to reject
// an unauthenticated HEAD.
type ConnectivityChecker struct {
	client  *http.Client
	timeout time.Duration
}

// NewConnectivityChecker returns a checker with a 10 second timeout.
// client may be nil.
func NewConnectivityChecker(client *http.Client) *ConnectivityChecker {
	if client == nil {
		client = &http.Client{}
	}
	return &ConnectivityChecker{client: client, timeout: 10 * time.Second}
}

// WithTimeout sets the probe timeout.
func (c *ConnectivityChecker) WithTimeout(timeout time.Duration) *ConnectivityChecker {
	c.timeout = timeout
	return c
}

// CheckEndpoint validates endpoint and sends a HEAD request to it.
func (c *ConnectivityChecker) CheckEndpoint(ctx context.Context, endpoint string) ConnectivityResult {
	if err := ValidateEndpointURL(endpoint); err != nil {
		return ConnectivityResult{Message: "Invalid URL format", Error: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return ConnectivityResult{Message: "Failed to create request", Error: err}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ConnectivityResult{
				Message: "Connection timed out",
				Latency: latency,
				Error:   fmt.Errorf("%s: connection timed out after %v", endpoint, c.timeout),
			}
		}
		return ConnectivityResult{
			Message: "Connection failed",
			Latency: latency,
			Error:   fmt.Errorf("%s: %w", endpoint, err),
		}
	}
	resp.Body.Close()

	return ConnectivityResult{
		Reachable:  true,
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("Endpoint reachable (status: %d)", resp.StatusCode),
		Latency:    latency,
	}
}
