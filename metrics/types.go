// Package metrics provides pure data types for per-run statistics.
// This file contains atom-level type definitions with no behavior beyond
// derived ratios.
package metrics

import "time"

// TokenStats aggregates every attempt made with one token during a run.
type TokenStats struct {
	// TokenName is the display label of the token
	TokenName string `json:"token_name"`

	Attempts        int64 `json:"attempts"`
	Successes       int64 `json:"successes"`
	RateLimited     int64 `json:"rate_limited"`
	Unauthorized    int64 `json:"unauthorized"`
	OtherErrors     int64 `json:"other_errors"`
	TransportErrors int64 `json:"transport_errors"`

	// EmptyResponses counts successful responses that produced no saved image
	EmptyResponses int64 `json:"empty_responses"`

	// TotalDuration is the summed wall time of all attempts
	TotalDuration time.Duration `json:"total_duration"`
}

// SuccessRate returns successes as a percentage of attempts (0-100).
func (s TokenStats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts) * 100
}

// AvgDuration returns the mean attempt duration.
func (s TokenStats) AvgDuration() time.Duration {
	if s.Attempts == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Attempts)
}

// PromptTotals counts prompts by terminal status.
type PromptTotals struct {
	Succeeded int64 `json:"succeeded"`
	Abandoned int64 `json:"abandoned"`
	Skipped   int64 `json:"skipped"`
}

// AttemptEntry is one row of the recent-attempt history.
type AttemptEntry struct {
	WorkerID  int           `json:"worker_id"`
	Prompt    string        `json:"prompt"`
	TokenName string        `json:"token_name"`
	Outcome   string        `json:"outcome"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration"`
	At        time.Time     `json:"at"`
}
