// Package metrics provides the Collector interface for run statistics.
// This is a molecule that composes the atom-level types from types.go.
package metrics

import "go_batchgen/batch"

// Collector is a batch.Recorder that can also report what it saw.
//
// Implementations must be concurrency-safe: every worker of a run records
// into the same collector.
type Collector interface {
	batch.Recorder

	// TokenSnapshot returns per-token stats sorted by token name.
	TokenSnapshot() []TokenStats

	// Totals returns prompt counts by terminal status.
	Totals() PromptTotals

	// RecentAttempts returns up to limit of the most recent attempts, oldest first.
	RecentAttempts(limit int) []AttemptEntry
}
