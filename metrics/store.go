// Package metrics provides the Store organism for in-memory run statistics.
// This file contains the Store which implements the Collector interface.
package metrics

import (
	"sort"
	"sync"

	"go_batchgen/batch"
	"go_batchgen/imagegen"
)

// Store is an in-memory Collector.
//
// This is an organism-level component that composes:
// - a circular buffer of recent attempts
// - per-token TokenStats keyed by token name
// - sync.RWMutex for thread-safety
//
// Usage:
//
//	store := NewStore(DefaultStoreConfig())
//	orchestrator, _ := batch.NewOrchestrator(batch.Dependencies{Recorder: store, ...}, cfg)
//	...
//	for _, s := range store.TokenSnapshot() { ... }
type Store struct {
	mu sync.RWMutex

	// Attempt history
	history []AttemptEntry // circular buffer
	histCap int
	head    int // write index
	size    int

	tokens map[string]*TokenStats
	totals PromptTotals
	runs   int64
}

// StoreConfig configures the Store.
type StoreConfig struct {
	// HistoryCapacity is the max number of attempts to retain
	HistoryCapacity int
}

// DefaultStoreConfig returns a default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{HistoryCapacity: 100}
}

// NewStore creates an empty Store.
func NewStore(config StoreConfig) *Store {
	capacity := config.HistoryCapacity
	if capacity < 1 {
		capacity = 100
	}
	return &Store{
		history: make([]AttemptEntry, capacity),
		histCap: capacity,
		tokens:  make(map[string]*TokenStats),
	}
}

// RecordAttempt implements batch.Recorder.
func (s *Store) RecordAttempt(rec batch.AttemptRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome := rec.Outcome.Label()
	if rec.Outcome.Kind == imagegen.OutcomeSuccess && rec.Images == 0 {
		outcome = "no_images"
	}

	s.history[s.head] = AttemptEntry{
		WorkerID:  rec.WorkerID,
		Prompt:    rec.Prompt,
		TokenName: rec.TokenName,
		Outcome:   outcome,
		Message:   rec.Outcome.Message,
		Duration:  rec.Duration,
		At:        rec.At,
	}
	s.head = (s.head + 1) % s.histCap
	if s.size < s.histCap {
		s.size++
	}

	stats, ok := s.tokens[rec.TokenName]
	if !ok {
		stats = &TokenStats{TokenName: rec.TokenName}
		s.tokens[rec.TokenName] = stats
	}
	stats.Attempts++
	stats.TotalDuration += rec.Duration

	switch rec.Outcome.Kind {
	case imagegen.OutcomeSuccess:
		if rec.Images > 0 {
			stats.Successes++
		} else {
			stats.EmptyResponses++
		}
	case imagegen.OutcomeTransportError:
		stats.TransportErrors++
	case imagegen.OutcomeAPIError:
		switch rec.Outcome.ErrorKind {
		case imagegen.APIErrorRateLimited:
			stats.RateLimited++
		case imagegen.APIErrorUnauthorized:
			stats.Unauthorized++
		default:
			stats.OtherErrors++
		}
	}
}

// RecordPrompt implements batch.Recorder.
func (s *Store) RecordPrompt(rec batch.PromptRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch rec.Status {
	case batch.PromptSucceeded:
		s.totals.Succeeded++
	case batch.PromptAbandoned:
		s.totals.Abandoned++
	case batch.PromptSkipped:
		s.totals.Skipped++
	}
}

// RecordRun implements batch.Recorder.
func (s *Store) RecordRun(batch.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
}

// Runs returns how many runs have been recorded.
func (s *Store) Runs() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs
}

// TokenSnapshot returns a copy of the per-token stats sorted by name.
func (s *Store) TokenSnapshot() []TokenStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TokenStats, 0, len(s.tokens))
	for _, stats := range s.tokens {
		out = append(out, *stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenName < out[j].TokenName })
	return out
}

// Totals returns prompt counts by status.
func (s *Store) Totals() PromptTotals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totals
}

// RecentAttempts returns the N most recent attempts, oldest first.
// If limit exceeds available entries, all available are returned.
func (s *Store) RecentAttempts(limit int) []AttemptEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.size == 0 {
		return []AttemptEntry{}
	}
	if limit > s.size {
		limit = s.size
	}

	result := make([]AttemptEntry, limit)
	for i := 0; i < limit; i++ {
		idx := (s.head - limit + i + s.histCap) % s.histCap
		result[i] = s.history[idx]
	}
	return result
}

// Ensure Store implements Collector at compile time.
var _ Collector = (*Store)(nil)
