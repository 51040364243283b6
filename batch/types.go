// Package batch runs a finite prompt list through a pool of concurrent
// workers, each rotating credentials from a shared pool.
//
// types.go contains the data types shared by Worker and Orchestrator.
package batch

import (
	"errors"
	"time"

	"go_batchgen/credentials"
)

// ErrNoPrompts is returned by Orchestrator.Run for an empty prompt list.
var ErrNoPrompts = errors.New("batch: no prompts to process")

// TokenSource is the part of credentials.Pool a worker needs.
type TokenSource interface {
	Next() (credentials.Token, bool)
	Len() int
}

// Ledger is the durable prompt store. *ledger.Ledger satisfies it.
type Ledger interface {
	Remove(prompt string) (bool, error)
	Count() (int, error)
}

// PromptStatus is the terminal state of one prompt.
type PromptStatus string

const (
	PromptSucceeded PromptStatus = "succeeded"
	PromptAbandoned PromptStatus = "abandoned" // attempted until the budget ran out
	PromptSkipped   PromptStatus = "skipped"   // never attempted
)

// Reasons attached to failed prompts.
const (
	ReasonAttemptsExhausted = "attempts_exhausted"
	ReasonNoTokens          = "no_tokens"
	ReasonBreakerTripped    = "breaker_tripped"
	ReasonCancelled         = "cancelled"
	ReasonWorkerPanic       = "worker_panic"
)

// WorkerResult is accumulated by exactly one worker.
type WorkerResult struct {
	WorkerID         int
	SuccessCount     int
	FailedCount      int
	SavedImagePaths  []string
	CompletedPrompts []string
	FailedPrompts    []string
	BreakerTripped   bool

	// Err is set when the worker recovered from a panic. Its prompts are
	// still fully accounted for.
	Err error
}

func (r *WorkerResult) succeed(prompt string, paths []string) {
	r.SuccessCount++
	r.CompletedPrompts = append(r.CompletedPrompts, prompt)
	r.SavedImagePaths = append(r.SavedImagePaths, paths...)
}

func (r *WorkerResult) fail(prompt string) {
	r.FailedCount++
	r.FailedPrompts = append(r.FailedPrompts, prompt)
}

// Summary aggregates every WorkerResult of a run.
type Summary struct {
	RunID            string
	PromptCount      int
	WorkerCount      int
	SuccessCount     int
	FailedCount      int
	Images           []string
	CompletedPrompts []string
	FailedPrompts    []string

	// RemainingPromptCount is the ledger's pending count after the run,
	// or -1 when the ledger could not be re-read.
	RemainingPromptCount int

	BreakersTripped int
	StartedAt       time.Time
	Duration        time.Duration
	Workers         []WorkerResult
}

// Partition deals prompts round-robin: prompt i goes to bucket i mod n.
// n < 1 is treated as 1.
func Partition(prompts []string, n int) [][]string {
	if n < 1 {
		n = 1
	}
	buckets := make([][]string, n)
	for i, p := range prompts {
		buckets[i%n] = append(buckets[i%n], p)
	}
	return buckets
}
