package batch

import (
	"time"

	"go_batchgen/imagegen"
)

// AttemptRecord describes one Generate call.
type AttemptRecord struct {
	RunID     string
	WorkerID  int
	Prompt    string
	TokenName string
	Attempt   int // 1-based within the prompt
	Outcome   imagegen.Outcome
	Images    int // images saved from this attempt
	Duration  time.Duration
	At        time.Time
}

// PromptRecord describes how one prompt ended.
type PromptRecord struct {
	RunID    string
	WorkerID int
	Prompt   string
	Status   PromptStatus
	Reason   string
	Attempts int
	Images   int
}

// Recorder observes a run. Implementations must be safe for concurrent use;
// every worker calls them from its own goroutine.
type Recorder interface {
	RecordAttempt(rec AttemptRecord)
	RecordPrompt(rec PromptRecord)
	RecordRun(summary Summary)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordAttempt(AttemptRecord) {}
func (NopRecorder) RecordPrompt(PromptRecord)   {}
func (NopRecorder) RecordRun(Summary)           {}

// MultiRecorder fans out to several recorders in order. Nil entries are skipped.
type MultiRecorder []Recorder

// NewMultiRecorder drops nil recorders.
func NewMultiRecorder(recorders ...Recorder) MultiRecorder {
	out := make(MultiRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m MultiRecorder) RecordAttempt(rec AttemptRecord) {
	for _, r := range m {
		r.RecordAttempt(rec)
	}
}

func (m MultiRecorder) RecordPrompt(rec PromptRecord) {
	for _, r := range m {
		r.RecordPrompt(rec)
	}
}

func (m MultiRecorder) RecordRun(summary Summary) {
	for _, r := range m {
		r.RecordRun(summary)
	}
}

var (
	_ Recorder = NopRecorder{}
	_ Recorder = MultiRecorder(nil)
)
