package batch

import (
	"context"
	"fmt"
	"time"

	"go_batchgen/imagegen"
	"go_batchgen/logging"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Orchestrator partitions a prompt list across workers, runs them
// concurrently and merges their results.
//
// Thread-Safety:
//   - Run may be called concurrently; runs share the pool cursor, the client
//     and the ledger, all of which are safe for concurrent use
//   - a worker whose breaker trips never cancels its siblings
type Orchestrator struct {
	pool     TokenSource
	client   imagegen.Client
	sink     imagegen.ImageSink
	ledger   Ledger
	recorder Recorder
	logger   *logging.Logger
	config   WorkerConfig
}

// Dependencies groups the collaborators an Orchestrator needs.
type Dependencies struct {
	Pool     TokenSource
	Client   imagegen.Client
	Sink     imagegen.ImageSink
	Ledger   Ledger
	Recorder Recorder // optional
	Logger   *logging.Logger
}

// NewOrchestrator validates deps and returns an orchestrator.
func NewOrchestrator(deps Dependencies, config WorkerConfig) (*Orchestrator, error) {
	if deps.Pool == nil {
		return nil, fmt.Errorf("batch: pool cannot be nil")
	}
	if deps.Client == nil {
		return nil, fmt.Errorf("batch: client cannot be nil")
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("batch: sink cannot be nil")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("batch: ledger cannot be nil")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("batch: logger cannot be nil")
	}
	if deps.Recorder == nil {
		deps.Recorder = NopRecorder{}
	}

	return &Orchestrator{
		pool:     deps.Pool,
		client:   deps.Client,
		sink:     deps.Sink,
		ledger:   deps.Ledger,
		recorder: deps.Recorder,
		logger:   deps.Logger.Named("orchestrator"),
		config:   config,
	}, nil
}

// Run processes prompts with up to workerCount workers and blocks until all
// of them are done.
//
// workerCount is clamped to [1, len(prompts)]. Prompt i goes to worker
// i mod workerCount. The only error is ErrNoPrompts; once workers are
// launched every fault is reported through the Summary.
func (o *Orchestrator) Run(ctx context.Context, prompts []string, workerCount int) (Summary, error) {
	if len(prompts) == 0 {
		return Summary{}, ErrNoPrompts
	}
	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > len(prompts) {
		workerCount = len(prompts)
	}

	runID := uuid.NewString()
	started := time.Now()
	log := o.logger.With(zap.String("run_id", runID))

	log.Info("batch started",
		zap.Int("prompts", len(prompts)),
		zap.Int("workers", workerCount),
		zap.Int("tokens", o.pool.Len()))

	slices := Partition(prompts, workerCount)
	results := make([]WorkerResult, workerCount)

	var g errgroup.Group
	for i := range slices {
		worker := NewWorker(i, runID, o.pool, o.client, o.sink, o.ledger, o.recorder, log, o.config)
		g.Go(func() error {
			results[i] = worker.Run(ctx, slices[i])
			return results[i].Err
		})
	}
	if err := g.Wait(); err != nil {
		// the failed worker's prompts are already in its result
		log.Error("worker failed", zap.Error(err))
	}

	summary := Aggregate(results)
	summary.RunID = runID
	summary.PromptCount = len(prompts)
	summary.WorkerCount = workerCount
	summary.StartedAt = started
	summary.Duration = time.Since(started)

	remaining, err := o.ledger.Count()
	if err != nil {
		log.Warn("failed to re-read prompt ledger", zap.Error(err))
		remaining = -1
	}
	summary.RemainingPromptCount = remaining

	o.recorder.RecordRun(summary)

	log.Info("batch finished",
		zap.Int("succeeded", summary.SuccessCount),
		zap.Int("failed", summary.FailedCount),
		zap.Int("images", len(summary.Images)),
		zap.Int("remaining", summary.RemainingPromptCount),
		zap.Int("breakers_tripped", summary.BreakersTripped),
		zap.Duration("duration", summary.Duration))

	return summary, nil
}

// Aggregate sums counts and concatenates lists across worker results.
func Aggregate(results []WorkerResult) Summary {
	var s Summary
	for _, r := range results {
		s.SuccessCount += r.SuccessCount
		s.FailedCount += r.FailedCount
		s.Images = append(s.Images, r.SavedImagePaths...)
		s.CompletedPrompts = append(s.CompletedPrompts, r.CompletedPrompts...)
		s.FailedPrompts = append(s.FailedPrompts, r.FailedPrompts...)
		if r.BreakerTripped {
			s.BreakersTripped++
		}
	}
	s.Workers = results
	return s
}
