package batch

import (
	"context"
	"fmt"
	"time"

	"go_batchgen/imagegen"
	"go_batchgen/logging"

	"go.uber.org/zap"
)

// DefaultBreakerThreshold is the number of consecutive prompts that saw a
// rate-limited or unauthorized response before a worker stops.
const DefaultBreakerThreshold = 3

// WorkerConfig holds per-worker behaviour.
type WorkerConfig struct {
	// Delay is the pause between two prompts of the same worker. Attempts
	// within one prompt are not delayed.
	Delay time.Duration

	// BreakerThreshold defaults to DefaultBreakerThreshold when < 1.
	BreakerThreshold int

	// AspectRatio for every request (default: landscape).
	AspectRatio imagegen.AspectRatio

	// Seed, when set, is used for every attempt instead of a random one.
	Seed *int64
}

// Worker processes its slice of prompts strictly in order.
//
// For each prompt it makes up to max(1, pool size) attempts, drawing the next
// token from the shared pool for every attempt. A prompt succeeds on the first
// response that yields at least one saved image; the prompt is then removed
// from the ledger. A prompt that runs out of attempts is abandoned and stays
// in the ledger.
//
// Consecutive failed prompts that saw a rate-limited or unauthorized response
// at any attempt feed a streak; any other prompt, including a success after a
// rate-limited attempt, resets it. Once the streak reaches BreakerThreshold
// the worker skips the rest of its slice.
type Worker struct {
	id       int
	runID    string
	pool     TokenSource
	client   imagegen.Client
	sink     imagegen.ImageSink
	ledger   Ledger
	recorder Recorder
	logger   *logging.Logger
	config   WorkerConfig

	imageSeq int
}

// NewWorker creates a worker. recorder may be nil.
func NewWorker(id int, runID string, pool TokenSource, client imagegen.Client, sink imagegen.ImageSink,
	ledger Ledger, recorder Recorder, logger *logging.Logger, config WorkerConfig) *Worker {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if config.BreakerThreshold < 1 {
		config.BreakerThreshold = DefaultBreakerThreshold
	}
	if config.AspectRatio == "" {
		config.AspectRatio = imagegen.AspectLandscape
	}
	return &Worker{
		id:       id,
		runID:    runID,
		pool:     pool,
		client:   client,
		sink:     sink,
		ledger:   ledger,
		recorder: recorder,
		logger:   logger.Named("worker").With(zap.Int("worker_id", id)),
		config:   config,
	}
}

// ID returns the worker id.
func (w *Worker) ID() int {
	return w.id
}

// Run processes prompts and returns the accumulated result. It never panics
// and never returns early without accounting for every prompt: each one ends
// up in either CompletedPrompts or FailedPrompts, exactly once.
func (w *Worker) Run(ctx context.Context, prompts []string) (result WorkerResult) {
	result.WorkerID = w.id

	defer func() {
		if r := recover(); r != nil {
			// prompts are accounted in order, so the count is the resume index
			accounted := result.SuccessCount + result.FailedCount
			w.logger.Error("worker panicked",
				zap.String("panic", fmt.Sprint(r)),
				zap.Int("unfinished", len(prompts)-accounted))
			result.Err = fmt.Errorf("batch: worker %d panicked: %v", w.id, r)
			w.abandonAfterPanic(&result, prompts[accounted:])
		}
	}()

	w.logger.Debug("worker started", zap.Int("prompts", len(prompts)))

	streak := 0
	for i, prompt := range prompts {
		if i > 0 && !w.pause(ctx) {
			w.skipRemaining(&result, prompts[i:], ReasonCancelled)
			return result
		}
		if ctx.Err() != nil {
			w.skipRemaining(&result, prompts[i:], ReasonCancelled)
			return result
		}

		succeeded, hadAPIError := w.processPrompt(ctx, prompt, &result)
		if hadAPIError && !succeeded {
			streak++
		} else {
			streak = 0
		}

		if next := i + 1; streak >= w.config.BreakerThreshold && next < len(prompts) {
			w.logger.Warn("circuit breaker tripped, skipping remaining prompts",
				zap.Int("streak", streak),
				zap.Int("skipped", len(prompts)-next))
			result.BreakerTripped = true
			w.skipRemaining(&result, prompts[next:], ReasonBreakerTripped)
			return result
		}
	}

	w.logger.Info("worker finished",
		zap.Int("succeeded", result.SuccessCount),
		zap.Int("failed", result.FailedCount))
	return result
}

// processPrompt runs the attempt loop for one prompt. It reports whether the
// prompt succeeded and whether any attempt came back rate-limited or
// unauthorized.
func (w *Worker) processPrompt(ctx context.Context, prompt string, result *WorkerResult) (succeeded, hadAPIError bool) {
	maxAttempts := w.pool.Len()
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	req := imagegen.Request{
		Prompt:      prompt,
		AspectRatio: w.config.AspectRatio,
		Seed:        w.config.Seed,
	}
	req.Prepare()

	log := w.logger.With(zap.String("prompt", imagegen.TruncateText(prompt, 80)))
	reason := ReasonAttemptsExhausted
	attempts := 0

	for attempts < maxAttempts {
		token, ok := w.pool.Next()
		if !ok {
			reason = ReasonNoTokens
			log.Warn("no tokens available")
			break
		}

		start := time.Now()
		outcome := w.client.Generate(ctx, req, token)
		attempts++

		var paths []string
		if outcome.Kind == imagegen.OutcomeSuccess {
			paths = w.saveImages(log, outcome.Images)
		}

		w.recorder.RecordAttempt(AttemptRecord{
			RunID:     w.runID,
			WorkerID:  w.id,
			Prompt:    prompt,
			TokenName: token.Name,
			Attempt:   attempts,
			Outcome:   outcome,
			Images:    len(paths),
			Duration:  time.Since(start),
			At:        start,
		})

		if len(paths) > 0 {
			w.removeFromLedger(log, prompt)
			result.succeed(prompt, paths)
			w.recorder.RecordPrompt(PromptRecord{
				RunID: w.runID, WorkerID: w.id, Prompt: prompt,
				Status: PromptSucceeded, Attempts: attempts, Images: len(paths),
			})
			log.Info("prompt succeeded",
				zap.String("token_name", token.Name),
				zap.Int("attempt", attempts),
				zap.Int("images", len(paths)))
			return true, hadAPIError
		}

		if outcome.IsCredentialError() {
			hadAPIError = true
		}

		log.Warn("attempt failed",
			zap.String("token_name", token.Name),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", maxAttempts),
			zap.String("outcome", attemptLabel(outcome)),
			zap.String("detail", imagegen.TruncateText(outcome.Message, 200)))

		if ctx.Err() != nil {
			reason = ReasonCancelled
			break
		}
	}

	result.fail(prompt)
	w.recorder.RecordPrompt(PromptRecord{
		RunID: w.runID, WorkerID: w.id, Prompt: prompt,
		Status: PromptAbandoned, Reason: reason, Attempts: attempts,
	})
	log.Error("prompt abandoned", zap.String("reason", reason), zap.Int("attempts", attempts))
	return false, hadAPIError
}

// saveImages writes every image through the sink; failures are logged and
// skipped.
func (w *Worker) saveImages(log *logging.Logger, images [][]byte) []string {
	var paths []string
	for _, img := range images {
		w.imageSeq++
		path, err := w.sink.Save(img, imagegen.SuggestName(w.id, w.imageSeq))
		if err != nil {
			log.Error("failed to save image", zap.Error(err))
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

func (w *Worker) removeFromLedger(log *logging.Logger, prompt string) {
	removed, err := w.ledger.Remove(prompt)
	if err != nil {
		log.Warn("failed to remove prompt from ledger", zap.Error(err))
		return
	}
	if !removed {
		log.Debug("prompt already gone from ledger")
	}
}

func (w *Worker) skipRemaining(result *WorkerResult, prompts []string, reason string) {
	for _, p := range prompts {
		result.fail(p)
		w.recorder.RecordPrompt(PromptRecord{
			RunID: w.runID, WorkerID: w.id, Prompt: p,
			Status: PromptSkipped, Reason: reason,
		})
	}
}

// abandonAfterPanic fails the unaccounted prompts. The recorder may be what
// panicked, so a second panic while recording is contained here.
func (w *Worker) abandonAfterPanic(result *WorkerResult, prompts []string) {
	for _, p := range prompts {
		result.fail(p)
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("recorder panicked while recording abandoned prompts", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	for _, p := range prompts {
		w.recorder.RecordPrompt(PromptRecord{
			RunID: w.runID, WorkerID: w.id, Prompt: p,
			Status: PromptSkipped, Reason: ReasonWorkerPanic,
		})
	}
}

// pause waits for the inter-prompt delay. It returns false if ctx ends first.
func (w *Worker) pause(ctx context.Context) bool {
	if w.config.Delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(w.config.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func attemptLabel(o imagegen.Outcome) string {
	if o.Kind == imagegen.OutcomeSuccess {
		return "no_images"
	}
	return o.Label()
}
