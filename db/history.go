package db

import (
	"context"
	"fmt"
	"time"

	"go_batchgen/batch"
	"go_batchgen/imagegen"
	"go_batchgen/logging"

	"go.uber.org/zap"
)

// History bundles the database, its async writer and the repository, and
// exposes a batch.Recorder that writes into them.
//
// Usage:
//
//	history, err := OpenHistory("history.db", logger)
//	if err != nil {
//	    return err
//	}
//	defer history.Close()
//	recorder := history.Recorder("imagefx")
type History struct {
	database *Database
	writer   *AsyncWriter
	repo     *Repository
	logger   *logging.Logger
}

// OpenHistory opens and migrates path and starts the async writer.
func OpenHistory(path string, logger *logging.Logger) (*History, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("history")

	database, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	repo := NewRepository(database, nil)
	writer := NewAsyncWriterWithConfig(repo.CreateAsyncWriteHandler(), AsyncWriterConfig{
		ChannelCapacity: DefaultChannelCapacity,
		OnError: func(op WriteOperation, err error) {
			logger.Warn("history write failed", zap.Error(err))
		},
	})
	repo.asyncWriter = writer
	writer.Start()

	return &History{database: database, writer: writer, repo: repo, logger: logger}, nil
}

// Repository returns the history repository.
func (h *History) Repository() *Repository {
	return h.repo
}

// Recorder returns a batch.Recorder tagged with the provider name.
func (h *History) Recorder(provider string) batch.Recorder {
	return &historyRecorder{repo: h.repo, provider: provider, logger: h.logger}
}

// Close drains pending writes and closes the database.
func (h *History) Close() error {
	if !h.writer.Close(DefaultDrainTimeout) {
		h.logger.Warn("history writer did not drain in time", zap.Int("pending", h.writer.Pending()))
	}
	written, failed, dropped := h.writer.Stats()
	h.logger.Debug("history writer closed",
		zap.Int64("written", written),
		zap.Int64("failed", failed),
		zap.Int64("dropped", dropped),
		zap.Int64("written_inline", h.writer.Rejected()))
	return h.database.Close()
}

// historyRecorder maps batch records onto repository rows.
type historyRecorder struct {
	repo     *Repository
	provider string
	logger   *logging.Logger
}

func (r *historyRecorder) RecordAttempt(rec batch.AttemptRecord) {
	row := AttemptRow{
		RunID:      rec.RunID,
		WorkerID:   rec.WorkerID,
		Prompt:     rec.Prompt,
		TokenName:  rec.TokenName,
		Attempt:    rec.Attempt,
		Outcome:    rec.Outcome.Kind.String(),
		Message:    rec.Outcome.Message,
		Images:     rec.Images,
		DurationMS: rec.Duration.Milliseconds(),
	}
	if rec.Outcome.Kind == imagegen.OutcomeAPIError {
		row.APIErrorKind = rec.Outcome.ErrorKind.String()
	}
	if err := r.repo.InsertAttempt(context.Background(), row); err != nil {
		r.logger.Warn("failed to record attempt", zap.Error(err))
	}
}

func (r *historyRecorder) RecordPrompt(rec batch.PromptRecord) {
	row := PromptResultRow{
		RunID:    rec.RunID,
		WorkerID: rec.WorkerID,
		Prompt:   rec.Prompt,
		Status:   string(rec.Status),
		Reason:   rec.Reason,
		Attempts: rec.Attempts,
		Images:   rec.Images,
	}
	if err := r.repo.InsertPromptResult(context.Background(), row); err != nil {
		r.logger.Warn("failed to record prompt result", zap.Error(err))
	}
}

func (r *historyRecorder) RecordRun(s batch.Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	run := RunRecord{
		RunID:           s.RunID,
		Provider:        r.provider,
		StartedAt:       s.StartedAt,
		Duration:        s.Duration,
		PromptCount:     s.PromptCount,
		WorkerCount:     s.WorkerCount,
		SuccessCount:    s.SuccessCount,
		FailedCount:     s.FailedCount,
		RemainingCount:  s.RemainingPromptCount,
		BreakersTripped: s.BreakersTripped,
	}
	if err := r.repo.InsertRun(ctx, run); err != nil {
		r.logger.Warn("failed to record run", zap.Error(err))
	}
}

var _ batch.Recorder = (*historyRecorder)(nil)
