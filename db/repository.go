package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RunRecord is a row of batch_runs.
type RunRecord struct {
	RunID           string
	Provider        string
	StartedAt       time.Time
	Duration        time.Duration
	PromptCount     int
	WorkerCount     int
	SuccessCount    int
	FailedCount     int
	RemainingCount  int // -1 when the ledger could not be re-read
	BreakersTripped int
}

// AttemptRow is a row of prompt_attempts.
type AttemptRow struct {
	ID           int64
	RunID        string
	WorkerID     int
	Prompt       string
	TokenName    string
	Attempt      int
	Outcome      string // success, api_error, transport_error
	APIErrorKind string // rate_limited, unauthorized, other; empty unless Outcome is api_error
	Message      string
	Images       int
	DurationMS   int64
}

// PromptResultRow is a row of prompt_results.
type PromptResultRow struct {
	ID       int64
	RunID    string
	WorkerID int
	Prompt   string
	Status   string
	Reason   string
	Attempts int
	Images   int
}

// Repository reads and writes the history tables.
//
// Attempt and prompt rows go through the AsyncWriter when one is running,
// falling back to a synchronous insert when its buffer is full. Run rows are
// always written synchronously.
type Repository struct {
	db          *Database
	asyncWriter *AsyncWriter
}

// NewRepository creates a Repository. asyncWriter may be nil.
func NewRepository(db *Database, asyncWriter *AsyncWriter) *Repository {
	return &Repository{db: db, asyncWriter: asyncWriter}
}

const insertRunQuery = `
	INSERT OR REPLACE INTO batch_runs (
		run_id, provider, started_at_ms, duration_ms, prompt_count, worker_count,
		success_count, failed_count, remaining_count, breakers_tripped
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertAttemptQuery = `
	INSERT INTO prompt_attempts (
		run_id, worker_id, prompt, token_name, attempt, outcome,
		api_error_kind, message, images, duration_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertPromptResultQuery = `
	INSERT INTO prompt_results (
		run_id, worker_id, prompt, status, reason, attempts, images
	) VALUES (?, ?, ?, ?, ?, ?, ?)`

// InsertRun writes (or replaces) a run row.
func (r *Repository) InsertRun(ctx context.Context, run RunRecord) error {
	if r.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	_, err := r.db.ExecContext(ctx, insertRunQuery,
		run.RunID,
		run.Provider,
		run.StartedAt.UnixMilli(),
		run.Duration.Milliseconds(),
		run.PromptCount,
		run.WorkerCount,
		run.SuccessCount,
		run.FailedCount,
		run.RemainingCount,
		run.BreakersTripped,
	)
	if err != nil {
		return fmt.Errorf("failed to insert batch run: %w", err)
	}
	return nil
}

// InsertAttempt records one attempt.
func (r *Repository) InsertAttempt(ctx context.Context, row AttemptRow) error {
	return r.insert(ctx, "prompt attempt", insertAttemptQuery,
		row.RunID,
		row.WorkerID,
		row.Prompt,
		row.TokenName,
		row.Attempt,
		row.Outcome,
		nullString(row.APIErrorKind),
		nullString(row.Message),
		row.Images,
		row.DurationMS,
	)
}

// InsertPromptResult records how a prompt ended.
func (r *Repository) InsertPromptResult(ctx context.Context, row PromptResultRow) error {
	return r.insert(ctx, "prompt result", insertPromptResultQuery,
		row.RunID,
		row.WorkerID,
		row.Prompt,
		row.Status,
		nullString(row.Reason),
		row.Attempts,
		row.Images,
	)
}

func (r *Repository) insert(ctx context.Context, what, query string, args ...interface{}) error {
	if r.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	if r.asyncWriter != nil && r.asyncWriter.IsStarted() {
		if r.asyncWriter.Write(asyncInsertOp{query: query, args: args}) {
			return nil
		}
		// buffer full: fall through to a synchronous write
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert %s: %w", what, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (r *Repository) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if r.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, provider, started_at_ms, duration_ms, prompt_count, worker_count,
		       success_count, failed_count, remaining_count, breakers_tripped
		FROM batch_runs
		ORDER BY started_at_ms DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			run        RunRecord
			startedMS  int64
			durationMS int64
		)
		if err := rows.Scan(&run.RunID, &run.Provider, &startedMS, &durationMS,
			&run.PromptCount, &run.WorkerCount, &run.SuccessCount, &run.FailedCount,
			&run.RemainingCount, &run.BreakersTripped); err != nil {
			return nil, fmt.Errorf("failed to scan batch run: %w", err)
		}
		run.StartedAt = time.UnixMilli(startedMS)
		run.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batch runs: %w", err)
	}
	return runs, nil
}

// AttemptsForRun returns every attempt of a run in insertion order.
func (r *Repository) AttemptsForRun(ctx context.Context, runID string) ([]AttemptRow, error) {
	if r.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, run_id, worker_id, prompt, token_name, attempt, outcome,
		       api_error_kind, message, images, duration_ms
		FROM prompt_attempts
		WHERE run_id = ?
		ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt attempts: %w", err)
	}
	defer rows.Close()

	var out []AttemptRow
	for rows.Next() {
		var (
			row     AttemptRow
			apiKind sql.NullString
			message sql.NullString
		)
		if err := rows.Scan(&row.ID, &row.RunID, &row.WorkerID, &row.Prompt, &row.TokenName,
			&row.Attempt, &row.Outcome, &apiKind, &message, &row.Images, &row.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan prompt attempt: %w", err)
		}
		row.APIErrorKind = apiKind.String
		row.Message = message.String
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prompt attempts: %w", err)
	}
	return out, nil
}

// PromptResultsForRun returns every prompt result of a run in insertion order.
func (r *Repository) PromptResultsForRun(ctx context.Context, runID string) ([]PromptResultRow, error) {
	if r.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, run_id, worker_id, prompt, status, reason, attempts, images
		FROM prompt_results
		WHERE run_id = ?
		ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt results: %w", err)
	}
	defer rows.Close()

	var out []PromptResultRow
	for rows.Next() {
		var (
			row    PromptResultRow
			reason sql.NullString
		)
		if err := rows.Scan(&row.ID, &row.RunID, &row.WorkerID, &row.Prompt, &row.Status,
			&reason, &row.Attempts, &row.Images); err != nil {
			return nil, fmt.Errorf("failed to scan prompt result: %w", err)
		}
		row.Reason = reason.String
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prompt results: %w", err)
	}
	return out, nil
}

// CountAttempts returns the total number of recorded attempts.
func (r *Repository) CountAttempts(ctx context.Context) (int64, error) {
	if r.db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}
	row, err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM prompt_attempts")
	if err != nil {
		return 0, err
	}
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count prompt attempts: %w", err)
	}
	return count, nil
}

// asyncInsertOp is the payload queued on the AsyncWriter.
type asyncInsertOp struct {
	query string
	args  []interface{}
}

// CreateAsyncWriteHandler returns the WriteHandler that applies asyncInsertOp.
func (r *Repository) CreateAsyncWriteHandler() WriteHandler {
	return func(op WriteOperation) error {
		insertOp, ok := op.Data.(asyncInsertOp)
		if !ok {
			return fmt.Errorf("invalid operation type: expected asyncInsertOp")
		}
		_, err := r.db.ExecContext(context.Background(), insertOp.query, insertOp.args...)
		return err
	}
}

// nullString stores empty strings as NULL.
func nullString(s string) interface{} {
	if s == "" {
		return sql.NullString{}
	}
	return s
}
