package db

import (
	"context"
	"fmt"
	"time"
)

// CleanupResult reports what Prune removed.
type CleanupResult struct {
	RunsDeleted          int64
	AttemptsDeleted      int64
	PromptResultsDeleted int64
	TotalDeleted         int64
	Duration             time.Duration
}

// retention-managed tables, all carrying created_at
var tablesToClean = []string{"prompt_attempts", "prompt_results", "batch_runs"}

// Prune deletes history rows older than retentionDays in one transaction and
// then VACUUMs. retentionDays == 0 deletes everything.
func (d *Database) Prune(ctx context.Context, retentionDays int) (CleanupResult, error) {
	start := time.Now()
	result := CleanupResult{}

	if retentionDays < 0 {
		return result, fmt.Errorf("retentionDays must be non-negative, got %d", retentionDays)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return result, fmt.Errorf("database connection is closed")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			tx.Rollback()
		}
	}()

	deleted := make(map[string]int64, len(tablesToClean))
	for _, table := range tablesToClean {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		// "<=" with "-0 days" makes a zero retention delete rows created this second
		query := fmt.Sprintf(
			"DELETE FROM %s WHERE created_at <= datetime('now', '-%d days')",
			table, retentionDays,
		)
		res, err := tx.ExecContext(ctx, query)
		if err != nil {
			return result, fmt.Errorf("failed to delete from %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return result, fmt.Errorf("failed to get rows affected for %s: %w", table, err)
		}
		deleted[table] = n
		result.TotalDeleted += n
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	result.AttemptsDeleted = deleted["prompt_attempts"]
	result.PromptResultsDeleted = deleted["prompt_results"]
	result.RunsDeleted = deleted["batch_runs"]

	if _, err := d.db.ExecContext(ctx, "VACUUM"); err != nil {
		result.Duration = time.Since(start)
		return result, fmt.Errorf("prune succeeded but VACUUM failed: %w", err)
	}

	result.Duration = time.Since(start)
	return result, nil
}
