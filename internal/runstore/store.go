package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"recflow/internal/workflow"
)

const runColumns = "run_id, batch_id, task, input, status, flagged, flag_reasons, failed_stage, error_kind, error_message, artifacts_json, final_path, log_path, started_at, duration_ms, recorded_at"

// Record stores outcome, replacing any earlier record for the same run ID.
// It satisfies workflow.OutcomeRecorder.
func (s *Store) Record(ctx context.Context, outcome workflow.RunOutcome) error {
	if strings.TrimSpace(outcome.RunID) == "" {
		return errors.New("record run: run id is required")
	}
	reasons, err := encodeJSON(outcome.Flag.Reasons)
	if err != nil {
		return fmt.Errorf("record run %s: encode flag reasons: %w", outcome.RunID, err)
	}
	artifacts, err := encodeJSON(outcome.Artifacts)
	if err != nil {
		return fmt.Errorf("record run %s: encode artifacts: %w", outcome.RunID, err)
	}
	started := outcome.StartedAt
	if started.IsZero() {
		started = time.Now()
	}

	err = s.execWithRetry(ctx,
		`INSERT OR REPLACE INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		outcome.RunID,
		nullableString(outcome.BatchID),
		outcome.Task,
		outcome.Input,
		string(outcome.Status),
		boolToInt(outcome.Flag.Flagged),
		reasons,
		nullableString(outcome.FailedStage),
		nullableString(outcome.ErrorKind),
		nullableString(outcome.ErrorMessage),
		artifacts,
		nullableString(outcome.FinalPath),
		nullableString(outcome.LogPath),
		formatTime(started),
		outcome.Duration.Milliseconds(),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", outcome.RunID, err)
	}
	return nil
}

// Get returns the run with the given ID, or nil when it was never recorded.
func (s *Store) Get(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return run, nil
}

// FindByPrefix returns runs whose ID starts with prefix, newest first.
func (s *Store) FindByPrefix(ctx context.Context, prefix string) ([]*Run, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, errors.New("find run: id prefix is required")
	}
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(prefix)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE run_id LIKE ? ESCAPE '\' ORDER BY started_at DESC`,
		escaped+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("find run %s: %w", prefix, err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// List returns recorded runs, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*Run, error) {
	var (
		clauses []string
		args    []any
	)
	if task := strings.TrimSpace(opts.Task); task != "" {
		clauses = append(clauses, "task = ? COLLATE NOCASE")
		args = append(args, task)
	}
	if batch := strings.TrimSpace(opts.BatchID); batch != "" {
		clauses = append(clauses, "batch_id = ?")
		args = append(args, batch)
	}
	if opts.FailedOnly {
		clauses = append(clauses, "status = ?")
		args = append(args, string(workflow.StatusFailed))
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY started_at DESC, run_id`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Stats counts recorded runs, optionally restricted to one task.
func (s *Store) Stats(ctx context.Context, task string) (Stats, error) {
	query := `SELECT status, flagged, COUNT(1) FROM runs`
	var args []any
	if task = strings.TrimSpace(task); task != "" {
		query += ` WHERE task = ? COLLATE NOCASE`
		args = append(args, task)
	}
	query += ` GROUP BY status, flagged`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Stats{}, fmt.Errorf("run stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var (
			status  string
			flagged int
			count   int
		)
		if err := rows.Scan(&status, &flagged, &count); err != nil {
			return Stats{}, err
		}
		stats.Total += count
		switch workflow.Status(status) {
		case workflow.StatusCompleted:
			stats.Completed += count
		case workflow.StatusFailed:
			stats.Failed += count
		}
		if flagged != 0 {
			stats.Flagged += count
		}
	}
	return stats, rows.Err()
}

// Prune deletes runs started before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, formatTime(cutoff))
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return removed, nil
}
