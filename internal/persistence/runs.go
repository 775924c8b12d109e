package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/taskmesh/taskmesh/internal/graph"
)

// RunRecord summarizes one orchestration run.
type RunRecord struct {
	ID                string
	Goal              string
	Success           bool
	TaskCount         int
	ConflictsDetected int
	ConflictsResolved int
	Duration          time.Duration
	StartedAt         time.Time
}

// SaveRun stores a run summary and the terminal state of each of its tasks
// in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec RunRecord, tasks []*graph.Task) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, goal, success, task_count, conflicts_detected, conflicts_resolved, duration_ns, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Goal, rec.Success, len(tasks), rec.ConflictsDetected, rec.ConflictsResolved, int64(rec.Duration), rec.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, t := range tasks {
		errStr := ""
		if t.Err != nil {
			errStr = t.Err.Error()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_tasks (run_id, task_id, name, capability, worker_id, status, retries, duration_ns, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, t.ID, t.Name, t.Capability, t.AssignedTo, t.Status.String(), t.RetryCount, int64(t.Actual), errStr)
		if err != nil {
			return fmt.Errorf("failed to insert run task %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListRuns returns run summaries, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, goal, success, task_count, conflicts_detected, conflicts_resolved, duration_ns, started_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var durationNs int64
		if err := rows.Scan(&rec.ID, &rec.Goal, &rec.Success, &rec.TaskCount,
			&rec.ConflictsDetected, &rec.ConflictsResolved, &durationNs, &rec.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rec.Duration = time.Duration(durationNs)
		records = append(records, rec)
	}
	return records, rows.Err()
}
