package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS patterns (
		sequence TEXT PRIMARY KEY,
		success_rate REAL NOT NULL,
		avg_duration_ns INTEGER NOT NULL,
		use_count INTEGER NOT NULL,
		last_used DATETIME,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		goal TEXT,
		success INTEGER NOT NULL,
		task_count INTEGER NOT NULL,
		conflicts_detected INTEGER NOT NULL,
		conflicts_resolved INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS run_tasks (
		run_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		name TEXT NOT NULL,
		capability TEXT NOT NULL,
		worker_id TEXT,
		status TEXT NOT NULL,
		retries INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		error TEXT,
		PRIMARY KEY (run_id, task_id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_run_tasks_run_id ON run_tasks(run_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
