package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/taskmesh/taskmesh/internal/learning"
)

// SavePattern upserts one learned pattern, keyed by its exact capability
// sequence.
func (s *SQLiteStore) SavePattern(ctx context.Context, p *learning.Pattern) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patterns (sequence, success_rate, avg_duration_ns, use_count, last_used, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(sequence) DO UPDATE SET
			success_rate = excluded.success_rate,
			avg_duration_ns = excluded.avg_duration_ns,
			use_count = excluded.use_count,
			last_used = excluded.last_used,
			updated_at = CURRENT_TIMESTAMP
	`, strings.Join(p.Sequence, ","), p.SuccessRate, int64(p.AvgDuration), p.UseCount, p.LastUsed)
	if err != nil {
		return fmt.Errorf("failed to upsert pattern: %w", err)
	}
	return nil
}

// LoadPatterns returns every stored pattern.
func (s *SQLiteStore) LoadPatterns(ctx context.Context) ([]*learning.Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, success_rate, avg_duration_ns, use_count, last_used
		FROM patterns
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*learning.Pattern
	for rows.Next() {
		var sequence string
		var durationNs int64
		var lastUsed time.Time
		p := &learning.Pattern{}
		if err := rows.Scan(&sequence, &p.SuccessRate, &durationNs, &p.UseCount, &lastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		p.Sequence = strings.Split(sequence, ",")
		p.AvgDuration = time.Duration(durationNs)
		p.LastUsed = lastUsed
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}
