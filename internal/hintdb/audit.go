package hintdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/hints"
)

// PruneConfidenceFloor is the confidence below which a stale hint is
// eligible for pruning. The comparison is strict: a hint sitting exactly at
// the floor survives.
const PruneConfidenceFloor = 0.3

// ─── Execution history ────────────────────────────────────────────────────────

// RecordHistory appends one execution record. History is append-only.
func (d *DB) RecordHistory(ctx context.Context, rec hints.HintHistory) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO hint_history (hint_id, executed_at, success, error_message, execution_time_ms, author_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.HintID, rec.ExecutedAt.UnixMilli(), boolToInt(rec.Success),
		nullableString(rec.ErrorMessage), nullableInt64(rec.ExecutionTimeMs),
		nullableString(rec.AuthorID),
	)
	if err != nil {
		return fmt.Errorf("hintdb: record history for %s: %w", rec.HintID, err)
	}
	return nil
}

// HistoryFor returns the most recent execution records for a hint.
func (d *DB) HistoryFor(ctx context.Context, hintID string, limit int) ([]hints.HintHistory, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT hint_id, executed_at, success, error_message, execution_time_ms, author_id
		FROM hint_history WHERE hint_id = ? ORDER BY executed_at DESC, id DESC LIMIT ?`,
		hintID, limit)
	if err != nil {
		return nil, fmt.Errorf("hintdb: query history for %s: %w", hintID, err)
	}
	defer rows.Close()

	var out []hints.HintHistory
	for rows.Next() {
		var (
			rec        hints.HintHistory
			executedAt int64
			success    int
			errMsg     sql.NullString
			execMs     sql.NullInt64
			author     sql.NullString
		)
		if err := rows.Scan(&rec.HintID, &executedAt, &success, &errMsg, &execMs, &author); err != nil {
			return nil, fmt.Errorf("hintdb: scan history: %w", err)
		}
		rec.ExecutedAt = time.UnixMilli(executedAt).UTC()
		rec.Success = success == 1
		rec.ErrorMessage = errMsg.String
		rec.ExecutionTimeMs = execMs.Int64
		rec.AuthorID = author.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hintdb: iterate history: %w", err)
	}
	return out, nil
}

// ─── Conflict audit ───────────────────────────────────────────────────────────

// RecordConflict appends one conflict-resolution audit record.
func (d *DB) RecordConflict(ctx context.Context, c hints.HintConflict) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO hint_conflicts (domain, path_pattern, hint_a, hint_b, resolution, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.Domain, nullableString(c.PathPattern), c.HintA, c.HintB,
		c.Resolution, c.ResolvedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("hintdb: record conflict %s vs %s: %w", c.HintA, c.HintB, err)
	}
	return nil
}

// ConflictsFor returns the conflict audit trail for a domain, newest first.
func (d *DB) ConflictsFor(ctx context.Context, domain string, limit int) ([]hints.HintConflict, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT domain, path_pattern, hint_a, hint_b, resolution, resolved_at
		FROM hint_conflicts WHERE domain = ? ORDER BY resolved_at DESC, id DESC LIMIT ?`,
		domain, limit)
	if err != nil {
		return nil, fmt.Errorf("hintdb: query conflicts for %s: %w", domain, err)
	}
	defer rows.Close()

	var out []hints.HintConflict
	for rows.Next() {
		var (
			c          hints.HintConflict
			pattern    sql.NullString
			resolvedAt int64
		)
		if err := rows.Scan(&c.Domain, &pattern, &c.HintA, &c.HintB, &c.Resolution, &resolvedAt); err != nil {
			return nil, fmt.Errorf("hintdb: scan conflict: %w", err)
		}
		c.PathPattern = pattern.String
		c.ResolvedAt = time.UnixMilli(resolvedAt).UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hintdb: iterate conflicts: %w", err)
	}
	return out, nil
}

// ─── Pruning ──────────────────────────────────────────────────────────────────

// PruneStaleHints deactivates active hints last used before cutoff whose
// confidence fell under PruneConfidenceFloor. Hints never used at all are
// kept unless includeNeverUsed, in which case their age is taken from
// created_at. Returns the number of hints deactivated.
func (d *DB) PruneStaleHints(ctx context.Context, cutoff time.Time, includeNeverUsed bool) (int64, error) {
	res, err := d.db.ExecContext(ctx, `
		UPDATE hints SET is_active = 0
		WHERE is_active = 1
		  AND confidence < ?1
		  AND (
			(last_used_at IS NOT NULL AND last_used_at < ?2)
			OR (?3 = 1 AND last_used_at IS NULL AND created_at < ?2)
		  )`,
		PruneConfidenceFloor, cutoff.UnixMilli(), boolToInt(includeNeverUsed),
	)
	if err != nil {
		return 0, fmt.Errorf("hintdb: prune stale hints: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("hintdb: prune stale hints: %w", err)
	}
	return n, nil
}

// ─── Statistics ───────────────────────────────────────────────────────────────

// Stats summarizes the repository for diagnostics.
type Stats struct {
	TotalHints    int            `json:"total_hints"`
	ActiveHints   int            `json:"active_hints"`
	InactiveHints int            `json:"inactive_hints"`
	Executions    int            `json:"executions"`
	AvgConfidence float64        `json:"avg_confidence"`
	PatternCounts map[string]int `json:"pattern_counts"`
}

// Stats counts hints and executions and averages active confidence.
func (d *DB) Stats(ctx context.Context) (*Stats, error) {
	s := &Stats{PatternCounts: make(map[string]int)}

	row := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(is_active), 0),
		       COALESCE(AVG(CASE WHEN is_active = 1 THEN confidence END), 0)
		FROM hints`)
	if err := row.Scan(&s.TotalHints, &s.ActiveHints, &s.AvgConfidence); err != nil {
		return nil, fmt.Errorf("hintdb: hint counts: %w", err)
	}
	s.InactiveHints = s.TotalHints - s.ActiveHints

	row = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM hint_history`)
	if err := row.Scan(&s.Executions); err != nil {
		return nil, fmt.Errorf("hintdb: execution count: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT pattern_type, COUNT(*) FROM hints WHERE is_active = 1 GROUP BY pattern_type`)
	if err != nil {
		return nil, fmt.Errorf("hintdb: pattern counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pattern string
		var count int
		if err := rows.Scan(&pattern, &count); err != nil {
			return nil, fmt.Errorf("hintdb: scan pattern count: %w", err)
		}
		s.PatternCounts[pattern] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hintdb: iterate pattern counts: %w", err)
	}
	return s, nil
}

// nullableInt64 maps 0 to NULL for optional measurements.
func nullableInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
