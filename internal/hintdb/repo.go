package hintdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/hints"
)

const hintColumns = `id, domain, path_pattern, url_hash, pattern_type, selector_guard,
	dom_fingerprint, recipe, description, context, success_count, failure_count,
	confidence, author_id, created_at, last_used_at, last_success_at, version,
	is_active, parent_hint_id, related_hints`

// ─── Writes ───────────────────────────────────────────────────────────────────

// InsertHint stores a new hint row. The hint must carry its derived ID,
// URLHash and CreatedAt; the caller owns those invariants.
func (d *DB) InsertHint(ctx context.Context, h *hints.Hint) error {
	recipe, err := json.Marshal(h.Recipe)
	if err != nil {
		return fmt.Errorf("hintdb: encode recipe: %w", err)
	}
	hctx, err := encodeContext(h.Context)
	if err != nil {
		return err
	}
	related, err := encodeRelated(h.RelatedHints)
	if err != nil {
		return err
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO hints (`+hintColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.Domain, nullableString(h.PathPattern), h.URLHash, string(h.PatternType),
		nullableString(h.SelectorGuard), nullableString(h.DOMFingerprint),
		string(recipe), h.Description, hctx, h.SuccessCount, h.FailureCount,
		h.Confidence, h.AuthorID, h.CreatedAt.UnixMilli(),
		nullableMillis(h.LastUsedAt), nullableMillis(h.LastSuccessAt),
		h.Version, boolToInt(h.IsActive), nullableString(h.ParentHintID), related,
	)
	if err != nil {
		return fmt.Errorf("hintdb: insert hint %s: %w", h.ID, err)
	}
	return nil
}

// DeactivateHint marks a hint inactive. Rows are never deleted; deactivated
// hints stay behind for lineage and audit queries.
func (d *DB) DeactivateHint(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, `UPDATE hints SET is_active = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("hintdb: deactivate hint %s: %w", id, err)
	}
	return nil
}

// UpdateHintStats applies one execution outcome to an active hint: the
// matching counter, last_used_at (and last_success_at on success) and the
// Laplace confidence all move in a single UPDATE, so no reader can observe
// counters and confidence out of step. Returns the updated hint, or nil
// when the id is unknown or inactive.
func (d *DB) UpdateHintStats(ctx context.Context, id string, success bool, now time.Time) (*hints.Hint, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("hintdb: begin stats update: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE hints SET
			success_count   = success_count + CASE WHEN ?1 = 1 THEN 1 ELSE 0 END,
			failure_count   = failure_count + CASE WHEN ?1 = 1 THEN 0 ELSE 1 END,
			confidence      = (success_count + CASE WHEN ?1 = 1 THEN 1 ELSE 0 END + 1.0)
			                  / (success_count + failure_count + 3.0),
			last_used_at    = ?2,
			last_success_at = CASE WHEN ?1 = 1 THEN ?2 ELSE last_success_at END
		WHERE id = ?3 AND is_active = 1`,
		boolToInt(success), now.UnixMilli(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("hintdb: update stats for %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("hintdb: update stats for %s: %w", id, err)
	}
	if affected == 0 {
		return nil, nil
	}

	updated, err := getHint(ctx, tx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("hintdb: commit stats update: %w", err)
	}
	return updated, nil
}

// ─── Reads ────────────────────────────────────────────────────────────────────

// HintByID returns an active hint by id, or nil when absent or inactive.
func (d *DB) HintByID(ctx context.Context, id string) (*hints.Hint, error) {
	return getHint(ctx, d.db, `WHERE id = ? AND is_active = 1`, id)
}

// ActiveHintByScope returns the active hint an author holds for a scope
// identity, or nil. Used by the save path to detect re-learned scopes.
func (d *DB) ActiveHintByScope(ctx context.Context, urlHash, authorID string) (*hints.Hint, error) {
	return getHint(ctx, d.db,
		`WHERE url_hash = ? AND author_id = ? AND is_active = 1 ORDER BY version DESC LIMIT 1`,
		urlHash, authorID)
}

// HintsByURLHash returns active hints whose scope hashes to urlHash, most
// confident first.
func (d *DB) HintsByURLHash(ctx context.Context, urlHash string, limit int) ([]hints.Hint, error) {
	return d.listHints(ctx,
		`WHERE url_hash = ? AND is_active = 1 ORDER BY confidence DESC LIMIT ?`,
		urlHash, limit)
}

// HintsByDomain returns active hints for a domain, most confident first.
func (d *DB) HintsByDomain(ctx context.Context, domain string, limit int) ([]hints.Hint, error) {
	return d.listHints(ctx,
		`WHERE domain = ? AND is_active = 1 ORDER BY confidence DESC LIMIT ?`,
		domain, limit)
}

func (d *DB) listHints(ctx context.Context, clause string, args ...any) ([]hints.Hint, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+hintColumns+` FROM hints `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("hintdb: query hints: %w", err)
	}
	defer rows.Close()

	var out []hints.Hint
	for rows.Next() {
		h, err := scanHint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hintdb: iterate hints: %w", err)
	}
	return out, nil
}

func getHint(ctx context.Context, q querier, clause string, args ...any) (*hints.Hint, error) {
	row := q.QueryRowContext(ctx, `SELECT `+hintColumns+` FROM hints `+clause, args...)
	h, err := scanHint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

// ─── Row mapping ──────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHint(row rowScanner) (*hints.Hint, error) {
	var (
		h             hints.Hint
		pathPattern   sql.NullString
		selectorGuard sql.NullString
		fingerprint   sql.NullString
		recipeJSON    string
		contextJSON   sql.NullString
		createdAt     int64
		lastUsedAt    sql.NullInt64
		lastSuccessAt sql.NullInt64
		isActive      int
		parentHintID  sql.NullString
		relatedJSON   sql.NullString
		patternType   string
	)
	err := row.Scan(
		&h.ID, &h.Domain, &pathPattern, &h.URLHash, &patternType, &selectorGuard,
		&fingerprint, &recipeJSON, &h.Description, &contextJSON, &h.SuccessCount,
		&h.FailureCount, &h.Confidence, &h.AuthorID, &createdAt, &lastUsedAt,
		&lastSuccessAt, &h.Version, &isActive, &parentHintID, &relatedJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("hintdb: scan hint: %w", err)
	}

	h.PathPattern = pathPattern.String
	h.PatternType = hints.PatternType(patternType)
	h.SelectorGuard = selectorGuard.String
	h.DOMFingerprint = fingerprint.String
	h.CreatedAt = time.UnixMilli(createdAt).UTC()
	h.LastUsedAt = timeOf(lastUsedAt)
	h.LastSuccessAt = timeOf(lastSuccessAt)
	h.IsActive = isActive == 1
	h.ParentHintID = parentHintID.String

	if err := json.Unmarshal([]byte(recipeJSON), &h.Recipe); err != nil {
		return nil, fmt.Errorf("hintdb: decode recipe for %s: %w", h.ID, err)
	}
	if contextJSON.Valid {
		h.Context = &hints.HintContext{}
		if err := json.Unmarshal([]byte(contextJSON.String), h.Context); err != nil {
			return nil, fmt.Errorf("hintdb: decode context for %s: %w", h.ID, err)
		}
	}
	if relatedJSON.Valid {
		if err := json.Unmarshal([]byte(relatedJSON.String), &h.RelatedHints); err != nil {
			return nil, fmt.Errorf("hintdb: decode related hints for %s: %w", h.ID, err)
		}
	}
	return &h, nil
}

func encodeContext(hc *hints.HintContext) (any, error) {
	if hc == nil {
		return nil, nil
	}
	data, err := json.Marshal(hc)
	if err != nil {
		return nil, fmt.Errorf("hintdb: encode context: %w", err)
	}
	return string(data), nil
}

func encodeRelated(ids []string) (any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("hintdb: encode related hints: %w", err)
	}
	return string(data), nil
}
