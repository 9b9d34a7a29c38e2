// Package hintstore orchestrates the hint engine: validation and
// sanitization on the way in, retrieval, ranking and matcher policy on the
// way out, statistics and lifecycle in between. It owns no SQL; persistence
// is delegated to an injected hintdb repository.
package hintstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/hintdb"
	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/hints"
)

const (
	// DefaultHintLimit is the retrieval limit when a caller passes none.
	DefaultHintLimit = 5

	// DefaultPruneDays is the staleness horizon for pruning.
	DefaultPruneDays = 90

	// domainShareDivisor sizes the domain-wide slice of a retrieval:
	// roughly half the requested limit.
	domainShareDivisor = 2

	// Auto-deactivation fires when a hint has strictly more than
	// autoDeactivateFailures failures and confidence under
	// autoDeactivateConfidence.
	autoDeactivateFailures   = 10
	autoDeactivateConfidence = 0.2

	// conflictWinFactor is how decisively a challenger must outscore the
	// incumbent before it replaces it.
	conflictWinFactor = 1.5

	// duplicateScanLimit caps how many domain hints the save path inspects
	// for duplicate shapes.
	duplicateScanLimit = 50

	// qualityWarnFloor is the overall quality under which a save result
	// carries an advisory warning.
	qualityWarnFloor = 0.5

	// Advisory-mode ranking weights: a guard found in the DOM boosts a
	// hint, a missing guard demotes it without excluding it, and
	// fingerprint similarity scales between floor and 1.
	guardPresentBoost      = 1.25
	guardAbsentPenalty     = 0.5
	fingerprintWeightFloor = 0.5
)

// Store is the hint engine's front door. All state lives in the injected
// repository; the store itself is safe for concurrent use.
type Store struct {
	db       *hintdb.DB
	log      *slog.Logger
	authorID string
	policy   MatchPolicy

	pruneNeverUsed bool
	now            func() time.Time
}

// Options configures a Store.
type Options struct {
	// AuthorID identifies this instance in saved hints and history records.
	// Empty means "unknown".
	AuthorID string

	// Policy controls matcher strictness during DOM-aware retrieval.
	Policy MatchPolicy

	// PruneNeverUsed ages never-executed hints by creation time during
	// pruning instead of exempting them.
	PruneNeverUsed bool

	// Logger receives engine events; nil uses slog.Default.
	Logger *slog.Logger
}

// New builds a Store over an open repository.
func New(db *hintdb.DB, opts Options) *Store {
	if opts.AuthorID == "" {
		opts.AuthorID = "unknown"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:             db,
		log:            logger,
		authorID:       opts.AuthorID,
		policy:         opts.Policy,
		pruneNeverUsed: opts.PruneNeverUsed,
		now:            time.Now,
	}
}

// ─── Saving ───────────────────────────────────────────────────────────────────

// SaveResult reports a successful save.
type SaveResult struct {
	ID         string
	Superseded string
	Warnings   []string
	Quality    hints.QualityScore
}

// SaveHint validates, sanitizes and persists a candidate hint.
//
// A zero Confidence means "unset" and takes the default prior. When this
// author already holds an active hint for the same scope, the candidate
// must beat its confidence: equal or lower fails with a ConflictError,
// higher deactivates the old version and links the new one to it.
func (s *Store) SaveHint(ctx context.Context, candidate *hints.Hint) (*SaveResult, error) {
	h := *candidate
	if h.AuthorID == "" {
		h.AuthorID = s.authorID
	}
	if h.Confidence == 0 {
		h.Confidence = hints.DefaultConfidence
	}

	check := hints.ValidateHint(&h)
	if !check.Valid {
		return nil, &ValidationError{Errors: check.Errors}
	}

	h.Recipe = hints.SanitizeRecipe(h.Recipe)
	if h.CreatedAt.IsZero() {
		h.CreatedAt = s.now()
	}
	h.URLHash = hints.URLHash(h.Domain, h.PathPattern)
	h.ID = hints.HintID(h.Domain, h.PathPattern, h.AuthorID, h.CreatedAt)
	h.Version = 1
	h.IsActive = true

	res := &SaveResult{Warnings: check.Warnings}

	existing, err := s.db.ActiveHintByScope(ctx, h.URLHash, h.AuthorID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if h.Confidence <= existing.Confidence {
			return nil, &ConflictError{
				ExistingID:          existing.ID,
				ExistingConfidence:  existing.Confidence,
				ExistingDescription: existing.Description,
			}
		}
		if err := s.db.DeactivateHint(ctx, existing.ID); err != nil {
			return nil, err
		}
		h.ParentHintID = existing.ID
		h.Version = existing.Version + 1
		res.Superseded = existing.ID
		s.log.Info("superseding hint",
			"domain", h.Domain, "old", existing.ID,
			"old_confidence", existing.Confidence, "new_confidence", h.Confidence)
	}

	neighbors, err := s.db.HintsByDomain(ctx, h.Domain, duplicateScanLimit)
	if err != nil {
		return nil, err
	}
	neighbors = withoutScope(neighbors, h.URLHash, h.AuthorID)
	if hints.DetectDuplicates(&h, neighbors) {
		res.Warnings = append(res.Warnings, "a similar hint already exists for this domain")
	}

	res.Quality = hints.AssessQuality(&h)
	if res.Quality.Overall < qualityWarnFloor {
		res.Warnings = append(res.Warnings, fmt.Sprintf("quality score %.2f is low; add a selector guard, context or a clearer description", res.Quality.Overall))
	}

	if err := s.db.InsertHint(ctx, &h); err != nil {
		return nil, err
	}
	res.ID = h.ID

	s.log.Info("hint saved",
		"id", h.ID, "domain", h.Domain, "pattern_type", h.PatternType,
		"steps", len(h.Recipe), "version", h.Version)
	return res, nil
}

// withoutScope drops hints belonging to one author's scope identity from a
// candidate list, so a superseded version is not reported as a duplicate of
// its own successor.
func withoutScope(hs []hints.Hint, urlHash, authorID string) []hints.Hint {
	out := hs[:0]
	for _, h := range hs {
		if h.URLHash == urlHash && h.AuthorID == authorID {
			continue
		}
		out = append(out, h)
	}
	return out
}

// ─── Retrieval ────────────────────────────────────────────────────────────────

// Query shapes a retrieval beyond the plain GetHints form.
type Query struct {
	// URL is the page being automated. Required.
	URL string

	// Limit caps the result; zero means DefaultHintLimit.
	Limit int

	// ExactOnly skips the domain-wide merge and returns only hints whose
	// scope hashes to this exact URL.
	ExactOnly bool

	// MinConfidence drops hints under the floor; zero keeps everything.
	MinConfidence float64

	// PatternType keeps only one pattern type; empty keeps all.
	PatternType hints.PatternType

	// PathScoped drops hints whose path pattern does not match the URL.
	// Implied whenever DOM is set.
	PathScoped bool

	// DOM, when set, applies the matcher under the store's policy: path
	// patterns gate, selector guards gate or weigh depending on policy,
	// fingerprint similarity always weighs softly.
	DOM hints.DOM
}

// GetHints returns the best hints for a URL: exact scope matches merged
// with domain-wide candidates, ranked by Score.
func (s *Store) GetHints(ctx context.Context, rawURL string, limit int) ([]hints.Hint, error) {
	return s.Search(ctx, Query{URL: rawURL, Limit: limit})
}

// FindMatchingHints retrieves hints for a URL and applies the matcher
// against the supplied DOM under the configured policy. A nil DOM degrades
// to path-pattern filtering only.
func (s *Store) FindMatchingHints(ctx context.Context, rawURL string, dom hints.DOM, limit int) ([]hints.Hint, error) {
	return s.Search(ctx, Query{URL: rawURL, Limit: limit, DOM: dom, PathScoped: true})
}

// Search retrieves, filters and ranks hints for a query.
func (s *Store) Search(ctx context.Context, q Query) ([]hints.Hint, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultHintLimit
	}
	domain, path, err := splitURL(q.URL)
	if err != nil {
		return nil, err
	}

	exact, err := s.db.HintsByURLHash(ctx, hints.URLHash(domain, path), limit)
	if err != nil {
		return nil, err
	}
	merged := exact
	if !q.ExactOnly {
		domainLimit := limit / domainShareDivisor
		if domainLimit < 1 {
			domainLimit = 1
		}
		wide, err := s.db.HintsByDomain(ctx, domain, domainLimit)
		if err != nil {
			return nil, err
		}
		merged = mergeHints(exact, wide)
	}

	var pageFingerprint string
	if q.DOM != nil {
		pageFingerprint = hints.DOMFingerprint(q.DOM)
	}

	now := s.now()
	ranked := make([]rankedHint, 0, len(merged))
	for _, h := range merged {
		if q.MinConfidence > 0 && h.Confidence < q.MinConfidence {
			continue
		}
		if q.PatternType != "" && h.PatternType != q.PatternType {
			continue
		}

		// Scope is declarative: a hint for another path never applies.
		if (q.PathScoped || q.DOM != nil) && h.PathPattern != "" && !hints.MatchURL(q.URL, h.PathPattern) {
			continue
		}

		weight := 1.0
		if q.DOM != nil {
			if h.SelectorGuard != "" {
				switch {
				case q.DOM.QueryCount(h.SelectorGuard) > 0:
					weight *= guardPresentBoost
				case s.policy == MatchStrict:
					continue
				default:
					weight *= guardAbsentPenalty
				}
			}
			if h.DOMFingerprint != "" && pageFingerprint != "" {
				sim := hints.CompareFingerprints(h.DOMFingerprint, pageFingerprint)
				weight *= fingerprintWeightFloor + (1-fingerprintWeightFloor)*sim
			}
		}

		ranked = append(ranked, rankedHint{hint: h, score: Score(&h, now) * weight})
	}

	sortRanked(ranked)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]hints.Hint, len(ranked))
	for i, r := range ranked {
		out[i] = r.hint
	}
	return out, nil
}

type rankedHint struct {
	hint  hints.Hint
	score float64
}

// sortRanked orders by score, then confidence, then id for stability.
func sortRanked(hs []rankedHint) {
	sort.Slice(hs, func(i, j int) bool {
		if hs[i].score != hs[j].score {
			return hs[i].score > hs[j].score
		}
		if hs[i].hint.Confidence != hs[j].hint.Confidence {
			return hs[i].hint.Confidence > hs[j].hint.Confidence
		}
		return hs[i].hint.ID < hs[j].hint.ID
	})
}

// mergeHints concatenates two result sets, de-duplicating by id.
func mergeHints(a, b []hints.Hint) []hints.Hint {
	seen := make(map[string]bool, len(a))
	out := make([]hints.Hint, 0, len(a)+len(b))
	for _, h := range a {
		seen[h.ID] = true
		out = append(out, h)
	}
	for _, h := range b {
		if !seen[h.ID] {
			out = append(out, h)
		}
	}
	return out
}

// splitURL extracts the lowercase host and path of a page URL.
func splitURL(rawURL string) (domain, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("hintstore: parse url %q: %w", rawURL, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", "", fmt.Errorf("hintstore: url %q has no host", rawURL)
	}
	path = u.Path
	if path == "" {
		path = "/"
	}
	return host, path, nil
}

// ─── Statistics ───────────────────────────────────────────────────────────────

// UpdateHintStats applies an execution outcome: counters, confidence and
// timestamps move atomically, a history record is appended, and a hint that
// keeps failing is deactivated.
func (s *Store) UpdateHintStats(ctx context.Context, id string, report hints.ExecutionReport) (*hints.Hint, error) {
	now := s.now()
	updated, err := s.db.UpdateHintStats(ctx, id, report.Success, now)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, &NotFoundError{ID: id}
	}

	rec := hints.HintHistory{
		HintID:          id,
		Success:         report.Success,
		ErrorMessage:    report.ErrorMessage,
		ExecutionTimeMs: report.ExecutionTimeMs,
		ExecutedAt:      now,
		AuthorID:        s.authorID,
	}
	// History is diagnostics; the stats row is the source of truth.
	if err := s.db.RecordHistory(ctx, rec); err != nil {
		s.log.Warn("history append failed", "id", id, "error", err)
	}

	if updated.FailureCount > autoDeactivateFailures && updated.Confidence < autoDeactivateConfidence {
		if err := s.db.DeactivateHint(ctx, id); err != nil {
			return nil, err
		}
		updated.IsActive = false
		s.log.Info("hint auto-deactivated",
			"id", id, "failures", updated.FailureCount, "confidence", updated.Confidence)
	}
	return updated, nil
}

// ─── Conflict resolution ──────────────────────────────────────────────────────

// ResolveConflict arbitrates between the incumbent hint for a scope and an
// unpersisted challenger. The challenger wins only by outscoring the
// incumbent more than conflictWinFactor times; it is then inserted with the
// incumbent as parent and the incumbent is deactivated. Either way the
// outcome lands in the conflict audit trail.
func (s *Store) ResolveConflict(ctx context.Context, existing, challenger *hints.Hint) (*hints.Hint, error) {
	now := s.now()
	existingScore := Score(existing, now)
	challengerScore := Score(challenger, now)

	audit := hints.HintConflict{
		Domain:      existing.Domain,
		PathPattern: existing.PathPattern,
		HintA:       existing.ID,
		ResolvedAt:  now,
	}

	if challengerScore > existingScore*conflictWinFactor {
		promoted := *challenger
		if promoted.AuthorID == "" {
			promoted.AuthorID = s.authorID
		}
		if promoted.CreatedAt.IsZero() {
			promoted.CreatedAt = now
		}
		promoted.URLHash = hints.URLHash(promoted.Domain, promoted.PathPattern)
		if promoted.ID == "" {
			promoted.ID = hints.HintID(promoted.Domain, promoted.PathPattern, promoted.AuthorID, promoted.CreatedAt)
		}
		promoted.ParentHintID = existing.ID
		promoted.Version = existing.Version + 1
		promoted.IsActive = true

		if err := s.db.DeactivateHint(ctx, existing.ID); err != nil {
			return nil, err
		}
		if err := s.db.InsertHint(ctx, &promoted); err != nil {
			return nil, err
		}

		audit.HintB = promoted.ID
		audit.Resolution = hints.ResolutionSuperseded
		if err := s.db.RecordConflict(ctx, audit); err != nil {
			s.log.Warn("conflict audit failed", "domain", audit.Domain, "error", err)
		}
		s.log.Info("conflict resolved",
			"domain", existing.Domain, "winner", promoted.ID, "loser", existing.ID,
			"challenger_score", challengerScore, "existing_score", existingScore)
		return &promoted, nil
	}

	audit.HintB = challenger.ID
	audit.Resolution = hints.ResolutionRetained
	if err := s.db.RecordConflict(ctx, audit); err != nil {
		s.log.Warn("conflict audit failed", "domain", audit.Domain, "error", err)
	}
	s.log.Info("conflict retained incumbent",
		"domain", existing.Domain, "incumbent", existing.ID,
		"challenger_score", challengerScore, "existing_score", existingScore)
	return existing, nil
}

// ─── Maintenance ──────────────────────────────────────────────────────────────

// PruneStaleHints deactivates hints unused for olderThanDays (default 90)
// whose confidence fell under the prune floor, and returns how many.
func (s *Store) PruneStaleHints(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		olderThanDays = DefaultPruneDays
	}
	cutoff := s.now().Add(-time.Duration(olderThanDays) * 24 * time.Hour)

	n, err := s.db.PruneStaleHints(ctx, cutoff, s.pruneNeverUsed)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("pruned stale hints", "count", n, "older_than_days", olderThanDays)
	}
	return n, nil
}

// Stats reports repository statistics.
func (s *Store) Stats(ctx context.Context) (*hintdb.Stats, error) {
	return s.db.Stats(ctx)
}

// HistoryFor returns recent execution records for a hint.
func (s *Store) HistoryFor(ctx context.Context, id string, limit int) ([]hints.HintHistory, error) {
	if limit <= 0 {
		limit = DefaultHintLimit
	}
	return s.db.HistoryFor(ctx, id, limit)
}
