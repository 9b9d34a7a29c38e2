// Package hints defines the hint data model and the pure validation and
// matching logic of the hint engine.
//
// A hint is a reusable, validated recipe of tool calls that worked on a
// specific website, scoped by domain and an optional URL path pattern.
// Everything in this package is side-effect free: persistence lives in
// hintdb, orchestration in hintstore.
package hints

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ─── Limits and defaults ──────────────────────────────────────────────────────

const (
	// MaxRecipeSteps caps the number of tool calls a single hint may carry.
	MaxRecipeSteps = 20

	// MaxDescriptionLen caps the human-readable description length.
	MaxDescriptionLen = 200

	// MaxWaitAfterMs caps the post-step pause of a recipe step.
	MaxWaitAfterMs = 30000

	// DefaultConfidence is the prior for a hint that has never been executed.
	// It equals the Laplace estimate for zero successes and zero failures.
	DefaultConfidence = 0.5
)

// ─── Pattern types ────────────────────────────────────────────────────────────

// PatternType classifies the interaction a hint automates.
type PatternType string

const (
	PatternLogin       PatternType = "login"
	PatternFormFill    PatternType = "form_fill"
	PatternNavigation  PatternType = "navigation"
	PatternInteraction PatternType = "interaction"
	PatternWait        PatternType = "wait"
	PatternModal       PatternType = "modal"
	PatternDynamic     PatternType = "dynamic"
	PatternSearch      PatternType = "search"
	PatternUpload      PatternType = "upload"
	PatternPagination  PatternType = "pagination"
)

// PatternTypes lists every recognized pattern type in declaration order.
func PatternTypes() []PatternType {
	return []PatternType{
		PatternLogin, PatternFormFill, PatternNavigation, PatternInteraction,
		PatternWait, PatternModal, PatternDynamic, PatternSearch,
		PatternUpload, PatternPagination,
	}
}

// Known reports whether p is one of the recognized pattern types.
func (p PatternType) Known() bool {
	for _, t := range PatternTypes() {
		if p == t {
			return true
		}
	}
	return false
}

// ─── Core types ───────────────────────────────────────────────────────────────

// Hint is a stored automation recipe for a website scope.
//
// Recipes are immutable after save: a correction is a new hint version whose
// ParentHintID points at the deactivated predecessor. Zero time values mean
// "never" and persist as NULL.
type Hint struct {
	ID             string         `json:"id"`
	Domain         string         `json:"domain"`
	PathPattern    string         `json:"path_pattern,omitempty"`
	URLHash        string         `json:"url_hash"`
	PatternType    PatternType    `json:"pattern_type"`
	SelectorGuard  string         `json:"selector_guard,omitempty"`
	DOMFingerprint string         `json:"dom_fingerprint,omitempty"`
	Recipe         []ToolCallStep `json:"recipe"`
	Description    string         `json:"description"`
	Context        *HintContext   `json:"context,omitempty"`
	SuccessCount   int            `json:"success_count"`
	FailureCount   int            `json:"failure_count"`
	Confidence     float64        `json:"confidence"`
	AuthorID       string         `json:"author_id"`
	CreatedAt      time.Time      `json:"created_at"`
	LastUsedAt     time.Time      `json:"last_used_at,omitempty"`
	LastSuccessAt  time.Time      `json:"last_success_at,omitempty"`
	Version        int            `json:"version"`
	IsActive       bool           `json:"is_active"`
	ParentHintID   string         `json:"parent_hint_id,omitempty"`
	RelatedHints   []string       `json:"related_hints,omitempty"`
}

// UseCount returns the total number of recorded executions.
func (h *Hint) UseCount() int {
	return h.SuccessCount + h.FailureCount
}

// ToolCallStep is one step of a hint recipe. Fallback, when present, runs
// only if the step fails and is sanitized with the same rules as the step.
type ToolCallStep struct {
	Tool           string         `json:"tool"`
	Args           map[string]any `json:"args,omitempty"`
	WaitAfterMs    int            `json:"wait_after_ms,omitempty"`
	RetryOnFailure bool           `json:"retry_on_failure,omitempty"`
	Fallback       *ToolCallStep  `json:"fallback,omitempty"`
}

// Viewport is a page viewport size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// HintContext narrows when a hint applies. All fields are optional; absent
// data never disqualifies a hint.
type HintContext struct {
	MinViewport      *Viewport `json:"min_viewport,omitempty"`
	RequiresAuth     *bool     `json:"requires_auth,omitempty"`
	UserRole         string    `json:"user_role,omitempty"`
	Locale           string    `json:"locale,omitempty"`
	UserAgentPattern string    `json:"user_agent_pattern,omitempty"`
}

// HintHistory is one append-only execution record.
type HintHistory struct {
	HintID          string    `json:"hint_id"`
	Success         bool      `json:"success"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	ExecutionTimeMs int64     `json:"execution_time_ms,omitempty"`
	ExecutedAt      time.Time `json:"executed_at"`
	AuthorID        string    `json:"author_id,omitempty"`
}

// ExecutionReport is what a caller reports after running a recipe elsewhere.
type ExecutionReport struct {
	Success         bool
	ErrorMessage    string
	ExecutionTimeMs int64
}

// Conflict resolutions recorded in the audit trail.
const (
	ResolutionSuperseded = "superseded"
	ResolutionRetained   = "retained"
)

// HintConflict is an audit record of two hints competing for the same scope.
type HintConflict struct {
	Domain      string    `json:"domain"`
	PathPattern string    `json:"path_pattern,omitempty"`
	HintA       string    `json:"hint_a"`
	HintB       string    `json:"hint_b"`
	Resolution  string    `json:"resolution"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// ─── Derivations ──────────────────────────────────────────────────────────────

// ConfidenceFor returns the Laplace-smoothed success ratio for the given
// counters: (successes+1) / (successes+failures+2). An unused hint sits at
// 0.5 and single observations cannot saturate the estimate.
func ConfidenceFor(successes, failures int) float64 {
	return float64(successes+1) / float64(successes+failures+2)
}

// HintID derives the identifier of a hint version. The author and creation
// time salt keeps superseding versions of the same scope distinct.
func HintID(domain, pathPattern, authorID string, createdAt time.Time) string {
	return shortHash(fmt.Sprintf("%s|%s|%s|%d", domain, pathPattern, authorID, createdAt.UnixMilli()))
}

// URLHash derives the scope identity of a hint, shared by all its versions.
// Exact retrieval looks hints up by this value.
func URLHash(domain, pathPattern string) string {
	return shortHash(domain + "|" + pathPattern)
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
