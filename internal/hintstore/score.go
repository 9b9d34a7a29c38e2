package hintstore

import (
	"fmt"
	"math"
	"time"

	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/hints"
)

// Ranking constants. The recency factor halves roughly every three weeks
// (e-folding period of 30 days); the usage bonus grows logarithmically so a
// hint cannot buy rank with raw repetition.
const (
	// recencyScaleDays is the e-folding period of the recency factor.
	recencyScaleDays = 30.0

	// neverSucceededStalenessDays is the staleness assumed for hints that
	// have no successful execution yet, putting them at e^-1 of a fresh one.
	neverSucceededStalenessDays = 30.0
)

// Score ranks a hint for retrieval:
//
//	confidence × exp(−daysSinceLastSuccess/30) × ln(successCount+1)
//
// A hint with zero successes scores exactly 0 regardless of confidence:
// unproven hints are ranked by their tie-breakers only, never ahead of
// anything with real evidence.
func Score(h *hints.Hint, now time.Time) float64 {
	staleDays := neverSucceededStalenessDays
	if !h.LastSuccessAt.IsZero() {
		staleDays = now.Sub(h.LastSuccessAt).Hours() / 24
		if staleDays < 0 {
			staleDays = 0
		}
	}
	recency := math.Exp(-staleDays / recencyScaleDays)
	usage := math.Log(float64(h.SuccessCount) + 1)
	return h.Confidence * recency * usage
}

// ─── Match policy ─────────────────────────────────────────────────────────────

// MatchPolicy controls how hard the matcher's signals are applied when a
// DOM is available during retrieval.
type MatchPolicy int

const (
	// MatchAdvisory lets guard and fingerprint signals adjust ranking only.
	MatchAdvisory MatchPolicy = iota

	// MatchStrict excludes hints whose selector guard is absent from the DOM.
	MatchStrict
)

func (p MatchPolicy) String() string {
	if p == MatchStrict {
		return "strict"
	}
	return "advisory"
}

// ParseMatchPolicy reads a policy name; empty means advisory.
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch s {
	case "", "advisory":
		return MatchAdvisory, nil
	case "strict":
		return MatchStrict, nil
	default:
		return MatchAdvisory, fmt.Errorf("hintstore: unknown match policy %q", s)
	}
}
