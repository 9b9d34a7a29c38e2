package hinttools

import (
	"fmt"
	"time"

	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/hints"
)

// FormattedHint is the agent-facing rendering of a stored hint: confidence
// as a percentage, steps numbered from one, timestamps humanized.
type FormattedHint struct {
	ID          string             `json:"id"`
	Description string             `json:"description"`
	PatternType string             `json:"pattern_type"`
	Confidence  string             `json:"confidence"`
	Scope       FormattedScope     `json:"scope"`
	Steps       []FormattedStep    `json:"steps"`
	Context     *hints.HintContext `json:"context,omitempty"`
	Usage       FormattedUsage     `json:"usage"`
}

// FormattedScope tells the agent where a hint applies and what must exist
// on the page before replaying it.
type FormattedScope struct {
	Domain           string `json:"domain"`
	Path             string `json:"path"`
	RequiredSelector string `json:"required_selector,omitempty"`
}

// FormattedStep is one recipe step with a 1-based position. Fallback steps
// carry no position of their own.
type FormattedStep struct {
	Step           int            `json:"step,omitempty"`
	Tool           string         `json:"tool"`
	Args           map[string]any `json:"args,omitempty"`
	WaitAfterMs    int            `json:"wait_after_ms,omitempty"`
	RetryOnFailure bool           `json:"retry_on_failure,omitempty"`
	Fallback       *FormattedStep `json:"fallback,omitempty"`
}

// FormattedUsage summarizes a hint's execution record.
type FormattedUsage struct {
	SuccessCount int    `json:"success_count"`
	FailureCount int    `json:"failure_count"`
	LastUsed     string `json:"last_used"`
	LastSuccess  string `json:"last_success"`
}

// FormatHint renders a stored hint for agent consumption.
func FormatHint(h *hints.Hint) FormattedHint {
	f := FormattedHint{
		ID:          h.ID,
		Description: h.Description,
		PatternType: string(h.PatternType),
		Confidence:  formatPercent(h.Confidence),
		Scope: FormattedScope{
			Domain:           h.Domain,
			Path:             pathOrAny(h.PathPattern),
			RequiredSelector: h.SelectorGuard,
		},
		Context: h.Context,
		Usage: FormattedUsage{
			SuccessCount: h.SuccessCount,
			FailureCount: h.FailureCount,
			LastUsed:     formatWhen(h.LastUsedAt),
			LastSuccess:  formatWhen(h.LastSuccessAt),
		},
	}
	f.Steps = make([]FormattedStep, len(h.Recipe))
	for i, step := range h.Recipe {
		f.Steps[i] = formatStep(step, i+1)
	}
	return f
}

func formatStep(step hints.ToolCallStep, position int) FormattedStep {
	f := FormattedStep{
		Step:           position,
		Tool:           step.Tool,
		Args:           step.Args,
		WaitAfterMs:    step.WaitAfterMs,
		RetryOnFailure: step.RetryOnFailure,
	}
	if step.Fallback != nil {
		fb := formatStep(*step.Fallback, 0)
		f.Fallback = &fb
	}
	return f
}

func formatPercent(confidence float64) string {
	return fmt.Sprintf("%.0f%%", confidence*100)
}

// pathOrAny names an unscoped path for display.
func pathOrAny(pattern string) string {
	if pattern == "" {
		return "any"
	}
	return pattern
}

// formatWhen renders a timestamp as UTC RFC 3339, or "never" for the zero
// time.
func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
