package hints

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ─── Hint validation ──────────────────────────────────────────────────────────

// ValidationResult is the outcome of ValidateHint. Any error makes the hint
// unsaveable; warnings are advisory and never block a save.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Recipes longer than this draw a warning: long flows are brittle and
// usually two hints in a trench coat.
const longRecipeWarnSteps = 10

var domainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9\-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9\-]*[a-z0-9])?)+$`)

// ValidDomain reports whether s looks like a registrable hostname: no
// scheme, no path, no port, at least one dot.
func ValidDomain(s string) bool {
	if s == "" || len(s) > 253 {
		return false
	}
	return domainPattern.MatchString(strings.ToLower(s))
}

// ValidateHint checks a candidate hint against every structural rule.
// The result is deterministic and the check is idempotent: validating an
// already-valid hint changes nothing.
func ValidateHint(h *Hint) ValidationResult {
	var res ValidationResult

	if h.Domain == "" {
		res.Errors = append(res.Errors, "domain is required")
	} else if !ValidDomain(h.Domain) {
		res.Errors = append(res.Errors, fmt.Sprintf("domain %q is not a valid hostname", h.Domain))
	}

	if !h.PatternType.Known() {
		res.Errors = append(res.Errors, fmt.Sprintf("pattern_type %q is not recognized (valid: %s)",
			h.PatternType, patternTypeList()))
	}

	switch {
	case len(h.Recipe) == 0:
		res.Errors = append(res.Errors, "recipe must contain at least one step")
	case len(h.Recipe) > MaxRecipeSteps:
		res.Errors = append(res.Errors, fmt.Sprintf("recipe has %d steps; the maximum is %d", len(h.Recipe), MaxRecipeSteps))
	}
	for i, step := range h.Recipe {
		for _, e := range ValidateToolCall(step) {
			res.Errors = append(res.Errors, fmt.Sprintf("step %d: %s", i+1, e))
		}
	}

	switch {
	case h.Description == "":
		res.Errors = append(res.Errors, "description is required")
	case len(h.Description) > MaxDescriptionLen:
		res.Errors = append(res.Errors, fmt.Sprintf("description has %d characters; the maximum is %d", len(h.Description), MaxDescriptionLen))
	}
	if kinds := FindPII(h.Description); len(kinds) > 0 {
		res.Errors = append(res.Errors, fmt.Sprintf("description contains possible PII (%s)", strings.Join(kinds, ", ")))
	}

	if h.Confidence < 0 || h.Confidence > 1 {
		res.Errors = append(res.Errors, "confidence must be between 0 and 1")
	}

	if h.SelectorGuard != "" {
		if !ValidSelectorSyntax(h.SelectorGuard) {
			res.Errors = append(res.Errors, fmt.Sprintf("selector_guard %q is not a valid CSS selector", h.SelectorGuard))
		} else if BlockedSelector(h.SelectorGuard) {
			res.Errors = append(res.Errors, fmt.Sprintf("selector_guard %q is too broad to identify a page", h.SelectorGuard))
		}
	}

	if len(h.Recipe) > longRecipeWarnSteps {
		res.Warnings = append(res.Warnings, fmt.Sprintf("recipe has %d steps; long recipes are fragile", len(h.Recipe)))
	}
	if h.SelectorGuard == "" {
		res.Warnings = append(res.Warnings, "no selector_guard; the hint cannot verify the page before replay")
	}
	if h.Context == nil {
		res.Warnings = append(res.Warnings, "no context; the hint applies to every viewport and auth state")
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func patternTypeList() string {
	types := PatternTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// ─── Step validation ──────────────────────────────────────────────────────────

// Keys that make a step unsaveable outright. The sanitizer strips a wider
// set; these three are rejected so the author learns to stop sending them.
var rejectedArgKeys = []string{"password", "secret", "token"}

// ValidateToolCall checks one recipe step. Fallback steps are validated
// recursively with a "fallback:" prefix on their errors.
func ValidateToolCall(step ToolCallStep) []string {
	var errs []string

	if step.Tool == "" {
		errs = append(errs, "tool name is required")
	}
	if step.WaitAfterMs < 0 || step.WaitAfterMs > MaxWaitAfterMs {
		errs = append(errs, fmt.Sprintf("wait_after_ms must be between 0 and %d", MaxWaitAfterMs))
	}
	for key := range step.Args {
		for _, secret := range rejectedArgKeys {
			if strings.EqualFold(key, secret) {
				errs = append(errs, fmt.Sprintf("args contain secret key %q; credentials must not be saved", key))
			}
		}
	}
	if step.Fallback != nil {
		for _, e := range ValidateToolCall(*step.Fallback) {
			errs = append(errs, "fallback: "+e)
		}
	}
	return errs
}

// ─── Duplicate detection ──────────────────────────────────────────────────────

// DetectDuplicates reports whether h duplicates any existing hint: same
// (domain, selector_guard, pattern_type) triple, or a byte-identical
// serialized recipe.
func DetectDuplicates(h *Hint, existing []Hint) bool {
	recipe := serializeRecipe(h.Recipe)
	for i := range existing {
		e := &existing[i]
		if e.Domain == h.Domain && e.SelectorGuard == h.SelectorGuard && e.PatternType == h.PatternType {
			return true
		}
		if recipe != "" && serializeRecipe(e.Recipe) == recipe {
			return true
		}
	}
	return false
}

func serializeRecipe(steps []ToolCallStep) string {
	if len(steps) == 0 {
		return ""
	}
	data, err := json.Marshal(steps)
	if err != nil {
		return ""
	}
	return string(data)
}
