package hints

import "strings"

// Quality heuristics. Each factor starts at 1.0 and loses the penalties
// below; the overall score is the mean of the four factors. Quality is
// advisory and never gates a save.
const (
	// Completeness: each missing precision field costs this much.
	qualityMissingFieldPenalty = 0.25

	// Clarity: description length bounds and penalties.
	qualityShortDescriptionLen     = 20
	qualityShortDescriptionPenalty = 0.4
	qualityLongDescriptionLen      = 150
	qualityLongDescriptionPenalty  = 0.2
	qualityNoPunctuationPenalty    = 0.1

	// Efficiency: recipe length and cumulative wait penalties.
	qualityLongRecipeSteps       = 10
	qualityLongRecipePenalty     = 0.3
	qualityVeryLongRecipeSteps   = 15
	qualityVeryLongRecipePenalty = 0.2
	qualitySlowRecipeWaitMs      = 10000
	qualitySlowRecipePenalty     = 0.2

	// Safety: a missing guard weakens replay safety; PII anywhere zeroes it.
	qualityNoGuardPenalty = 0.3
)

// QualityScore breaks a hint's quality into its component factors so
// callers can see what to improve, plus the overall mean.
type QualityScore struct {
	Completeness float64 `json:"completeness"`
	Clarity      float64 `json:"clarity"`
	Efficiency   float64 `json:"efficiency"`
	Safety       float64 `json:"safety"`
	Overall      float64 `json:"overall"`
}

// AssessQuality scores a hint on completeness, clarity, efficiency and
// safety, each clamped to [0,1].
func AssessQuality(h *Hint) QualityScore {
	q := QualityScore{
		Completeness: completenessScore(h),
		Clarity:      clarityScore(h.Description),
		Efficiency:   efficiencyScore(h.Recipe),
		Safety:       safetyScore(h),
	}
	q.Overall = clamp01((q.Completeness + q.Clarity + q.Efficiency + q.Safety) / 4)
	return q
}

func completenessScore(h *Hint) float64 {
	score := 1.0
	if h.SelectorGuard == "" {
		score -= qualityMissingFieldPenalty
	}
	if h.Context == nil {
		score -= qualityMissingFieldPenalty
	}
	if h.DOMFingerprint == "" {
		score -= qualityMissingFieldPenalty
	}
	if h.PathPattern == "" {
		score -= qualityMissingFieldPenalty
	}
	return clamp01(score)
}

func clarityScore(description string) float64 {
	score := 1.0
	switch {
	case len(description) < qualityShortDescriptionLen:
		score -= qualityShortDescriptionPenalty
	case len(description) > qualityLongDescriptionLen:
		score -= qualityLongDescriptionPenalty
	}
	if !strings.HasSuffix(description, ".") && !strings.HasSuffix(description, "!") && !strings.HasSuffix(description, "?") {
		score -= qualityNoPunctuationPenalty
	}
	return clamp01(score)
}

func efficiencyScore(recipe []ToolCallStep) float64 {
	score := 1.0
	if len(recipe) > qualityLongRecipeSteps {
		score -= qualityLongRecipePenalty
	}
	if len(recipe) > qualityVeryLongRecipeSteps {
		score -= qualityVeryLongRecipePenalty
	}
	var totalWait int
	for _, step := range recipe {
		totalWait += step.WaitAfterMs
	}
	if totalWait > qualitySlowRecipeWaitMs {
		score -= qualitySlowRecipePenalty
	}
	return clamp01(score)
}

func safetyScore(h *Hint) float64 {
	if ContainsPII(h.Description) || recipeContainsPII(h.Recipe) {
		return 0
	}
	score := 1.0
	if h.SelectorGuard == "" {
		score -= qualityNoGuardPenalty
	}
	return clamp01(score)
}

func recipeContainsPII(steps []ToolCallStep) bool {
	for _, step := range steps {
		if argsContainPII(step.Args) {
			return true
		}
		if step.Fallback != nil && recipeContainsPII([]ToolCallStep{*step.Fallback}) {
			return true
		}
	}
	return false
}

func argsContainPII(args map[string]any) bool {
	for _, value := range args {
		if valueContainsPII(value) {
			return true
		}
	}
	return false
}

func valueContainsPII(value any) bool {
	switch v := value.(type) {
	case string:
		return ContainsPII(v)
	case map[string]any:
		return argsContainPII(v)
	case []any:
		for _, item := range v {
			if valueContainsPII(item) {
				return true
			}
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
