package hints

import "strings"

// Argument keys that must never reach disk. Compared case-insensitively so
// "Password" and "apikey" are caught alongside the canonical spellings.
var secretArgKeys = []string{"password", "secret", "token", "apiKey", "credential"}

// textArgKey holds free text typed into pages. It is replaced by its length
// so replay tooling still knows a value was entered without storing it.
const textArgKey = "text"

func isSecretArgKey(key string) bool {
	for _, s := range secretArgKeys {
		if strings.EqualFold(key, s) {
			return true
		}
	}
	return false
}

// SanitizeRecipe returns a deep copy of steps with credential-bearing args
// removed and free-text values replaced by an integer text_length. Fallback
// steps are sanitized recursively. The input is never mutated.
func SanitizeRecipe(steps []ToolCallStep) []ToolCallStep {
	if steps == nil {
		return nil
	}
	out := make([]ToolCallStep, len(steps))
	for i, step := range steps {
		out[i] = sanitizeStep(step)
	}
	return out
}

func sanitizeStep(step ToolCallStep) ToolCallStep {
	clean := ToolCallStep{
		Tool:           step.Tool,
		WaitAfterMs:    step.WaitAfterMs,
		RetryOnFailure: step.RetryOnFailure,
	}
	if step.Args != nil {
		clean.Args = sanitizeArgs(step.Args)
	}
	if step.Fallback != nil {
		fb := sanitizeStep(*step.Fallback)
		clean.Fallback = &fb
	}
	return clean
}

func sanitizeArgs(args map[string]any) map[string]any {
	clean := make(map[string]any, len(args))
	for key, value := range args {
		if isSecretArgKey(key) {
			continue
		}
		if strings.EqualFold(key, textArgKey) {
			if s, ok := value.(string); ok {
				clean["text_length"] = len(s)
			}
			continue
		}
		clean[key] = sanitizeValue(value)
	}
	return clean
}

// sanitizeValue walks nested maps and slices so a secret key cannot hide
// one level down inside a structured argument.
func sanitizeValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return sanitizeArgs(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return value
	}
}
