package hints

import (
	"strings"
	"unicode"
)

// Selector roots too broad to serve as a guard. A guard must identify a
// page-specific element, not the document itself.
var blockedSelectorRoots = map[string]bool{
	"html":   true,
	"body":   true,
	"*":      true,
	"script": true,
}

// ValidSelectorSyntax reports whether s is plausibly a CSS selector. The
// check is conservative and purely syntactic: it rejects obvious garbage
// and injection attempts without implementing a selector grammar.
func ValidSelectorSyntax(s string) bool {
	if s == "" || strings.TrimSpace(s) != s {
		return false
	}
	lower := strings.ToLower(s)
	if strings.ContainsAny(s, "<>") || strings.Contains(lower, "javascript:") {
		return false
	}

	first := rune(s[0])
	if unicode.IsDigit(first) {
		return false
	}
	if strings.ContainsRune(">+~,", first) {
		return false
	}

	if !balancedSelector(s) {
		return false
	}

	// Dangling tails such as "div:" or "input[" are incomplete selectors.
	switch s[len(s)-1] {
	case ':', '[', '(', '.', '#', '>', '+', '~', ',':
		return false
	}

	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

// balancedSelector checks quotes, brackets and parens pair up.
func balancedSelector(s string) bool {
	var brackets, parens int
	var inQuote rune
	for _, r := range s {
		if inQuote != 0 {
			if r == inQuote {
				inQuote = 0
			}
			continue
		}
		switch r {
		case '\'', '"':
			inQuote = r
		case '[':
			brackets++
		case ']':
			brackets--
		case '(':
			parens++
		case ')':
			parens--
		}
		if brackets < 0 || parens < 0 {
			return false
		}
	}
	return inQuote == 0 && brackets == 0 && parens == 0
}

// BlockedSelector reports whether the selector's leading simple token names
// a blocked root (html, body, *, script), alone or followed by further
// selector syntax.
func BlockedSelector(s string) bool {
	token := leadingToken(s)
	return blockedSelectorRoots[token]
}

// leadingToken returns the first simple element token of a selector: the
// run of letters (or a lone "*") before any class, id, attribute, combinator
// or pseudo suffix.
func leadingToken(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if s[0] == '*' {
		return "*"
	}
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			end++
			continue
		}
		break
	}
	return strings.ToLower(s[:end])
}
