package hints

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ─── DOM access ───────────────────────────────────────────────────────────────

// DOM is the minimal view of a page the matcher needs. A browser-side
// collaborator supplies a live implementation; SnapshotDOM approximates one
// from raw HTML when no live page is available.
type DOM interface {
	// QueryCount returns the number of elements matching a CSS selector.
	QueryCount(selector string) int
	// ContainsText reports whether the page contains the text, case-insensitively.
	ContainsText(text string) bool
}

// CheckSelector reports whether a selector is usable against a page: element
// presence when a DOM is available, syntax validity otherwise. The fallback
// is not proof of presence and callers must not treat it as one.
func CheckSelector(dom DOM, selector string) bool {
	if dom == nil {
		return ValidSelectorSyntax(selector)
	}
	return dom.QueryCount(selector) > 0
}

// ─── Structural fingerprints ──────────────────────────────────────────────────

// DOMFingerprint hashes the page's coarse structure into 16 hex characters:
// form/input/button counts plus the presence of password and email fields
// and of "login" text. Pages with the same shape produce the same value.
func DOMFingerprint(dom DOM) string {
	if dom == nil {
		return ""
	}
	signals := []string{
		fmt.Sprintf("forms:%d", dom.QueryCount("form")),
		fmt.Sprintf("inputs:%d", dom.QueryCount("input")),
		fmt.Sprintf("buttons:%d", dom.QueryCount("button")),
		fmt.Sprintf("password:%t", dom.QueryCount("input[type=password]") > 0),
		fmt.Sprintf("email:%t", dom.QueryCount("input[type=email]") > 0),
		fmt.Sprintf("login:%t", dom.ContainsText("login")),
	}
	sort.Strings(signals)
	sum := sha256.Sum256([]byte(strings.Join(signals, ";")))
	return hex.EncodeToString(sum[:])[:16]
}

// HTMLFingerprint fingerprints raw HTML through a SnapshotDOM.
func HTMLFingerprint(html string) string {
	if html == "" {
		return ""
	}
	return DOMFingerprint(NewSnapshotDOM(html))
}

// CompareFingerprints returns the positional character-match ratio of two
// fingerprints over the shorter length: 1.0 for equal values, 0 when either
// is empty. Similar pages share hash prefixes only by chance, so anything
// above ~0.5 is treated as a strong signal by callers.
func CompareFingerprints(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	matches := 0
	for i := 0; i < n; i++ {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(n)
}

// ─── Raw-HTML snapshot ────────────────────────────────────────────────────────

// SnapshotDOM evaluates selectors against raw HTML with regular expressions.
// It understands simple selectors only: tag, #id, .class, [attr], [attr=value]
// and combinations of those on a single element. Anything more complex is
// reported optimistically as present once when syntactically valid, so a
// snapshot never hides hints a live DOM would surface.
type SnapshotDOM struct {
	html  string
	lower string
	tags  []snapshotTag
}

type snapshotTag struct {
	name  string
	attrs string
}

var openTagRe = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9]*)\b([^>]*)>`)

// NewSnapshotDOM parses raw HTML into a degraded DOM view.
func NewSnapshotDOM(html string) *SnapshotDOM {
	s := &SnapshotDOM{html: html, lower: strings.ToLower(html)}
	for _, m := range openTagRe.FindAllStringSubmatch(html, -1) {
		s.tags = append(s.tags, snapshotTag{
			name:  strings.ToLower(m[1]),
			attrs: m[2],
		})
	}
	return s
}

// QueryCount counts elements matching a simple selector; unsupported
// selectors count as one when syntactically valid.
func (s *SnapshotDOM) QueryCount(selector string) int {
	sel, ok := parseSimpleSelector(selector)
	if !ok {
		if ValidSelectorSyntax(selector) {
			return 1
		}
		return 0
	}
	count := 0
	for _, tag := range s.tags {
		if sel.matches(tag) {
			count++
		}
	}
	return count
}

// ContainsText reports a case-insensitive substring match over the raw HTML.
func (s *SnapshotDOM) ContainsText(text string) bool {
	return strings.Contains(s.lower, strings.ToLower(text))
}

// ─── Simple selector grammar ──────────────────────────────────────────────────

var simpleSelectorRe = regexp.MustCompile(
	`^([a-zA-Z][a-zA-Z0-9]*)?(#[A-Za-z0-9_\-]+)?((?:\.[A-Za-z0-9_\-]+)+)?(\[[A-Za-z0-9_\-]+(?:\s*=\s*(?:"[^"]*"|'[^']*'|[^\]"']+))?\])?$`)

type simpleSelector struct {
	tag       string
	id        string
	classes   []string
	attrName  string
	attrValue string
	hasAttr   bool
}

func parseSimpleSelector(selector string) (simpleSelector, bool) {
	var sel simpleSelector
	m := simpleSelectorRe.FindStringSubmatch(strings.TrimSpace(selector))
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "" && m[4] == "") {
		return sel, false
	}
	sel.tag = strings.ToLower(m[1])
	sel.id = strings.TrimPrefix(m[2], "#")
	if m[3] != "" {
		sel.classes = strings.Split(strings.TrimPrefix(m[3], "."), ".")
	}
	if m[4] != "" {
		sel.hasAttr = true
		body := strings.TrimSuffix(strings.TrimPrefix(m[4], "["), "]")
		name, value, found := strings.Cut(body, "=")
		sel.attrName = strings.ToLower(strings.TrimSpace(name))
		if found {
			sel.attrValue = strings.Trim(strings.TrimSpace(value), `"'`)
		}
	}
	return sel, true
}

func (sel simpleSelector) matches(tag snapshotTag) bool {
	if sel.tag != "" && tag.name != sel.tag {
		return false
	}
	if sel.id != "" && attrValueOf(tag.attrs, "id") != sel.id {
		return false
	}
	for _, class := range sel.classes {
		if !hasClassToken(tag.attrs, class) {
			return false
		}
	}
	if sel.hasAttr {
		got, present := lookupAttr(tag.attrs, sel.attrName)
		if !present {
			return false
		}
		if sel.attrValue != "" && !strings.EqualFold(got, sel.attrValue) {
			return false
		}
	}
	return true
}

var attrRe = regexp.MustCompile(`(?i)(^|\s)([a-z][a-z0-9_\-]*)\s*(?:=\s*("([^"]*)"|'([^']*)'|([^\s"'>]+)))?`)

// lookupAttr finds an attribute in a tag's attribute string, returning its
// unquoted value and whether the attribute is present at all.
func lookupAttr(attrs, name string) (string, bool) {
	for _, m := range attrRe.FindAllStringSubmatch(attrs, -1) {
		if !strings.EqualFold(m[2], name) {
			continue
		}
		switch {
		case m[4] != "":
			return m[4], true
		case m[5] != "":
			return m[5], true
		case m[6] != "":
			// Unquoted values in self-closing tags drag the slash along.
			return strings.TrimSuffix(m[6], "/"), true
		default:
			return "", true
		}
	}
	return "", false
}

func attrValueOf(attrs, name string) string {
	v, _ := lookupAttr(attrs, name)
	return v
}

func hasClassToken(attrs, class string) bool {
	for _, token := range strings.Fields(attrValueOf(attrs, "class")) {
		if strings.EqualFold(token, class) {
			return true
		}
	}
	return false
}
