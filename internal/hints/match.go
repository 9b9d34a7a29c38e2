package hints

import (
	"net/url"
	"regexp"
	"strings"
)

// ─── URL pattern matching ─────────────────────────────────────────────────────

// MatchURL reports whether the path of rawURL matches a hint path pattern.
// Patterns compare path components only: a literal segment matches exactly,
// "*" matches exactly one segment, "**" matches the remainder including
// nothing. Inputs that cannot be parsed fall back to exact string equality.
//
//	MatchURL("https://a.com/app/settings", "/app/*")   → true
//	MatchURL("https://a.com/app/a/b", "/app/*")        → false
//	MatchURL("https://a.com/app/a/b", "/app/**")       → true
func MatchURL(rawURL, pattern string) bool {
	if rawURL == pattern {
		return true
	}
	urlPath, ok := pathOf(rawURL)
	if !ok {
		return false
	}
	patternPath, ok := pathOf(pattern)
	if !ok {
		return false
	}
	re, err := compilePathPattern(patternPath)
	if err != nil {
		return false
	}
	return re.MatchString(urlPath)
}

// pathOf extracts the path component of a URL or pattern, stripping scheme
// and host when present and normalizing to a leading slash.
func pathOf(s string) (string, bool) {
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", false
		}
		s = u.Path
	}
	if s == "" {
		s = "/"
	}
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return s, true
}

// compilePathPattern turns a path pattern into an anchored regexp.
func compilePathPattern(pattern string) (*regexp.Regexp, error) {
	trimmed := strings.Trim(pattern, "/")
	var b strings.Builder
	b.WriteString("^")
	if trimmed == "" {
		b.WriteString("/?$")
		return regexp.Compile(b.String())
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == "**" {
			// Remainder, including empty: "/app/**" matches "/app" too.
			b.WriteString("(?:/.*)?$")
			return regexp.Compile(b.String())
		}
		b.WriteString("/")
		if seg == "*" {
			b.WriteString("[^/]+")
		} else {
			b.WriteString(regexp.QuoteMeta(seg))
		}
	}
	b.WriteString("/?$")
	return regexp.Compile(b.String())
}

// ─── Context matching ─────────────────────────────────────────────────────────

// MatchViewport reports whether a viewport satisfies the hint context's
// minimum. Missing data on either side is permissive.
func MatchViewport(hc *HintContext, v *Viewport) bool {
	if hc == nil || hc.MinViewport == nil || v == nil {
		return true
	}
	return v.Width >= hc.MinViewport.Width && v.Height >= hc.MinViewport.Height
}

// MatchAuthState reports whether a known authentication state satisfies the
// hint context. Unknown state is permissive; only a hint that requires auth
// paired with a definitely-unauthenticated session is excluded.
func MatchAuthState(hc *HintContext, authenticated *bool) bool {
	if hc == nil || hc.RequiresAuth == nil || authenticated == nil {
		return true
	}
	return !*hc.RequiresAuth || *authenticated
}
