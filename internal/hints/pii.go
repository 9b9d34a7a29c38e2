package hints

import "regexp"

// PII detectors. Matched text is never echoed back; only the kind is
// reported so findings cannot leak the data they flag.
var piiPatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{"email", regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{"phone number", regexp.MustCompile(`(?:\+?1[-.\s]?)?(?:\(\d{3}\)[-.\s]?|\b\d{3}[-.\s])\d{3}[-.\s]\d{4}\b`)},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"card number", regexp.MustCompile(`\b(?:\d{4}[-\s]){3}\d{4}\b|\b\d{16}\b`)},
}

// FindPII returns the kinds of personally identifying information detected
// in s, in a stable order. Empty when s is clean.
func FindPII(s string) []string {
	if s == "" {
		return nil
	}
	var kinds []string
	for _, p := range piiPatterns {
		if p.re.MatchString(s) {
			kinds = append(kinds, p.kind)
		}
	}
	return kinds
}

// ContainsPII reports whether s contains any detectable PII.
func ContainsPII(s string) bool {
	return len(FindPII(s)) > 0
}
