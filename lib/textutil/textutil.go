package textutil

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Lower lowercases using Turkish casing rules (İ -> i, I -> ı), listing text on the
// site is Turkish so the generic unicode mapping would miss dotted capitals.
func Lower(s string) string {
	// a Caser is stateful, so one is created per call.
	return cases.Lower(language.Turkish).String(s)
}

// CollapseSpace trims s and replaces every run of whitespace (newlines included) with a single space.
func CollapseSpace(s string) string {
	return whitespaceRegex.ReplaceAllString(strings.TrimSpace(s), " ")
}

// ContainsFold reports whether substr is within s, ignoring case and surrounding whitespace.
func ContainsFold(s, substr string) bool {
	return strings.Contains(Lower(CollapseSpace(s)), Lower(CollapseSpace(substr)))
}

// MatchAny returns the first matcher that is contained (case-insensitively) in name.
func MatchAny(name string, matchers []string) (string, bool) {
	for _, m := range matchers {
		if ContainsFold(name, m) {
			return m, true
		}
	}
	return "", false
}
