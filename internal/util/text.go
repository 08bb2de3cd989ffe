package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	reSpaces         = regexp.MustCompile(`\s+`)
	reLeadingElement = regexp.MustCompile(`^([A-Z][a-z]?)`)
)

// NormalizeID lowercases s and keeps only [a-z0-9].
func NormalizeID(input string) string {
	s := strings.ToLower(input)
	out := strings.Builder{}
	out.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			out.WriteByte(c)
		}
	}
	return out.String()
}

// NormalizeHeader folds a column header for keyword comparison: NFKC, lowercase,
// non-breaking spaces and runs of whitespace collapsed to a single space.
func NormalizeHeader(input string) string {
	s := norm.NFKC.String(input)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, s)
	s = strings.ToLower(s)
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func ContainsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// LeadingElement returns the chemical-symbol shaped prefix of a column name ("Mg" in "Mg 280.270 nm ppm").
func LeadingElement(column string) string {
	m := reLeadingElement.FindStringSubmatch(strings.TrimSpace(column))
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// ContainsWord reports whether word occurs in s as a whole word, case-insensitively.
func ContainsWord(s, word string) bool {
	if word == "" {
		return false
	}
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func SplitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
