package discovery

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"chemrecon/internal"
	"chemrecon/internal/util"
)

type View string

const (
	ViewAxial   View = "Axial"
	ViewRadial  View = "Radial"
	ViewUnknown View = "Unknown"
)

// Channel describes one measurement column of an instrument export.
// Intensity channels carry the concentration column they pair with.
type Channel struct {
	Column              string          `json:"column"`
	Element             string          `json:"element,omitempty"`
	Wavelength          string          `json:"wavelength"`
	View                View            `json:"view"`
	Kind                Role            `json:"kind"`
	ConcentrationColumn string          `json:"concentrationColumn,omitempty"`
	Reason              internal.Reason `json:"reason,omitempty"`
}

// ChannelTable is derived once per loaded dataset.
type ChannelTable struct {
	headers  []string
	rules    RuleSet
	ordered  []Channel
	byColumn map[string]int
}

var (
	reWavelength     = regexp.MustCompile(`(\d{3}(?:\.\d+)?)`)
	reIntensitySufx  = regexp.MustCompile(`(?i)[_\s]?inten(sity)?`)
	reCPSSuffix      = regexp.MustCompile(`(?i)[_\s]?cps`)
	reIntensityAgain = regexp.MustCompile(`(?i)[_\s]?intensity`)
)

func DeriveChannels(headers []string, rules RuleSet) ChannelTable {
	t := ChannelTable{
		headers:  append([]string(nil), headers...),
		rules:    rules,
		byColumn: map[string]int{},
	}
	for _, h := range headers {
		kind := rules.Classify(h)
		if kind != RoleIntensity && kind != RoleConcentration {
			continue
		}
		ch := Channel{
			Column:     h,
			Element:    util.LeadingElement(h),
			Wavelength: parseWavelength(h),
			View:       parseView(h),
			Kind:       kind,
		}
		if kind == RoleIntensity {
			ch.ConcentrationColumn, ch.Reason = ResolveConcentrationColumn(headers, h, rules)
		}
		t.byColumn[h] = len(t.ordered)
		t.ordered = append(t.ordered, ch)
	}
	return t
}

func (t ChannelTable) Rules() RuleSet {
	return t.rules
}

// ConcentrationFor returns the concentration column paired with an intensity
// column. Columns outside the table are resolved on demand.
func (t ChannelTable) ConcentrationFor(column string) (string, internal.Reason) {
	if ch, ok := t.Channel(column); ok && ch.Kind == RoleIntensity {
		return ch.ConcentrationColumn, ch.Reason
	}
	return ResolveConcentrationColumn(t.headers, column, t.rules)
}

func (t ChannelTable) Channel(column string) (Channel, bool) {
	i, ok := t.byColumn[column]
	if !ok {
		return Channel{}, false
	}
	return t.ordered[i], true
}

// ForAnalyte lists the intensity channels whose header names the analyte as a whole word.
func (t ChannelTable) ForAnalyte(analyte string) []Channel {
	out := []Channel{}
	for _, ch := range t.ordered {
		if ch.Kind == RoleIntensity && util.ContainsWord(ch.Column, analyte) {
			out = append(out, ch)
		}
	}
	return out
}

// Analytes lists the configured elements found in measurement headers, sorted.
func (t ChannelTable) Analytes() []string {
	seen := map[string]struct{}{}
	for _, ch := range t.ordered {
		for _, el := range t.rules.elements {
			if util.ContainsWord(ch.Column, el) {
				seen[el] = struct{}{}
				break
			}
		}
	}
	out := make([]string, 0, len(seen))
	for el := range seen {
		out = append(out, el)
	}
	sort.Strings(out)
	return out
}

// ResolveConcentrationColumn pairs an intensity column with its concentration
// sibling: first by the intensity header with its intensity/CPS suffix removed,
// then by leading element symbol among non-intensity concentration headers.
func ResolveConcentrationColumn(headers []string, intensityColumn string, rules RuleSet) (string, internal.Reason) {
	base := util.NormalizeHeader(BaseName(intensityColumn))
	if base != "" {
		for _, h := range headers {
			if h == intensityColumn {
				continue
			}
			if rules.HasConcentrationKeyword(h) && strings.Contains(util.NormalizeHeader(h), base) {
				return h, internal.ReasonNone
			}
		}
	}

	if el := strings.ToLower(util.LeadingElement(intensityColumn)); el != "" {
		for _, h := range headers {
			if h == intensityColumn {
				continue
			}
			lower := util.NormalizeHeader(h)
			if strings.Contains(lower, el) && rules.HasConcentrationKeyword(h) && !rules.HasIntensityKeyword(h) {
				return h, internal.ReasonNone
			}
		}
	}
	return "", internal.ReasonNoConcentrationColumn
}

// BaseName strips the intensity or CPS marker from an intensity header
// ("Ba R 233.527 nm Intensity" -> "Ba R 233.527 nm").
func BaseName(column string) string {
	s := replaceFirst(reIntensitySufx, column)
	s = replaceFirst(reCPSSuffix, s)
	s = replaceFirst(reIntensityAgain, s)
	return strings.TrimSpace(s)
}

func replaceFirst(re *regexp.Regexp, s string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + s[loc[1]:]
}

func parseWavelength(column string) string {
	m := reWavelength.FindStringSubmatch(column)
	if len(m) < 2 {
		return "Unknown"
	}
	return m[1] + " nm"
}

func parseView(column string) View {
	tokens := strings.FieldsFunc(strings.ToLower(column), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		switch tok {
		case "ax", "axial":
			return ViewAxial
		case "r", "rad", "radial":
			return ViewRadial
		}
	}
	return ViewUnknown
}
