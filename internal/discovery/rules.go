// Package discovery recognises what spreadsheet columns hold: sample
// identifiers, concentrations or instrument intensities.
package discovery

import (
	"regexp"

	"chemrecon/internal/config"
	"chemrecon/internal/util"
)

type Role string

const (
	RoleNone          Role = ""
	RoleIdentifier    Role = "identifier"
	RoleConcentration Role = "concentration"
	RoleIntensity     Role = "intensity"
)

// Predicate receives a header already folded by util.NormalizeHeader.
type Predicate func(header string) bool

type Rule struct {
	Role  Role
	Match Predicate
}

// RuleSet is an ordered list of rules. Classify honours the order; Has does not.
type RuleSet struct {
	rules                 []Rule
	concentrationKeywords []string
	intensityKeywords     []string
	identifierKeywords    []string
	elements              []string
}

var wavelengthPattern = regexp.MustCompile(`\d{3}`)

func Keywords(keywords ...string) Predicate {
	folded := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = util.NormalizeHeader(kw); kw != "" {
			folded = append(folded, kw)
		}
	}
	return func(header string) bool {
		return util.ContainsAny(header, folded)
	}
}

func Pattern(re *regexp.Regexp) Predicate {
	return func(header string) bool { return re.MatchString(header) }
}

func Not(p Predicate) Predicate {
	return func(header string) bool { return !p(header) }
}

func All(ps ...Predicate) Predicate {
	return func(header string) bool {
		for _, p := range ps {
			if !p(header) {
				return false
			}
		}
		return true
	}
}

func NewRuleSet(rules ...Rule) RuleSet {
	return RuleSet{rules: append([]Rule(nil), rules...)}
}

// DefaultRules builds the rule order used for instrument exports:
// intensity keywords win over concentration keywords, a bare wavelength
// marks an intensity column unless it also names a concentration unit.
func DefaultRules(d config.Discovery) RuleSet {
	intensity := Keywords(d.IntensityKeywords...)
	concentration := Keywords(d.ConcentrationKeywords...)
	rs := NewRuleSet(
		Rule{Role: RoleIntensity, Match: intensity},
		Rule{Role: RoleConcentration, Match: concentration},
		Rule{Role: RoleIntensity, Match: All(Pattern(wavelengthPattern), Not(concentration))},
		Rule{Role: RoleIdentifier, Match: Keywords(d.IdentifierKeywords...)},
	)
	rs.concentrationKeywords = foldAll(d.ConcentrationKeywords)
	rs.intensityKeywords = foldAll(d.IntensityKeywords)
	rs.identifierKeywords = foldAll(d.IdentifierKeywords)
	rs.elements = append([]string(nil), d.Elements...)
	return rs
}

func (rs RuleSet) Classify(header string) Role {
	h := util.NormalizeHeader(header)
	for _, r := range rs.rules {
		if r.Match(h) {
			return r.Role
		}
	}
	return RoleNone
}

func (rs RuleSet) Has(header string, role Role) bool {
	h := util.NormalizeHeader(header)
	for _, r := range rs.rules {
		if r.Role == role && r.Match(h) {
			return true
		}
	}
	return false
}

// Columns returns the headers with the given role, in header order. Identifier
// columns are matched with Has so that a header such as "Sample Name" counts
// even though it is never a measurement.
func (rs RuleSet) Columns(headers []string, role Role) []string {
	out := []string{}
	for _, h := range headers {
		if role == RoleIdentifier {
			if rs.Has(h, role) {
				out = append(out, h)
			}
			continue
		}
		if rs.Classify(h) == role {
			out = append(out, h)
		}
	}
	return out
}

// IdentifierColumns returns identifier columns or, when none is recognised,
// the first column and fallback=true.
func (rs RuleSet) IdentifierColumns(headers []string) (cols []string, fallback bool) {
	cols = rs.Columns(headers, RoleIdentifier)
	if len(cols) > 0 || len(headers) == 0 {
		return cols, false
	}
	return []string{headers[0]}, true
}

func (rs RuleSet) HasConcentrationKeyword(header string) bool {
	return util.ContainsAny(util.NormalizeHeader(header), rs.concentrationKeywords)
}

func (rs RuleSet) HasIntensityKeyword(header string) bool {
	return util.ContainsAny(util.NormalizeHeader(header), rs.intensityKeywords)
}

func (rs RuleSet) Elements() []string {
	return append([]string(nil), rs.elements...)
}

func foldAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if f := util.NormalizeHeader(s); f != "" {
			out = append(out, f)
		}
	}
	return out
}
