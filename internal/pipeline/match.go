package pipeline

import (
	"strings"
	"unicode/utf8"

	"chemrecon/internal"
	"chemrecon/internal/catalog"
	"chemrecon/internal/discovery"
	"chemrecon/internal/util"
)

// minIDLength is the shortest trimmed identifier a row may be matched on.
const minIDLength = 2

// Matcher links run rows to canonical records by fuzzy identifier similarity.
type Matcher struct {
	catalog   *catalog.Catalog
	rules     discovery.RuleSet
	threshold float64
}

func NewMatcher(cat *catalog.Catalog, rules discovery.RuleSet, threshold float64) *Matcher {
	return &Matcher{catalog: cat, rules: rules, threshold: threshold}
}

// IdentifierColumns returns the columns rows are matched on. When no header
// looks like an identifier the first column is used and reported.
func (m *Matcher) IdentifierColumns(table internal.Table) ([]string, internal.Reason) {
	cols, fallback := m.rules.IdentifierColumns(table.Headers)
	if fallback {
		return cols, internal.ReasonNoIdentifierColumn
	}
	return cols, internal.ReasonNone
}

// MatchRows returns one Match per row whose best canonical score exceeds the
// threshold, in row order. The table is not modified.
func (m *Matcher) MatchRows(table internal.Table) []internal.Match {
	cols, _ := m.IdentifierColumns(table)
	out := []internal.Match{}
	if m.catalog == nil || m.catalog.Len() == 0 || len(cols) == 0 {
		return out
	}

	for i, row := range table.Rows {
		value := identifierValue(row, cols)
		if value == "" {
			continue
		}
		rec, score, ok := m.Best(value)
		// A NaN threshold matches nothing.
		if !ok || !(score > m.threshold) {
			continue
		}
		out = append(out, internal.Match{
			SourceID:       value,
			TargetID:       rec.ID,
			Confidence:     score,
			SourceRowIndex: i,
			SourceRow:      row,
			TargetPayload:  rec.Attributes,
		})
	}
	return out
}

// Best scores id against every canonical record and keeps the first record
// with the highest score. Records scoring zero are never returned.
func (m *Matcher) Best(id string) (internal.CanonicalRecord, float64, bool) {
	norm := util.NormalizeID(id)
	if i, ok := m.catalog.Exact(norm); ok {
		return m.catalog.Record(i), 1.0, true
	}

	best, bestScore := -1, 0.0
	for i := 0; i < m.catalog.Len(); i++ {
		score := util.Similarity(norm, m.catalog.Normalized(i))
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return internal.CanonicalRecord{}, 0, false
	}
	return m.catalog.Record(best), bestScore, true
}

// identifierValue is the first candidate column value long enough to match on.
func identifierValue(row internal.Row, cols []string) string {
	for _, col := range cols {
		v := strings.TrimSpace(row[col])
		if utf8.RuneCountInString(v) >= minIDLength {
			return v
		}
	}
	return ""
}
