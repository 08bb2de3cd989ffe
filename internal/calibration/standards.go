package calibration

import (
	"strings"

	"chemrecon/internal"
	"chemrecon/internal/discovery"
)

// Standards is the subset of a sheet's rows labelled as calibration standards,
// in sheet order. Labels[i] is the standard label of Table.Rows[i].
type Standards struct {
	Table  internal.Table
	Labels []string
}

func (s Standards) Len() int { return len(s.Table.Rows) }

// ExtractStandards keeps the rows whose identifier value, trimmed and
// uppercased, is one of the standard labels. Identifier columns are tried in
// order and the first hit labels the row.
func ExtractStandards(table internal.Table, rules discovery.RuleSet, labels []string) Standards {
	alphabet := map[string]struct{}{}
	for _, l := range labels {
		if l = strings.ToUpper(strings.TrimSpace(l)); l != "" {
			alphabet[l] = struct{}{}
		}
	}
	cols, _ := rules.IdentifierColumns(table.Headers)

	out := Standards{Table: internal.Table{Name: table.Name, Headers: table.Headers, Rows: []internal.Row{}}}
	for _, row := range table.Rows {
		for _, col := range cols {
			v := strings.ToUpper(row.Value(col))
			if _, ok := alphabet[v]; ok {
				out.Table.Rows = append(out.Table.Rows, row)
				out.Labels = append(out.Labels, v)
				break
			}
		}
	}
	return out
}
