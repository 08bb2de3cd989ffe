package pipeline

import (
	"sort"

	"chemrecon/internal"
	"chemrecon/internal/util"
)

type ColumnStats struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// ComputeStats summarises the numeric cells of each requested column, or of
// every column when none is requested. Columns without a numeric cell are omitted.
// Median is the upper middle value for an even count.
func ComputeStats(table internal.Table, columns ...string) []ColumnStats {
	if len(columns) == 0 {
		columns = table.Headers
	}
	out := []ColumnStats{}
	for _, col := range columns {
		values := make([]float64, 0, len(table.Rows))
		for _, row := range table.Rows {
			if v, ok := util.ParseNumber(row[col]); ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}

		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		out = append(out, ColumnStats{
			Column: col,
			Count:  len(values),
			Mean:   sum / float64(len(values)),
			Median: sorted[len(sorted)/2],
			Min:    sorted[0],
			Max:    sorted[len(sorted)-1],
		})
	}
	return out
}
