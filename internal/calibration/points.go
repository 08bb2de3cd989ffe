package calibration

import (
	"fmt"

	"chemrecon/internal"
	"chemrecon/internal/discovery"
	"chemrecon/internal/util"
)

// Point is one standard measured on one channel. Index is the row position in
// the standards table and is the key used for exclusions.
type Point struct {
	Index         int     `json:"index"`
	Label         string  `json:"label"`
	Concentration float64 `json:"concentration"`
	Intensity     float64 `json:"intensity"`
	Excluded      bool    `json:"excluded"`
}

type Extraction struct {
	IntensityColumn     string
	ConcentrationColumn string
	Points              []Point
	Reason              internal.Reason
}

// ExtractPoints pairs intensityColumn with its concentration column and reads one
// point per standards row where both cells hold finite numbers.
func ExtractPoints(std Standards, channels discovery.ChannelTable, intensityColumn string) Extraction {
	out := Extraction{IntensityColumn: intensityColumn, Points: []Point{}}

	concCol, reason := channels.ConcentrationFor(intensityColumn)
	if concCol == "" {
		out.Reason = reason
		return out
	}
	out.ConcentrationColumn = concCol

	labelCol := ""
	if cols, _ := channels.Rules().IdentifierColumns(std.Table.Headers); len(cols) > 0 {
		labelCol = cols[0]
	}

	for i, row := range std.Table.Rows {
		conc, okC := util.ParseNumber(row[concCol])
		inten, okI := util.ParseNumber(row[intensityColumn])
		if !okC || !okI {
			continue
		}
		out.Points = append(out.Points, Point{
			Index:         i,
			Label:         pointLabel(std, row, labelCol, i),
			Concentration: conc,
			Intensity:     inten,
		})
	}
	return out
}

func pointLabel(std Standards, row internal.Row, labelCol string, i int) string {
	if i < len(std.Labels) && std.Labels[i] != "" {
		return std.Labels[i]
	}
	if labelCol != "" {
		if v := row.Value(labelCol); v != "" {
			return v
		}
	}
	return fmt.Sprintf("Point %d", i+1)
}

func includedPoints(points []Point) []Point {
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if !p.Excluded {
			out = append(out, p)
		}
	}
	return out
}
