package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"chemrecon/internal"
)

const MatchedResultsFileName = "ICP_OES_Matched_Results.xlsx"

func matchHeaders(payloadColumns []string) []string {
	return append([]string{"ICP_OES_File", "ICP_ID", "Main_ID", "Confidence_Score", "Confidence_Level"}, payloadColumns...)
}

func matchRecord(m internal.Match, payloadColumns []string) []any {
	row := []any{m.Run, m.SourceID, m.TargetID, m.Confidence, string(internal.LevelFor(m.Confidence))}
	for _, col := range payloadColumns {
		row = append(row, m.TargetPayload.Value(col))
	}
	return row
}

// ExportMatchedResults writes every match of every run to All_Matches and one
// line per run to Summary_By_Run.
func ExportMatchedResults(results []RunResult, payloadColumns []string, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	matchesSheet := "All_Matches"
	if err := f.SetSheetName(f.GetSheetName(0), matchesSheet); err != nil {
		return err
	}
	if err := writeSheetRow(f, matchesSheet, 1, toAny(matchHeaders(payloadColumns))); err != nil {
		return err
	}
	r := 2
	for _, res := range results {
		for _, m := range res.Matches {
			if err := writeSheetRow(f, matchesSheet, r, matchRecord(m, payloadColumns)); err != nil {
				return err
			}
			r++
		}
	}

	summarySheet := "Summary_By_Run"
	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	headers := []any{"ICP_OES_File", "Run_ID", "Total_Samples", "Matched_Samples", "Match_Rate_%", "Available_Analytes", "Standards_Sheet", "Final_Sheet"}
	if err := writeSheetRow(f, summarySheet, 1, headers); err != nil {
		return err
	}
	for i, res := range results {
		s := res.Summary
		standards := s.StandardsSheet
		if standards == "" {
			standards = "Not found"
		}
		row := []any{s.File, s.RunID, s.TotalSamples, s.MatchedSamples, s.MatchRatePercent(), strings.Join(s.Analytes, ", "), standards, s.DataSheet}
		if err := writeSheetRow(f, summarySheet, i+2, row); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

// WriteMatchesCSV writes the All_Matches rows as CSV.
func WriteMatchesCSV(w io.Writer, results []RunResult, payloadColumns []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(matchHeaders(payloadColumns)); err != nil {
		return err
	}
	for _, res := range results {
		for _, m := range res.Matches {
			rec := matchRecord(m, payloadColumns)
			line := make([]string, len(rec))
			for i, v := range rec {
				line[i] = fmt.Sprint(v)
			}
			if err := cw.Write(line); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func ExportMatchesCSV(results []RunResult, payloadColumns []string, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	if err := WriteMatchesCSV(f, results, payloadColumns); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ExportTableCSV writes a table with its header row, cells in header order.
func ExportTableCSV(table internal.Table, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Headers); err != nil {
		return err
	}
	for _, row := range table.Rows {
		line := make([]string, len(table.Headers))
		for i, h := range table.Headers {
			line[i] = row[h]
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeSheetRow(f *excelize.File, sheet string, rowIdx int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowIdx)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
