package calibration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReportFileName is the calibration report name used for a run file.
func ReportFileName(run string) string {
	base := strings.TrimSuffix(filepath.Base(run), filepath.Ext(run))
	return "Calibration_Report_" + base + ".xlsx"
}

// ExportReport writes a Summary sheet with one row per calibrated analyte and a
// Points sheet per analyte listing every standard and its residual.
func ExportReport(run *Run, states []AnalyteState, outputPath string) error {
	if run == nil {
		return ErrNoRunLoaded
	}
	if len(states) == 0 {
		return fmt.Errorf("no calibration data to export for %s", run.Name)
	}

	f := excelize.NewFile()
	defer f.Close()

	summary := "Summary"
	if err := f.SetSheetName(f.GetSheetName(0), summary); err != nil {
		return err
	}
	headers := []any{"Analyte", "Channel", "Wavelength", "View", "R_squared", "RMSE", "Slope", "Intercept", "Points_Used", "Points_Total", "Quality"}
	if err := writeRow(f, summary, 1, headers); err != nil {
		return err
	}

	for i, st := range states {
		row := []any{st.Analyte, st.IntensityColumn, "", "", "", "", "", "", 0, len(st.Points), ""}
		if ch, ok := run.Channels.Channel(st.IntensityColumn); ok {
			row[2] = ch.Wavelength
			row[3] = string(ch.View)
		}
		if st.Model != nil {
			row[4] = st.Model.RSquared
			row[5] = st.Model.RMSE
			row[6] = st.Model.Slope
			row[7] = st.Model.Intercept
			row[8] = st.Model.NPointsUsed
			row[10] = string(Grade(st.Model.RSquared))
		} else if st.FitError != "" {
			row[10] = st.FitError
		}
		if err := writeRow(f, summary, i+2, row); err != nil {
			return err
		}

		if err := writePointsSheet(f, st); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func writePointsSheet(f *excelize.File, st AnalyteState) error {
	sheet := "Points_" + st.Analyte
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	if err := writeRow(f, sheet, 1, []any{"Index", "Label", "Concentration", "Intensity", "Included", "Predicted", "Residual", "Percent_Error"}); err != nil {
		return err
	}

	for i, p := range st.Points {
		row := []any{p.Index, p.Label, p.Concentration, p.Intensity, !p.Excluded, "", "", ""}
		if st.Model != nil && !p.Excluded {
			predicted := st.Model.Predict(p.Intensity)
			row[5] = predicted
			row[6] = p.Concentration - predicted
			if pe, ok := PercentError(p.Concentration, predicted); ok {
				row[7] = pe
			}
		}
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, rowIdx int, values []any) error {
	for c, v := range values {
		cell, err := excelize.CoordinatesToCellName(c+1, rowIdx)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}
