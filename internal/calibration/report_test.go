package calibration

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReportFileName(t *testing.T) {
	assert.Equal(t, "Calibration_Report_run1.xlsx", ReportFileName("/data/runs/run1.xlsx"))
	assert.Equal(t, "Calibration_Report_run 7.xlsx", ReportFileName("run 7.csv"))
}

func TestExportReport(t *testing.T) {
	s := loadedSession(t)
	_, err := s.SelectAnalyte("Mg")
	require.NoError(t, err)
	_, err = s.ToggleExclusion("Mg", 1)
	require.NoError(t, err)
	_, err = s.SelectAnalyte("Ca")
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "reports", ReportFileName(s.Run().Name))
	require.NoError(t, ExportReport(s.Run(), s.States(), out))

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Points_Ca", "Points_Mg"}, f.GetSheetList())

	rows, err := f.GetRows("Summary")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Analyte", "Channel", "Wavelength", "View", "R_squared", "RMSE", "Slope", "Intercept", "Points_Used", "Points_Total", "Quality"}, rows[0])
	assert.Equal(t, "Ca", rows[1][0])
	assert.Equal(t, ca317, rows[1][1])
	assert.Equal(t, "317.933 nm", rows[1][2])
	assert.Equal(t, "4", rows[1][8])
	assert.Equal(t, "Mg", rows[2][0])
	assert.Equal(t, "2", rows[2][8])
	assert.Equal(t, "3", rows[2][9])
	assert.Equal(t, "Excellent", rows[2][10])

	points, err := f.GetRows("Points_Mg")
	require.NoError(t, err)
	require.Len(t, points, 4)
	assert.Equal(t, "B", points[2][1])
	assert.Equal(t, "FALSE", points[2][4])
}

func TestExportReportNeedsStates(t *testing.T) {
	s := loadedSession(t)
	err := ExportReport(s.Run(), nil, filepath.Join(t.TempDir(), "r.xlsx"))
	assert.Error(t, err)
	assert.ErrorIs(t, ExportReport(nil, nil, "r.xlsx"), ErrNoRunLoaded)
}
