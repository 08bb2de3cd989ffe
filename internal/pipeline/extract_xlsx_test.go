package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type sheetRows struct {
	name string
	rows [][]any
}

func mkXLSX(t *testing.T, sheets ...sheetRows) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, s := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName(f.GetSheetName(0), s.name))
		} else {
			_, err := f.NewSheet(s.name)
			require.NoError(t, err)
		}
		for r, row := range s.rows {
			for c, v := range row {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
				require.NoError(t, f.SetCellValue(s.name, cell, v))
			}
		}
	}
	buf := bytes.NewBuffer(nil)
	_, err := f.WriteTo(buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func writeXLSX(t *testing.T, dir, name string, sheets ...sheetRows) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, mkXLSX(t, sheets...), 0o644))
	return path
}

func TestParseXLSX(t *testing.T) {
	blob := mkXLSX(t,
		sheetRows{name: "Raw", rows: [][]any{{"x"}}},
		sheetRows{name: "Final", rows: [][]any{
			{},
			{"Sample ID", "Mg 280.270 nm ppm", "", "Mg 280.270 nm ppm"},
			{"S-001", 12.5, "note", 13},
			{},
			{"S-002", "n/a"},
		}},
	)

	wb, err := ParseWorkbook("run.xlsx", blob)
	require.NoError(t, err)
	require.Equal(t, []string{"Raw", "Final"}, wb.SheetNames())

	final, ok := wb.Sheet("Final")
	require.True(t, ok)
	assert.Equal(t, []string{"Sample ID", "Mg 280.270 nm ppm", "Column 3", "Mg 280.270 nm ppm_1"}, final.Headers)
	require.Len(t, final.Rows, 2)
	assert.Equal(t, "S-001", final.Rows[0]["Sample ID"])
	assert.Equal(t, "12.5", final.Rows[0]["Mg 280.270 nm ppm"])
	assert.Equal(t, "13", final.Rows[0]["Mg 280.270 nm ppm_1"])
	assert.Equal(t, "", final.Rows[1]["Column 3"])
}

func TestParseCSV(t *testing.T) {
	content := "\xef\xbb\xbfSample ID,Ca ppm\nS-1,1.5\n\nS-2,\"2,5\"\n"
	wb, err := ParseWorkbook("Run 7.csv", []byte(content))
	require.NoError(t, err)
	require.Len(t, wb.Tables, 1)

	table := wb.Tables[0]
	assert.Equal(t, "Run 7", table.Name)
	assert.Equal(t, []string{"Sample ID", "Ca ppm"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "2,5", table.Rows[1]["Ca ppm"])
}

func TestParseWorkbookUnsupported(t *testing.T) {
	_, err := ParseWorkbook("run.pdf", []byte("%PDF"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.False(t, SupportedExtension("run.pdf"))
	assert.True(t, SupportedExtension("RUN.XLSX"))
}
