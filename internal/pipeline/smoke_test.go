package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"chemrecon/internal"
	"chemrecon/internal/calibration"
	"chemrecon/internal/catalog"
	"chemrecon/internal/config"
)

func smokeConfig(dir string) config.Config {
	return config.Config{
		MatchThreshold:       0.6,
		StandardLabels:       []string{"A", "B", "C", "D", "E", "F", "G", "H", "I"},
		CanonicalPath:        filepath.Join(dir, "MainData.xlsx"),
		CanonicalIDColumn:    "Sample ID",
		RunsDir:              filepath.Join(dir, "runs"),
		OutputDir:            filepath.Join(dir, "out"),
		ExportPayloadColumns: []string{"Date"},
		BatchWorkers:         2,
		Discovery:            config.DefaultDiscovery(),
	}
}

func writeSmokeFixtures(t *testing.T, cfg config.Config) string {
	t.Helper()
	writeXLSX(t, filepath.Dir(cfg.CanonicalPath), filepath.Base(cfg.CanonicalPath), sheetRows{name: "Data", rows: [][]any{
		{"Sample ID", "Date", "Mg_ppm", "Ca mmol"},
		{"S-001", "2024-01-01", "", 1.5},
		{"S-002", "2024-01-02", "", 2.5},
		{"T-100", "2024-01-03", 9, ""},
	}})

	require.NoError(t, os.MkdirAll(cfg.RunsDir, 0o755))
	headers := []any{"Mg 280.270 nm ppm", "Mg 280.270 nm Intensity"}
	writeXLSX(t, cfg.RunsDir, "run_b.xlsx",
		sheetRows{name: "Calibration", rows: [][]any{
			append([]any{"Solution Label"}, headers...),
			{"A", 10, 1000},
			{"B", 5, 500},
			{"C", 1, 100},
		}},
		sheetRows{name: "Final Results", rows: [][]any{
			append([]any{"Sample Name"}, headers...),
			{"S-001", 3.3, 330},
			{"s_002", 4.1, 410},
			{"QC", 1, 100},
			{"Blank", 0, 2},
		}},
	)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.RunsDir, "run_a.xlsx"), []byte("not a workbook"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.RunsDir, "~$run_b.xlsx"), []byte("lock"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.RunsDir, "notes.txt"), []byte("x"), 0o644))
	return cfg.RunsDir
}

func TestSmokeRunsToExports(t *testing.T) {
	cfg := smokeConfig(t.TempDir())
	runsDir := writeSmokeFixtures(t, cfg)

	cat, err := catalog.NewSyncService(cfg, ParseWorkbook, nil).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, cat.Len())

	paths, err := ListRunFiles(runsDir)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, "run_a.xlsx", filepath.Base(paths[0]))

	proc := NewRunProcessor(cfg, cat, nil)
	items, err := proc.ProcessBatch(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Error(t, items[0].Err)
	require.NoError(t, items[1].Err)

	res := items[1].Result
	s := res.Summary
	assert.NotEmpty(t, s.RunID)
	assert.Equal(t, "run_b.xlsx", s.File)
	assert.Equal(t, "Final Results", s.DataSheet)
	assert.Equal(t, "Calibration", s.StandardsSheet)
	assert.Equal(t, []string{"Mg"}, s.Analytes)
	assert.Equal(t, 4, s.TotalSamples)
	assert.Equal(t, 2, s.MatchedSamples)
	assert.Equal(t, 50, s.MatchRatePercent())
	assert.Equal(t, []string{"Sample Name"}, s.IdentifierColumns)
	require.Len(t, res.Matches, 2)
	assert.Equal(t, "S-002", res.Matches[1].TargetID)
	assert.Equal(t, "run_b.xlsx", res.Matches[1].Run)

	session := calibration.NewSession(nil)
	session.LoadRun(res.CalibrationRun(proc.Rules()))
	st, err := session.SelectAnalyte("Mg")
	require.NoError(t, err)
	assert.InDelta(t, 0.01, st.Model.Slope, 1e-12)

	results := []RunResult{res}
	out := filepath.Join(cfg.OutputDir, MatchedResultsFileName)
	require.NoError(t, ExportMatchedResults(results, cfg.ExportPayloadColumns, out))

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"All_Matches", "Summary_By_Run"}, f.GetSheetList())

	rows, err := f.GetRows("All_Matches")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ICP_OES_File", "ICP_ID", "Main_ID", "Confidence_Score", "Confidence_Level", "Date"}, rows[0])
	assert.Equal(t, []string{"run_b.xlsx", "S-001", "S-001", "1", "High", "2024-01-01"}, rows[1])

	summary, err := f.GetRows("Summary_By_Run")
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, []string{"run_b.xlsx", s.RunID, "4", "2", "50", "Mg", "Calibration", "Final Results"}, summary[1])

	var buf bytes.Buffer
	require.NoError(t, WriteMatchesCSV(&buf, results, cfg.ExportPayloadColumns))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "run_b.xlsx,s_002,S-002,1,High,2024-01-02", lines[2])
}

func TestSmokeMasterImport(t *testing.T) {
	cfg := smokeConfig(t.TempDir())
	writeSmokeFixtures(t, cfg)

	cat, err := catalog.NewSyncService(cfg, ParseWorkbook, nil).Load(context.Background())
	require.NoError(t, err)
	res, err := NewRunProcessor(cfg, cat, nil).ProcessFile(context.Background(), filepath.Join(cfg.RunsDir, "run_b.xlsx"))
	require.NoError(t, err)

	preview := BuildImportPreview(res, cat.Headers, testRules(), cfg.Discovery.MasterConcentrationKeys)
	require.Len(t, preview.Mappings, 1)
	assert.Equal(t, ColumnMapping{RunColumn: "Mg 280.270 nm ppm", MasterColumn: "Mg_ppm", Action: ImportUpdate}, preview.Mappings[0])
	assert.Empty(t, preview.NewColumns)
	require.Len(t, preview.Updates, 2)
	assert.Equal(t, SampleUpdate{SampleID: "S-002", Changes: []Change{{Column: "Mg_ppm", Value: "4.1", Action: ImportUpdate}}}, preview.Updates[1])

	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	backup, err := ApplyImport(cfg.CanonicalPath, cfg.CanonicalSheet, cfg.CanonicalIDColumn, preview, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(cfg.CanonicalPath), "MainData_backup_2025-03-14.xlsx"), backup)

	old, err := ReadWorkbook(backup)
	require.NoError(t, err)
	oldData, _ := old.Sheet("Data")
	assert.Equal(t, "", oldData.Rows[0]["Mg_ppm"])

	updated, err := ReadWorkbook(cfg.CanonicalPath)
	require.NoError(t, err)
	require.Equal(t, []string{"Data"}, updated.SheetNames())
	data := updated.Tables[0]
	assert.Equal(t, []string{"Sample ID", "Date", "Mg_ppm", "Ca mmol"}, data.Headers)
	assert.Equal(t, "3.3", data.Rows[0]["Mg_ppm"])
	assert.Equal(t, "4.1", data.Rows[1]["Mg_ppm"])
	assert.Equal(t, "9", data.Rows[2]["Mg_ppm"])
}

func TestMapColumnsCreatesUnmapped(t *testing.T) {
	mappings := MapColumns(
		[]string{"Sample Name", "Fe 259.940 nm ppm", "Fe 259.940 nm Intensity", "Zn conc"},
		[]string{"Sample ID", "Fe mmol", "fe_ppm"},
		testRules(),
		config.DefaultDiscovery().MasterConcentrationKeys,
	)
	assert.Equal(t, []ColumnMapping{
		{RunColumn: "Fe 259.940 nm ppm", MasterColumn: "fe_ppm", Action: ImportUpdate},
		{RunColumn: "Zn conc", MasterColumn: "Zn conc", Action: ImportCreate},
	}, mappings)
}

func TestComputeStats(t *testing.T) {
	table := internal.Table{
		Headers: []string{"Sample", "pH", "TDS"},
		Rows: []internal.Row{
			{"Sample": "a", "pH": "7.0", "TDS": "n/a"},
			{"Sample": "b", "pH": "8.0", "TDS": ""},
			{"Sample": "c", "pH": "6.5"},
			{"Sample": "d", "pH": "7.5"},
		},
	}
	stats := ComputeStats(table)
	require.Len(t, stats, 1)
	assert.Equal(t, "pH", stats[0].Column)
	assert.Equal(t, 4, stats[0].Count)
	assert.InDelta(t, 7.25, stats[0].Mean, 1e-12)
	assert.Equal(t, 7.5, stats[0].Median)
	assert.Equal(t, 6.5, stats[0].Min)
	assert.Equal(t, 8.0, stats[0].Max)

	assert.Empty(t, ComputeStats(table, "TDS"))
}
