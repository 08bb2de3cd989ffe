package storage

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chemrecon/internal"
)

func sampleReport() Report {
	return Report{
		Runs: []internal.RunSummary{{
			RunID: "run-1", File: "run_b.xlsx", DataSheet: "Final", StandardsSheet: "Calibration",
			Analytes: []string{"Ca", "Mg"}, TotalSamples: 3, MatchedSamples: 2,
		}},
		Matches: []internal.Match{
			{Run: "run_b.xlsx", SourceID: "s001", TargetID: "S-001", Confidence: 1, SourceRowIndex: 0, TargetPayload: internal.Row{"Date": "2024-01-01"}},
			{Run: "run_b.xlsx", SourceID: "S-002x", TargetID: "S-002", Confidence: 0.75, SourceRowIndex: 2},
		},
		Calibrations: []Calibration{
			{Run: "run_b.xlsx", Analyte: "Mg", Channel: "Mg 280.270 nm Intensity", Wavelength: "280.270 nm", View: "Unknown",
				Slope: 0.01, RSquared: 1, PointsUsed: 2, PointsTotal: 3, Excluded: []int{1}, Quality: "Excellent"},
		},
	}
}

func TestExportReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.db")
	require.NoError(t, ExportReport(path, sampleReport()))
	// A second export starts from an empty file.
	require.NoError(t, ExportReport(path, sampleReport()))

	conn, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer conn.Close()

	var runs, matchRate int
	var analytes string
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*), MAX(matchRate), MAX(analytes) FROM runs`).Scan(&runs, &matchRate, &analytes))
	assert.Equal(t, 1, runs)
	assert.Equal(t, 67, matchRate)
	assert.Equal(t, "Ca,Mg", analytes)

	var level, payload string
	require.NoError(t, conn.QueryRow(`SELECT confidenceLevel, payloadJson FROM matches WHERE targetId = 'S-002'`).Scan(&level, &payload))
	assert.Equal(t, "Medium", level)
	assert.Equal(t, "null", payload)

	var matches int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM matches`).Scan(&matches))
	assert.Equal(t, 2, matches)

	var excluded, quality string
	require.NoError(t, conn.QueryRow(`SELECT excludedJson, quality FROM calibrations WHERE analyte = 'Mg'`).Scan(&excluded, &quality))
	assert.Equal(t, "[1]", excluded)
	assert.Equal(t, "Excellent", quality)
}
