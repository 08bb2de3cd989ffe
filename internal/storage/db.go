// Package storage writes processing results to a standalone SQLite file.
// The file is an export artifact; nothing in chemrecon reads it back.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"chemrecon/internal"
)

type DB struct {
	conn *sql.DB
}

// Calibration is one analyte's fitted curve as exported.
type Calibration struct {
	Run         string
	Analyte     string
	Channel     string
	Wavelength  string
	View        string
	Slope       float64
	Intercept   float64
	RSquared    float64
	RMSE        float64
	PointsUsed  int
	PointsTotal int
	Excluded    []int
	Quality     string
}

type Report struct {
	Runs         []internal.RunSummary
	Matches      []internal.Match
	Calibrations []Calibration
}

// Create replaces any file at path with an empty report database.
func Create(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE runs (
  runId TEXT PRIMARY KEY,
  file TEXT NOT NULL,
  dataSheet TEXT NOT NULL,
  standardsSheet TEXT,
  analytes TEXT NOT NULL,
  totalSamples INTEGER NOT NULL,
  matchedSamples INTEGER NOT NULL,
  matchRate INTEGER NOT NULL,
  identifierFallback INTEGER NOT NULL,
  exportedAt TEXT NOT NULL
);

CREATE TABLE matches (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  file TEXT NOT NULL,
  sourceRowIndex INTEGER NOT NULL,
  sourceId TEXT NOT NULL,
  targetId TEXT NOT NULL,
  confidence REAL NOT NULL,
  confidenceLevel TEXT NOT NULL,
  payloadJson TEXT NOT NULL
);
CREATE INDEX idx_matches_target ON matches(targetId);

CREATE TABLE calibrations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  file TEXT NOT NULL,
  analyte TEXT NOT NULL,
  channel TEXT NOT NULL,
  wavelength TEXT,
  view TEXT,
  slope REAL NOT NULL,
  intercept REAL NOT NULL,
  rSquared REAL NOT NULL,
  rmse REAL NOT NULL,
  pointsUsed INTEGER NOT NULL,
  pointsTotal INTEGER NOT NULL,
  excludedJson TEXT NOT NULL,
  quality TEXT NOT NULL,
  UNIQUE(file, analyte)
);
`
	_, err := d.conn.Exec(schema)
	return err
}

// WriteReport stores the whole report in one transaction.
func (d *DB) WriteReport(r Report) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	runStmt, err := tx.Prepare(`
INSERT INTO runs (runId, file, dataSheet, standardsSheet, analytes, totalSamples, matchedSamples, matchRate, identifierFallback, exportedAt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer runStmt.Close()
	for _, s := range r.Runs {
		if _, err := runStmt.Exec(s.RunID, s.File, s.DataSheet, nullable(s.StandardsSheet), strings.Join(s.Analytes, ","),
			s.TotalSamples, s.MatchedSamples, s.MatchRatePercent(), s.IdentifierFallback, now); err != nil {
			return err
		}
	}

	matchStmt, err := tx.Prepare(`
INSERT INTO matches (file, sourceRowIndex, sourceId, targetId, confidence, confidenceLevel, payloadJson)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer matchStmt.Close()
	for _, m := range r.Matches {
		payload, err := json.Marshal(m.TargetPayload)
		if err != nil {
			return err
		}
		if _, err := matchStmt.Exec(m.Run, m.SourceRowIndex, m.SourceID, m.TargetID, m.Confidence,
			string(internal.LevelFor(m.Confidence)), string(payload)); err != nil {
			return err
		}
	}

	calStmt, err := tx.Prepare(`
INSERT INTO calibrations (file, analyte, channel, wavelength, view, slope, intercept, rSquared, rmse, pointsUsed, pointsTotal, excludedJson, quality)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(file, analyte) DO UPDATE SET
  channel=excluded.channel,
  wavelength=excluded.wavelength,
  view=excluded.view,
  slope=excluded.slope,
  intercept=excluded.intercept,
  rSquared=excluded.rSquared,
  rmse=excluded.rmse,
  pointsUsed=excluded.pointsUsed,
  pointsTotal=excluded.pointsTotal,
  excludedJson=excluded.excludedJson,
  quality=excluded.quality`)
	if err != nil {
		return err
	}
	defer calStmt.Close()
	for _, c := range r.Calibrations {
		excluded := c.Excluded
		if excluded == nil {
			excluded = []int{}
		}
		excludedJSON, _ := json.Marshal(excluded)
		if _, err := calStmt.Exec(c.Run, c.Analyte, c.Channel, nullable(c.Wavelength), nullable(c.View),
			c.Slope, c.Intercept, c.RSquared, c.RMSE, c.PointsUsed, c.PointsTotal, string(excludedJSON), c.Quality); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ExportReport creates path and writes r into it.
func ExportReport(path string, r Report) error {
	db, err := Create(path)
	if err != nil {
		return err
	}
	if err := db.WriteReport(r); err != nil {
		_ = db.Close()
		return err
	}
	return db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
