package pipeline

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"chemrecon/internal"
	"chemrecon/internal/discovery"
	"chemrecon/internal/util"
)

type ImportAction string

const (
	ImportUpdate ImportAction = "update"
	ImportCreate ImportAction = "create"
)

const masterOutputSheet = "Data"

type ColumnMapping struct {
	RunColumn    string       `json:"runColumn"`
	MasterColumn string       `json:"masterColumn"`
	Action       ImportAction `json:"action"`
}

type Change struct {
	Column string       `json:"column"`
	Value  string       `json:"value"`
	Action ImportAction `json:"action"`
}

type SampleUpdate struct {
	SampleID string   `json:"sampleId"`
	Changes  []Change `json:"changes"`
}

type ImportPreview struct {
	Run        string          `json:"run"`
	Mappings   []ColumnMapping `json:"mappings"`
	Updates    []SampleUpdate  `json:"updates"`
	NewColumns []string        `json:"newColumns"`
}

// MapColumns maps each concentration column of a run onto the master column
// for the same element. A master column named exactly "<el>_ppm" is preferred;
// unmapped columns are created under their run name.
func MapColumns(runHeaders, masterHeaders []string, rules discovery.RuleSet, masterKeywords []string) []ColumnMapping {
	folded := make([]string, 0, len(masterKeywords))
	for _, kw := range masterKeywords {
		folded = append(folded, strings.ToLower(kw))
	}

	out := []ColumnMapping{}
	for _, col := range runHeaders {
		if !rules.HasConcentrationKeyword(col) || rules.HasIntensityKeyword(col) {
			continue
		}
		m := ColumnMapping{RunColumn: col, MasterColumn: col, Action: ImportCreate}
		if master := masterColumnFor(col, masterHeaders, folded); master != "" {
			m.MasterColumn = master
			m.Action = ImportUpdate
		}
		out = append(out, m)
	}
	return out
}

func masterColumnFor(runColumn string, masterHeaders, keywords []string) string {
	el := strings.ToLower(util.LeadingElement(runColumn))
	if el == "" {
		return ""
	}
	var candidates []string
	for _, h := range masterHeaders {
		lower := strings.ToLower(h)
		if strings.Contains(lower, el) && util.ContainsAny(lower, keywords) {
			candidates = append(candidates, h)
		}
	}
	for _, c := range candidates {
		if strings.ToLower(c) == el+"_ppm" {
			return c
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return ""
}

// BuildImportPreview lists the values a run's matched rows would write into
// the master register.
func BuildImportPreview(res RunResult, masterHeaders []string, rules discovery.RuleSet, masterKeywords []string) ImportPreview {
	p := ImportPreview{
		Run:        res.Summary.File,
		Mappings:   MapColumns(res.Data.Headers, masterHeaders, rules, masterKeywords),
		Updates:    []SampleUpdate{},
		NewColumns: []string{},
	}
	for _, m := range p.Mappings {
		if m.Action == ImportCreate {
			p.NewColumns = append(p.NewColumns, m.MasterColumn)
		}
	}
	for _, match := range res.Matches {
		u := SampleUpdate{SampleID: match.TargetID, Changes: make([]Change, 0, len(p.Mappings))}
		for _, m := range p.Mappings {
			u.Changes = append(u.Changes, Change{Column: m.MasterColumn, Value: match.SourceRow.Value(m.RunColumn), Action: m.Action})
		}
		p.Updates = append(p.Updates, u)
	}
	return p
}

// BackupPath is "<name>_backup_<YYYY-MM-DD>.xlsx" next to the master workbook.
func BackupPath(masterPath string, now time.Time) string {
	base := strings.TrimSuffix(filepath.Base(masterPath), filepath.Ext(masterPath))
	return filepath.Join(filepath.Dir(masterPath), fmt.Sprintf("%s_backup_%s.xlsx", base, now.Format("2006-01-02")))
}

// ApplyImport backs the master workbook up, adds the preview's new columns,
// writes its values into the rows whose idColumn equals the sample id and saves
// the register back as a single Data sheet. It returns the backup path.
func ApplyImport(masterPath, sheet, idColumn string, preview ImportPreview, now time.Time) (string, error) {
	if !strings.EqualFold(filepath.Ext(masterPath), ".xlsx") {
		return "", fmt.Errorf("%w: import writes xlsx master workbooks only, got %s", ErrUnsupportedFormat, filepath.Base(masterPath))
	}
	wb, err := ReadWorkbook(masterPath)
	if err != nil {
		return "", err
	}
	table, ok := wb.Sheet(sheet)
	if sheet == "" && len(wb.Tables) > 0 {
		table, ok = wb.Tables[0], true
	}
	if !ok {
		return "", fmt.Errorf("master sheet %q not found", sheet)
	}
	if !table.HasColumn(idColumn) {
		return "", fmt.Errorf("master sheet %q has no %q column", table.Name, idColumn)
	}

	backup := BackupPath(masterPath, now)
	if err := copyFile(masterPath, backup); err != nil {
		return "", fmt.Errorf("backup master workbook: %w", err)
	}

	headers := append([]string(nil), table.Headers...)
	for _, col := range preview.NewColumns {
		if !containsString(headers, col) {
			headers = append(headers, col)
		}
	}
	for _, u := range preview.Updates {
		for _, row := range table.Rows {
			if row.Value(idColumn) != u.SampleID {
				continue
			}
			for _, c := range u.Changes {
				row[c.Column] = c.Value
			}
			break
		}
	}

	if err := writeMaster(masterPath, headers, table.Rows); err != nil {
		return backup, err
	}
	return backup, nil
}

func writeMaster(path string, headers []string, rows []internal.Row) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), masterOutputSheet); err != nil {
		return err
	}
	if err := writeSheetRow(f, masterOutputSheet, 1, toAny(headers)); err != nil {
		return err
	}
	for i, row := range rows {
		values := make([]any, len(headers))
		for j, h := range headers {
			values[j] = cellValue(row[h])
		}
		if err := writeSheetRow(f, masterOutputSheet, i+2, values); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

// cellValue keeps numeric text numeric in the saved workbook.
func cellValue(s string) any {
	t := strings.TrimSpace(s)
	if t == "" {
		return ""
	}
	if v, err := strconv.ParseFloat(t, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return v
	}
	return s
}

func copyFile(src, dst string) error {
	if src == dst {
		return errors.New("backup path equals source path")
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
