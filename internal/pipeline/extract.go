package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"

	"chemrecon/internal"
)

var ErrUnsupportedFormat = errors.New("unsupported workbook format")

// SupportedExtension reports whether name looks like a workbook this package reads.
func SupportedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".csv", ".html", ".htm":
		return true
	default:
		return false
	}
}

func ReadWorkbook(path string) (internal.Workbook, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return internal.Workbook{}, fmt.Errorf("read workbook: %w", err)
	}
	wb, err := ParseWorkbook(filepath.Base(path), content)
	if err != nil {
		return internal.Workbook{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	wb.Path = path
	return wb, nil
}

// ParseWorkbook reads every sheet of an xlsx file, a csv file or the tables of an
// html export. The first non-empty row of each sheet is its header row.
func ParseWorkbook(name string, content []byte) (internal.Workbook, error) {
	var (
		tables []internal.Table
		err    error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		tables, err = parseXLSX(content)
	case ".csv":
		tables, err = parseCSV(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)), content)
	case ".html", ".htm":
		tables, err = parseHTMLTables(content)
	default:
		return internal.Workbook{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	if err != nil {
		return internal.Workbook{}, err
	}
	return internal.Workbook{Path: name, Tables: tables}, nil
}

func parseXLSX(content []byte) ([]internal.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := []internal.Table{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheet, err)
		}
		out = append(out, buildTable(sheet, rows))
	}
	return out, nil
}

func parseCSV(name string, content []byte) ([]internal.Table, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows := [][]string{}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return []internal.Table{buildTable(name, rows)}, nil
}

func parseHTMLTables(content []byte) ([]internal.Table, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	out := []internal.Table{}
	doc.Find("table").Each(func(i int, table *goquery.Selection) {
		rows := [][]string{}
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			cells := []string{}
			tr.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, normalizeSpaces(cell.Text()))
			})
			rows = append(rows, cells)
		})
		name := strings.TrimSpace(table.Find("caption").First().Text())
		if name == "" {
			name = fmt.Sprintf("Table%d", i+1)
		}
		out = append(out, buildTable(name, rows))
	})
	return out, nil
}

// buildTable turns raw rows into a header-keyed table. Blank header cells get a
// positional name and repeated headers get a numeric suffix so no value is lost.
func buildTable(name string, rows [][]string) internal.Table {
	t := internal.Table{Name: name, Rows: []internal.Row{}}

	start := -1
	for i, row := range rows {
		if !isBlankRow(row) {
			start = i
			break
		}
	}
	if start < 0 {
		return t
	}

	seen := map[string]int{}
	for i, cell := range rows[start] {
		h := normalizeSpaces(cell)
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}
		if n, dup := seen[h]; dup {
			seen[h] = n + 1
			h = fmt.Sprintf("%s_%d", h, n+1)
		} else {
			seen[h] = 0
		}
		t.Headers = append(t.Headers, h)
	}

	for _, row := range rows[start+1:] {
		if isBlankRow(row) {
			continue
		}
		r := internal.Row{}
		for i, h := range t.Headers {
			if i < len(row) {
				r[h] = strings.TrimSpace(row[i])
			} else {
				r[h] = ""
			}
		}
		t.Rows = append(t.Rows, r)
	}
	return t
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func normalizeSpaces(input string) string {
	return strings.Join(strings.Fields(input), " ")
}
