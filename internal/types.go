package internal

import "strings"

// Row maps a column header to the raw cell text. An empty string is an empty cell.
type Row map[string]string

// Value returns the trimmed cell text for header.
func (r Row) Value(header string) string {
	return strings.TrimSpace(r[header])
}

// Table is one sheet of a workbook with its header order preserved.
type Table struct {
	Name    string
	Headers []string
	Rows    []Row
}

func (t Table) FirstColumn() string {
	if len(t.Headers) == 0 {
		return ""
	}
	return t.Headers[0]
}

func (t Table) HasColumn(header string) bool {
	for _, h := range t.Headers {
		if h == header {
			return true
		}
	}
	return false
}

// Workbook is the ordered set of tables read from one file.
type Workbook struct {
	Path   string
	Tables []Table
}

func (w Workbook) SheetNames() []string {
	out := make([]string, 0, len(w.Tables))
	for _, t := range w.Tables {
		out = append(out, t.Name)
	}
	return out
}

func (w Workbook) Sheet(name string) (Table, bool) {
	for _, t := range w.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

type CanonicalRecord struct {
	ID         string
	Position   int
	Attributes Row
}

type Match struct {
	Run            string  `json:"run,omitempty"`
	SourceID       string  `json:"sourceId"`
	TargetID       string  `json:"targetId"`
	Confidence     float64 `json:"confidence"`
	SourceRowIndex int     `json:"sourceRowIndex"`
	SourceRow      Row     `json:"-"`
	TargetPayload  Row     `json:"targetPayload"`
}

type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "High"
	ConfidenceMedium ConfidenceLevel = "Medium"
	ConfidenceLow    ConfidenceLevel = "Low"
)

func LevelFor(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= 0.9:
		return ConfidenceHigh
	case confidence >= 0.7:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Reason explains why a discovery step produced an empty or degraded result.
// Reasons are informational and never fatal.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonNoIdentifierColumn    Reason = "no_identifier_column"
	ReasonNoConcentrationColumn Reason = "no_concentration_column"
	ReasonNoStandards           Reason = "no_standards"
)

// RunSummary describes one processed analytic run.
type RunSummary struct {
	RunID              string   `json:"runId"`
	File               string   `json:"file"`
	SheetNames         []string `json:"sheetNames"`
	DataSheet          string   `json:"dataSheet"`
	StandardsSheet     string   `json:"standardsSheet,omitempty"`
	Analytes           []string `json:"analytes"`
	TotalSamples       int      `json:"totalSamples"`
	MatchedSamples     int      `json:"matchedSamples"`
	IdentifierColumns  []string `json:"identifierColumns"`
	IdentifierFallback bool     `json:"identifierFallback"`
}

func (s RunSummary) MatchRatePercent() int {
	if s.TotalSamples <= 0 {
		return 0
	}
	pct := float64(s.MatchedSamples) / float64(s.TotalSamples) * 100
	return int(pct + 0.5)
}

type FetchedMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

type RunAttachment struct {
	MessageID string
	FileName  string
	Content   []byte
}
