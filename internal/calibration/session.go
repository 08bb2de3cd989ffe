package calibration

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"chemrecon/internal"
	"chemrecon/internal/discovery"
)

type Phase string

const (
	PhaseNoRunLoaded     Phase = "no_run_loaded"
	PhaseRunLoaded       Phase = "run_loaded"
	PhaseAnalyteSelected Phase = "analyte_selected"
)

// Run is a loaded analytic run as seen by calibration: its standards rows and
// the measurement channels derived from their headers.
type Run struct {
	Name      string
	Standards Standards
	Channels  discovery.ChannelTable
}

func NewRun(name string, std Standards, rules discovery.RuleSet) *Run {
	return &Run{
		Name:      name,
		Standards: std,
		Channels:  discovery.DeriveChannels(std.Table.Headers, rules),
	}
}

// AnalyteState is a copy of one analyte's calibration state.
type AnalyteState struct {
	Analyte             string          `json:"analyte"`
	IntensityColumn     string          `json:"intensityColumn"`
	ConcentrationColumn string          `json:"concentrationColumn,omitempty"`
	Points              []Point         `json:"points"`
	ExcludedIndices     []int           `json:"excludedIndices"`
	Model               *Model          `json:"model,omitempty"`
	Reason              internal.Reason `json:"reason,omitempty"`
	FitError            string          `json:"fitError,omitempty"`
}

type analyteEntry struct {
	mu       sync.Mutex
	column   string
	conc     string
	points   []Point
	excluded map[int]struct{}
	model    *Model
	reason   internal.Reason
	fitErr   error
}

// Session owns the calibration state of one loaded run. Run-level state is
// guarded by mu; each analyte has its own writer lock.
type Session struct {
	mu  sync.RWMutex
	run *Run

	entriesMu sync.Mutex
	entries   map[string]*analyteEntry
	current   string

	logger *slog.Logger
}

func NewSession(logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		entries: map[string]*analyteEntry{},
		logger:  logger.With("component", "calibration"),
	}
}

// LoadRun replaces the current run and forgets every analyte's state.
func (s *Session) LoadRun(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.run = run
	s.entriesMu.Lock()
	s.entries = map[string]*analyteEntry{}
	s.current = ""
	s.entriesMu.Unlock()

	if run != nil {
		s.logger.Info("run loaded", "run", run.Name, "standards", run.Standards.Len(), "analytes", run.Channels.Analytes())
	}
}

func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.run == nil {
		return PhaseNoRunLoaded
	}
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()
	if s.current == "" {
		return PhaseRunLoaded
	}
	return PhaseAnalyteSelected
}

func (s *Session) Run() *Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run
}

func (s *Session) CurrentAnalyte() string {
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()
	return s.current
}

func (s *Session) Analytes() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.run == nil {
		return nil, ErrNoRunLoaded
	}
	return s.run.Channels.Analytes(), nil
}

func (s *Session) IntensityColumns(analyte string) ([]discovery.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.run == nil {
		return nil, ErrNoRunLoaded
	}
	if !s.knownAnalyte(analyte) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAnalyte, analyte)
	}
	return s.run.Channels.ForAnalyte(analyte), nil
}

// SelectAnalyte makes analyte current. A previously calibrated analyte keeps its
// state; otherwise the channel with the best fit is selected.
func (s *Session) SelectAnalyte(analyte string) (AnalyteState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkAnalyte(analyte); err != nil {
		return AnalyteState{}, err
	}

	e := s.entry(analyte)
	e.mu.Lock()
	if e.column != "" {
		snap := e.snapshot(analyte)
		e.mu.Unlock()
		s.setCurrent(analyte)
		return snap, nil
	}
	e.mu.Unlock()

	column, err := s.defaultColumn(analyte)
	if err != nil {
		return AnalyteState{}, err
	}
	return s.selectColumn(analyte, column)
}

// defaultColumn must be called with s.mu held.
func (s *Session) defaultColumn(analyte string) (string, error) {
	if comparisons := compareChannels(s.run, analyte); len(comparisons) > 0 {
		return comparisons[0].Channel.Column, nil
	}
	cols := s.run.Channels.ForAnalyte(analyte)
	if len(cols) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoIntensityColumn, analyte)
	}
	return cols[0].Column, nil
}

// SelectIntensityColumn rebuilds the analyte's points from column, keeps the
// exclusions that still name a point and refits. Only intensity channels of
// analyte are accepted.
func (s *Session) SelectIntensityColumn(analyte, column string) (AnalyteState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkAnalyte(analyte); err != nil {
		return AnalyteState{}, err
	}
	return s.selectColumn(analyte, column)
}

func (s *Session) checkAnalyte(analyte string) error {
	if s.run == nil {
		return ErrNoRunLoaded
	}
	if !s.knownAnalyte(analyte) {
		return fmt.Errorf("%w: %s", ErrUnknownAnalyte, analyte)
	}
	return nil
}

// selectColumn must be called with s.mu held.
func (s *Session) selectColumn(analyte, column string) (AnalyteState, error) {
	if !s.isChannelOf(analyte, column) {
		return AnalyteState{}, fmt.Errorf("%w: %s is not an intensity channel of %s", ErrUnknownColumn, column, analyte)
	}

	e := s.entry(analyte)
	e.mu.Lock()
	defer e.mu.Unlock()

	ex := ExtractPoints(s.run.Standards, s.run.Channels, column)
	e.column = column
	e.conc = ex.ConcentrationColumn
	e.reason = ex.Reason
	e.points = ex.Points

	kept := map[int]struct{}{}
	for i := range e.points {
		if _, ok := e.excluded[e.points[i].Index]; ok {
			e.points[i].Excluded = true
			kept[e.points[i].Index] = struct{}{}
		}
	}
	e.excluded = kept
	e.refit()

	s.setCurrent(analyte)
	s.logger.Debug("intensity column selected", "analyte", analyte, "column", column, "points", len(e.points), "excluded", len(kept))
	return e.snapshot(analyte), nil
}

func (s *Session) isChannelOf(analyte, column string) bool {
	for _, ch := range s.run.Channels.ForAnalyte(analyte) {
		if ch.Column == column {
			return true
		}
	}
	return false
}

// ToggleExclusion flips whether the point at index takes part in the fit.
// A toggle that would leave fewer than two included points is refused and the
// state is left untouched.
func (s *Session) ToggleExclusion(analyte string, index int) (AnalyteState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.run == nil {
		return AnalyteState{}, ErrNoRunLoaded
	}

	s.entriesMu.Lock()
	e, ok := s.entries[analyte]
	s.entriesMu.Unlock()
	if !ok {
		return AnalyteState{}, fmt.Errorf("%w: %s", ErrAnalyteNotSelected, analyte)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.column == "" {
		return AnalyteState{}, fmt.Errorf("%w: %s", ErrAnalyteNotSelected, analyte)
	}

	pos := -1
	for i, p := range e.points {
		if p.Index == index {
			pos = i
			break
		}
	}
	if pos < 0 {
		return AnalyteState{}, fmt.Errorf("%w: %s index %d", ErrUnknownPoint, analyte, index)
	}

	included := 0
	for i, p := range e.points {
		excluded := p.Excluded
		if i == pos {
			excluded = !excluded
		}
		if !excluded {
			included++
		}
	}
	if included < 2 {
		return e.snapshot(analyte), ErrWouldLeaveTooFewPoints
	}

	e.points[pos].Excluded = !e.points[pos].Excluded
	if e.points[pos].Excluded {
		e.excluded[index] = struct{}{}
	} else {
		delete(e.excluded, index)
	}
	e.refit()
	s.logger.Debug("exclusion toggled", "analyte", analyte, "index", index, "excluded", e.points[pos].Excluded)
	return e.snapshot(analyte), nil
}

// State returns a copy of the analyte's current state.
func (s *Session) State(analyte string) (AnalyteState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.run == nil {
		return AnalyteState{}, ErrNoRunLoaded
	}
	s.entriesMu.Lock()
	e, ok := s.entries[analyte]
	s.entriesMu.Unlock()
	if !ok {
		return AnalyteState{}, fmt.Errorf("%w: %s", ErrAnalyteNotSelected, analyte)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(analyte), nil
}

// States returns every analyte that has a selected column, sorted by analyte.
func (s *Session) States() []AnalyteState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.entriesMu.Lock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	entries := make(map[string]*analyteEntry, len(s.entries))
	for k, v := range s.entries {
		entries[k] = v
	}
	s.entriesMu.Unlock()
	sort.Strings(names)

	out := []AnalyteState{}
	for _, name := range names {
		e := entries[name]
		e.mu.Lock()
		if e.column != "" {
			out = append(out, e.snapshot(name))
		}
		e.mu.Unlock()
	}
	return out
}

func (s *Session) knownAnalyte(analyte string) bool {
	for _, a := range s.run.Channels.Analytes() {
		if a == analyte {
			return true
		}
	}
	return false
}

func (s *Session) entry(analyte string) *analyteEntry {
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()
	e, ok := s.entries[analyte]
	if !ok {
		e = &analyteEntry{excluded: map[int]struct{}{}}
		s.entries[analyte] = e
	}
	return e
}

func (s *Session) setCurrent(analyte string) {
	s.entriesMu.Lock()
	s.current = analyte
	s.entriesMu.Unlock()
}

func (e *analyteEntry) refit() {
	m, err := FitIncluded(e.points)
	if err != nil {
		e.model = nil
		e.fitErr = err
		return
	}
	e.model = &m
	e.fitErr = nil
}

func (e *analyteEntry) snapshot(analyte string) AnalyteState {
	st := AnalyteState{
		Analyte:             analyte,
		IntensityColumn:     e.column,
		ConcentrationColumn: e.conc,
		Points:              append([]Point(nil), e.points...),
		ExcludedIndices:     make([]int, 0, len(e.excluded)),
		Reason:              e.reason,
	}
	for idx := range e.excluded {
		st.ExcludedIndices = append(st.ExcludedIndices, idx)
	}
	sort.Ints(st.ExcludedIndices)
	if e.model != nil {
		m := *e.model
		m.Predicted = append([]float64(nil), e.model.Predicted...)
		m.Residuals = append([]float64(nil), e.model.Residuals...)
		st.Model = &m
	}
	if e.fitErr != nil {
		st.FitError = e.fitErr.Error()
	}
	return st
}
