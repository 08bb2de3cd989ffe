package calibration

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chemrecon/internal"
	"chemrecon/internal/config"
	"chemrecon/internal/discovery"
)

const (
	mg280 = "Mg 280.270 nm Intensity"
	mg285 = "Mg 285.213 nm Intensity"
	ca317 = "Ca 317.933 nm Intensity"
)

func standardsTable() internal.Table {
	headers := []string{"Solution Label", "Mg 280.270 nm ppm", mg280, "Mg 285.213 nm ppm", mg285, "Ca 317.933 nm ppm", ca317}
	rows := [][]string{
		{"A", "10", "1000", "10", "2000", "10", "500"},
		{"B", "5", "500", "5", "1010", "5", "250"},
		{"c", "1", "100", "1", "190", "1", "50"},
		{"S-001", "3.3", "330", "3.3", "660", "3.3", "165"},
		{"D", "0.5", "n/a", "0.5", "105", "0.5", "25"},
	}
	t := internal.Table{Name: "Standards", Headers: headers}
	for _, r := range rows {
		row := internal.Row{}
		for i, h := range headers {
			row[h] = r[i]
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func loadedSession(t *testing.T) *Session {
	t.Helper()
	rules := discovery.DefaultRules(config.DefaultDiscovery())
	std := ExtractStandards(standardsTable(), rules, nil)
	require.Equal(t, 0, std.Len())

	std = ExtractStandards(standardsTable(), rules, []string{"A", "B", "C", "D", "E", "F", "G", "H", "I"})
	require.Equal(t, 4, std.Len())
	require.Equal(t, []string{"A", "B", "C", "D"}, std.Labels)

	s := NewSession(nil)
	s.LoadRun(NewRun("run1.xlsx", std, rules))
	return s
}

func TestExtractPoints(t *testing.T) {
	s := loadedSession(t)
	run := s.Run()

	ex := ExtractPoints(run.Standards, run.Channels, mg280)
	assert.Equal(t, "Mg 280.270 nm ppm", ex.ConcentrationColumn)
	require.Len(t, ex.Points, 3)
	assert.Equal(t, []Point{
		{Index: 0, Label: "A", Concentration: 10, Intensity: 1000},
		{Index: 1, Label: "B", Concentration: 5, Intensity: 500},
		{Index: 2, Label: "C", Concentration: 1, Intensity: 100},
	}, ex.Points)

	ex = ExtractPoints(run.Standards, run.Channels, "Solution Label")
	assert.Empty(t, ex.Points)
	assert.Equal(t, internal.ReasonNoConcentrationColumn, ex.Reason)
}

func TestExtractPointsLabelFallback(t *testing.T) {
	rules := discovery.DefaultRules(config.DefaultDiscovery())
	table := internal.Table{
		Headers: []string{"Sample", "Fe ppm", "Fe Intensity"},
		Rows: []internal.Row{
			{"Sample": "STD-1", "Fe ppm": "2", "Fe Intensity": "20"},
			{"Sample": "", "Fe ppm": "4", "Fe Intensity": "40"},
		},
	}
	std := Standards{Table: table, Labels: []string{"", ""}}
	ex := ExtractPoints(std, discovery.DeriveChannels(table.Headers, rules), "Fe Intensity")
	require.Len(t, ex.Points, 2)
	assert.Equal(t, "STD-1", ex.Points[0].Label)
	assert.Equal(t, "Point 2", ex.Points[1].Label)
}

func TestSessionPhases(t *testing.T) {
	s := NewSession(nil)
	assert.Equal(t, PhaseNoRunLoaded, s.Phase())
	_, err := s.SelectAnalyte("Mg")
	assert.ErrorIs(t, err, ErrNoRunLoaded)
	_, err = s.CompareChannels("Mg")
	assert.ErrorIs(t, err, ErrNoRunLoaded)

	s = loadedSession(t)
	assert.Equal(t, PhaseRunLoaded, s.Phase())
	analytes, err := s.Analytes()
	require.NoError(t, err)
	assert.Equal(t, []string{"Ca", "Mg"}, analytes)

	_, err = s.SelectAnalyte("Zn")
	assert.ErrorIs(t, err, ErrUnknownAnalyte)

	st, err := s.SelectAnalyte("Mg")
	require.NoError(t, err)
	assert.Equal(t, PhaseAnalyteSelected, s.Phase())
	assert.Equal(t, "Mg", s.CurrentAnalyte())
	assert.Equal(t, mg280, st.IntensityColumn)
	require.NotNil(t, st.Model)
	assert.InDelta(t, 0.01, st.Model.Slope, 1e-12)
	assert.InDelta(t, 0.0, st.Model.Intercept, 1e-9)
	assert.InDelta(t, 1.0, st.Model.RSquared, 1e-12)
	assert.Equal(t, 3, st.Model.NPointsUsed)
}

func TestToggleExclusion(t *testing.T) {
	s := loadedSession(t)
	before, err := s.SelectAnalyte("Mg")
	require.NoError(t, err)

	st, err := s.ToggleExclusion("Mg", 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, st.ExcludedIndices)
	assert.True(t, st.Points[1].Excluded)
	assert.Equal(t, 2, st.Model.NPointsUsed)
	for i := range st.Points {
		assert.Equal(t, before.Points[i].Index, st.Points[i].Index)
		assert.Equal(t, before.Points[i].Label, st.Points[i].Label)
	}

	refused, err := s.ToggleExclusion("Mg", 0)
	assert.ErrorIs(t, err, ErrWouldLeaveTooFewPoints)
	assert.Equal(t, st, refused)
	current, err := s.State("Mg")
	require.NoError(t, err)
	assert.Equal(t, st, current)

	restored, err := s.ToggleExclusion("Mg", 1)
	require.NoError(t, err)
	assert.Equal(t, before, restored)

	_, err = s.ToggleExclusion("Mg", 4)
	assert.ErrorIs(t, err, ErrUnknownPoint)
	_, err = s.ToggleExclusion("Ca", 0)
	assert.ErrorIs(t, err, ErrAnalyteNotSelected)
}

func TestExclusionsFollowColumnChanges(t *testing.T) {
	s := loadedSession(t)
	_, err := s.SelectIntensityColumn("Mg", mg280)
	require.NoError(t, err)
	_, err = s.ToggleExclusion("Mg", 2)
	require.NoError(t, err)

	st, err := s.SelectIntensityColumn("Mg", mg285)
	require.NoError(t, err)
	require.Len(t, st.Points, 4)
	assert.Equal(t, []int{2}, st.ExcludedIndices)
	assert.True(t, st.Points[2].Excluded)
	assert.Equal(t, 3, st.Model.NPointsUsed)

	_, err = s.ToggleExclusion("Mg", 3)
	require.NoError(t, err)

	st, err = s.SelectIntensityColumn("Mg", mg280)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, st.ExcludedIndices, "index 3 has no point on this channel")
	assert.Equal(t, 2, st.Model.NPointsUsed)

	_, err = s.SelectIntensityColumn("Mg", "Fe Intensity")
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestAnalyteStateRetainedAndReset(t *testing.T) {
	s := loadedSession(t)
	_, err := s.SelectAnalyte("Mg")
	require.NoError(t, err)
	_, err = s.ToggleExclusion("Mg", 0)
	require.NoError(t, err)

	_, err = s.SelectAnalyte("Ca")
	require.NoError(t, err)
	assert.Equal(t, "Ca", s.CurrentAnalyte())

	st, err := s.SelectAnalyte("Mg")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, st.ExcludedIndices)
	assert.Len(t, s.States(), 2)

	s.LoadRun(s.Run())
	assert.Equal(t, PhaseRunLoaded, s.Phase())
	assert.Empty(t, s.States())
	st, err = s.SelectAnalyte("Mg")
	require.NoError(t, err)
	assert.Empty(t, st.ExcludedIndices)
}

func TestCompareChannels(t *testing.T) {
	s := loadedSession(t)
	_, err := s.SelectIntensityColumn("Mg", mg285)
	require.NoError(t, err)
	before, err := s.State("Mg")
	require.NoError(t, err)

	cmp, err := s.CompareChannels("Mg")
	require.NoError(t, err)
	require.Len(t, cmp, 2)
	assert.Equal(t, mg280, cmp[0].Channel.Column)
	assert.True(t, cmp[0].Recommended)
	assert.False(t, cmp[1].Recommended)
	assert.Equal(t, "280.270 nm", cmp[0].Wavelength)
	assert.Equal(t, discovery.ViewUnknown, cmp[0].View)
	assert.Equal(t, 3, cmp[0].PointsTotal)
	assert.GreaterOrEqual(t, cmp[0].Model.RSquared, cmp[1].Model.RSquared)
	assert.Equal(t, QualityExcellent, cmp[1].Quality)

	after, err := s.State("Mg")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	overview, err := s.Overview()
	require.NoError(t, err)
	require.Len(t, overview, 2)
	assert.Equal(t, "Ca", overview[0].Analyte)
	assert.Equal(t, 1, overview[0].Channels)
	assert.Equal(t, "Mg", overview[1].Analyte)
	assert.Equal(t, 2, overview[1].Channels)
	assert.Equal(t, cmp[1].Model.RSquared, overview[1].WorstR2)
}

func TestConcurrentTogglesKeepSingleWriter(t *testing.T) {
	s := loadedSession(t)
	before, err := s.SelectAnalyte("Ca")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.ToggleExclusion("Ca", 0)
			_, _ = s.CompareChannels("Ca")
		}()
	}
	wg.Wait()

	after, err := s.State("Ca")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSelectIntensityColumnRejectsOtherChannels(t *testing.T) {
	s := loadedSession(t)

	_, err := s.SelectIntensityColumn("Mg", ca317)
	assert.ErrorIs(t, err, ErrUnknownColumn)
	_, err = s.SelectIntensityColumn("Mg", "Mg 280.270 nm ppm")
	assert.ErrorIs(t, err, ErrUnknownColumn)
	_, err = s.SelectIntensityColumn("Mg", "Solution Label")
	assert.ErrorIs(t, err, ErrUnknownColumn)
	_, err = s.State("Mg")
	assert.ErrorIs(t, err, ErrAnalyteNotSelected, "a refused column leaves the analyte unselected")

	st, err := s.SelectIntensityColumn("Mg", mg285)
	require.NoError(t, err)
	_, err = s.SelectIntensityColumn("Mg", ca317)
	require.ErrorIs(t, err, ErrUnknownColumn)
	after, err := s.State("Mg")
	require.NoError(t, err)
	assert.Equal(t, st, after)
}

func TestSelectAnalyteDuringReloadUsesLoadedRun(t *testing.T) {
	rules := discovery.DefaultRules(config.DefaultDiscovery())
	first := NewRun("run1.xlsx", ExtractStandards(standardsTable(), rules, []string{"A", "B", "C", "D"}), rules)

	other := internal.Table{Name: "Standards", Headers: []string{"Solution Label", "Mg 279.553 nm ppm", "Mg 279.553 nm Intensity"}}
	for _, r := range [][]string{{"A", "10", "900"}, {"B", "5", "450"}, {"C", "1", "95"}} {
		other.Rows = append(other.Rows, internal.Row{"Solution Label": r[0], "Mg 279.553 nm ppm": r[1], "Mg 279.553 nm Intensity": r[2]})
	}
	second := NewRun("run2.xlsx", ExtractStandards(other, rules, []string{"A", "B", "C"}), rules)

	s := NewSession(nil)
	s.LoadRun(first)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				s.LoadRun(second)
			} else {
				s.LoadRun(first)
			}
		}(i)
		go func() {
			defer wg.Done()
			_, _ = s.SelectAnalyte("Mg")
		}()
	}
	wg.Wait()

	_, err := s.SelectAnalyte("Mg")
	require.NoError(t, err)
	st, err := s.State("Mg")
	require.NoError(t, err)
	var columns []string
	for _, ch := range s.Run().Channels.ForAnalyte("Mg") {
		columns = append(columns, ch.Column)
	}
	assert.Contains(t, columns, st.IntensityColumn)
}

func TestIntensityColumns(t *testing.T) {
	s := NewSession(nil)
	_, err := s.IntensityColumns("Mg")
	assert.ErrorIs(t, err, ErrNoRunLoaded)

	s = loadedSession(t)
	cols, err := s.IntensityColumns("Mg")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, mg280, cols[0].Column)
	assert.Equal(t, "Mg 280.270 nm ppm", cols[0].ConcentrationColumn)
	assert.Equal(t, mg285, cols[1].Column)

	_, err = s.IntensityColumns("Zn")
	assert.ErrorIs(t, err, ErrUnknownAnalyte)
}
