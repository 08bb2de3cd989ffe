package calibration

import (
	"fmt"
	"sort"

	"chemrecon/internal/discovery"
)

type ChannelComparison struct {
	Channel     discovery.Channel `json:"channel"`
	Wavelength  string            `json:"wavelength"`
	View        discovery.View    `json:"view"`
	Model       Model             `json:"model"`
	PointsTotal int               `json:"pointsTotal"`
	Quality     Quality           `json:"quality"`
	Recommended bool              `json:"recommended"`
}

// CompareChannels fits every intensity channel of the analyte independently of
// the session's selection and exclusions and ranks them by R², best first.
// Channels with fewer than two points or a degenerate fit are left out.
func (s *Session) CompareChannels(analyte string) ([]ChannelComparison, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.run == nil {
		return nil, ErrNoRunLoaded
	}
	if !s.knownAnalyte(analyte) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAnalyte, analyte)
	}
	return compareChannels(s.run, analyte), nil
}

func compareChannels(run *Run, analyte string) []ChannelComparison {
	out := []ChannelComparison{}
	for _, ch := range run.Channels.ForAnalyte(analyte) {
		ex := ExtractPoints(run.Standards, run.Channels, ch.Column)
		if len(ex.Points) < 2 {
			continue
		}
		m, err := Fit(ex.Points)
		if err != nil {
			continue
		}
		out = append(out, ChannelComparison{
			Channel:     ch,
			Wavelength:  ch.Wavelength,
			View:        ch.View,
			Model:       m,
			PointsTotal: len(ex.Points),
			Quality:     Grade(m.RSquared),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Model.RSquared > out[j].Model.RSquared
	})
	if len(out) > 0 {
		out[0].Recommended = true
	}
	return out
}

type AnalyteOverview struct {
	Analyte  string  `json:"analyte"`
	Channels int     `json:"channels"`
	BestR2   float64 `json:"bestR2"`
	WorstR2  float64 `json:"worstR2"`
	Quality  Quality `json:"quality"`
}

// Overview grades every detected analyte by the best R² among its channels.
func (s *Session) Overview() ([]AnalyteOverview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.run == nil {
		return nil, ErrNoRunLoaded
	}

	out := []AnalyteOverview{}
	for _, analyte := range s.run.Channels.Analytes() {
		ov := AnalyteOverview{
			Analyte:  analyte,
			Channels: len(s.run.Channels.ForAnalyte(analyte)),
		}
		comparisons := compareChannels(s.run, analyte)
		if len(comparisons) > 0 {
			ov.BestR2 = comparisons[0].Model.RSquared
			ov.WorstR2 = comparisons[len(comparisons)-1].Model.RSquared
		}
		ov.Quality = Grade(ov.BestR2)
		out = append(out, ov)
	}
	return out, nil
}
