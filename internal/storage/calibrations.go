package storage

import "chemrecon/internal/calibration"

// CalibrationsFromStates flattens a session's fitted analytes. Analytes
// without a model are skipped.
func CalibrationsFromStates(run *calibration.Run, states []calibration.AnalyteState) []Calibration {
	out := make([]Calibration, 0, len(states))
	for _, st := range states {
		if st.Model == nil {
			continue
		}
		c := Calibration{
			Run:         run.Name,
			Analyte:     st.Analyte,
			Channel:     st.IntensityColumn,
			Slope:       st.Model.Slope,
			Intercept:   st.Model.Intercept,
			RSquared:    st.Model.RSquared,
			RMSE:        st.Model.RMSE,
			PointsUsed:  st.Model.NPointsUsed,
			PointsTotal: len(st.Points),
			Excluded:    append([]int(nil), st.ExcludedIndices...),
			Quality:     string(calibration.Grade(st.Model.RSquared)),
		}
		if ch, ok := run.Channels.Channel(st.IntensityColumn); ok {
			c.Wavelength = ch.Wavelength
			c.View = string(ch.View)
		}
		out = append(out, c)
	}
	return out
}
