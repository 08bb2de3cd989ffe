package calibration

import "math"

// Model is an ordinary least squares line concentration = Slope*intensity + Intercept.
// Predicted and Residuals follow the order of the points that were fitted.
type Model struct {
	Slope       float64   `json:"slope"`
	Intercept   float64   `json:"intercept"`
	RSquared    float64   `json:"rSquared"`
	RMSE        float64   `json:"rmse"`
	NPointsUsed int       `json:"nPointsUsed"`
	Predicted   []float64 `json:"predicted"`
	Residuals   []float64 `json:"residuals"`
}

func (m Model) Predict(intensity float64) float64 {
	return m.Slope*intensity + m.Intercept
}

// FitIncluded fits the points not marked as excluded.
func FitIncluded(points []Point) (Model, error) {
	return Fit(includedPoints(points))
}

// Fit regresses concentration on intensity over every given point.
// R² is reported as 0 when all concentrations are equal.
func Fit(points []Point) (Model, error) {
	n := len(points)
	if n < 2 {
		return Model{}, ErrInsufficientPoints
	}

	var sumX, sumY, sumXY, sumXX float64
	allSameX := true
	for _, p := range points {
		sumX += p.Intensity
		sumY += p.Concentration
		sumXY += p.Intensity * p.Concentration
		sumXX += p.Intensity * p.Intensity
		if p.Intensity != points[0].Intensity {
			allSameX = false
		}
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if allSameX || denom == 0 {
		return Model{}, ErrFitDegenerate
	}

	slope := (fn*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / fn
	meanY := sumY / fn

	m := Model{
		Slope:       slope,
		Intercept:   intercept,
		NPointsUsed: n,
		Predicted:   make([]float64, n),
		Residuals:   make([]float64, n),
	}
	var ssRes, ssTot float64
	for i, p := range points {
		m.Predicted[i] = m.Predict(p.Intensity)
		m.Residuals[i] = p.Concentration - m.Predicted[i]
		ssRes += m.Residuals[i] * m.Residuals[i]
		d := p.Concentration - meanY
		ssTot += d * d
	}
	if ssTot > 0 {
		m.RSquared = 1 - ssRes/ssTot
	}
	m.RMSE = math.Sqrt(ssRes / fn)

	if !finite(m.Slope, m.Intercept, m.RSquared, m.RMSE) {
		return Model{}, ErrFitDegenerate
	}
	return m, nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
