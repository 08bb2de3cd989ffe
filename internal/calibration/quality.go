package calibration

import "math"

type Quality string

const (
	QualityExcellent  Quality = "Excellent"
	QualityVeryGood   Quality = "Very Good"
	QualityGood       Quality = "Good"
	QualityAcceptable Quality = "Acceptable"
	QualityPoor       Quality = "Poor"
)

func Grade(rSquared float64) Quality {
	switch {
	case rSquared >= 0.9995:
		return QualityExcellent
	case rSquared >= 0.999:
		return QualityVeryGood
	case rSquared >= 0.995:
		return QualityGood
	case rSquared >= 0.99:
		return QualityAcceptable
	default:
		return QualityPoor
	}
}

// PercentError is |residual/concentration|·100. It is undefined for a zero concentration.
func PercentError(concentration, predicted float64) (float64, bool) {
	if concentration == 0 {
		return 0, false
	}
	return math.Abs((concentration-predicted)/concentration) * 100, true
}
