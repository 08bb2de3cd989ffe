package calibration

import "errors"

var (
	ErrInsufficientPoints     = errors.New("fewer than two calibration points")
	ErrFitDegenerate          = errors.New("all intensities are equal, slope is undefined")
	ErrNoRunLoaded            = errors.New("no run loaded")
	ErrUnknownAnalyte         = errors.New("unknown analyte")
	ErrAnalyteNotSelected     = errors.New("analyte has no selected intensity column")
	ErrUnknownColumn          = errors.New("unknown column")
	ErrNoIntensityColumn      = errors.New("no intensity column for analyte")
	ErrUnknownPoint           = errors.New("unknown calibration point")
	ErrWouldLeaveTooFewPoints = errors.New("exclusion would leave fewer than two included points")
)
