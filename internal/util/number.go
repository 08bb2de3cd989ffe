package util

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var numberPrefix = regexp.MustCompile(`^[+-]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][+-]?\d+)?`)

// ParseNumber reads the leading decimal number of a cell ("12.5", "1.2E+04", "3.1 ppm").
// Cells without a leading number, and values that are not finite, are rejected.
func ParseNumber(input string) (float64, bool) {
	s := strings.ReplaceAll(input, "\u00A0", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	token := numberPrefix.FindString(s)
	if token == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(token, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
