package util

import "strings"

// Similarity scores two normalized identifiers in [0,1].
// Identical strings score 1. When one contains the other the score is
// 0.8 plus 0.2 scaled by the length ratio, otherwise it is derived from the
// Levenshtein distance relative to the longer string.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longer, shorter := a, b
	if len(shorter) > len(longer) {
		longer, shorter = shorter, longer
	}
	if strings.Contains(longer, shorter) {
		return 0.8 + float64(len(shorter))/float64(len(longer))*0.2
	}
	d := Levenshtein(a, b)
	score := 1 - float64(d)/float64(len(longer))
	if score < 0 {
		return 0
	}
	return score
}

// Levenshtein computes the unit-cost edit distance with a single row of state.
func Levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(a); i++ {
		diag := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			above := row[j]
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			row[j] = min(row[j]+1, row[j-1]+1, diag+cost)
			diag = above
		}
	}
	return row[len(b)]
}
