package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeID(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{input: "S-001", want: "s001"},
		{input: "  s_001 x ", want: "s001x"},
		{input: "BH-12 (dup)", want: "bh12dup"},
		{input: "Ü-7#", want: "7"},
		{input: "", want: ""},
		{input: "---", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeID(tc.input))
		})
	}
}

func TestNormalizeIDIdempotentAndAlphabet(t *testing.T) {
	inputs := []string{"S-001", "Sample_12 b", "ÄÖÜ 9", "\t\n", "x y", "ＡＢ１２", "a.b/c\\d"}
	for _, in := range inputs {
		once := NormalizeID(in)
		assert.Equal(t, once, NormalizeID(once), "idempotent for %q", in)
		for _, r := range once {
			ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
			assert.True(t, ok, "unexpected rune %q in %q", r, once)
		}
	}
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "mg 280.270 nm ppm", NormalizeHeader("  Mg 280.270  nm PPM "))
	assert.Equal(t, "ca intensity", NormalizeHeader("Ｃａ Intensity"))
}

func TestLeadingElementAndWords(t *testing.T) {
	assert.Equal(t, "Mg", LeadingElement("Mg 280.270 nm ppm"))
	assert.Equal(t, "K", LeadingElement("K 766.491 nm ppm"))
	assert.Equal(t, "", LeadingElement("sample id"))

	assert.True(t, ContainsWord("Na 589.592 nm Intensity", "na"))
	assert.False(t, ContainsWord("Sample Name", "Na"))
	assert.False(t, ContainsWord("Ba_R_233.527 cps", "Ba"))
	assert.Equal(t, []string{"A", "B", "C"}, SplitList(" A, B,,C "))
}
