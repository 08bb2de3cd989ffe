package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIndices(t *testing.T) {
	got, err := parseIndices(" 0, 3,,7 ")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 7}, got)

	got, err = parseIndices("")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = parseIndices("3,1,3, 1")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, got)

	for _, bad := range []string{"a", "1,-2", "1.5"} {
		_, err := parseIndices(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseExclusions(t *testing.T) {
	got, err := parseExclusions("Mg:0,3; Ca:1 ;Mg:4")
	require.NoError(t, err)
	assert.Equal(t, map[string][]int{"Mg": {0, 3, 4}, "Ca": {1}}, got)
	assert.Equal(t, []string{"Ca", "Mg"}, sortedKeys(got))

	got, err = parseExclusions("Mg:1;Mg:1,2;Ca:0,0")
	require.NoError(t, err)
	assert.Equal(t, map[string][]int{"Mg": {1, 2}, "Ca": {0}}, got)

	for _, bad := range []string{"Mg", ":1", "Mg:x"} {
		_, err := parseExclusions(bad)
		assert.Error(t, err, bad)
	}
}
