package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "")
	t.Setenv("STANDARD_LABELS", "")
	t.Setenv("DISCOVERY_RULES_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.6, cfg.MatchThreshold)
	assert.Equal(t, []string{"A", "B", "C", "D", "E", "F", "G", "H", "I"}, cfg.StandardLabels)
	assert.Equal(t, "Sample ID", cfg.CanonicalIDColumn)
	assert.Equal(t, DefaultDiscovery(), cfg.Discovery)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "0.75")
	t.Setenv("STANDARD_LABELS", "S1, S2 ,S3")
	t.Setenv("DISCOVERY_RULES_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.75, cfg.MatchThreshold)
	assert.Equal(t, []string{"S1", "S2", "S3"}, cfg.StandardLabels)
}

func TestLoadRejectsBadThreshold(t *testing.T) {
	for _, v := range []string{"1.5", "-0.1", "NaN", "nan"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("MATCH_THRESHOLD", v)
			t.Setenv("DISCOVERY_RULES_FILE", "")

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "MATCH_THRESHOLD")
		})
	}
}

func TestLoadDiscoveryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := "elements: [Mg, Ca, Rb]\nidentifier_keywords: [client ref]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	d, err := LoadDiscovery(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mg", "Ca", "Rb"}, d.Elements)
	assert.Equal(t, []string{"client ref"}, d.IdentifierKeywords)
	assert.Equal(t, DefaultDiscovery().ConcentrationKeywords, d.ConcentrationKeywords)
}

func TestLoadDiscoveryMissingFile(t *testing.T) {
	_, err := LoadDiscovery(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
