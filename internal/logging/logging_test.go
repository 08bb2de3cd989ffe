package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, ParseLevel(in))
		})
	}
}

func TestRunIDIsAttached(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "json").With("component", "test")

	id := NewRunID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	logger.InfoContext(WithRunID(context.Background(), id), "run processed", "matches", 3)
	logger.DebugContext(context.Background(), "hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "run processed", rec["msg"])
	assert.Equal(t, id, rec["run_id"])
	assert.Equal(t, "test", rec["component"])
	assert.Equal(t, float64(3), rec["matches"])
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "debug", "text").Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=v")
}
