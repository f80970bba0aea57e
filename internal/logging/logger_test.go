package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentTagsRecords(t *testing.T) {
	var buf bytes.Buffer
	l := Component(newLogger(&buf, "debug"), "jobs")
	l.Debug("job inserted", "job_id", "r1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "jobs", rec["component"])
	assert.Equal(t, "r1", rec["job_id"])
}

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, levelFromString(" WARNING "))
	assert.Equal(t, slog.LevelInfo, levelFromString("bogus"))
}

func TestComponentNilLogger(t *testing.T) {
	assert.NotPanics(t, func() { Component(nil, "x").Info("dropped") })
}
