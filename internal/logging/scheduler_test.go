package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestSchedulerLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		log   func(l *SchedulerLogger)
	}{
		{"debug", func(l *SchedulerLogger) { l.Debug("msg", "track", 1) }},
		{"info", func(l *SchedulerLogger) { l.Info("msg", "track", 1) }},
		{"warn", func(l *SchedulerLogger) { l.Warn("msg", "track", 1) }},
		{"error", func(l *SchedulerLogger) { l.Error("msg", "track", 1) }},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewSchedulerLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))

			tt.log(l)

			entry := decodeLine(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "msg", entry["message"])
			assert.Equal(t, float64(1), entry["track"])
		})
	}
}

func TestSchedulerLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewSchedulerLogger(zerolog.New(&buf).Level(zerolog.WarnLevel))

	l.Info("hidden")
	assert.Empty(t, buf.String())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestToFields(t *testing.T) {
	fields := toFields([]any{"a", 1, 2, "ignored", "dangling"})
	assert.Equal(t, map[string]any{"a": 1}, fields)
}
