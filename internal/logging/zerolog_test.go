package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewZerolog_FileOutput(t *testing.T) {
	var file bytes.Buffer
	logger, closer, err := NewZerolog(ZerologConfig{Level: "info", File: &file})
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug().Msg("hidden")
	logger.Info().Str("track", "7").Msg("visible")

	out := file.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "track=7")
	assert.Contains(t, out, "service="+ServiceName)
}

func TestNewZerolog_NoWriters(t *testing.T) {
	logger, closer, err := NewZerolog(ZerologConfig{})
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
	logger.Info().Msg("discarded")
}

func TestNewZerolog_GraylogUnresolvable(t *testing.T) {
	_, _, err := NewZerolog(ZerologConfig{GraylogEnabled: true, GraylogAddress: "not a host:port:x"})
	assert.Error(t, err)
}

func TestZerologLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, zerologLevel("debug"))
	assert.Equal(t, zerolog.TraceLevel, zerologLevel("TRACE"))
	assert.Equal(t, zerolog.InfoLevel, zerologLevel("bogus"))
}
