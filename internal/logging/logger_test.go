package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel(" error "))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "prod", "warn", "weather-forecast-etl")

	log.Info("dropped")
	log.Warn("kept", "run_id", "abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "kept", entry["msg"])
	require.Equal(t, "weather-forecast-etl", entry["app"])
	require.Equal(t, "prod", entry["env"])
	require.Equal(t, "abc", entry["run_id"])
}

func TestNewLoggerDev(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "dev", "debug", "weather-forecast-etl")

	log.Debug("hello")
	require.Contains(t, buf.String(), "hello")
	require.Contains(t, buf.String(), "weather-forecast-etl")
}
