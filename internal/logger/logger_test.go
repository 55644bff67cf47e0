package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesJSONToFileAndConsole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	var console bytes.Buffer

	cfg := DefaultConfig()
	cfg.FilePath = path
	cfg.Console = true
	cfg.ConsoleWriter = &console

	log, err := NewLogger(cfg)
	require.NoError(t, err)
	WithFileOperation(log, "/in/a.jpg", "encode").Info("Image compressed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "Image compressed", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "/in/a.jpg", entry["file"])
	assert.Equal(t, "encode", entry["operation"])
	assert.Contains(t, entry, "timestamp")

	assert.Equal(t, string(data), console.String())
}

func TestNewLoggerLevels(t *testing.T) {
	var console bytes.Buffer
	log, err := NewLogger(LoggerConfig{Level: "warn", ConsoleWriter: &console})
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())

	WithFile(log, "x").Info("hidden")
	assert.Empty(t, console.String())
	WithOperation(log, "copy").Warn("shown")
	assert.Contains(t, console.String(), "shown")

	_, err = NewLogger(LoggerConfig{Level: "chatty"})
	assert.Error(t, err)
}

func TestLevelFromFlags(t *testing.T) {
	assert.Equal(t, "debug", LevelFromFlags("info", true, false))
	assert.Equal(t, "error", LevelFromFlags("info", false, true))
	assert.Equal(t, "debug", LevelFromFlags("info", true, true))
	assert.Equal(t, "warn", LevelFromFlags("warn", false, false))
}

func TestEntryHelpers(t *testing.T) {
	var console bytes.Buffer
	log, err := NewLogger(LoggerConfig{Level: "debug", ConsoleWriter: &console})
	require.NoError(t, err)

	WithOperation(WithRun(log, "run-1"), "archive").Warn("Failed to archive report")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(console.Bytes()), &entry))
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "archive", entry["operation"])
	assert.Equal(t, "warning", entry["level"])
	assert.NotContains(t, entry, "file")
}
