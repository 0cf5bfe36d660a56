package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"trace", "trace", LevelTrace, false},
		{"debug", "debug", slog.LevelDebug, false},
		{"empty_defaults_to_info", "", slog.LevelInfo, false},
		{"info", "info", slog.LevelInfo, false},
		{"warn", "warn", slog.LevelWarn, false},
		{"warning_alias", "warning", slog.LevelWarn, false},
		{"error", "error", slog.LevelError, false},
		{"fatal", "fatal", LevelFatal, false},
		{"case_and_whitespace", "  INFO ", slog.LevelInfo, false},
		{"unknown", "verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			level, err := ParseLevel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, level)
		})
	}
}

// readLogLines closes nothing; callers close the logger writer first so
// lumberjack has flushed the file.
func readLogLines(t *testing.T, path string) []map[string]any {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &record), "log line %q", line)
		records = append(records, record)
	}
	return records
}

func TestNewFileLogger_WritesJSONWithServiceAttr(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "logs", "inat.log")

	logger, closeFn, err := NewFileLogger(logPath, "inat", slog.LevelInfo)
	require.NoError(t, err)
	require.NotNil(t, logger)
	require.NotNil(t, closeFn)

	logger.Info("page fetched", "page", 3)
	require.NoError(t, closeFn())

	records := readLogLines(t, logPath)
	require.Len(t, records, 1)
	assert.Equal(t, "page fetched", records[0]["msg"])
	assert.Equal(t, "inat", records[0]["service"])
	assert.Equal(t, "INFO", records[0]["level"])
	assert.InDelta(t, 3.0, records[0]["page"], 1e-9)
}

func TestNewFileLogger_CustomLevelNames(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "app.log")

	logger, closeFn, err := NewFileLogger(logPath, "app", LevelTrace)
	require.NoError(t, err)

	logger.Log(context.Background(), LevelTrace, "entering")
	logger.Log(context.Background(), LevelFatal, "giving up")
	require.NoError(t, closeFn())

	records := readLogLines(t, logPath)
	require.Len(t, records, 2)
	assert.Equal(t, "TRACE", records[0]["level"])
	assert.Equal(t, "FATAL", records[1]["level"])
}

func TestNewFileLogger_LevelVarFilters(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "app.log")
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelWarn)

	logger, closeFn, err := NewFileLogger(logPath, "app", levelVar)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept")

	levelVar.Set(slog.LevelDebug)
	logger.Debug("kept after lowering")
	require.NoError(t, closeFn())

	records := readLogLines(t, logPath)
	require.Len(t, records, 2)
	assert.Equal(t, "kept", records[0]["msg"])
	assert.Equal(t, "kept after lowering", records[1]["msg"])
}

func TestNewFileLogger_CreatesLogDirectory(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "a", "b", "c", "app.log")

	logger, closeFn, err := NewFileLogger(logPath, "app", slog.LevelInfo)
	require.NoError(t, err)

	logger.Info("hello")
	require.NoError(t, closeFn())

	info, err := os.Stat(logPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestDiscardLogger(t *testing.T) {
	t.Parallel()

	logger := DiscardLogger("fallback")
	require.NotNil(t, logger)

	// Must be safe to use at any level.
	logger.Debug("quiet")
	logger.Info("quiet")
	logger.Error("quiet")
}

func TestConsole_BeforeInitFallsBackToDefault(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, Console())
	assert.NotNil(t, ForService("pipeline"))
}
