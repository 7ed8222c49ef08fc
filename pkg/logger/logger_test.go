package logger

import (
	"bytes"
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
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := New(Options{Level: slog.LevelInfo, Output: &buf})
	require.NoError(t, err)
	defer closer.Close()

	log.Debug("hidden")
	log.Info("document processed", "document", "mondstadt.txt")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "document processed")
	assert.Contains(t, out, "mondstadt.txt")
}

func TestNewTeesToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "lorekeeper.log")
	log, closer, err := New(Options{Level: slog.LevelDebug, Output: &buf, File: path})
	require.NoError(t, err)

	log.With("run", "r1").Warn("chunk skipped", "chunk", 2)
	require.NoError(t, closer.Close())

	assert.Contains(t, buf.String(), "chunk skipped")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "chunk skipped", rec["msg"])
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "r1", rec["run"])
	assert.Equal(t, float64(2), rec["chunk"])
}

func TestFanoutRespectsLevels(t *testing.T) {
	var low, high bytes.Buffer
	h := Fanout(
		slog.NewTextHandler(&low, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&high, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	log := slog.New(h).WithGroup("merge")
	log.Info("entity created", "name", "Diluc")

	assert.Contains(t, low.String(), "merge.name=Diluc")
	assert.Empty(t, high.String())
}
