package cmd

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragweaver/ragweaver/internal/rag"
	"github.com/ragweaver/ragweaver/internal/trace"
)

// seedRunLog points the data directory at a temp dir and records two runs.
func seedRunLog(t *testing.T) {
	t.Helper()
	dataDir := t.TempDir()
	t.Setenv("RAG_DATA_DIR", dataDir)

	monitor := trace.NewMonitor(filepath.Join(dataDir, "logs"))
	monitor.Record(rag.RunRecord{
		Query:      "how does ingestion skip unchanged files?",
		Answer:     "By content hash.",
		Intent:     rag.IntentExplain,
		Confidence: 82,
		ElapsedSec: 1.31,
		Project:    "demo",
		Timestamp:  "2026-08-25T10:00:00Z",
	})
	monitor.Record(rag.RunRecord{
		Query:      "what is the status of the migration?",
		Answer:     "In progress.",
		Intent:     rag.IntentStatus,
		Confidence: 64,
		ElapsedSec: 0.42,
		FromCache:  true,
		Project:    "demo",
		Timestamp:  "2026-08-25T10:05:00Z",
	})
}

func TestLogsCmd_NoRuns(t *testing.T) {
	t.Setenv("RAG_DATA_DIR", t.TempDir())

	output, err := runCLI(t, "logs")

	require.NoError(t, err)
	assert.Contains(t, output, "No runs recorded yet")
}

func TestLogsCmd_RendersTable(t *testing.T) {
	seedRunLog(t)

	output, err := runCLI(t, "logs")

	require.NoError(t, err)
	assert.Contains(t, output, "TIME")
	assert.Contains(t, output, "QUERY")
	assert.Contains(t, output, "demo")
	assert.Contains(t, output, "explain")
	assert.Contains(t, output, "status")
	assert.Contains(t, output, "hit")
	assert.Contains(t, output, "miss")
	assert.Contains(t, output, "how does ingestion skip unchanged files?")
}

func TestLogsCmd_JSONLines(t *testing.T) {
	seedRunLog(t)

	output, err := runCLI(t, "logs", "--json")

	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(output), "\n")
	require.Len(t, lines, 2)

	// Oldest first.
	var first, second rag.RunRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "how does ingestion skip unchanged files?", first.Query)
	assert.False(t, first.FromCache)
	assert.Equal(t, "what is the status of the migration?", second.Query)
	assert.True(t, second.FromCache)
}

func TestLogsCmd_LineLimit(t *testing.T) {
	seedRunLog(t)

	output, err := runCLI(t, "logs", "-n", "1")

	require.NoError(t, err)
	assert.Contains(t, output, "what is the status of the migration?", "latest run should survive the limit")
	assert.NotContains(t, output, "ingestion", "older run should be cut")
}

func TestTruncateQuery(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short stays", "hello", 48, "hello"},
		{"exact stays", "abcde", 5, "abcde"},
		{"long truncates", strings.Repeat("a", 60), 48, strings.Repeat("a", 45) + "..."},
		{"multibyte safe", strings.Repeat("ä", 60), 10, strings.Repeat("ä", 7) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateQuery(tt.in, tt.max)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len([]rune(got)), tt.max)
		})
	}
}
