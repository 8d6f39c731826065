package trace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragweaver/ragweaver/internal/rag"
)

func run(query string, confidence float64, elapsed float64, contextChars int, fromCache bool) rag.RunRecord {
	return rag.RunRecord{
		Query:        query,
		Answer:       "answer for " + query,
		Intent:       rag.IntentGeneral,
		Confidence:   confidence,
		ElapsedSec:   elapsed,
		ContextChars: contextChars,
		FromCache:    fromCache,
	}
}

func TestMonitorRecordAppendsAndAggregates(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := NewMonitor(dir, WithMonitorClock(fixedClock(now)))

	m.Record(run("first", 80, 1.0, 1000, false))
	m.Record(run("second", 40, 3.0, 3000, true))

	raw, err := os.ReadFile(filepath.Join(dir, runLogName))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(raw)), "\n"), 2)

	metrics, err := m.Metrics()
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.TotalRuns)
	assert.Equal(t, 1, metrics.CacheHits)
	assert.InDelta(t, 120.0, metrics.SumConfidence, 1e-9)
	assert.InDelta(t, 60.0, metrics.AvgConfidence, 1e-9)
	assert.InDelta(t, 2.0, metrics.AvgElapsedSec, 1e-9)
	assert.InDelta(t, 2000.0, metrics.AvgContextChars, 1e-9)
	assert.InDelta(t, 0.5, metrics.CacheHitRate, 1e-9)
	assert.Equal(t, "2026-03-10T12:00:00Z", metrics.UpdatedAt)
}

func TestMonitorTailReturnsMostRecent(t *testing.T) {
	m := NewMonitor(t.TempDir())

	m.Record(run("one", 10, 1, 100, false))
	m.Record(run("two", 20, 1, 100, false))
	m.Record(run("three", 30, 1, 100, false))

	tail, err := m.Tail(2)

	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "two", tail[0].Query)
	assert.Equal(t, "three", tail[1].Query)
}

func TestMonitorTailMissingLog(t *testing.T) {
	m := NewMonitor(t.TempDir())

	tail, err := m.Tail(5)

	require.NoError(t, err)
	assert.Empty(t, tail)
}

func TestMonitorTailSkipsGarbageLines(t *testing.T) {
	dir := t.TempDir()
	m := NewMonitor(dir)
	m.Record(run("good", 10, 1, 100, false))

	f, err := os.OpenFile(filepath.Join(dir, runLogName), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{broken\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	tail, err := m.Tail(10)

	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "good", tail[0].Query)
}

func TestMonitorMetricsMissingFile(t *testing.T) {
	m := NewMonitor(t.TempDir())

	metrics, err := m.Metrics()

	require.NoError(t, err)
	assert.Zero(t, metrics.TotalRuns)
}

func TestMonitorRecoversFromCorruptMetrics(t *testing.T) {
	dir := t.TempDir()
	m := NewMonitor(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, metricsFileName), []byte("{broken"), 0o644))

	m.Record(run("fresh", 50, 1, 100, false))

	metrics, err := m.Metrics()
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.TotalRuns)
	assert.InDelta(t, 50.0, metrics.AvgConfidence, 1e-9)
}

func TestInteractionLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "interactions.jsonl")
	l := NewInteractionLog(path)

	l.RecordInteraction(run("saved one", 10, 1, 100, false))
	l.RecordInteraction(run("saved two", 20, 1, 100, false))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "saved one")
	assert.Contains(t, lines[1], "saved two")
}
