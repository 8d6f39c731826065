package trace

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/ragweaver/ragweaver/internal/rag"
)

const (
	runLogName      = "rag_runs.jsonl"
	metricsFileName = "rag_metrics.json"
	metricsLockName = ".metrics.lock"
)

// Metrics is the rolling aggregate over all recorded runs.
type Metrics struct {
	TotalRuns       int     `json:"total_runs"`
	CacheHits       int     `json:"cache_hits"`
	SumConfidence   float64 `json:"sum_confidence"`
	SumElapsedSec   float64 `json:"sum_elapsed_sec"`
	SumContextChars int     `json:"sum_context_chars"`
	AvgConfidence   float64 `json:"avg_confidence"`
	AvgElapsedSec   float64 `json:"avg_elapsed_sec"`
	AvgContextChars float64 `json:"avg_context_chars"`
	CacheHitRate    float64 `json:"cache_hit_rate"`
	UpdatedAt       string  `json:"updated_at"`
}

// Monitor appends run records to an append-only log and keeps the
// aggregate metrics file current. Metrics updates run read-modify-write
// under a cross-process lock; all failures are logged and absorbed.
type Monitor struct {
	dir    string
	lock   *flock.Flock
	logger *slog.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithMonitorLogger sets the logger.
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMonitorClock overrides the time source.
func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMonitor builds a Monitor writing under dir.
func NewMonitor(dir string, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		dir:    dir,
		lock:   flock.New(filepath.Join(dir, metricsLockName)),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record logs one finished run and folds it into the aggregates.
func (m *Monitor) Record(rec rag.RunRecord) {
	if err := m.appendRun(rec); err != nil {
		m.logger.Warn("run_log_write_failed", "error", err)
	}
	if err := m.updateMetrics(rec); err != nil {
		m.logger.Warn("metrics_update_failed", "error", err)
	}
}

// Tail returns the most recent n run records, oldest first. Unparseable
// lines are skipped.
func (m *Monitor) Tail(n int) ([]rag.RunRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	data, err := os.ReadFile(filepath.Join(m.dir, runLogName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	records := make([]rag.RunRecord, 0, n)
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var rec rag.RunRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if len(records) > n {
		records = records[len(records)-n:]
	}
	return records, nil
}

// Metrics reads the current aggregate file. A missing file returns zero
// metrics.
func (m *Monitor) Metrics() (Metrics, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, metricsFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return Metrics{}, nil
		}
		return Metrics{}, err
	}
	var metrics Metrics
	if err := json.Unmarshal(data, &metrics); err != nil {
		return Metrics{}, err
	}
	return metrics, nil
}

func (m *Monitor) appendRun(rec rag.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return err
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(m.dir, runLogName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(line, '\n'))
	return err
}

func (m *Monitor) updateMetrics(rec rag.RunRecord) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return err
	}
	if err := m.lock.Lock(); err != nil {
		return err
	}
	defer m.lock.Unlock()

	metrics, err := m.Metrics()
	if err != nil {
		// Start over rather than poison every future update.
		m.logger.Warn("metrics_file_corrupt", "error", err)
		metrics = Metrics{}
	}

	metrics.TotalRuns++
	if rec.FromCache {
		metrics.CacheHits++
	}
	metrics.SumConfidence += rec.Confidence
	metrics.SumElapsedSec += rec.ElapsedSec
	metrics.SumContextChars += rec.ContextChars
	runs := float64(metrics.TotalRuns)
	metrics.AvgConfidence = metrics.SumConfidence / runs
	metrics.AvgElapsedSec = metrics.SumElapsedSec / runs
	metrics.AvgContextChars = float64(metrics.SumContextChars) / runs
	metrics.CacheHitRate = float64(metrics.CacheHits) / runs
	metrics.UpdatedAt = m.now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(m.dir, "metrics-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(m.dir, metricsFileName))
}

// =============================================================================
// Interaction log
// =============================================================================

// InteractionLog appends answered queries to a JSONL file so sessions can
// be replayed or mined for memory later.
type InteractionLog struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewInteractionLog builds an appender writing to path.
func NewInteractionLog(path string) *InteractionLog {
	return &InteractionLog{path: path, logger: slog.Default()}
}

// RecordInteraction appends one run record. Failures are logged and
// absorbed.
func (l *InteractionLog) RecordInteraction(rec rag.RunRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		l.logger.Warn("interaction_log_failed", "error", err)
		return
	}
	line, err := json.Marshal(rec)
	if err != nil {
		l.logger.Warn("interaction_log_failed", "error", err)
		return
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.logger.Warn("interaction_log_failed", "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		l.logger.Warn("interaction_log_failed", "error", err)
	}
}
