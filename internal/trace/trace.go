// Package trace records per-query execution traces and run-level metrics.
// A Trace collects named spans across the pipeline stages and is appended
// as one JSON line to a day-partitioned trace file when the query ends.
// Spans propagate through context so deep callees never need the tracer.
package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// maxSpansPerTrace bounds the in-memory span slice. Spans past the
	// cap still measure but are not recorded.
	maxSpansPerTrace = 1024

	// maxQueryChars bounds the query text stored in a trace.
	maxQueryChars = 200

	tracingEnv = "RAG_TRACING_ENABLED"
)

// =============================================================================
// Span
// =============================================================================

// Span measures one named unit of work. Safe for use by a single
// goroutine; distinct spans may run concurrently.
type Span struct {
	name  string
	start time.Time
	now   func() time.Time

	mu         sync.Mutex
	attrs      map[string]any
	durationMs float64
	status     string
	errText    string
	ended      bool
}

func newSpan(name string, now func() time.Time) *Span {
	return &Span{name: name, start: now(), now: now}
}

// SetAttr attaches a key/value pair to the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attrs == nil {
		s.attrs = make(map[string]any)
	}
	s.attrs[key] = value
}

// End closes the span with its duration and ok/error status. Subsequent
// calls are ignored.
func (s *Span) End(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.durationMs = float64(s.now().Sub(s.start).Microseconds()) / 1000
	if err != nil {
		s.status = "error"
		s.errText = err.Error()
	} else {
		s.status = "ok"
	}
}

// DurationMs returns the measured duration after End.
func (s *Span) DurationMs() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durationMs
}

// spanRecord is the serialized form of a span.
type spanRecord struct {
	Name       string         `json:"name"`
	DurationMs float64        `json:"duration_ms"`
	Status     string         `json:"status"`
	Error      string         `json:"error,omitempty"`
	Attrs      map[string]any `json:"attrs,omitempty"`
}

func (s *Span) snapshot() spanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.status
	if !s.ended {
		status = "unfinished"
	}
	return spanRecord{
		Name:       s.name,
		DurationMs: s.durationMs,
		Status:     status,
		Error:      s.errText,
		Attrs:      s.attrs,
	}
}

// =============================================================================
// Trace
// =============================================================================

// Trace is the span collection for one operation.
type Trace struct {
	id        string
	operation string
	query     string
	started   time.Time
	now       func() time.Time

	mu    sync.Mutex
	spans []*Span
}

// ID returns the trace identifier.
func (t *Trace) ID() string { return t.id }

// StartSpan opens a named span under this trace.
func (t *Trace) StartSpan(name string) *Span {
	s := newSpan(name, t.now)
	t.mu.Lock()
	if len(t.spans) < maxSpansPerTrace {
		t.spans = append(t.spans, s)
	}
	t.mu.Unlock()
	return s
}

// traceRecord is the serialized form of a finished trace.
type traceRecord struct {
	TraceID    string         `json:"trace_id"`
	Operation  string         `json:"operation"`
	Query      string         `json:"query"`
	StartedAt  string         `json:"started_at"`
	DurationMs float64        `json:"duration_ms"`
	Summary    map[string]any `json:"summary,omitempty"`
	Spans      []spanRecord   `json:"spans"`
}

func (t *Trace) record(summary map[string]any) traceRecord {
	t.mu.Lock()
	spans := make([]spanRecord, len(t.spans))
	for i, s := range t.spans {
		spans[i] = s.snapshot()
	}
	t.mu.Unlock()

	return traceRecord{
		TraceID:    t.id,
		Operation:  t.operation,
		Query:      t.query,
		StartedAt:  t.started.UTC().Format(time.RFC3339Nano),
		DurationMs: float64(t.now().Sub(t.started).Microseconds()) / 1000,
		Summary:    summary,
		Spans:      spans,
	}
}

// =============================================================================
// Context propagation
// =============================================================================

type ctxKey struct{}

// NewContext attaches the trace to the context.
func NewContext(ctx context.Context, tr *Trace) context.Context {
	return context.WithValue(ctx, ctxKey{}, tr)
}

// FromContext returns the trace attached to the context, or nil.
func FromContext(ctx context.Context) *Trace {
	tr, _ := ctx.Value(ctxKey{}).(*Trace)
	return tr
}

// SpanFromContext opens a span on the context's trace. Without a trace it
// returns a detached span that measures but is recorded nowhere.
func SpanFromContext(ctx context.Context, name string) *Span {
	if tr := FromContext(ctx); tr != nil {
		return tr.StartSpan(name)
	}
	return newSpan(name, time.Now)
}

// =============================================================================
// Tracer
// =============================================================================

// Tracer creates traces and appends finished ones to the day's file.
type Tracer struct {
	dir     string
	enabled bool
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.Mutex
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithEnabled overrides the environment toggle.
func WithEnabled(enabled bool) TracerOption {
	return func(t *Tracer) { t.enabled = enabled }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) TracerOption {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) TracerOption {
	return func(t *Tracer) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracer builds a Tracer writing under dir. Tracing defaults on and
// can be switched off with RAG_TRACING_ENABLED=0.
func NewTracer(dir string, opts ...TracerOption) *Tracer {
	t := &Tracer{
		dir:     dir,
		enabled: envTracingEnabled(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Enabled reports whether finished traces are persisted.
func (t *Tracer) Enabled() bool { return t.enabled }

// StartTrace opens a trace for one operation. The query is truncated to
// keep trace lines bounded.
func (t *Tracer) StartTrace(operation, query string) *Trace {
	now := t.now()
	if len(query) > maxQueryChars {
		query = query[:maxQueryChars]
	}
	return &Trace{
		id:        fmt.Sprintf("%s_%d", operation, now.UnixMilli()),
		operation: operation,
		query:     query,
		started:   now,
		now:       t.now,
	}
}

// EndTrace appends the finished trace as one JSON line. Disabled tracers
// drop it; write failures are logged and never surface.
func (t *Tracer) EndTrace(tr *Trace, summary map[string]any) {
	if tr == nil || !t.enabled {
		return
	}

	line, err := json.Marshal(tr.record(summary))
	if err != nil {
		t.logger.Warn("trace_encode_failed", "trace_id", tr.id, "error", err)
		return
	}
	if err := t.appendLine(line); err != nil {
		t.logger.Warn("trace_write_failed", "trace_id", tr.id, "error", err)
	}
}

// SpanStats aggregates one span name across a day's traces.
type SpanStats struct {
	Count int     `json:"count"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
}

// Summary aggregates span durations from today's trace file: count and
// p50/p95 latency per span name. A missing file yields an empty map.
func (t *Tracer) Summary() (map[string]SpanStats, error) {
	data, err := os.ReadFile(t.traceFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]SpanStats{}, nil
		}
		return nil, err
	}

	durations := make(map[string][]float64)
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var rec traceRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		for _, span := range rec.Spans {
			durations[span.Name] = append(durations[span.Name], span.DurationMs)
		}
	}

	stats := make(map[string]SpanStats, len(durations))
	for name, ds := range durations {
		sort.Float64s(ds)
		stats[name] = SpanStats{
			Count: len(ds),
			P50Ms: percentile(ds, 0.50),
			P95Ms: percentile(ds, 0.95),
		}
	}
	return stats, nil
}

func (t *Tracer) appendLine(line []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(t.traceFilePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(line, '\n'))
	return err
}

func (t *Tracer) traceFilePath() string {
	return filepath.Join(t.dir, fmt.Sprintf("traces_%s.jsonl", t.now().Format("20060102")))
}

// percentile returns the nearest-rank percentile of a sorted slice.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func envTracingEnabled() bool {
	switch strings.ToLower(os.Getenv(tracingEnv)) {
	case "0", "false", "no", "off":
		return false
	}
	return true
}
