package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// PlainRenderer prints one line per update. Used for pipes and CI, where a
// live view would garble the output.
type PlainRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPlainRenderer builds a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

func (r *PlainRenderer) Start() error { return nil }

func (r *PlainRenderer) Update(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}
	switch {
	case event.Total > 0:
		fmt.Fprintf(r.out, "[%s] %d/%d %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	case msg != "":
		fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

func (r *PlainRenderer) Error(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.Warn {
		prefix = "WARN"
	}
	if event.File != "" {
		fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	writeSummary(r.out, stats)
}

func (r *PlainRenderer) Stop() error { return nil }

// writeSummary prints the final run summary shared by both renderers.
func writeSummary(w io.Writer, stats CompletionStats) {
	fmt.Fprintf(w, "Complete: %d files, %d chunks, %d symbols in %s",
		stats.Files, stats.Chunks, stats.Symbols, roundDuration(stats.Duration))
	if stats.Errors > 0 || stats.Warnings > 0 {
		fmt.Fprintf(w, " (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}
	fmt.Fprintln(w)

	parts := stageParts(stats.Stages)
	if len(parts) > 0 {
		fmt.Fprintf(w, "Stages: %s\n", strings.Join(parts, ", "))
	}
}

func stageParts(t StageTimings) []string {
	var parts []string
	add := func(name string, d time.Duration) {
		if d > 0 {
			parts = append(parts, fmt.Sprintf("%s %s", name, roundDuration(d)))
		}
	}
	add("scan", t.Scan)
	add("chunk", t.Chunk)
	add("embed", t.Embed)
	add("index", t.Index)
	add("symbols", t.Symbols)
	return parts
}

func roundDuration(d time.Duration) time.Duration {
	return d.Round(100 * time.Millisecond)
}
