// Package ui renders ingestion progress and engine status to the terminal.
// Interactive terminals get a live bubbletea view; pipes and CI get plain
// line output with the same information.
package ui

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is one phase of an ingestion run.
type Stage int

const (
	StageScanning Stage = iota
	StageChunking
	StageEmbedding
	StageIndexing
	StageSymbols
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageChunking:
		return "Chunking"
	case StageEmbedding:
		return "Embedding"
	case StageIndexing:
		return "Indexing"
	case StageSymbols:
		return "Symbols"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon is the bracketed tag used in plain output.
func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StageChunking:
		return "CHUNK"
	case StageEmbedding:
		return "EMBED"
	case StageIndexing:
		return "INDEX"
	case StageSymbols:
		return "SYMS"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent is one progress update from the ingest pipeline.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent reports a per-file problem without stopping the run.
type ErrorEvent struct {
	File string
	Err  error
	Warn bool
}

// StageTimings breaks a run's duration down by stage.
type StageTimings struct {
	Scan    time.Duration
	Chunk   time.Duration
	Embed   time.Duration
	Index   time.Duration
	Symbols time.Duration
}

// CompletionStats summarizes a finished ingestion run.
type CompletionStats struct {
	Files    int
	Chunks   int
	Symbols  int
	Duration time.Duration
	Errors   int
	Warnings int
	Stages   StageTimings
}

// Renderer displays ingestion progress.
type Renderer interface {
	Start() error
	Update(event ProgressEvent)
	Error(event ErrorEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// Config configures renderer construction.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Project    string
}

// NewRenderer picks the live view for interactive terminals and the plain
// renderer for pipes, CI, or when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	return NewLiveRenderer(cfg)
}

// IsTTY reports whether the writer is an interactive terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor honors the NO_COLOR convention.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether the process runs under a CI system.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
