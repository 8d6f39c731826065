package ui

import (
	"sync"
	"time"
)

// Tracker accumulates progress state across stages. Safe for concurrent use:
// the ingest pipeline writes from worker goroutines while the live view
// reads snapshots on its tick.
type Tracker struct {
	mu          sync.RWMutex
	stage       Stage
	current     int
	total       int
	currentFile string
	startTime   time.Time
	stageStart  time.Time
	timings     StageTimings
	errors      int
	warnings    int
}

// Snapshot is a point-in-time view of the tracker.
type Snapshot struct {
	Stage       Stage
	Current     int
	Total       int
	Fraction    float64
	CurrentFile string
	Elapsed     time.Duration
	Errors      int
	Warnings    int
}

// NewTracker starts tracking from now.
func NewTracker() *Tracker {
	now := time.Now()
	return &Tracker{stage: StageScanning, startTime: now, stageStart: now}
}

// SetStage closes out the running stage's timing and opens the next.
func (p *Tracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.recordTiming()
	p.stage = stage
	p.total = total
	p.current = 0
	p.currentFile = ""
	p.stageStart = time.Now()
}

func (p *Tracker) recordTiming() {
	elapsed := time.Since(p.stageStart)
	switch p.stage {
	case StageScanning:
		p.timings.Scan += elapsed
	case StageChunking:
		p.timings.Chunk += elapsed
	case StageEmbedding:
		p.timings.Embed += elapsed
	case StageIndexing:
		p.timings.Index += elapsed
	case StageSymbols:
		p.timings.Symbols += elapsed
	}
}

// Update advances the current stage.
func (p *Tracker) Update(current int, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = current
	if file != "" {
		p.currentFile = file
	}
}

// AddError counts a per-file failure or warning.
func (p *Tracker) AddError(ev ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.Warn {
		p.warnings++
	} else {
		p.errors++
	}
}

// Snapshot returns the current state.
func (p *Tracker) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	fraction := 0.0
	if p.total > 0 {
		fraction = float64(p.current) / float64(p.total)
		if fraction > 1 {
			fraction = 1
		}
	}
	return Snapshot{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		Fraction:    fraction,
		CurrentFile: p.currentFile,
		Elapsed:     time.Since(p.startTime),
		Errors:      p.errors,
		Warnings:    p.warnings,
	}
}

// Timings returns per-stage durations, closing the running stage first.
func (p *Tracker) Timings() StageTimings {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recordTiming()
	p.stageStart = time.Now()
	return p.timings
}
