// Package profiling wires the runtime's pprof and execution-trace
// facilities to CLI flags so slow queries can be profiled in place.
package profiling

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Profiler owns the files backing an in-flight CPU profile or execution
// trace. A zero Profiler is ready to use; at most one CPU profile and
// one trace may be active at a time, which matches the runtime's own
// limits.
type Profiler struct {
	cpu *os.File
	trc *os.File
}

func NewProfiler() *Profiler {
	return &Profiler{}
}

// StartCPU begins a CPU profile written to path. The returned cleanup
// stops the profile and closes the file; it must run before the process
// exits or the profile is unusable.
func (p *Profiler) StartCPU(path string) (cleanup func(), err error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create cpu profile %s: %w", path, err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("start cpu profile: %w", err)
	}
	p.cpu = f
	return func() {
		pprof.StopCPUProfile()
		_ = p.cpu.Close()
		p.cpu = nil
	}, nil
}

// StartTrace begins an execution trace written to path. Traces show
// where pipeline stages block on LLM and retriever I/O, which a CPU
// profile cannot.
func (p *Profiler) StartTrace(path string) (cleanup func(), err error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create trace file %s: %w", path, err)
	}
	if err := trace.Start(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("start trace: %w", err)
	}
	p.trc = f
	return func() {
		trace.Stop()
		_ = p.trc.Close()
		p.trc = nil
	}, nil
}

// WriteHeap snapshots live heap allocations to path. A GC runs first so
// the profile reflects retained memory, not garbage awaiting collection.
func (p *Profiler) WriteHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create heap profile %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("write heap profile: %w", err)
	}
	return nil
}
