package workerruntime

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"

	"github.com/fernlabs/reservecore/internal/platform/logger"
)

// Profiler wraps a single handler invocation with a CPU profile, written under
// directory/<task_id>.pprof, gated by config.ProfilingEnabled — the
// operational knob spec.md's storage-agnostic framing otherwise leaves
// unaddressed (expansion: see SPEC_FULL.md ambient stack).
type Profiler struct {
	enabled   bool
	directory string
	log       *logger.Logger
}

func NewProfiler(enabled bool, directory string, log *logger.Logger) *Profiler {
	return &Profiler{enabled: enabled, directory: directory, log: log.With("component", "Profiler")}
}

// Wrap runs fn, capturing a CPU profile around it when enabled. Profiling
// failures never fail the job itself — they are logged and ignored.
func (p *Profiler) Wrap(taskID string, fn func()) {
	if !p.enabled {
		fn()
		return
	}
	if err := os.MkdirAll(p.directory, 0o755); err != nil {
		p.log.Warn("failed to create profiling directory, running unprofiled", "error", err.Error())
		fn()
		return
	}
	path := filepath.Join(p.directory, fmt.Sprintf("%s.pprof", taskID))
	f, err := os.Create(path)
	if err != nil {
		p.log.Warn("failed to create profile file, running unprofiled", "task_id", taskID, "error", err.Error())
		fn()
		return
	}
	defer f.Close()

	if err := pprof.StartCPUProfile(f); err != nil {
		p.log.Warn("failed to start CPU profile, running unprofiled", "task_id", taskID, "error", err.Error())
		fn()
		return
	}
	defer pprof.StopCPUProfile()
	fn()
}
