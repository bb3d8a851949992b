package crash

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"battery/internal/config"
	"battery/internal/logging"
)

// Resources is a point-in-time sample of host pressure, attached to crash
// reports and logged by the watcher.
type Resources struct {
	MemoryPercent  float64 `json:"memory_percent"`
	MemoryUsedMB   uint64  `json:"memory_used_mb"`
	MemoryTotalMB  uint64  `json:"memory_total_mb"`
	CPUPercent     float64 `json:"cpu_percent"`
	GoroutineCount int     `json:"goroutine_count"`
}

// SampleResources is best effort: fields that cannot be read stay zero.
func SampleResources() Resources {
	res := Resources{GoroutineCount: runtime.NumGoroutine()}
	if vm, err := mem.VirtualMemory(); err == nil {
		res.MemoryPercent = vm.UsedPercent
		res.MemoryUsedMB = vm.Used / (1024 * 1024)
		res.MemoryTotalMB = vm.Total / (1024 * 1024)
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		res.CPUPercent = percents[0]
	}
	return res
}

// Watcher polls host resources during a session and logs when usage crosses
// the configured thresholds. A warning here is often the only clue a later
// crash report leaves behind.
type Watcher struct {
	interval    time.Duration
	memPercent  float64
	memCritical float64
	cpuPercent  float64
	logger      *slog.Logger

	// monitor provides the attached session for the critical-memory
	// emergency save. May be nil.
	monitor       *Monitor
	criticalFired bool

	sample func() Resources
}

func NewWatcher(cfg *config.Config, monitor *Monitor, logger *slog.Logger) *Watcher {
	interval := time.Duration(cfg.Monitor.PollInterval) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Watcher{
		interval:    interval,
		memPercent:  cfg.Monitor.MemoryWarnPercent,
		memCritical: cfg.Monitor.MemoryCriticalPercent,
		cpuPercent:  cfg.Monitor.CPUWarnPercent,
		logger:      logging.NewComponentLogger(logger, "monitor"),
		monitor:     monitor,
		sample:      SampleResources,
	}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	res := w.sample()
	if w.memCritical > 0 && res.MemoryPercent >= w.memCritical {
		// Save once per crossing; the condition re-arms when pressure drops.
		if !w.criticalFired {
			w.criticalFired = true
			w.logger.Error("memory usage critical",
				logging.Float64("memory_percent", res.MemoryPercent),
				logging.Float64("threshold", w.memCritical))
			if w.monitor != nil {
				w.monitor.EmergencySaveNow(fmt.Sprintf("memory usage critical: %.1f%%", res.MemoryPercent))
			}
		}
	} else {
		w.criticalFired = false
	}
	if res.MemoryPercent >= w.memPercent {
		w.logger.Warn("memory usage high",
			logging.Float64("memory_percent", res.MemoryPercent),
			logging.Float64("threshold", w.memPercent))
	}
	if res.CPUPercent >= w.cpuPercent {
		w.logger.Warn("cpu usage high",
			logging.Float64("cpu_percent", res.CPUPercent),
			logging.Float64("threshold", w.cpuPercent))
	}
	w.logger.Debug("resource sample",
		logging.Float64("memory_percent", res.MemoryPercent),
		logging.Float64("cpu_percent", res.CPUPercent),
		logging.Int("goroutines", res.GoroutineCount))
}
