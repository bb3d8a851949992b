package crash

import (
	"strings"
	"testing"

	"battery/internal/config"
	"battery/internal/logging"
)

type captureSaver struct {
	reasons []string
}

func (c *captureSaver) EmergencySave(reason string) {
	c.reasons = append(c.reasons, reason)
}

func TestWatcherSavesOncePerCriticalCrossing(t *testing.T) {
	cfg := config.Default()
	cfg.Monitor.MemoryWarnPercent = 80
	cfg.Monitor.MemoryCriticalPercent = 95

	mon := NewMonitor(&cfg, logging.NewNop())
	saver := &captureSaver{}
	mon.Attach(saver)

	w := NewWatcher(&cfg, mon, logging.NewNop())
	memory := 50.0
	w.sample = func() Resources { return Resources{MemoryPercent: memory} }

	w.check()
	if len(saver.reasons) != 0 {
		t.Fatalf("saved below threshold: %v", saver.reasons)
	}

	memory = 97
	w.check()
	w.check()
	if len(saver.reasons) != 1 {
		t.Fatalf("expected one save per crossing, got %d", len(saver.reasons))
	}
	if !strings.Contains(saver.reasons[0], "memory usage critical") {
		t.Fatalf("unexpected reason: %q", saver.reasons[0])
	}

	// Dropping below the threshold re-arms the save.
	memory = 60
	w.check()
	memory = 98
	w.check()
	if len(saver.reasons) != 2 {
		t.Fatalf("expected re-armed save, got %d", len(saver.reasons))
	}
}
