package logs_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"battery/internal/logs"
	"battery/internal/testsupport"
)

func TestTailReturnsLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battery.log")
	var content string
	for i := 1; i <= 10; i++ {
		content += fmt.Sprintf("line %d\n", i)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	lines, err := logs.Tail(path, 3)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	want := []string{"line 8", "line 9", "line 10"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(lines), len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestTailMissingFile(t *testing.T) {
	lines, err := logs.Tail(filepath.Join(t.TempDir(), "absent.log"), 5)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected no lines, got %d", len(lines))
	}
}

func TestTailShorterThanLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battery.log")
	if err := os.WriteFile(path, []byte("only\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines, err := logs.Tail(path, 50)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(lines) != 1 || lines[0] != "only" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestSweepRemovesOnlyAgedFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.RetentionDays = 30

	old := time.Now().Add(-45 * 24 * time.Hour)
	aged := []string{
		filepath.Join(cfg.Paths.LogDir, "battery.log"),
		filepath.Join(cfg.CrashReportDir(), "CRASH_REPORT_20240101_000000.json"),
		filepath.Join(cfg.EmergencySaveDir("P001"), "EMERGENCY_stroop_colorword_20240101_000000.json"),
	}
	fresh := []string{
		filepath.Join(cfg.Paths.LogDir, "recent.log"),
		filepath.Join(cfg.CrashReportDir(), "CRASH_REPORT_20990101_000000.json"),
	}
	for _, path := range append(append([]string{}, aged...), fresh...) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", path, err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	for _, path := range aged {
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	result, err := logs.Sweep(cfg, time.Now())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.Removed != len(aged) {
		t.Fatalf("removed %d files, want %d", result.Removed, len(aged))
	}
	for _, path := range aged {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("aged file survived: %s", path)
		}
	}
	for _, path := range fresh {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("fresh file removed: %s", path)
		}
	}
}

func TestSweepDisabledKeepsEverything(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.RetentionDays = 0

	path := filepath.Join(cfg.Paths.LogDir, "battery.log")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	old := time.Now().Add(-400 * 24 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	result, err := logs.Sweep(cfg, time.Now())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.Removed != 0 {
		t.Fatalf("retention disabled but %d files removed", result.Removed)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file removed with retention disabled: %v", err)
	}
}
