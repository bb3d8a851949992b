// Package logs serves the operator side of the battery's log and report
// files: tailing the session log and pruning aged logs, crash reports, and
// emergency saves per the configured retention window.
package logs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"battery/internal/config"
)

// Tail returns the last limit lines of the file at path. A missing file
// yields no lines and no error; logs appear once the battery first runs.
func Tail(path string, limit int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		return nil, nil
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	ring := make([]string, limit)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	lines := make([]string, count)
	if count == limit {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// SweepResult summarises one retention pass.
type SweepResult struct {
	Removed int
}

// Sweep deletes log files, crash reports, and emergency saves older than
// the configured retention window. Participant data is never touched.
// Retention of zero or less keeps everything.
func Sweep(cfg *config.Config, now time.Time) (SweepResult, error) {
	var result SweepResult
	days := cfg.Logging.RetentionDays
	if days <= 0 {
		return result, nil
	}
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)

	type sweepTarget struct {
		dir   string
		match func(name string) bool
	}
	targets := []sweepTarget{
		{cfg.Paths.LogDir, func(name string) bool { return strings.HasSuffix(name, ".log") }},
		{cfg.CrashReportDir(), func(name string) bool { return strings.HasPrefix(name, "CRASH_REPORT_") }},
	}
	// Emergency saves live under each participant's system directory.
	saveDirs, _ := filepath.Glob(filepath.Join(cfg.Paths.DataRoot, "*", "system", "emergency_saves"))
	for _, dir := range saveDirs {
		targets = append(targets, sweepTarget{dir, func(name string) bool { return strings.HasPrefix(name, "EMERGENCY_") }})
	}

	var firstErr error
	for _, target := range targets {
		entries, err := os.ReadDir(target.dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !target.match(entry.Name()) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(target.dir, entry.Name())); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			result.Removed++
		}
	}
	return result, firstErr
}
