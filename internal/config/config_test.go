package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"battery/internal/config"
)

func TestLoadDefaultsExpandPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantRoot := filepath.Join(tempHome, "Documents", "Custom Tests Battery Data")
	if cfg.Paths.DataRoot != wantRoot {
		t.Fatalf("unexpected data root: got %q want %q", cfg.Paths.DataRoot, wantRoot)
	}
	if cfg.Paths.LogDir != filepath.Join(tempHome, ".local", "share", "battery", "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.Session.StaleAfterDays != 7 {
		t.Fatalf("unexpected staleness window: %d", cfg.Session.StaleAfterDays)
	}
	if cfg.Session.ExportRetries != 3 {
		t.Fatalf("unexpected export retries: %d", cfg.Session.ExportRetries)
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Fatalf("unexpected sample rate: %d", cfg.Audio.SampleRate)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
}

func TestLoadParsesFileAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "battery.toml")
	content := strings.Join([]string{
		"[paths]",
		`data_root = "` + filepath.Join(dir, "data") + `"`,
		`log_dir = "` + filepath.Join(dir, "logs") + `"`,
		"",
		"[session]",
		"stale_after_days = 3",
		"",
		"[logging]",
		`format = "JSON"`,
		`level = "Debug"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Session.StaleAfterDays != 3 {
		t.Fatalf("unexpected staleness window: %d", cfg.Session.StaleAfterDays)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected lowercased logging settings, got %q/%q", cfg.Logging.Format, cfg.Logging.Level)
	}
	if cfg.Session.HeartbeatInterval != 5 {
		t.Fatalf("expected default heartbeat interval, got %d", cfg.Session.HeartbeatInterval)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "bad sample rate",
			content: "[audio]\nsample_rate = 12345\n",
			want:    "sample_rate",
		},
		{
			name:    "critical below warn",
			content: "[monitor]\nmemory_warn_percent = 90.0\nmemory_critical_percent = 80.0\n",
			want:    "memory_critical_percent",
		},
		{
			name:    "bad log format",
			content: "[logging]\nformat = \"xml\"\n",
			want:    "logging.format",
		},
		{
			name:    "bad log level",
			content: "[logging]\nlevel = \"verbose\"\n",
			want:    "logging.level",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tc.name, " ", "_")+".toml")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := config.Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestEnsureDirectoriesCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataRoot = filepath.Join(dir, "data")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, sub := range []string{
		cfg.SystemDir(),
		cfg.CrashReportDir(),
		cfg.Paths.LogDir,
	} {
		info, err := os.Stat(sub)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", sub, err)
		}
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[session]") {
		t.Fatal("sample config missing [session] section")
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected error writing over existing config")
	}
}
