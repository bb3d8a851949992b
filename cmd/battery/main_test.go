package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	content := fmt.Sprintf(`[paths]
data_root = %q
log_dir = %q

[session]
heartbeat_interval = 1

[logging]
format = "json"
level = "warn"
`, filepath.Join(base, "data"), filepath.Join(base, "logs"))
	path := filepath.Join(base, "battery.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("output does not mention target: %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample not written: %v", err)
	}

	// Without --overwrite a second init must refuse.
	if _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config already exists")
	}
}

func TestRunCommandCompletesSession(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCLI(t, "--config", cfgPath,
		"run", "-p", "P001", "--trials", "2", "--auto-respond")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Session complete for P001") {
		t.Fatalf("unexpected output: %q", out)
	}

	out, err = runCLI(t, "--config", cfgPath, "recover", "list")
	if err != nil {
		t.Fatalf("recover list: %v", err)
	}
	if !strings.Contains(out, "No interrupted sessions.") {
		t.Fatalf("completed run left pending sessions: %q", out)
	}
}

func TestParticipantRegisterAndShow(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCLI(t, "--config", cfgPath,
		"participant", "register", "-i", "P002",
		"--sex", "F", "--handedness", "right", "--consent")
	if err != nil {
		t.Fatalf("register: %v\n%s", err, out)
	}

	out, err = runCLI(t, "--config", cfgPath, "participant", "show", "P002")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "P002") || !strings.Contains(out, "right") {
		t.Fatalf("biodata missing from output: %q", out)
	}
}

func TestSessionsCommandEmptyStore(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCLI(t, "--config", cfgPath, "sessions", "P404")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if !strings.Contains(out, "No sessions recorded for P404") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestExportCommandUnknownSession(t *testing.T) {
	cfgPath := writeTestConfig(t)

	if _, err := runCLI(t, "--config", cfgPath, "export", "no-such-session"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestTaskCommandRunsStandalone(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCLI(t, "--config", cfgPath,
		"task", "stroop_colorword", "--trials", "3", "--seed", "7", "--auto-respond")
	if err != nil {
		t.Fatalf("task: %v\n%s", err, out)
	}
	if !strings.Contains(out, "stroop_colorword: 3/3 correct") {
		t.Fatalf("summary missing: %q", out)
	}
}

func TestTaskCommandRejectsUnknownTask(t *testing.T) {
	cfgPath := writeTestConfig(t)

	if _, err := runCLI(t, "--config", cfgPath, "task", "no_such_task", "--auto-respond"); err == nil {
		t.Fatal("expected error for unknown task")
	}
}

func TestConfigShowPrintsResolvedSettings(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out, err := runCLI(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "paths.data_root") || !strings.Contains(out, "logging.retention_days") {
		t.Fatalf("settings missing from output: %q", out)
	}
}
