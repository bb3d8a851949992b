package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"battery/internal/logging"
)

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "battery.log")

	logger, err := logging.New(logging.Options{
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("logging.New failed: %v", err)
	}

	logger.Info("session started",
		logging.String(logging.FieldParticipant, "P001"),
		logging.Int(logging.FieldTrial, 3),
	)

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "session started") {
		t.Fatalf("missing message in output: %s", out)
	}
	if !strings.Contains(out, "participant_id=P001") {
		t.Fatalf("missing participant field in output: %s", out)
	}
	if !strings.Contains(out, "trial=3") {
		t.Fatalf("missing trial field in output: %s", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestJSONFormatEmitsStructuredOutput(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "battery.log")

	logger, err := logging.New(logging.Options{Level: "debug", Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("logging.New failed: %v", err)
	}
	logger.Debug("snapshot written", logging.Int("sequence", 7))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	for _, want := range []string{`"msg":"snapshot written"`, `"sequence":7`, `"level":"debug"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output: %s", want, out)
		}
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := logging.WithParticipant(context.Background(), "P002")
	ctx = logging.WithSession(ctx, "abc-123")
	ctx = logging.WithTask(ctx, "stroop_colorword")
	ctx = logging.WithTrial(ctx, 5)

	fields := logging.ContextFields(ctx)
	if len(fields) != 4 {
		t.Fatalf("expected 4 context fields, got %d", len(fields))
	}

	if logging.WithContext(ctx, nil) == nil {
		t.Fatal("WithContext should never return nil")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	// Must not panic and must report disabled at all levels.
	logger.Info("ignored")
	if logger.Enabled(context.Background(), 0) {
		t.Fatal("nop logger should be disabled")
	}
}
