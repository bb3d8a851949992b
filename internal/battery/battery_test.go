package battery_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"battery/internal/audio"
	"battery/internal/battery"
	"battery/internal/config"
	"battery/internal/crash"
	"battery/internal/logging"
	"battery/internal/store"
	"battery/internal/task"
	"battery/internal/testsupport"
)

func newRunner(t *testing.T, opts ...battery.Option) (*battery.Runner, *config.Config, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	base := []battery.Option{battery.WithTrialsPerTask(4)}
	r := battery.New(cfg, st, logging.NewNop(), append(base, opts...)...)
	return r, cfg, st
}

func findResultsFile(t *testing.T, participantDir, taskName string) string {
	t.Helper()
	var found string
	err := filepath.WalkDir(participantDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == taskName+"_results.txt" {
			found = path
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return found
}

func TestFullSessionRunsAllTasksAndExports(t *testing.T) {
	r, cfg, st := newRunner(t)
	ctx := context.Background()

	if err := r.Start(ctx, "P001", nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	pdir := cfg.ParticipantDir("P001")
	for _, name := range battery.DefaultTaskNames {
		path := findResultsFile(t, pdir, name)
		if path == "" {
			t.Fatalf("no results file for %s", name)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if !strings.Contains(string(data), "TRIAL DATA (CSV FORMAT):") {
			t.Fatalf("results file for %s missing trial section", name)
		}
	}

	sessions, err := st.ListSessions(ctx, "P001")
	if err != nil || len(sessions) != 1 {
		t.Fatalf("ListSessions: %v (%d)", err, len(sessions))
	}
	if sessions[0].Status != store.StatusCompleted {
		t.Fatalf("session status %s, want completed", sessions[0].Status)
	}
	for _, name := range battery.DefaultTaskNames {
		count, err := st.TrialCount(ctx, sessions[0].ID, name)
		if err != nil || count != 4 {
			t.Fatalf("TrialCount(%s): %v (%d)", name, err, count)
		}
	}

	if _, err := os.Stat(cfg.SessionStatePath("P001")); !os.IsNotExist(err) {
		t.Fatal("completed session left a snapshot behind")
	}
	// The heartbeat stops before Complete removes its files; neither may
	// reappear after a clean exit.
	systemDir := filepath.Join(pdir, "system")
	for _, name := range []string{crash.HeartbeatFile, crash.HeartbeatMetaFile} {
		if _, err := os.Stat(filepath.Join(systemDir, name)); !os.IsNotExist(err) {
			t.Fatalf("completed session left %s behind", name)
		}
	}
	pending, err := r.CheckForRecovery(ctx)
	if err != nil || len(pending) != 0 {
		t.Fatalf("completed session must not offer recovery: %v (%d)", err, len(pending))
	}
}

type interruptFrontend struct {
	cancel context.CancelFunc
	after  int
	seen   int
}

func (f *interruptFrontend) Present(ctx context.Context, _ int, stim task.Stimulus) (task.Response, error) {
	f.seen++
	if f.seen > f.after {
		f.cancel()
		return task.Response{}, ctx.Err()
	}
	return task.Response{Value: stim.Expected, ReactionTime: 5 * time.Millisecond}, nil
}

func TestInterruptedSessionResumesAtNextTrial(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	front := &interruptFrontend{cancel: cancel, after: 5}
	first := battery.New(cfg, st, logging.NewNop(),
		battery.WithTrialsPerTask(8),
		battery.WithFrontend(front))

	err := first.Start(ctx, "P001", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}

	second := battery.New(cfg, st, logging.NewNop(), battery.WithTrialsPerTask(8))
	pending, err := second.CheckForRecovery(context.Background())
	if err != nil {
		t.Fatalf("CheckForRecovery: %v", err)
	}
	if len(pending) != 1 || pending[0].ParticipantID != "P001" {
		t.Fatalf("expected one pending session for P001, got %+v", pending)
	}
	if got := len(pending[0].Snapshot.CurrentState.Trials); got != 5 {
		t.Fatalf("expected 5 saved trials before the crash, got %d", got)
	}

	if err := second.Resume(context.Background(), pending[0]); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	sessions, err := st.ListSessions(context.Background(), "P001")
	if err != nil || len(sessions) != 1 {
		t.Fatalf("ListSessions: %v (%d)", err, len(sessions))
	}
	sess := sessions[0]
	if sess.Status != store.StatusCompleted {
		t.Fatalf("session status %s, want completed", sess.Status)
	}
	if sess.CrashCount != 1 {
		t.Fatalf("crash count %d, want 1", sess.CrashCount)
	}

	// Resume replays saved trials as upserts, so the totals are exact.
	for _, name := range battery.DefaultTaskNames {
		count, err := st.TrialCount(context.Background(), sess.ID, name)
		if err != nil || count != 8 {
			t.Fatalf("TrialCount(%s): %v (%d)", name, err, count)
		}
	}

	trials, err := st.ListTrials(context.Background(), sess.ID, task.StroopName)
	if err != nil {
		t.Fatalf("ListTrials: %v", err)
	}
	for i, trial := range trials {
		if trial.TrialNumber != i+1 {
			t.Fatalf("trial sequence has gaps or duplicates: %+v", trials)
		}
	}
}

func TestUnknownTaskIsContainedToThatTask(t *testing.T) {
	r, _, st := newRunner(t)
	ctx := context.Background()

	if err := r.Start(ctx, "P001", []string{"mystery_task", task.StroopName}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sessions, err := st.ListSessions(ctx, "P001")
	if err != nil || len(sessions) != 1 {
		t.Fatalf("ListSessions: %v (%d)", err, len(sessions))
	}
	if sessions[0].Status != store.StatusCompleted {
		t.Fatalf("session status %s, want completed", sessions[0].Status)
	}
	count, err := st.TrialCount(ctx, sessions[0].ID, task.StroopName)
	if err != nil || count != 4 {
		t.Fatalf("stroop should have run: %v (%d)", err, count)
	}
}

func TestVoiceOnsetsFlowIntoResults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Audio.SampleRate = 8000
	cfg.Audio.RecordingSeconds = 1
	st := testsupport.MustOpenStore(t, cfg)

	rec := &audio.SyntheticRecorder{
		SampleRate: cfg.Audio.SampleRate,
		Onset:      300 * time.Millisecond,
		Amplitude:  0.5,
		ToneHz:     440,
	}
	r := battery.New(cfg, st, logging.NewNop(),
		battery.WithTrialsPerTask(3),
		battery.WithRecorder(rec))

	if err := r.Start(context.Background(), "P001", []string{task.DigitNamingName}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sessions, _ := st.ListSessions(context.Background(), "P001")
	trials, err := st.ListTrials(context.Background(), sessions[0].ID, task.DigitNamingName)
	if err != nil || len(trials) != 3 {
		t.Fatalf("ListTrials: %v (%d)", err, len(trials))
	}
	for _, trial := range trials {
		if trial.VoiceOnsetMS < 200 || trial.VoiceOnsetMS > 400 {
			t.Fatalf("trial %d onset %.1fms outside expected window", trial.TrialNumber, trial.VoiceOnsetMS)
		}
	}
}

func TestExportSessionRewritesLostFile(t *testing.T) {
	r, cfg, st := newRunner(t)
	ctx := context.Background()

	if err := r.Start(ctx, "P001", []string{task.StroopName}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	path := findResultsFile(t, cfg.ParticipantDir("P001"), task.StroopName)
	if path == "" {
		t.Fatal("no results file written")
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	sessions, _ := st.ListSessions(ctx, "P001")
	exports, err := r.ExportSession(ctx, sessions[0].ID)
	if err != nil {
		t.Fatalf("ExportSession: %v", err)
	}
	if len(exports) != 1 {
		t.Fatalf("expected one export record, got %d", len(exports))
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("results file not rewritten: %v", err)
	}

	// Intact file: a second pass is a no-op.
	before, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := r.ExportSession(ctx, sessions[0].ID); err != nil {
		t.Fatalf("second ExportSession: %v", err)
	}
	after, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Fatal("intact export was rewritten")
	}
}

func TestPanicInTaskWritesCrashReport(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	mon := crash.NewMonitor(cfg, logging.NewNop())
	mon.Install()
	defer mon.Teardown()

	builder := func(name string, trials int, seed int64) (task.Task, error) {
		return panicTask{}, nil
	}
	r := battery.New(cfg, st, logging.NewNop(),
		battery.WithMonitor(mon),
		battery.WithTaskBuilder(builder))

	// The panic is converted to a task failure; the session completes with
	// that task skipped.
	if err := r.Start(context.Background(), "P001", []string{task.StroopName}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	entries, err := os.ReadDir(cfg.CrashReportDir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	found := false
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "CRASH_REPORT_") {
			found = true
		}
	}
	if !found {
		t.Fatal("no crash report written for the panicking task")
	}
}

type panicTask struct{}

func (panicTask) Name() string    { return "panicking" }
func (panicTask) TrialCount() int { return 1 }
func (panicTask) Trial(n int) (task.Stimulus, error) {
	panic("stimulus table corrupted")
}
