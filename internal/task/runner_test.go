package task_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"battery/internal/audio"
	"battery/internal/task"
)

// memorySaver keeps snapshots in memory and counts boundary saves.
type memorySaver struct {
	trials    []task.TrialResult
	saves     int
	failSaves bool
}

func (m *memorySaver) Snapshot(trials []task.TrialResult) error {
	if m.failSaves {
		return errors.New("disk full")
	}
	m.trials = append([]task.TrialResult(nil), trials...)
	m.saves++
	return nil
}

func (m *memorySaver) Restore() ([]task.TrialResult, bool, error) {
	if len(m.trials) == 0 {
		return nil, false, nil
	}
	return append([]task.TrialResult(nil), m.trials...), true, nil
}

// stopFrontend answers trials until a given trial, then reports cancellation.
type stopFrontend struct {
	auto   task.AutoFrontend
	stopAt int
	cancel context.CancelFunc
}

func (f *stopFrontend) Present(ctx context.Context, n int, stim task.Stimulus) (task.Response, error) {
	if n == f.stopAt {
		f.cancel()
		return task.Response{}, ctx.Err()
	}
	return f.auto.Present(ctx, n, stim)
}

func TestRunnerCompletesAllTrials(t *testing.T) {
	saver := &memorySaver{}
	runner := &task.Runner{
		Task:     task.NewStroop(8, 42),
		Frontend: &task.AutoFrontend{},
		Saver:    saver,
	}

	outcome, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Completed {
		t.Fatal("expected completed outcome")
	}
	if len(outcome.Trials) != 8 {
		t.Fatalf("expected 8 trials, got %d", len(outcome.Trials))
	}
	for i, trial := range outcome.Trials {
		if trial.TrialNumber != i+1 {
			t.Fatalf("trial numbering broken: %+v", trial)
		}
		if !trial.Correct {
			t.Fatalf("auto frontend should answer correctly: %+v", trial)
		}
	}
	// One save per trial boundary plus the final save.
	if saver.saves < 8 {
		t.Fatalf("expected a snapshot per trial, got %d", saver.saves)
	}
}

func TestRunnerResumesAfterInterruption(t *testing.T) {
	saver := &memorySaver{}
	plan := task.NewStroop(10, 7)

	ctx, cancel := context.WithCancel(context.Background())
	front := &stopFrontend{stopAt: 6, cancel: cancel}
	runner := &task.Runner{Task: plan, Frontend: front, Saver: saver}

	outcome, err := runner.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if outcome.Completed {
		t.Fatal("interrupted run must not report completion")
	}
	if len(outcome.Trials) != 5 {
		t.Fatalf("expected exactly 5 completed trials, got %d", len(outcome.Trials))
	}
	if len(saver.trials) != 5 {
		t.Fatalf("snapshot should hold 5 trials, got %d", len(saver.trials))
	}

	// Relaunch: same plan and saver, fresh context.
	resumed := &task.Runner{Task: plan, Frontend: &task.AutoFrontend{}, Saver: saver}
	outcome, err = resumed.Run(context.Background())
	if err != nil {
		t.Fatalf("resumed Run: %v", err)
	}
	if !outcome.Resumed {
		t.Fatal("expected resumed outcome")
	}
	if !outcome.Completed || len(outcome.Trials) != 10 {
		t.Fatalf("resume should finish all 10 trials, got %d (completed=%v)",
			len(outcome.Trials), outcome.Completed)
	}
	seen := map[int]bool{}
	for _, trial := range outcome.Trials {
		if seen[trial.TrialNumber] {
			t.Fatalf("duplicated trial %d after resume", trial.TrialNumber)
		}
		seen[trial.TrialNumber] = true
	}
	for n := 1; n <= 10; n++ {
		if !seen[n] {
			t.Fatalf("missing trial %d after resume", n)
		}
	}
}

func TestRunnerRecordsAndAnalyzesAudio(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audio_files")
	analyzer := audio.NewAnalyzer(2, 0.02, nil)
	defer analyzer.Close()

	runner := &task.Runner{
		Task:     task.NewStroop(4, 3),
		Frontend: &task.AutoFrontend{},
		Saver:    &memorySaver{},
		Recorder: &audio.SyntheticRecorder{
			SampleRate: 16000,
			Onset:      250 * time.Millisecond,
			Amplitude:  0.5,
		},
		Analyzer:  analyzer,
		AudioDir:  dir,
		RecordFor: time.Second,
	}

	outcome, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, trial := range outcome.Trials {
		want := filepath.Join(dir, fmt.Sprintf("trial_%d.wav", trial.TrialNumber))
		if trial.AudioFile != want {
			t.Fatalf("unexpected audio file for trial %d: %q", trial.TrialNumber, trial.AudioFile)
		}
		if _, err := os.Stat(want); err != nil {
			t.Fatalf("missing recording %s: %v", want, err)
		}
		if trial.VoiceOnsetMS < 0 {
			t.Fatalf("trial %d has no voice onset", trial.TrialNumber)
		}
	}
}

func TestRunnerAbortsTaskOnBadStimulus(t *testing.T) {
	runner := &task.Runner{
		Task:     brokenTask{failAt: 3, total: 5},
		Frontend: &task.AutoFrontend{},
		Saver:    &memorySaver{},
	}
	outcome, err := runner.Run(context.Background())
	if err == nil {
		t.Fatal("expected error from malformed stimulus")
	}
	if outcome.Completed {
		t.Fatal("broken task must not complete")
	}
	if len(outcome.Trials) != 2 {
		t.Fatalf("expected the two good trials to survive, got %d", len(outcome.Trials))
	}
}

func TestRunnerKeepsRunningWhenSnapshotFails(t *testing.T) {
	saver := &memorySaver{failSaves: true}
	runner := &task.Runner{
		Task:     task.NewStroop(3, 1),
		Frontend: &task.AutoFrontend{},
		Saver:    saver,
	}
	outcome, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Completed || len(outcome.Trials) != 3 {
		t.Fatalf("results must survive in memory despite save failures: %+v", outcome)
	}
}

type brokenTask struct {
	failAt int
	total  int
}

func (b brokenTask) Name() string    { return "broken" }
func (b brokenTask) TrialCount() int { return b.total }

func (b brokenTask) Trial(n int) (task.Stimulus, error) {
	if n == b.failAt {
		return task.Stimulus{}, fmt.Errorf("trial %d is malformed", n)
	}
	return task.Stimulus{Display: "go", Expected: "go"}, nil
}
