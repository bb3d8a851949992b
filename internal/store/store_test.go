package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"battery/internal/store"
	"battery/internal/testsupport"
)

func TestNewSessionStartsActive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session, err := st.NewSession(ctx, "P001", []string{"stroop_colorword", "digit_span"})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if session.Status != store.StatusActive {
		t.Fatalf("unexpected status: %s", session.Status)
	}
	if session.CurrentTask != "stroop_colorword" {
		t.Fatalf("unexpected current task: %q", session.CurrentTask)
	}
	if len(session.TaskQueue) != 2 {
		t.Fatalf("unexpected task queue: %v", session.TaskQueue)
	}
	if session.CrashCount != 0 {
		t.Fatalf("expected zero crash count, got %d", session.CrashCount)
	}
}

func TestActiveSessionReturnsNewest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewSession(t, st, "P001", "stroop_colorword")
	if err := st.SetStatus(ctx, first.ID, store.StatusDiscarded); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	second := testsupport.NewSession(t, st, "P001", "stroop_colorword")

	active, err := st.ActiveSession(ctx, "P001")
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if active.ID != second.ID {
		t.Fatalf("expected session %s, got %s", second.ID, active.ID)
	}

	if _, err := st.ActiveSession(ctx, "P999"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetStatusCompletedStampsCompletedAt(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewSession(t, st, "P001", "stroop_colorword")
	if err := st.SetStatus(ctx, session.ID, store.StatusCompleted); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	reloaded, err := st.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if reloaded.Status != store.StatusCompleted {
		t.Fatalf("unexpected status: %s", reloaded.Status)
	}
	if reloaded.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
}

func TestSetStatusRejectsUnknownStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	session := testsupport.NewSession(t, st, "P001", "stroop_colorword")

	if err := st.SetStatus(context.Background(), session.ID, store.Status("crashed")); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestUpsertTrialIsIdempotentPerTrialNumber(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	session := testsupport.NewSession(t, st, "P001", "stroop_colorword")

	trial := &store.Trial{
		SessionID:      session.ID,
		TaskName:       "stroop_colorword",
		TrialNumber:    1,
		Stimulus:       "RED/blue",
		Expected:       "blue",
		Response:       "red",
		Correct:        false,
		ReactionTimeMS: 812,
	}
	if err := st.UpsertTrial(ctx, trial); err != nil {
		t.Fatalf("UpsertTrial: %v", err)
	}

	trial.Response = "blue"
	trial.Correct = true
	if err := st.UpsertTrial(ctx, trial); err != nil {
		t.Fatalf("UpsertTrial replay: %v", err)
	}

	trials, err := st.ListTrials(ctx, session.ID, "stroop_colorword")
	if err != nil {
		t.Fatalf("ListTrials: %v", err)
	}
	if len(trials) != 1 {
		t.Fatalf("expected one trial, got %d", len(trials))
	}
	if !trials[0].Correct || trials[0].Response != "blue" {
		t.Fatalf("replay did not overwrite: %+v", trials[0])
	}
}

func TestListTrialsOrdersByTrialNumber(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	session := testsupport.NewSession(t, st, "P001", "stroop_colorword")

	for _, n := range []int{3, 1, 2} {
		trial := &store.Trial{
			SessionID:   session.ID,
			TaskName:    "stroop_colorword",
			TrialNumber: n,
			RecordedAt:  time.Now().UTC(),
		}
		if err := st.UpsertTrial(ctx, trial); err != nil {
			t.Fatalf("UpsertTrial: %v", err)
		}
	}

	trials, err := st.ListTrials(ctx, session.ID, "stroop_colorword")
	if err != nil {
		t.Fatalf("ListTrials: %v", err)
	}
	for i, trial := range trials {
		if trial.TrialNumber != i+1 {
			t.Fatalf("unexpected order: %v", trials)
		}
	}

	count, err := st.TrialCount(ctx, session.ID, "stroop_colorword")
	if err != nil {
		t.Fatalf("TrialCount: %v", err)
	}
	if count != 3 {
		t.Fatalf("unexpected trial count: %d", count)
	}
}

func TestRecordExportReplacesEarlierRecord(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	session := testsupport.NewSession(t, st, "P001", "stroop_colorword")

	export := &store.Export{
		SessionID:  session.ID,
		TaskName:   "stroop_colorword",
		FilePath:   "/tmp/first.txt",
		Checksum:   "aaa",
		TrialCount: 5,
	}
	if err := st.RecordExport(ctx, export); err != nil {
		t.Fatalf("RecordExport: %v", err)
	}

	export.FilePath = "/tmp/second.txt"
	export.Checksum = "bbb"
	if err := st.RecordExport(ctx, export); err != nil {
		t.Fatalf("RecordExport replay: %v", err)
	}

	got, err := st.GetExport(ctx, session.ID, "stroop_colorword")
	if err != nil {
		t.Fatalf("GetExport: %v", err)
	}
	if got.Checksum != "bbb" || got.FilePath != "/tmp/second.txt" {
		t.Fatalf("unexpected export record: %+v", got)
	}

	exports, err := st.ListExports(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListExports: %v", err)
	}
	if len(exports) != 1 {
		t.Fatalf("expected one export record, got %d", len(exports))
	}
}

func TestIncrementCrashCount(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	session := testsupport.NewSession(t, st, "P001", "stroop_colorword")

	if err := st.IncrementCrashCount(ctx, session.ID); err != nil {
		t.Fatalf("IncrementCrashCount: %v", err)
	}
	if err := st.IncrementCrashCount(ctx, session.ID); err != nil {
		t.Fatalf("IncrementCrashCount: %v", err)
	}

	reloaded, err := st.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if reloaded.CrashCount != 2 {
		t.Fatalf("unexpected crash count: %d", reloaded.CrashCount)
	}

	if err := st.IncrementCrashCount(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
