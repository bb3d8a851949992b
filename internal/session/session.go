package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"battery/internal/config"
	"battery/internal/crash"
	"battery/internal/faults"
	"battery/internal/logging"
	"battery/internal/snapshot"
	"battery/internal/store"
	"battery/internal/task"
	"battery/internal/textutil"
)

// Session is one active sitting of the battery. It implements
// task.Snapshotable, so the trial loop auto-saves through it at every
// trial boundary.
type Session struct {
	mgr    *Manager
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger

	rec            *store.Session
	snap           *snapshot.Snapshot
	snapPath       string
	participantDir string
	resumed        bool

	writer *snapshot.Writer
	lock   *flock.Flock

	currentTask string
	taskDir     string
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.rec.ID }

// ParticipantID returns the owning participant.
func (s *Session) ParticipantID() string { return s.rec.ParticipantID }

// ParticipantDir returns the participant's data folder.
func (s *Session) ParticipantDir() string { return s.participantDir }

// Resumed reports whether this session was restored from a snapshot.
func (s *Session) Resumed() bool { return s.resumed }

// RemainingTasks returns the tasks still to run, in queue order.
func (s *Session) RemainingTasks() []string {
	return s.snap.RemainingTasks()
}

// CrashCount returns how many interruptions this session has survived.
func (s *Session) CrashCount() int { return s.rec.CrashCount }

// BeginTask marks a task as the session's current work and creates its
// output folder. When resuming the same task that was interrupted, the
// restored trial data carries over; any other task starts clean.
func (s *Session) BeginTask(ctx context.Context, taskName string) (taskDir string, err error) {
	var restored []snapshot.TrialRecord
	if s.resumed && s.snap.CurrentState != nil && s.snap.CurrentState.TaskName == taskName {
		restored = s.snap.CurrentState.Trials
	}

	if s.taskDir == "" || s.currentTask != taskName {
		stamp := time.Now().Format("20060102_150405")
		s.taskDir = filepath.Join(s.participantDir,
			fmt.Sprintf("%s_%s", textutil.SanitizeToken(taskName), stamp))
	}
	if err := os.MkdirAll(filepath.Join(s.taskDir, "audio_files"), 0o755); err != nil {
		return "", faults.Wrap(faults.ErrWrite, "session", "begin task", "create task folder", err)
	}

	s.currentTask = taskName
	s.snap.CurrentTask = taskName
	s.snap.CurrentState = &snapshot.TaskState{
		TaskName:     taskName,
		StartTime:    time.Now().Format(time.RFC3339),
		Status:       snapshot.TaskInProgress,
		Trials:       restored,
		RecoveryMode: len(restored) > 0,
	}
	if err := s.store.SetCurrentTask(ctx, s.rec.ID, taskName); err != nil {
		return "", faults.Wrap(faults.ErrWrite, "session", "begin task", "record current task", err)
	}
	if err := s.persistNow(); err != nil {
		return "", faults.Wrap(faults.ErrWrite, "session", "begin task", "write snapshot", err)
	}

	s.logger.Info("task started",
		logging.String(logging.FieldParticipant, s.rec.ParticipantID),
		logging.String(logging.FieldSession, s.rec.ID),
		logging.String(logging.FieldTask, taskName),
		logging.Int("restored_trials", len(restored)))
	return s.taskDir, nil
}

// Snapshot records the trial results so far. The newest trial also lands
// in the database; the file write is asynchronous and coalesced.
func (s *Session) Snapshot(trials []task.TrialResult) error {
	if s.snap.CurrentState == nil {
		return faults.Wrap(faults.ErrRuntime, "session", "snapshot", "no task in progress", nil)
	}

	records := make([]snapshot.TrialRecord, len(trials))
	for i, tr := range trials {
		records[i] = trialToRecord(tr)
	}
	s.snap.CurrentState.Trials = records
	if len(records) > 0 {
		s.snap.CurrentState.LastTrial = records[len(records)-1].RecordedAt
	}
	s.writer.Update(s.snap)

	if len(trials) > 0 {
		latest := trials[len(trials)-1]
		if err := s.store.UpsertTrial(context.Background(),
			resultToStore(s.rec.ID, s.currentTask, latest)); err != nil {
			return faults.Wrap(faults.ErrWrite, "session", "snapshot", "persist trial", err)
		}
	}
	return nil
}

// Restore hands back the interrupted task's completed trials, if this
// session was resumed into the same task.
func (s *Session) Restore() ([]task.TrialResult, bool, error) {
	state := s.snap.CurrentState
	if !s.resumed || state == nil || state.TaskName != s.currentTask || len(state.Trials) == 0 {
		return nil, false, nil
	}
	trials := make([]task.TrialResult, len(state.Trials))
	for i, rec := range state.Trials {
		trials[i] = recordToResult(rec)
	}
	return trials, true, nil
}

// CompleteTask moves the current task onto the completed list and clears
// the current-task pointer, which is what prevents a false recovery
// prompt for a finished task.
func (s *Session) CompleteTask(ctx context.Context, trials []task.TrialResult) error {
	if s.currentTask == "" {
		return faults.Wrap(faults.ErrRuntime, "session", "complete task", "no task in progress", nil)
	}
	for _, tr := range trials {
		if err := s.store.UpsertTrial(ctx, resultToStore(s.rec.ID, s.currentTask, tr)); err != nil {
			return faults.Wrap(faults.ErrWrite, "session", "complete task", "persist trial", err)
		}
	}

	now := time.Now().Format(time.RFC3339)
	if s.snap.CurrentState != nil {
		s.snap.CurrentState.Status = snapshot.TaskCompleted
	}
	s.snap.CompletedTasks = append(s.snap.CompletedTasks, snapshot.TaskCompletion{
		TaskName:        s.currentTask,
		CompletionTime:  now,
		TrialsCompleted: len(trials),
	})
	s.snap.CurrentTask = ""
	s.snap.CurrentState = nil

	if err := s.persistNow(); err != nil {
		return faults.Wrap(faults.ErrWrite, "session", "complete task", "write snapshot", err)
	}
	if err := s.store.SetCurrentTask(ctx, s.rec.ID, ""); err != nil {
		return faults.Wrap(faults.ErrWrite, "session", "complete task", "clear current task", err)
	}

	s.logger.Info("task completed",
		logging.String(logging.FieldParticipant, s.rec.ParticipantID),
		logging.String(logging.FieldTask, s.currentTask),
		logging.Int("trials", len(trials)))
	s.currentTask = ""
	s.taskDir = ""
	// The next task resolves fresh restore state.
	s.resumed = false
	return nil
}

// TaskDir returns the output folder of the task in progress.
func (s *Session) TaskDir() string { return s.taskDir }

// Complete marks the session finished. The completion marker is written
// first; only then is the snapshot removed, so a crash between the two
// still never produces a recovery prompt.
func (s *Session) Complete(ctx context.Context) error {
	s.snap.Completed = true
	s.snap.Active = false
	if err := s.persistNow(); err != nil {
		return faults.Wrap(faults.ErrWrite, "session", "complete", "write completion marker", err)
	}
	if err := s.store.SetStatus(ctx, s.rec.ID, store.StatusCompleted); err != nil {
		return faults.Wrap(faults.ErrWrite, "session", "complete", "mark session completed", err)
	}
	if err := snapshot.Remove(s.snapPath); err != nil {
		return faults.Wrap(faults.ErrWrite, "session", "complete", "remove snapshot", err)
	}
	removeHeartbeatFiles(filepath.Dir(s.snapPath))

	s.logger.Info("session completed",
		logging.String(logging.FieldParticipant, s.rec.ParticipantID),
		logging.String(logging.FieldSession, s.rec.ID),
		logging.Int("completed_tasks", len(s.snap.CompletedTasks)))
	return nil
}

// EmergencySave flushes the current state synchronously with the crash
// flag set. Called from the exception monitor; must not panic.
func (s *Session) EmergencySave(reason string) {
	defer func() {
		_ = recover()
	}()

	s.snap.CrashDetected = true
	if err := s.persistNow(); err != nil {
		s.logger.Warn("emergency snapshot failed", logging.Error(err))
		return
	}
	// Out-of-band copy, in case the snapshot itself is what a bug is
	// corrupting.
	path, err := crash.WriteEmergencySave(s.cfg, s.rec.ParticipantID, s.currentTask, s.snap)
	if err != nil {
		s.logger.Warn("emergency save copy failed", logging.Error(err))
	}
	s.logger.Info("emergency save written",
		logging.String(logging.FieldParticipant, s.rec.ParticipantID),
		logging.String("reason", reason),
		logging.String("file", path))
}

// Close releases the session's resources without changing its recorded
// state. An interrupted-but-orderly shutdown therefore looks exactly like
// a crash at the next startup, which is intentional: both require an
// explicit resume-or-discard decision.
func (s *Session) Close() error {
	var err error
	if s.writer != nil {
		err = s.writer.Close()
		s.writer = nil
	}
	s.releaseLock()
	return err
}

// persistNow pushes the current state through the writer and waits for it
// to hit disk. Routing synchronous saves through the same writer keeps the
// async trial-boundary saves from racing them with stale state.
func (s *Session) persistNow() error {
	s.writer.Update(s.snap)
	return s.writer.Flush()
}

func (s *Session) acquireLock() error {
	lockPath := filepath.Join(s.participantDir, "system", "session.lock")
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return faults.Wrap(faults.ErrWrite, "session", "lock", "acquire session lock", err)
	}
	if !ok {
		return faults.Wrap(faults.ErrConflict, "session", "lock",
			fmt.Sprintf("another process holds the session for %s", s.rec.ParticipantID), nil)
	}
	s.lock = lock
	return nil
}

func (s *Session) releaseLock() {
	if s.lock != nil {
		_ = s.lock.Unlock()
		s.lock = nil
	}
}

func trialToRecord(tr task.TrialResult) snapshot.TrialRecord {
	return snapshot.TrialRecord{
		TrialNumber:    tr.TrialNumber,
		Stimulus:       tr.Stimulus,
		Expected:       tr.Expected,
		Response:       tr.Response,
		Correct:        tr.Correct,
		ReactionTimeMS: tr.ReactionTimeMS,
		VoiceOnsetMS:   tr.VoiceOnsetMS,
		RecordedAt:     tr.RecordedAt.Format(time.RFC3339Nano),
	}
}

func recordToResult(rec snapshot.TrialRecord) task.TrialResult {
	recordedAt, _ := time.Parse(time.RFC3339Nano, rec.RecordedAt)
	return task.TrialResult{
		TrialNumber:    rec.TrialNumber,
		Stimulus:       rec.Stimulus,
		Expected:       rec.Expected,
		Response:       rec.Response,
		Correct:        rec.Correct,
		ReactionTimeMS: rec.ReactionTimeMS,
		VoiceOnsetMS:   rec.VoiceOnsetMS,
		RecordedAt:     recordedAt,
	}
}

func resultToStore(sessionID, taskName string, tr task.TrialResult) *store.Trial {
	return &store.Trial{
		SessionID:      sessionID,
		TaskName:       taskName,
		TrialNumber:    tr.TrialNumber,
		Stimulus:       tr.Stimulus,
		Expected:       tr.Expected,
		Response:       tr.Response,
		Correct:        tr.Correct,
		ReactionTimeMS: tr.ReactionTimeMS,
		VoiceOnsetMS:   tr.VoiceOnsetMS,
		RecordedAt:     tr.RecordedAt,
	}
}

func trialToStore(sessionID, taskName string, rec snapshot.TrialRecord) *store.Trial {
	return resultToStore(sessionID, taskName, recordToResult(rec))
}
