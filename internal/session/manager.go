package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"battery/internal/config"
	"battery/internal/crash"
	"battery/internal/faults"
	"battery/internal/logging"
	"battery/internal/participant"
	"battery/internal/snapshot"
	"battery/internal/store"
)

// Manager coordinates session state across the snapshot files, the
// database, and per-participant locks.
type Manager struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger
}

// Pending is an interrupted session found at startup, awaiting a
// resume-or-discard decision.
type Pending struct {
	ParticipantID string
	Path          string
	Snapshot      *snapshot.Snapshot
}

// NewManager builds a session manager over an open store.
func NewManager(cfg *config.Config, st *store.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:    cfg,
		store:  st,
		logger: logging.NewComponentLogger(logger, "session"),
	}
}

// CheckForRecovery scans the data root for interrupted sessions. Completed,
// resolved, and stale snapshots are filtered out, so a second scan after a
// resume or discard finds nothing.
func (m *Manager) CheckForRecovery(ctx context.Context) ([]*Pending, error) {
	entries, err := os.ReadDir(m.cfg.Paths.DataRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan data root: %w", err)
	}

	staleAfter := time.Duration(m.cfg.Session.StaleAfterDays) * 24 * time.Hour
	now := time.Now()

	var pending []*Pending
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() || entry.Name() == "system" {
			continue
		}
		path := snapshot.Path(filepath.Join(m.cfg.Paths.DataRoot, entry.Name()))
		snap, err := snapshot.Read(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			m.logger.Warn("unreadable session snapshot",
				logging.String(logging.FieldParticipant, entry.Name()),
				logging.Error(err))
			continue
		}
		if !snap.Recoverable(now, staleAfter) {
			// Leftover state that can never be resumed just causes
			// repeat prompts; clear it.
			if err := snapshot.Remove(path); err != nil {
				m.logger.Warn("stale snapshot cleanup failed", logging.Error(err))
			}
			continue
		}
		pending = append(pending, &Pending{
			ParticipantID: snap.ParticipantID,
			Path:          path,
			Snapshot:      snap,
		})
	}
	if len(pending) > 0 {
		m.logger.Info("interrupted sessions found", logging.Int("count", len(pending)))
	}
	return pending, nil
}

// Start creates a fresh session for a participant. It fails with a
// conflict error while an unresolved snapshot or active session exists for
// the same participant; the caller must resume or discard first.
func (m *Manager) Start(ctx context.Context, participantID string, tasks []string) (*Session, error) {
	if err := participant.ValidateID(participantID); err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, faults.Wrap(faults.ErrValidation, "session", "start", "task queue is empty", nil)
	}

	participantDir := m.cfg.ParticipantDir(participantID)
	snapPath := snapshot.Path(participantDir)
	staleAfter := time.Duration(m.cfg.Session.StaleAfterDays) * 24 * time.Hour
	if snap, err := snapshot.Read(snapPath); err == nil && snap.Recoverable(time.Now(), staleAfter) {
		return nil, faults.Wrap(faults.ErrConflict, "session", "start",
			fmt.Sprintf("unresolved session exists for %s; resume or discard it first", participantID), nil)
	}
	if existing, err := m.store.ActiveSession(ctx, participantID); err == nil {
		return nil, faults.Wrap(faults.ErrConflict, "session", "start",
			fmt.Sprintf("session %s is already active for %s", existing.ID, participantID), nil)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	rec, err := m.store.NewSession(ctx, participantID, tasks)
	if err != nil {
		return nil, faults.Wrap(faults.ErrWrite, "session", "start", "create session record", err)
	}

	snap := &snapshot.Snapshot{
		SessionID:     rec.ID,
		ParticipantID: participantID,
		SessionStart:  time.Now().Format(time.RFC3339),
		Active:        true,
		TaskQueue:     append([]string(nil), tasks...),
	}

	session, err := m.open(rec, snap, snapPath, false)
	if err != nil {
		return nil, err
	}
	m.logger.Info("session started",
		logging.String(logging.FieldParticipant, participantID),
		logging.String(logging.FieldSession, rec.ID),
		logging.Int("tasks", len(tasks)))
	return session, nil
}

// Resume restores an interrupted session at its recorded task and trial
// position. The restored trials are replayed into the store, which is an
// upsert, so resuming twice never duplicates a trial.
func (m *Manager) Resume(ctx context.Context, p *Pending) (*Session, error) {
	snap := p.Snapshot
	rec, err := m.store.GetSession(ctx, snap.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		// Snapshot survived but the database row didn't. Recreate it so
		// the trial data still has a home.
		rec, err = m.store.NewSession(ctx, snap.ParticipantID, snap.TaskQueue)
		if err == nil {
			snap.SessionID = rec.ID
		}
	}
	if err != nil {
		return nil, faults.Wrap(faults.ErrWrite, "session", "resume", "load session record", err)
	}

	if snap.CurrentState != nil {
		for _, tr := range snap.CurrentState.Trials {
			if err := m.store.UpsertTrial(ctx, trialToStore(rec.ID, snap.CurrentState.TaskName, tr)); err != nil {
				return nil, faults.Wrap(faults.ErrWrite, "session", "resume", "replay trial", err)
			}
		}
	}
	if err := m.store.IncrementCrashCount(ctx, rec.ID); err != nil {
		return nil, faults.Wrap(faults.ErrWrite, "session", "resume", "record crash", err)
	}
	if err := m.store.SetStatus(ctx, rec.ID, store.StatusActive); err != nil {
		return nil, faults.Wrap(faults.ErrWrite, "session", "resume", "reactivate session", err)
	}

	snap.Active = true
	snap.CrashDetected = true
	snap.RecoveryCount++
	if snap.CurrentState != nil {
		snap.CurrentState.RecoveryMode = true
	}

	session, err := m.open(rec, snap, p.Path, true)
	if err != nil {
		return nil, err
	}
	m.logger.Info("session resumed",
		logging.String(logging.FieldParticipant, snap.ParticipantID),
		logging.String(logging.FieldSession, rec.ID),
		logging.String(logging.FieldTask, snap.CurrentTask),
		logging.Int("recovery_count", snap.RecoveryCount))
	return session, nil
}

// Discard resolves an interrupted session by deleting its snapshot and
// marking the database row discarded. Collected data files stay on disk.
func (m *Manager) Discard(ctx context.Context, p *Pending) error {
	if err := snapshot.Remove(p.Path); err != nil {
		return faults.Wrap(faults.ErrWrite, "session", "discard", "remove snapshot", err)
	}
	removeHeartbeatFiles(filepath.Dir(p.Path))

	if err := m.store.SetStatus(ctx, p.Snapshot.SessionID, store.StatusDiscarded); err != nil &&
		!errors.Is(err, store.ErrNotFound) {
		return faults.Wrap(faults.ErrWrite, "session", "discard", "mark session discarded", err)
	}
	m.logger.Info("session discarded",
		logging.String(logging.FieldParticipant, p.ParticipantID),
		logging.String(logging.FieldSession, p.Snapshot.SessionID))
	return nil
}

// Store exposes the backing store for collaborators such as the exporter.
func (m *Manager) Store() *store.Store {
	return m.store
}

func (m *Manager) open(rec *store.Session, snap *snapshot.Snapshot, snapPath string, resumed bool) (*Session, error) {
	participantDir := m.cfg.ParticipantDir(rec.ParticipantID)
	if err := os.MkdirAll(filepath.Join(participantDir, "system"), 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrWrite, "session", "open", "create participant system dir", err)
	}

	session := &Session{
		mgr:            m,
		cfg:            m.cfg,
		store:          m.store,
		logger:         m.logger,
		rec:            rec,
		snap:           snap,
		snapPath:       snapPath,
		participantDir: participantDir,
		resumed:        resumed,
	}
	if err := session.acquireLock(); err != nil {
		return nil, err
	}
	if err := snapshot.Write(snapPath, snap); err != nil {
		session.releaseLock()
		return nil, faults.Wrap(faults.ErrWrite, "session", "open", "write initial snapshot", err)
	}
	session.writer = snapshot.NewWriter(snapPath, m.logger)
	return session, nil
}

func removeHeartbeatFiles(systemDir string) {
	for _, name := range []string{crash.HeartbeatFile, crash.HeartbeatMetaFile} {
		_ = os.Remove(filepath.Join(systemDir, name))
	}
}
