// Package snapshot reads and writes the per-participant session_state.json
// recovery file. The snapshot is the crash-survivable copy of a running
// session: whatever it holds at the moment the process dies is exactly what
// recovery can restore.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"battery/internal/fileutil"
)

// TaskStatus mirrors the task state recorded inside a snapshot.
type TaskStatus string

const (
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// TrialRecord is one trial as persisted in the snapshot file.
type TrialRecord struct {
	TrialNumber    int     `json:"trial_number"`
	Stimulus       string  `json:"stimulus,omitempty"`
	Expected       string  `json:"expected,omitempty"`
	Response       string  `json:"response,omitempty"`
	Correct        bool    `json:"correct"`
	ReactionTimeMS float64 `json:"reaction_time_ms,omitempty"`
	VoiceOnsetMS   float64 `json:"voice_onset_ms,omitempty"`
	RecordedAt     string  `json:"recorded_at,omitempty"`
}

// TaskState is the in-flight state of the task the session is running.
type TaskState struct {
	TaskName     string        `json:"task_name"`
	StartTime    string        `json:"start_time"`
	Status       TaskStatus    `json:"status"`
	Trials       []TrialRecord `json:"trial_data"`
	RecoveryMode bool          `json:"recovery_mode,omitempty"`
	LastTrial    string        `json:"last_trial_time,omitempty"`
}

// TaskCompletion records one finished task.
type TaskCompletion struct {
	TaskName        string `json:"task_name"`
	CompletionTime  string `json:"completion_time"`
	TrialsCompleted int    `json:"trials_completed"`
}

// Snapshot is the full recovery state for one participant's session.
type Snapshot struct {
	SessionID      string           `json:"session_id"`
	ParticipantID  string           `json:"participant_id"`
	SessionStart   string           `json:"session_start_time"`
	LastSave       string           `json:"last_save_time"`
	Active         bool             `json:"session_active"`
	Completed      bool             `json:"session_completed"`
	TaskQueue      []string         `json:"task_queue"`
	CurrentTask    string           `json:"current_task,omitempty"`
	CurrentState   *TaskState       `json:"current_task_state,omitempty"`
	CompletedTasks []TaskCompletion `json:"completed_tasks"`
	RecoveryCount  int              `json:"recovery_count,omitempty"`
	CrashDetected  bool             `json:"crash_detected,omitempty"`
}

// Path returns the snapshot location under a participant's folder.
func Path(participantDir string) string {
	return filepath.Join(participantDir, "system", "session_state.json")
}

// Write persists the snapshot atomically. A crash mid-write leaves the
// previous snapshot intact.
func Write(path string, snap *Snapshot) error {
	snap.LastSave = time.Now().Format(time.RFC3339)
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Read loads a snapshot from disk. A missing file returns fs.ErrNotExist.
func Read(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// Remove deletes the snapshot file. Missing files are not an error; removal
// after completion is what prevents stale recovery prompts.
func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

// Recoverable reports whether the snapshot describes an interrupted session
// that recovery should offer to resume. Completed sessions, sessions with no
// task in flight, tasks already on the completed list, and snapshots older
// than staleAfter are all filtered out.
func (s *Snapshot) Recoverable(now time.Time, staleAfter time.Duration) bool {
	if s == nil {
		return false
	}
	if s.Completed || !s.Active {
		return false
	}
	if s.CurrentTask == "" {
		return false
	}
	for _, done := range s.CompletedTasks {
		if done.TaskName == s.CurrentTask {
			return false
		}
	}
	if state := s.CurrentState; state != nil && state.Status == TaskCompleted {
		return false
	}
	if start, err := time.Parse(time.RFC3339, s.SessionStart); err == nil {
		if now.Sub(start) > staleAfter {
			return false
		}
	}
	return true
}

// RemainingTasks returns the queued tasks that have not completed, in order.
func (s *Snapshot) RemainingTasks() []string {
	done := make(map[string]bool, len(s.CompletedTasks))
	for _, c := range s.CompletedTasks {
		done[c.TaskName] = true
	}
	var remaining []string
	for _, name := range s.TaskQueue {
		if !done[name] {
			remaining = append(remaining, name)
		}
	}
	return remaining
}
