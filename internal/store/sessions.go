package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewSession inserts an active session for a participant with the given task queue.
func (s *Store) NewSession(ctx context.Context, participantID string, taskQueue []string) (*Session, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	queueJSON, err := json.Marshal(taskQueue)
	if err != nil {
		return nil, fmt.Errorf("marshal task queue: %w", err)
	}

	id := uuid.NewString()
	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO sessions (
            id, participant_id, status, task_queue, current_task,
            crash_count, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		participantID,
		StatusActive,
		string(queueJSON),
		nullableString(firstTask(taskQueue)),
		0,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return s.GetSession(ctx, id)
}

// GetSession fetches a session by ID. Returns ErrNotFound when absent.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, sessionSelect+" WHERE id = ?", id)
	return scanSession(row)
}

// ActiveSession returns the participant's active session, or ErrNotFound.
// The schema allows multiple actives only transiently; the newest wins.
func (s *Store) ActiveSession(ctx context.Context, participantID string) (*Session, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		sessionSelect+" WHERE participant_id = ? AND status = ? ORDER BY created_at DESC LIMIT 1",
		participantID, StatusActive)
	return scanSession(row)
}

// ListSessions returns sessions for a participant, newest first. An empty
// participantID lists every session.
func (s *Store) ListSessions(ctx context.Context, participantID string) ([]*Session, error) {
	ctx = ensureContext(ctx)
	query := sessionSelect
	args := []any{}
	if participantID != "" {
		query += " WHERE participant_id = ?"
		args = append(args, participantID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// SetStatus transitions a session to the given status. Completion also
// stamps completed_at.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) error {
	if !validStatus(status) {
		return fmt.Errorf("invalid session status %q", status)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var (
		res sql.Result
		err error
	)
	if status == StatusCompleted {
		res, err = s.execWithRetry(ctx,
			"UPDATE sessions SET status = ?, updated_at = ?, completed_at = ? WHERE id = ?",
			status, now, now, id)
	} else {
		res, err = s.execWithRetry(ctx,
			"UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?",
			status, now, id)
	}
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return requireRow(res)
}

// SetCurrentTask records which task the session is presently running.
func (s *Store) SetCurrentTask(ctx context.Context, id, taskName string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		"UPDATE sessions SET current_task = ?, updated_at = ? WHERE id = ?",
		nullableString(taskName), now, id)
	if err != nil {
		return fmt.Errorf("update current task: %w", err)
	}
	return requireRow(res)
}

// IncrementCrashCount bumps the crash counter after a recovered interruption.
func (s *Store) IncrementCrashCount(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		"UPDATE sessions SET crash_count = crash_count + 1, updated_at = ? WHERE id = ?",
		now, id)
	if err != nil {
		return fmt.Errorf("increment crash count: %w", err)
	}
	return requireRow(res)
}

const sessionSelect = `SELECT id, participant_id, status, task_queue, current_task,
    crash_count, created_at, updated_at, completed_at FROM sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		session     Session
		queueJSON   string
		currentTask sql.NullString
		createdAt   string
		updatedAt   string
		completedAt sql.NullString
	)
	err := row.Scan(&session.ID, &session.ParticipantID, &session.Status, &queueJSON,
		&currentTask, &session.CrashCount, &createdAt, &updatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if err := json.Unmarshal([]byte(queueJSON), &session.TaskQueue); err != nil {
		return nil, fmt.Errorf("decode task queue: %w", err)
	}
	session.CurrentTask = currentTask.String
	session.CreatedAt = parseTimestamp(createdAt)
	session.UpdatedAt = parseTimestamp(updatedAt)
	if completedAt.Valid {
		ts := parseTimestamp(completedAt.String)
		session.CompletedAt = &ts
	}
	return &session, nil
}

func parseTimestamp(value string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func firstTask(queue []string) string {
	if len(queue) == 0 {
		return ""
	}
	return queue[0]
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
