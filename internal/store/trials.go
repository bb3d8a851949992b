package store

import (
	"context"
	"fmt"
	"time"
)

// UpsertTrial records a trial result. Replaying the same trial number for
// the same session and task overwrites the earlier row, which makes
// snapshot restores safe to repeat.
func (s *Store) UpsertTrial(ctx context.Context, trial *Trial) error {
	recordedAt := trial.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO trials (
            session_id, task_name, trial_number, stimulus, expected,
            response, correct, reaction_time_ms, voice_onset_ms, recorded_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(session_id, task_name, trial_number) DO UPDATE SET
            stimulus = excluded.stimulus,
            expected = excluded.expected,
            response = excluded.response,
            correct = excluded.correct,
            reaction_time_ms = excluded.reaction_time_ms,
            voice_onset_ms = excluded.voice_onset_ms,
            recorded_at = excluded.recorded_at`,
		trial.SessionID,
		trial.TaskName,
		trial.TrialNumber,
		trial.Stimulus,
		trial.Expected,
		trial.Response,
		boolToInt(trial.Correct),
		trial.ReactionTimeMS,
		trial.VoiceOnsetMS,
		recordedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert trial: %w", err)
	}
	return nil
}

// ListTrials returns a session's trials for one task, in trial order.
func (s *Store) ListTrials(ctx context.Context, sessionID, taskName string) ([]*Trial, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, task_name, trial_number, stimulus, expected,
            response, correct, reaction_time_ms, voice_onset_ms, recorded_at
        FROM trials WHERE session_id = ? AND task_name = ?
        ORDER BY trial_number`,
		sessionID, taskName)
	if err != nil {
		return nil, fmt.Errorf("list trials: %w", err)
	}
	defer rows.Close()

	var trials []*Trial
	for rows.Next() {
		var (
			trial      Trial
			correct    int
			recordedAt string
		)
		if err := rows.Scan(&trial.SessionID, &trial.TaskName, &trial.TrialNumber,
			&trial.Stimulus, &trial.Expected, &trial.Response, &correct,
			&trial.ReactionTimeMS, &trial.VoiceOnsetMS, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		trial.Correct = correct != 0
		trial.RecordedAt = parseTimestamp(recordedAt)
		trials = append(trials, &trial)
	}
	return trials, rows.Err()
}

// TrialCount returns how many trials are recorded for one task of a session.
func (s *Store) TrialCount(ctx context.Context, sessionID, taskName string) (int, error) {
	ctx = ensureContext(ctx)
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM trials WHERE session_id = ? AND task_name = ?",
		sessionID, taskName).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count trials: %w", err)
	}
	return count, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
