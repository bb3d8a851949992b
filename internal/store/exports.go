package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RecordExport marks one task's results as exported. A repeated export of
// the same task replaces the earlier record rather than duplicating it.
func (s *Store) RecordExport(ctx context.Context, export *Export) error {
	exportedAt := export.ExportedAt
	if exportedAt.IsZero() {
		exportedAt = time.Now().UTC()
	}

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO exports (
            session_id, task_name, file_path, checksum, trial_count, exported_at
        ) VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(session_id, task_name) DO UPDATE SET
            file_path = excluded.file_path,
            checksum = excluded.checksum,
            trial_count = excluded.trial_count,
            exported_at = excluded.exported_at`,
		export.SessionID,
		export.TaskName,
		export.FilePath,
		export.Checksum,
		export.TrialCount,
		exportedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record export: %w", err)
	}
	return nil
}

// GetExport fetches the export record for one task of a session, or ErrNotFound.
func (s *Store) GetExport(ctx context.Context, sessionID, taskName string) (*Export, error) {
	ctx = ensureContext(ctx)
	var (
		export     Export
		exportedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, task_name, file_path, checksum, trial_count, exported_at
        FROM exports WHERE session_id = ? AND task_name = ?`,
		sessionID, taskName).Scan(&export.SessionID, &export.TaskName,
		&export.FilePath, &export.Checksum, &export.TrialCount, &exportedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get export: %w", err)
	}
	export.ExportedAt = parseTimestamp(exportedAt)
	return &export, nil
}

// ListExports returns every export recorded for a session.
func (s *Store) ListExports(ctx context.Context, sessionID string) ([]*Export, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, task_name, file_path, checksum, trial_count, exported_at
        FROM exports WHERE session_id = ? ORDER BY exported_at`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	defer rows.Close()

	var exports []*Export
	for rows.Next() {
		var (
			export     Export
			exportedAt string
		)
		if err := rows.Scan(&export.SessionID, &export.TaskName, &export.FilePath,
			&export.Checksum, &export.TrialCount, &exportedAt); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		export.ExportedAt = parseTimestamp(exportedAt)
		exports = append(exports, &export)
	}
	return exports, rows.Err()
}
