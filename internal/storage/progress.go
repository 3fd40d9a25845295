package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agentrt/agentrt/pkg/types"
)

// AppendProgressEntry writes an append-only progress note.
func (s *Storage) AppendProgressEntry(ctx context.Context, p types.ProgressEntry) (types.ProgressEntry, error) {
	if p.ID == "" {
		p.ID = newPublicID()
	}
	p.CreatedAt = now()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sessionInternalID, err := resolveSessionInternalID(ctx, tx, p.SessionID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO progress_entries (public_id, session_id, task_id, kind, body, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`, p.ID, sessionInternalID, p.TaskID, p.Kind, p.Body, p.CreatedAt)
		return err
	})
	return p, err
}

// GetProgressEntry loads a single progress entry by public id.
func (s *Storage) GetProgressEntry(ctx context.Context, entryID string) (types.ProgressEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT p.public_id, s.public_id, COALESCE(p.task_id, ''), p.kind, p.body, p.created_at
		FROM progress_entries p INNER JOIN sessions s ON s.id = p.session_id
		WHERE p.public_id = ?`, entryID)

	var p types.ProgressEntry
	if err := row.Scan(&p.ID, &p.SessionID, &p.TaskID, &p.Kind, &p.Body, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ProgressEntry{}, fmt.Errorf("progress entry %s: %w", entryID, ErrNotFound)
		}
		return types.ProgressEntry{}, err
	}
	return p, nil
}

// ListProgressEntries returns a session's progress stream, optionally
// filtered by task, oldest first.
func (s *Storage) ListProgressEntries(ctx context.Context, sessionID string, taskID *string) ([]types.ProgressEntry, error) {
	sessionInternalID, err := resolveSessionInternalID(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	query := `SELECT public_id, COALESCE(task_id, ''), kind, body, created_at FROM progress_entries WHERE session_id = ?`
	args := []any{sessionInternalID}
	if taskID != nil {
		query += ` AND task_id = ?`
		args = append(args, *taskID)
	}
	query += ` ORDER BY created_at ASC`

	return s.scanProgressRows(ctx, sessionID, query, args...)
}

// ListProgressByKind filters a session's progress stream by kind.
func (s *Storage) ListProgressByKind(ctx context.Context, sessionID string, kind types.ProgressKind) ([]types.ProgressEntry, error) {
	sessionInternalID, err := resolveSessionInternalID(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	return s.scanProgressRows(ctx, sessionID, `
		SELECT public_id, COALESCE(task_id, ''), kind, body, created_at
		FROM progress_entries WHERE session_id = ? AND kind = ? ORDER BY created_at ASC`, sessionInternalID, kind)
}

func (s *Storage) scanProgressRows(ctx context.Context, sessionID, query string, args ...any) ([]types.ProgressEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ProgressEntry
	for rows.Next() {
		var p types.ProgressEntry
		if err := rows.Scan(&p.ID, &p.TaskID, &p.Kind, &p.Body, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.SessionID = sessionID
		out = append(out, p)
	}
	return out, rows.Err()
}
