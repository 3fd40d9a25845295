package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agentrt/agentrt/pkg/types"
)

// RecordArtifact inserts a produced-output record.
func (s *Storage) RecordArtifact(ctx context.Context, a types.Artifact) (types.Artifact, error) {
	if a.ID == "" {
		a.ID = newPublicID()
	}
	a.CreatedAt = now()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sessionInternalID, err := resolveSessionInternalID(ctx, tx, a.SessionID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO artifacts (public_id, session_id, task_id, kind, uri_or_path, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`, a.ID, sessionInternalID, a.TaskID, a.Kind, a.URIOrPath, a.CreatedAt)
		return err
	})
	return a, err
}

// GetArtifact loads a single artifact by public id.
func (s *Storage) GetArtifact(ctx context.Context, artifactID string) (types.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT a.public_id, s.public_id, COALESCE(a.task_id, ''), a.kind, a.uri_or_path, a.created_at
		FROM artifacts a INNER JOIN sessions s ON s.id = a.session_id
		WHERE a.public_id = ?`, artifactID)

	var a types.Artifact
	if err := row.Scan(&a.ID, &a.SessionID, &a.TaskID, &a.Kind, &a.URIOrPath, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Artifact{}, fmt.Errorf("artifact %s: %w", artifactID, ErrNotFound)
		}
		return types.Artifact{}, err
	}
	return a, nil
}

// ListArtifacts returns a session's artifacts, optionally filtered by task.
func (s *Storage) ListArtifacts(ctx context.Context, sessionID string, taskID *string) ([]types.Artifact, error) {
	sessionInternalID, err := resolveSessionInternalID(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	query := `SELECT public_id, COALESCE(task_id, ''), kind, uri_or_path, created_at FROM artifacts WHERE session_id = ?`
	args := []any{sessionInternalID}
	if taskID != nil {
		query += ` AND task_id = ?`
		args = append(args, *taskID)
	}
	query += ` ORDER BY created_at ASC`
	return s.scanArtifactRows(ctx, sessionID, query, args...)
}

// ListArtifactsByKind filters a session's artifacts by kind.
func (s *Storage) ListArtifactsByKind(ctx context.Context, sessionID string, kind types.ArtifactKind) ([]types.Artifact, error) {
	sessionInternalID, err := resolveSessionInternalID(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	return s.scanArtifactRows(ctx, sessionID, `
		SELECT public_id, COALESCE(task_id, ''), kind, uri_or_path, created_at
		FROM artifacts WHERE session_id = ? AND kind = ? ORDER BY created_at ASC`, sessionInternalID, kind)
}

func (s *Storage) scanArtifactRows(ctx context.Context, sessionID, query string, args ...any) ([]types.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Artifact
	for rows.Next() {
		var a types.Artifact
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Kind, &a.URIOrPath, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.SessionID = sessionID
		out = append(out, a)
	}
	return out, rows.Err()
}
