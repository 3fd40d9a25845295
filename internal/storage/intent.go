package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agentrt/agentrt/pkg/types"
)

// CreateIntentSnapshot inserts a new intent snapshot for a session.
func (s *Storage) CreateIntentSnapshot(ctx context.Context, snap types.IntentSnapshot) (types.IntentSnapshot, error) {
	if snap.ID == "" {
		snap.ID = newPublicID()
	}
	snap.CreatedAt = now()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sessionInternalID, err := resolveSessionInternalID(ctx, tx, snap.SessionID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO intent_snapshots (public_id, session_id, summary, created_at)
			VALUES (?, ?, ?, ?)`, snap.ID, sessionInternalID, snap.Summary, snap.CreatedAt)
		return err
	})
	return snap, err
}

// GetIntentSnapshot loads a snapshot by its public id.
func (s *Storage) GetIntentSnapshot(ctx context.Context, snapshotID string) (types.IntentSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT i.public_id, s.public_id, i.summary, i.created_at
		FROM intent_snapshots i INNER JOIN sessions s ON s.id = i.session_id
		WHERE i.public_id = ?`, snapshotID)

	var snap types.IntentSnapshot
	if err := row.Scan(&snap.ID, &snap.SessionID, &snap.Summary, &snap.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.IntentSnapshot{}, fmt.Errorf("intent snapshot %s: %w", snapshotID, ErrNotFound)
		}
		return types.IntentSnapshot{}, err
	}
	return snap, nil
}

// ListIntentSnapshots returns a session's snapshot stream, oldest first.
func (s *Storage) ListIntentSnapshots(ctx context.Context, sessionID string) ([]types.IntentSnapshot, error) {
	sessionInternalID, err := resolveSessionInternalID(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT public_id, summary, created_at FROM intent_snapshots
		WHERE session_id = ? ORDER BY created_at ASC`, sessionInternalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.IntentSnapshot
	for rows.Next() {
		var snap types.IntentSnapshot
		if err := rows.Scan(&snap.ID, &snap.Summary, &snap.CreatedAt); err != nil {
			return nil, err
		}
		snap.SessionID = sessionID
		out = append(out, snap)
	}
	return out, rows.Err()
}

// GetCurrentIntentSnapshot resolves the session's CurrentIntentSnapshotID
// pointer to the full snapshot.
func (s *Storage) GetCurrentIntentSnapshot(ctx context.Context, sessionID string) (*types.IntentSnapshot, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.CurrentIntentSnapshotID == "" {
		return nil, nil
	}
	snap, err := s.GetIntentSnapshot(ctx, sess.CurrentIntentSnapshotID)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
