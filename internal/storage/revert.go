package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/agentrt/agentrt/pkg/types"
)

// GetRevertState returns the session's current undo marker, if any
// (spec.md §4.1.6, §3.2 — at most one per session).
func (s *Storage) GetRevertState(ctx context.Context, sessionID string) (*types.RevertState, error) {
	sessionInternalID, err := resolveSessionInternalID(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT public_id, message_id, snapshot_id, backend_id, created_at
		FROM revert_states WHERE session_id = ?`, sessionInternalID)

	var rs types.RevertState
	if err := row.Scan(&rs.ID, &rs.MessageID, &rs.SnapshotID, &rs.BackendID, &rs.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rs.SessionID = sessionID
	return &rs, nil
}

// SetRevertState replaces the session's undo marker; pass nil to clear it
// (redo consumes/clears it, a new mutating turn clears it implicitly).
func (s *Storage) SetRevertState(ctx context.Context, sessionID string, state *types.RevertState) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		sessionInternalID, err := resolveSessionInternalID(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM revert_states WHERE session_id = ?`, sessionInternalID); err != nil {
			return err
		}
		if state == nil {
			return nil
		}
		if state.ID == "" {
			state.ID = newPublicID()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO revert_states (public_id, session_id, message_id, snapshot_id, backend_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			state.ID, sessionInternalID, state.MessageID, state.SnapshotID, state.BackendID, now())
		return err
	})
}
