package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentrt/agentrt/pkg/types"
)

func newPublicID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewPublicID generates a UUIDv7 public identifier, for callers outside
// this package that need to pre-assign message/part ids before calling
// AddMessage (spec.md §3.2 dual-id model).
func NewPublicID() string { return newPublicID() }

// sessionMeta holds the session fields that don't have dedicated columns:
// UI-facing state (title override, share, revert pointer, summary) that
// changes independently of the relational entity model.
type sessionMeta struct {
	Title      string                `json:"title,omitempty"`
	Share      *types.SessionShare   `json:"share,omitempty"`
	Revert     *types.SessionRevert  `json:"revert,omitempty"`
	Summary    *types.SessionSummary `json:"summary,omitempty"`
	Compacting *int64                `json:"compacting,omitempty"`
}

func marshalSessionMeta(sess types.Session) string {
	meta := sessionMeta{Title: sess.Title, Share: sess.Share, Revert: sess.Revert, Compacting: sess.Time.Compacting}
	if sess.Summary.Diffs != nil || sess.Summary.Files != 0 || sess.Summary.Additions != 0 || sess.Summary.Deletions != 0 {
		summary := sess.Summary
		meta.Summary = &summary
	}
	b, _ := json.Marshal(meta)
	return string(b)
}

func applySessionMeta(sess *types.Session, metaJSON sql.NullString) {
	if !metaJSON.Valid || metaJSON.String == "" {
		return
	}
	var meta sessionMeta
	if err := json.Unmarshal([]byte(metaJSON.String), &meta); err != nil {
		return
	}
	if meta.Title != "" {
		sess.Title = meta.Title
	}
	sess.Share = meta.Share
	sess.Revert = meta.Revert
	sess.Time.Compacting = meta.Compacting
	if meta.Summary != nil {
		sess.Summary = *meta.Summary
	}
}

func now() int64 { return time.Now().UnixMilli() }

// CreateSession inserts a new session row, optionally as a fork child
// (spec.md §3.2 fork lineage invariant).
func (s *Storage) CreateSession(ctx context.Context, sess types.Session) (types.Session, error) {
	if sess.ID == "" {
		sess.ID = newPublicID()
	}
	ts := now()
	sess.Time.Created, sess.Time.Updated = ts, ts

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var parentInternalID sql.NullInt64
		if sess.ParentID != nil {
			pid, err := resolveSessionInternalID(ctx, tx, *sess.ParentID)
			if err != nil {
				return err
			}
			parentInternalID = sql.NullInt64{Int64: pid, Valid: true}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (public_id, project_id, directory, name, title, created_at, updated_at,
				parent_session_id, fork_origin, fork_point_type, fork_point_ref, fork_instructions, meta_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, sess.ProjectID, sess.Directory, sess.Name, sess.Title, ts, ts,
			parentInternalID, sess.ForkOrigin, sess.ForkPointType, sess.ForkPointRef, sess.ForkInstructions,
			marshalSessionMeta(sess))
		return err
	})
	if err != nil {
		return types.Session{}, err
	}
	return sess, nil
}

// GetSession loads a session by its public id.
func (s *Storage) GetSession(ctx context.Context, sessionID string) (types.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.public_id, s.project_id, s.directory, s.name, s.title, s.created_at, s.updated_at,
			p.public_id, s.fork_origin, s.fork_point_type, s.fork_point_ref, s.fork_instructions,
			s.provider_node_id, s.current_intent_snapshot_id, s.active_task_id,
			COALESCE(c.public_id, ''), s.meta_json
		FROM sessions s
		LEFT JOIN sessions p ON p.id = s.parent_session_id
		LEFT JOIN llm_configs c ON c.id = s.llm_config_id
		WHERE s.public_id = ?`, sessionID)

	var sess types.Session
	var parentID, metaJSON sql.NullString
	var llmConfigID string
	if err := row.Scan(&sess.ID, &sess.ProjectID, &sess.Directory, &sess.Name, &sess.Title,
		&sess.Time.Created, &sess.Time.Updated, &parentID, &sess.ForkOrigin, &sess.ForkPointType,
		&sess.ForkPointRef, &sess.ForkInstructions, &sess.ProviderNodeID,
		&sess.CurrentIntentSnapshotID, &sess.ActiveTaskID, &llmConfigID, &metaJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Session{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return types.Session{}, err
	}
	if parentID.Valid {
		sess.ParentID = &parentID.String
	}
	sess.LLMConfigID = llmConfigID
	applySessionMeta(&sess, metaJSON)
	return sess, nil
}

// UpdateSessionFields loads a session, applies mutate to it, and persists
// its UI-facing meta fields (title, share, revert, summary). It returns
// the updated session.
func (s *Storage) UpdateSessionFields(ctx context.Context, sessionID string, mutate func(*types.Session)) (types.Session, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return types.Session{}, err
	}
	mutate(&sess)

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		internalID, err := resolveSessionInternalID(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE sessions SET title = ?, meta_json = ?, updated_at = ? WHERE id = ?`,
			sess.Title, marshalSessionMeta(sess), now(), internalID)
		return err
	})
	if err != nil {
		return types.Session{}, err
	}
	return sess, nil
}

// ListSessions returns every top-level and forked session, newest first.
func (s *Storage) ListSessions(ctx context.Context) ([]types.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.public_id, s.project_id, s.directory, s.name, s.title, s.created_at, s.updated_at,
			p.public_id
		FROM sessions s
		LEFT JOIN sessions p ON p.id = s.parent_session_id
		ORDER BY s.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Session
	for rows.Next() {
		var sess types.Session
		var parentID sql.NullString
		if err := rows.Scan(&sess.ID, &sess.ProjectID, &sess.Directory, &sess.Name, &sess.Title,
			&sess.Time.Created, &sess.Time.Updated, &parentID); err != nil {
			return nil, err
		}
		if parentID.Valid {
			sess.ParentID = &parentID.String
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and, via ON DELETE CASCADE, its
// messages, parts, and annotation streams.
func (s *Storage) DeleteSession(ctx context.Context, sessionID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		internalID, err := resolveSessionInternalID(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, internalID)
		return err
	})
}

// ListChildSessions returns the public ids of sessions forked from parentID.
func (s *Storage) ListChildSessions(ctx context.Context, parentID string) ([]string, error) {
	parentInternalID, err := resolveSessionInternalID(ctx, s.db, parentID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT public_id FROM sessions WHERE parent_session_id = ?`, parentInternalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SessionForkInfo describes a session's fork lineage.
type SessionForkInfo struct {
	ParentID         string
	ForkOrigin       string
	ForkPointType    string
	ForkPointRef     string
	ForkInstructions string
}

// GetSessionForkInfo returns nil if the session is not a fork.
func (s *Storage) GetSessionForkInfo(ctx context.Context, sessionID string) (*SessionForkInfo, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.ParentID == nil {
		return nil, nil
	}
	return &SessionForkInfo{
		ParentID:         *sess.ParentID,
		ForkOrigin:       sess.ForkOrigin,
		ForkPointType:    sess.ForkPointType,
		ForkPointRef:     sess.ForkPointRef,
		ForkInstructions: sess.ForkInstructions,
	}, nil
}

// SetCurrentIntentSnapshot updates the session's pointer into its intent
// snapshot stream; pass nil to clear it.
func (s *Storage) SetCurrentIntentSnapshot(ctx context.Context, sessionID string, snapshotID *string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		internalID, err := resolveSessionInternalID(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		var val sql.NullString
		if snapshotID != nil {
			val = sql.NullString{String: *snapshotID, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `UPDATE sessions SET current_intent_snapshot_id = ?, updated_at = ? WHERE id = ?`, val, now(), internalID)
		return err
	})
}

// SetActiveTask updates the session's pointer into its task stream; pass
// nil to clear it.
func (s *Storage) SetActiveTask(ctx context.Context, sessionID string, taskID *string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		internalID, err := resolveSessionInternalID(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		var val sql.NullString
		if taskID != nil {
			val = sql.NullString{String: *taskID, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `UPDATE sessions SET active_task_id = ?, updated_at = ? WHERE id = ?`, val, now(), internalID)
		return err
	})
}

// ForkSession creates a new session that copies source's messages and
// parts up to and including targetMessageID, returning the new session's
// public id (spec.md §4.3, grounded on sqlite_storage.rs's fork_session).
func (s *Storage) ForkSession(ctx context.Context, sourceSessionID, targetMessageID, forkOrigin string) (string, error) {
	var newSessionID string

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sourceInternalID, err := resolveSessionInternalID(ctx, tx, sourceSessionID)
		if err != nil {
			return err
		}
		targetMessageInternalID, err := resolveMessageInternalID(ctx, tx, targetMessageID)
		if err != nil {
			return err
		}

		var parentLLMConfigID sql.NullInt64
		if err := tx.QueryRowContext(ctx, `SELECT llm_config_id FROM sessions WHERE id = ?`, sourceInternalID).Scan(&parentLLMConfigID); err != nil {
			return err
		}

		newSessionID = newPublicID()
		ts := now()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (public_id, name, created_at, updated_at, llm_config_id,
				parent_session_id, fork_origin, fork_point_type, fork_point_ref)
			VALUES (?, ?, ?, ?, ?, ?, ?, 'message', ?)`,
			newSessionID, "Fork of session", ts, ts, parentLLMConfigID,
			sourceInternalID, forkOrigin, targetMessageID)
		if err != nil {
			return err
		}
		newSessionInternalID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT id, role, parent_message_id, created_at, body_json
			FROM messages WHERE session_id = ? ORDER BY created_at ASC`, sourceInternalID)
		if err != nil {
			return err
		}
		type srcMsg struct {
			internalID int64
			role       string
			parentID   sql.NullInt64
			createdAt  int64
			bodyJSON   string
		}
		var toCopy []srcMsg
		for rows.Next() {
			var m srcMsg
			if err := rows.Scan(&m.internalID, &m.role, &m.parentID, &m.createdAt, &m.bodyJSON); err != nil {
				rows.Close()
				return err
			}
			toCopy = append(toCopy, m)
			if m.internalID == targetMessageInternalID {
				break
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		oldToNew := make(map[int64]int64, len(toCopy))
		for _, m := range toCopy {
			newMsgPublicID := newPublicID()
			var newParentInternalID sql.NullInt64
			if m.parentID.Valid {
				if mapped, ok := oldToNew[m.parentID.Int64]; ok {
					newParentInternalID = sql.NullInt64{Int64: mapped, Valid: true}
				}
			}
			res, err := tx.ExecContext(ctx, `
				INSERT INTO messages (public_id, session_id, role, parent_message_id, created_at, body_json)
				VALUES (?, ?, ?, ?, ?, ?)`,
				newMsgPublicID, newSessionInternalID, m.role, newParentInternalID, m.createdAt, m.bodyJSON)
			if err != nil {
				return err
			}
			newMsgInternalID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			oldToNew[m.internalID] = newMsgInternalID

			partRows, err := tx.QueryContext(ctx, `
				SELECT part_type, content_json, sort_order FROM message_parts WHERE message_id = ?`, m.internalID)
			if err != nil {
				return err
			}
			for partRows.Next() {
				var ptype, content string
				var order int
				if err := partRows.Scan(&ptype, &content, &order); err != nil {
					partRows.Close()
					return err
				}
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO message_parts (message_id, part_type, content_json, sort_order)
					VALUES (?, ?, ?, ?)`, newMsgInternalID, ptype, content, order); err != nil {
					partRows.Close()
					return err
				}
			}
			if err := partRows.Err(); err != nil {
				partRows.Close()
				return err
			}
			partRows.Close()
		}

		return nil
	})
	if err != nil {
		return "", err
	}
	return newSessionID, nil
}
