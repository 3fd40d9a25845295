package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/agentrt/agentrt/pkg/types"
)

// AddMessage inserts a message and its parts inside a single transaction,
// resolving ParentMessageID if set (spec.md §4.3 add_message).
func (s *Storage) AddMessage(ctx context.Context, sessionID string, msg types.Message, parts []types.Part) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		sessionInternalID, err := resolveSessionInternalID(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		var parentInternalID sql.NullInt64
		if msg.ParentMessageID != nil {
			pid, err := resolveMessageInternalID(ctx, tx, *msg.ParentMessageID)
			if err != nil {
				return err
			}
			parentInternalID = sql.NullInt64{Int64: pid, Valid: true}
		}

		body, err := json.Marshal(msg)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (public_id, session_id, role, parent_message_id, created_at, body_json)
			VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ID, sessionInternalID, msg.Role, parentInternalID, msg.Time.Created, string(body))
		if err != nil {
			return err
		}
		messageInternalID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		for idx, part := range parts {
			content, err := json.Marshal(part)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO message_parts (message_id, part_id, part_type, content_json, sort_order)
				VALUES (?, ?, ?, ?, ?)`, messageInternalID, part.PartID(), part.PartType(), string(content), idx); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, now(), sessionInternalID)
		return err
	})
}

// SaveMessage inserts a message if it doesn't exist yet, or updates its
// body_json otherwise. Used by the turn loop to persist an in-progress
// assistant message before all its parts have streamed in.
func (s *Storage) SaveMessage(ctx context.Context, sessionID string, msg types.Message) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		sessionInternalID, err := resolveSessionInternalID(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		body, err := json.Marshal(msg)
		if err != nil {
			return err
		}

		var existingID int64
		err = tx.QueryRowContext(ctx, `SELECT id FROM messages WHERE public_id = ?`, msg.ID).Scan(&existingID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			var parentInternalID sql.NullInt64
			if msg.ParentMessageID != nil {
				pid, err := resolveMessageInternalID(ctx, tx, *msg.ParentMessageID)
				if err != nil {
					return err
				}
				parentInternalID = sql.NullInt64{Int64: pid, Valid: true}
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO messages (public_id, session_id, role, parent_message_id, created_at, body_json)
				VALUES (?, ?, ?, ?, ?, ?)`,
				msg.ID, sessionInternalID, msg.Role, parentInternalID, msg.Time.Created, string(body))
			if err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if _, err := tx.ExecContext(ctx, `UPDATE messages SET body_json = ? WHERE id = ?`, string(body), existingID); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, now(), sessionInternalID)
		return err
	})
}

// SavePart inserts a part if it doesn't exist yet (keyed by message + the
// part's own id), or updates its content_json otherwise. Used by the turn
// loop as parts of a streaming assistant response arrive incrementally.
func (s *Storage) SavePart(ctx context.Context, messageID string, part types.Part) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		messageInternalID, err := resolveMessageInternalID(ctx, tx, messageID)
		if err != nil {
			return err
		}

		content, err := json.Marshal(part)
		if err != nil {
			return err
		}

		var existingID int64
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM message_parts WHERE message_id = ? AND part_id = ?`, messageInternalID, part.PartID()).Scan(&existingID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			var nextOrder int
			if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(sort_order) + 1, 0) FROM message_parts WHERE message_id = ?`, messageInternalID).Scan(&nextOrder); err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO message_parts (message_id, part_id, part_type, content_json, sort_order)
				VALUES (?, ?, ?, ?, ?)`, messageInternalID, part.PartID(), part.PartType(), string(content), nextOrder)
			return err
		case err != nil:
			return err
		default:
			_, err := tx.ExecContext(ctx, `UPDATE message_parts SET content_json = ? WHERE id = ?`, string(content), existingID)
			return err
		}
	})
}

// GetMessage loads a single message by public id, without its parts.
func (s *Storage) GetMessage(ctx context.Context, messageID string) (types.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT body_json FROM messages WHERE public_id = ?`, messageID)
	var body string
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Message{}, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
		}
		return types.Message{}, err
	}
	var msg types.Message
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return types.Message{}, err
	}
	return msg, nil
}

// GetParts loads every part attached to a message, in sort order.
func (s *Storage) GetParts(ctx context.Context, messageID string) ([]types.Part, error) {
	messageInternalID, err := resolveMessageInternalID(ctx, s.db, messageID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT content_json FROM message_parts WHERE message_id = ? ORDER BY sort_order ASC`, messageInternalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parts []types.Part
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		part, err := types.UnmarshalPart([]byte(raw))
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, rows.Err()
}

// HistoryMessage pairs a decoded Message with its ordered Parts.
type HistoryMessage struct {
	Message types.Message
	Parts   []types.Part
}

// GetHistory returns every message in a session in creation order, each
// with its parts attached (spec.md §4.3 get_history).
func (s *Storage) GetHistory(ctx context.Context, sessionID string) ([]HistoryMessage, error) {
	sessionInternalID, err := resolveSessionInternalID(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, body_json FROM messages WHERE session_id = ? ORDER BY created_at ASC`, sessionInternalID)
	if err != nil {
		return nil, err
	}

	type row struct {
		internalID int64
		body       string
	}
	var msgRows []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.internalID, &r.body); err != nil {
			rows.Close()
			return nil, err
		}
		msgRows = append(msgRows, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	out := make([]HistoryMessage, 0, len(msgRows))
	for _, r := range msgRows {
		var msg types.Message
		if err := json.Unmarshal([]byte(r.body), &msg); err != nil {
			return nil, err
		}

		partRows, err := s.db.QueryContext(ctx, `
			SELECT content_json FROM message_parts WHERE message_id = ? ORDER BY sort_order ASC`, r.internalID)
		if err != nil {
			return nil, err
		}
		var parts []types.Part
		for partRows.Next() {
			var raw string
			if err := partRows.Scan(&raw); err != nil {
				partRows.Close()
				return nil, err
			}
			part, err := types.UnmarshalPart([]byte(raw))
			if err != nil {
				partRows.Close()
				return nil, err
			}
			parts = append(parts, part)
		}
		if err := partRows.Err(); err != nil {
			partRows.Close()
			return nil, err
		}
		partRows.Close()

		out = append(out, HistoryMessage{Message: msg, Parts: parts})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Message.Time.Created < out[j].Message.Time.Created
	})
	return out, nil
}

// DeleteMessagesAfter removes every message (and its parts) created after
// messageID, returning the count deleted. Used by undo (spec.md §4.3,
// §4.1.6).
func (s *Storage) DeleteMessagesAfter(ctx context.Context, sessionID, messageID string) (int, error) {
	var deleted int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sessionInternalID, err := resolveSessionInternalID(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		messageInternalID, err := resolveMessageInternalID(ctx, tx, messageID)
		if err != nil {
			return err
		}

		var targetCreatedAt int64
		if err := tx.QueryRowContext(ctx, `SELECT created_at FROM messages WHERE id = ?`, messageInternalID).Scan(&targetCreatedAt); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			DELETE FROM messages WHERE session_id = ? AND created_at > ?`, sessionInternalID, targetCreatedAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = int(n)
		return nil
	})
	return deleted, err
}

// toolResultCallID extracts the toolCallID from a serialized tool part.
func toolResultCallID(raw string) (string, bool) {
	var p struct {
		ToolCallID string `json:"toolCallID"`
		Type       string `json:"type"`
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return "", false
	}
	return p.ToolCallID, p.ToolCallID != ""
}

// MarkToolResultsCompacted tags the tool parts matching callIDs as
// compacted by stamping metadata.compactedAt, skipping ones already
// marked, and returns how many were updated (spec.md §4.1.5).
func (s *Storage) MarkToolResultsCompacted(ctx context.Context, sessionID string, callIDs []string) (int, error) {
	if len(callIDs) == 0 {
		return 0, nil
	}
	want := make(map[string]bool, len(callIDs))
	for _, id := range callIDs {
		want[id] = true
	}

	var updated int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sessionInternalID, err := resolveSessionInternalID(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT mp.id, mp.content_json
			FROM message_parts mp
			INNER JOIN messages m ON mp.message_id = m.id
			WHERE m.session_id = ? AND mp.part_type = 'tool'`, sessionInternalID)
		if err != nil {
			return err
		}
		type part struct {
			id      int64
			content string
		}
		var parts []part
		for rows.Next() {
			var p part
			if err := rows.Scan(&p.id, &p.content); err != nil {
				rows.Close()
				return err
			}
			parts = append(parts, p)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		ts := now()
		for _, p := range parts {
			callID, ok := toolResultCallID(p.content)
			if !ok || !want[callID] {
				continue
			}

			var generic map[string]any
			if err := json.Unmarshal([]byte(p.content), &generic); err != nil {
				return err
			}
			meta, _ := generic["metadata"].(map[string]any)
			if meta != nil {
				if _, already := meta["compactedAt"]; already {
					continue
				}
			} else {
				meta = map[string]any{}
			}
			meta["compactedAt"] = ts
			generic["metadata"] = meta

			updatedJSON, err := json.Marshal(generic)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE message_parts SET content_json = ? WHERE id = ?`, string(updatedJSON), p.id); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	return updated, err
}
