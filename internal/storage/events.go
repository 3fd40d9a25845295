package storage

import (
	"context"
	"encoding/json"

	"github.com/agentrt/agentrt/pkg/types"
)

// AppendEvent persists an audit record for event-bus replay (spec.md §3.2,
// ambient audit stream). Storage is a durable sink the bus writes to
// alongside its in-process fanout, not the bus itself.
func (s *Storage) AppendEvent(ctx context.Context, ev types.SessionEvent) error {
	var data []byte
	var err error
	if ev.Data != nil {
		data, err = json.Marshal(ev.Data)
		if err != nil {
			return err
		}
	}
	ev.CreatedAt = now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_events (session_id, kind, created_at, data_json)
		VALUES (?, ?, ?, ?)`, ev.SessionID, ev.Kind, ev.CreatedAt, string(data))
	return err
}

// ListEvents returns a session's audit trail in sequence order, optionally
// starting after afterSeq (0 for the full history).
func (s *Storage) ListEvents(ctx context.Context, sessionID string, afterSeq int64) ([]types.SessionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, created_at, COALESCE(data_json, '')
		FROM session_events WHERE session_id = ? AND seq > ? ORDER BY seq ASC`, sessionID, afterSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.SessionEvent
	for rows.Next() {
		var ev types.SessionEvent
		var dataJSON string
		if err := rows.Scan(&ev.Seq, &ev.Kind, &ev.CreatedAt, &dataJSON); err != nil {
			return nil, err
		}
		ev.SessionID = sessionID
		if dataJSON != "" {
			if err := json.Unmarshal([]byte(dataJSON), &ev.Data); err != nil {
				return nil, err
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
