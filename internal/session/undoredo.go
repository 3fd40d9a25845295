package session

import (
	"context"
	"fmt"

	"github.com/agentrt/agentrt/internal/storage"
	"github.com/agentrt/agentrt/pkg/types"
)

// Undo implements spec.md §4.1.7: restore the worktree to the most recent
// TurnSnapshotStart at or before messageID, delete every message created
// strictly after messageID, and record a RevertState so Redo can reverse
// the operation.
func (p *Processor) Undo(ctx context.Context, sessionID, messageID string) error {
	p.mu.Lock()
	backend := p.snapshotBackend
	p.mu.Unlock()
	if backend == nil {
		return fmt.Errorf("undo: no snapshot backend configured")
	}

	sess, err := p.findSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Directory == "" {
		return fmt.Errorf("undo: session has no working directory")
	}

	history, err := p.storage.GetHistory(ctx, sessionID)
	if err != nil {
		return err
	}

	target, ok := findMessage(history, messageID)
	if !ok {
		return fmt.Errorf("undo: message %s not found", messageID)
	}

	snapshotID, ok := latestSnapshotStartAtOrBefore(history, target.Message.Time.Created)
	if !ok {
		return fmt.Errorf("undo: no snapshot recorded at or before message %s", messageID)
	}

	if err := backend.Restore(ctx, sess.Directory, snapshotID); err != nil {
		return fmt.Errorf("undo: restore failed: %w", err)
	}

	if _, err := p.storage.DeleteMessagesAfter(ctx, sessionID, messageID); err != nil {
		return fmt.Errorf("undo: failed to delete messages after target: %w", err)
	}

	return p.storage.SetRevertState(ctx, sessionID, &types.RevertState{
		SessionID:  sessionID,
		MessageID:  messageID,
		SnapshotID: snapshotID,
	})
}

// Redo implements spec.md §4.1.7: only valid immediately after an Undo
// (while a RevertState exists). Restores the worktree back to the snapshot
// that preceded the undo and clears the revert marker.
func (p *Processor) Redo(ctx context.Context, sessionID string) error {
	p.mu.Lock()
	backend := p.snapshotBackend
	p.mu.Unlock()
	if backend == nil {
		return fmt.Errorf("redo: no snapshot backend configured")
	}

	revert, err := p.storage.GetRevertState(ctx, sessionID)
	if err != nil {
		return err
	}
	if revert == nil {
		return fmt.Errorf("redo: nothing to redo")
	}

	sess, err := p.findSession(ctx, sessionID)
	if err != nil {
		return err
	}

	// The redo target is whatever the worktree looked like immediately
	// before the undo restored revert.SnapshotID; that is the most recent
	// snapshot tracked by the backend at undo time, which a fresh Track
	// call re-derives from the current (pre-redo) worktree state.
	current, err := backend.Track(ctx, sess.Directory)
	if err != nil {
		return fmt.Errorf("redo: failed to snapshot current state: %w", err)
	}
	if current == revert.SnapshotID {
		return fmt.Errorf("redo: worktree unchanged since undo, nothing to redo")
	}

	if err := backend.Restore(ctx, sess.Directory, current); err != nil {
		return fmt.Errorf("redo: restore failed: %w", err)
	}

	return p.storage.SetRevertState(ctx, sessionID, nil)
}

func findMessage(history []storage.HistoryMessage, messageID string) (storage.HistoryMessage, bool) {
	for _, h := range history {
		if h.Message.ID == messageID {
			return h, true
		}
	}
	return storage.HistoryMessage{}, false
}

// latestSnapshotStartAtOrBefore scans history in order and returns the
// snapshot id carried by the last TurnSnapshotStartPart attached to a
// message created at or before cutoff.
func latestSnapshotStartAtOrBefore(history []storage.HistoryMessage, cutoff int64) (string, bool) {
	var found string
	var ok bool
	for _, h := range history {
		if h.Message.Time.Created > cutoff {
			break
		}
		for _, part := range h.Parts {
			if p, isStart := part.(*types.TurnSnapshotStartPart); isStart {
				found = p.SnapshotID
				ok = true
			}
		}
	}
	return found, ok
}
