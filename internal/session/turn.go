package session

import (
	"context"
	"time"

	"github.com/agentrt/agentrt/internal/event"
	"github.com/agentrt/agentrt/internal/storage"
	"github.com/agentrt/agentrt/pkg/types"
)

// runTurn implements S2 (Load turn context) through S6 (Post-turn
// snapshot) of the prompt state machine (spec.md §4.1.2). S0/S1 (accept,
// acquire permit) live in Process; S7 (Finish) is the caller's deferred
// permit release. The step-by-step LLM-call/tool-execution work of S5
// itself is runLoop (loop.go), generalized from the teacher's single
// monolithic agentic loop; runTurn brackets it with the snapshot and
// revert-state housekeeping the teacher never had a hook for.
func (p *Processor) runTurn(
	ctx context.Context,
	sessionID string,
	state *sessionState,
	agent *Agent,
	callback ProcessCallback,
) error {
	// S2: load turn context, clear any revert state (§4.1.7 auto-clear).
	sess, err := p.findSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := p.storage.SetRevertState(ctx, sessionID, nil); err != nil {
		// Non-fatal: absence of a prior revert state is the common case.
		_ = err
	}

	state.turnID = storage.NewPublicID()
	state.havePreSnapshot = false

	// S4: pre-turn snapshot.
	p.preTurnSnapshot(ctx, sess, state)

	// S5: loop turn.
	runErr := p.runLoop(ctx, sessionID, state, agent, callback)

	// S6: post-turn snapshot.
	p.postTurnSnapshot(ctx, sess, state)

	return runErr
}

// preTurnSnapshot implements spec.md §4.1.2 S4: if a snapshot backend is
// configured and the session has a working directory, track it and
// record a TurnSnapshotStart bookkeeping part.
func (p *Processor) preTurnSnapshot(ctx context.Context, sess *types.Session, state *sessionState) {
	p.mu.Lock()
	backend := p.snapshotBackend
	p.mu.Unlock()

	if backend == nil || sess.Directory == "" {
		return
	}
	if !backend.IsAvailable(sess.Directory) {
		return
	}

	id, err := backend.Track(ctx, sess.Directory)
	if err != nil {
		return
	}
	state.preSnapshotID = id
	state.havePreSnapshot = true

	now := time.Now().UnixMilli()
	part := &types.TurnSnapshotStartPart{
		ID:         generatePartID(),
		SessionID:  sess.ID,
		Type:       "turn_snapshot_start",
		TurnID:     state.turnID,
		SnapshotID: id,
		Time:       types.PartTime{Start: &now},
	}
	// Bookkeeping parts ride along on an assistant-role message of their
	// own so they appear in history without attaching to the user's
	// prompt message or the (not-yet-created) response message.
	bookkeeping := types.Message{
		ID:        generatePartID(),
		SessionID: sess.ID,
		Role:      "assistant",
		IsSummary: false,
		Time:      types.MessageTime{Created: now},
	}
	part.MessageID = bookkeeping.ID
	_ = p.storage.AddMessage(ctx, sess.ID, bookkeeping, []types.Part{part})
}

// postTurnSnapshot implements spec.md §4.1.2 S6: if a pre-turn snapshot
// was taken, track a post-turn snapshot, diff the two, and append a
// TurnSnapshotPatch part if anything changed; then run GC.
func (p *Processor) postTurnSnapshot(ctx context.Context, sess *types.Session, state *sessionState) {
	p.mu.Lock()
	backend := p.snapshotBackend
	gcConfig := p.snapshotGC
	p.mu.Unlock()

	if backend == nil || !state.havePreSnapshot || sess.Directory == "" {
		return
	}

	postID, err := backend.Track(ctx, sess.Directory)
	if err != nil {
		return
	}

	if postID != state.preSnapshotID {
		paths, err := backend.Diff(ctx, sess.Directory, state.preSnapshotID, postID)
		if err == nil && len(paths) > 0 {
			now := time.Now().UnixMilli()
			part := &types.TurnSnapshotPatchPart{
				ID:             generatePartID(),
				SessionID:      sess.ID,
				Type:           "turn_snapshot_patch",
				TurnID:         state.turnID,
				FromSnapshotID: state.preSnapshotID,
				ToSnapshotID:   postID,
				Paths:          paths,
				Time:           types.PartTime{Start: &now},
			}
			bookkeeping := types.Message{
				ID:        generatePartID(),
				SessionID: sess.ID,
				Role:      "assistant",
				Time:      types.MessageTime{Created: now},
			}
			part.MessageID = bookkeeping.ID
			_ = p.storage.AddMessage(ctx, sess.ID, bookkeeping, []types.Part{part})
		}
	}

	if _, err := backend.GC(ctx, sess.Directory, gcConfig); err != nil {
		_ = err
	}
}

// runMiddlewareBefore/After let loop.go invoke the configured pipeline
// without loop.go needing to know the pipeline's construction.
func (p *Processor) runMiddlewareBefore(ctx context.Context, cc ConversationContext) MiddlewareResult {
	p.mu.Lock()
	mw := p.middleware
	p.mu.Unlock()
	if mw == nil {
		return continueResult()
	}
	return mw.RunBefore(ctx, cc)
}

func (p *Processor) runMiddlewareAfter(ctx context.Context, cc ConversationContext) MiddlewareResult {
	p.mu.Lock()
	mw := p.middleware
	p.mu.Unlock()
	if mw == nil {
		return continueResult()
	}
	return mw.RunAfter(ctx, cc)
}

// publishQueued is a convenience used by callers outside this package
// that want to surface S1 queueing without importing internal/event
// directly.
func publishQueued(sessionID string) {
	event.Publish(event.Event{Type: event.SessionQueued, Data: event.SessionQueuedData{SessionID: sessionID}})
}
