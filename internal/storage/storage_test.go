package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/agentrt/agentrt/pkg/types"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStorage_CreateAndGetSession(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, types.Session{Title: "first"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected a generated public id")
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Title != "first" {
		t.Errorf("got title %q, want %q", got.Title, "first")
	}
	if got.HasConsistentForkState() == false {
		t.Error("non-forked session should report consistent fork state")
	}
}

func TestStorage_GetSessionNotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.GetSession(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStorage_AddMessageAndHistory(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, types.Session{Title: "chat"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	msg := types.Message{ID: newPublicID(), SessionID: sess.ID, Role: "user", Time: types.MessageTime{Created: 1}}
	parts := []types.Part{&types.TextPart{ID: newPublicID(), SessionID: sess.ID, MessageID: msg.ID, Type: "text", Text: "hello"}}
	if err := s.AddMessage(ctx, sess.ID, msg, parts); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	history, err := s.GetHistory(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 message, got %d", len(history))
	}
	if len(history[0].Parts) != 1 || history[0].Parts[0].PartType() != "text" {
		t.Fatalf("expected 1 text part, got %+v", history[0].Parts)
	}
}

func TestStorage_ForkSessionCopiesMessagesUpToTarget(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, types.Session{Title: "source"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	var lastID string
	for i := 0; i < 3; i++ {
		msg := types.Message{ID: newPublicID(), SessionID: sess.ID, Role: "user", Time: types.MessageTime{Created: int64(i + 1)}}
		if err := s.AddMessage(ctx, sess.ID, msg, nil); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
		lastID = msg.ID
		if i == 0 {
			lastID = msg.ID // fork target is the first message
			break
		}
	}

	forkID, err := s.ForkSession(ctx, sess.ID, lastID, "manual")
	if err != nil {
		t.Fatalf("ForkSession failed: %v", err)
	}

	history, err := s.GetHistory(ctx, forkID)
	if err != nil {
		t.Fatalf("GetHistory on fork failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected fork to contain exactly 1 copied message, got %d", len(history))
	}

	info, err := s.GetSessionForkInfo(ctx, forkID)
	if err != nil {
		t.Fatalf("GetSessionForkInfo failed: %v", err)
	}
	if info == nil || info.ParentID != sess.ID {
		t.Fatalf("expected fork info pointing at parent, got %+v", info)
	}
}

func TestStorage_DeleteMessagesAfter(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	sess, _ := s.CreateSession(ctx, types.Session{Title: "undo"})
	var firstID string
	for i := 0; i < 3; i++ {
		msg := types.Message{ID: newPublicID(), SessionID: sess.ID, Role: "user", Time: types.MessageTime{Created: int64(i + 1)}}
		if err := s.AddMessage(ctx, sess.ID, msg, nil); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
		if i == 0 {
			firstID = msg.ID
		}
	}

	deleted, err := s.DeleteMessagesAfter(ctx, sess.ID, firstID)
	if err != nil {
		t.Fatalf("DeleteMessagesAfter failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted, got %d", deleted)
	}

	history, err := s.GetHistory(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("expected 1 remaining message, got %d", len(history))
	}
}

func TestStorage_CreateOrGetLLMConfigIsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	cfg := types.LLMConfig{Provider: "anthropic", Model: "claude-sonnet", Params: map[string]any{"temperature": 0.2}}
	first, err := s.CreateOrGetLLMConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("CreateOrGetLLMConfig failed: %v", err)
	}
	second, err := s.CreateOrGetLLMConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("CreateOrGetLLMConfig (second) failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected identical id on re-insert, got %s and %s", first.ID, second.ID)
	}
}

func TestStorage_TaskStatusTransitions(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	sess, _ := s.CreateSession(ctx, types.Session{Title: "tasks"})
	task, err := s.CreateTask(ctx, types.Task{SessionID: sess.ID, Title: "do the thing", Status: types.TaskPending})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if err := s.UpdateTaskStatus(ctx, task.ID, types.TaskInProgress); err != nil {
		t.Fatalf("valid transition failed: %v", err)
	}
	if err := s.UpdateTaskStatus(ctx, task.ID, types.TaskPending); err == nil {
		t.Error("expected rejecting in_progress -> pending")
	}
}

func TestStorage_DelegationStatusTransitions(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	sess, _ := s.CreateSession(ctx, types.Session{Title: "delegator"})
	d, err := s.CreateDelegation(ctx, types.Delegation{
		SessionID: sess.ID, TargetAgentID: "reviewer", Objective: "review the diff", ObjectiveHash: "abc",
	})
	if err != nil {
		t.Fatalf("CreateDelegation failed: %v", err)
	}
	if d.Status != types.DelegationRequested {
		t.Fatalf("expected default status Requested, got %s", d.Status)
	}

	if err := s.UpdateDelegationStatus(ctx, d.ID, types.DelegationRunning); err != nil {
		t.Fatalf("Requested -> Running failed: %v", err)
	}
	if err := s.UpdateDelegationStatus(ctx, d.ID, types.DelegationComplete); err != nil {
		t.Fatalf("Running -> Complete failed: %v", err)
	}
	if err := s.UpdateDelegationStatus(ctx, d.ID, types.DelegationRunning); err == nil {
		t.Error("expected rejecting transition out of a terminal state")
	}
}

func TestStorage_RevertStateRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	sess, _ := s.CreateSession(ctx, types.Session{Title: "revert"})
	if got, err := s.GetRevertState(ctx, sess.ID); err != nil || got != nil {
		t.Fatalf("expected no revert state initially, got %+v, err %v", got, err)
	}

	state := &types.RevertState{SessionID: sess.ID, MessageID: "m1", SnapshotID: "snap1", BackendID: "git"}
	if err := s.SetRevertState(ctx, sess.ID, state); err != nil {
		t.Fatalf("SetRevertState failed: %v", err)
	}

	got, err := s.GetRevertState(ctx, sess.ID)
	if err != nil || got == nil {
		t.Fatalf("expected revert state, got %+v, err %v", got, err)
	}
	if got.SnapshotID != "snap1" {
		t.Errorf("got snapshot %q, want snap1", got.SnapshotID)
	}

	if err := s.SetRevertState(ctx, sess.ID, nil); err != nil {
		t.Fatalf("clearing revert state failed: %v", err)
	}
	if got, err := s.GetRevertState(ctx, sess.ID); err != nil || got != nil {
		t.Fatalf("expected cleared revert state, got %+v, err %v", got, err)
	}
}

func TestStorage_ConcurrentSessionCreation(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := s.CreateSession(ctx, types.Session{Title: "concurrent"}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent CreateSession failed: %v", err)
	}

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 10 {
		t.Errorf("expected 10 sessions, got %d", len(sessions))
	}
}
