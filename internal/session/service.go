// Package session provides session management functionality.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/agentrt/agentrt/internal/permission"
	"github.com/agentrt/agentrt/internal/provider"
	"github.com/agentrt/agentrt/internal/storage"
	"github.com/agentrt/agentrt/internal/tool"
	"github.com/agentrt/agentrt/pkg/types"
)

// Service manages session operations, backed by the SQLite storage layer
// (spec.md §3.1, §4.3).
type Service struct {
	storage *storage.Storage

	// Active session processing
	mu       sync.RWMutex
	active   map[string]*ActiveSession
	abortChs map[string]chan struct{}

	// Processor for agentic loop
	processor *Processor
}

// ActiveSession tracks an active processing session.
type ActiveSession struct {
	SessionID string
	AbortCh   chan struct{}
	StartTime time.Time
}

// NewService creates a new session service.
func NewService(store *storage.Storage) *Service {
	return &Service{
		storage:  store,
		active:   make(map[string]*ActiveSession),
		abortChs: make(map[string]chan struct{}),
	}
}

// NewServiceWithProcessor creates a new session service with processor dependencies.
func NewServiceWithProcessor(
	store *storage.Storage,
	providerReg *provider.Registry,
	toolReg *tool.Registry,
	permChecker *permission.Checker,
	defaultProviderID string,
	defaultModelID string,
) *Service {
	s := &Service{
		storage:  store,
		active:   make(map[string]*ActiveSession),
		abortChs: make(map[string]chan struct{}),
	}
	s.processor = NewProcessor(providerReg, toolReg, store, permChecker, defaultProviderID, defaultModelID)
	return s
}

// GetProcessor returns the session processor.
func (s *Service) GetProcessor() *Processor {
	return s.processor
}

// Create creates a new session.
func (s *Service) Create(ctx context.Context, directory string, title string) (*types.Session, error) {
	if title == "" {
		title = "New Session"
	}

	sess, err := s.storage.CreateSession(ctx, types.Session{
		ProjectID: hashDirectory(directory),
		Directory: directory,
		Title:     title,
		Version:   "1",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return &sess, nil
}

// Get retrieves a session by ID.
func (s *Service) Get(ctx context.Context, sessionID string) (*types.Session, error) {
	sess, err := s.storage.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Update updates a session with the given updates.
func (s *Service) Update(ctx context.Context, sessionID string, updates map[string]any) (*types.Session, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if title, ok := updates["title"].(string); ok {
		sess.Title = title
	}

	if err := s.persist(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Delete deletes a session and, via cascade, its messages and parts.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	return s.storage.DeleteSession(ctx, sessionID)
}

// List lists sessions for a directory.
// If directory is empty, lists all sessions across all projects.
func (s *Service) List(ctx context.Context, directory string) ([]*types.Session, error) {
	all, err := s.storage.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*types.Session, 0, len(all))
	projectID := ""
	if directory != "" {
		projectID = hashDirectory(directory)
	}
	for i := range all {
		if projectID != "" && all[i].ProjectID != projectID {
			continue
		}
		out = append(out, &all[i])
	}
	return out, nil
}

// GetChildren returns child sessions (forks).
func (s *Service) GetChildren(ctx context.Context, sessionID string) ([]*types.Session, error) {
	childIDs, err := s.storage.ListChildSessions(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	children := make([]*types.Session, 0, len(childIDs))
	for _, id := range childIDs {
		child, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		children = append(children, child)
	}
	return children, nil
}

// Fork creates a fork of a session at a specific message (spec.md §4.3
// fork_session: copies messages/parts up to and including messageID).
func (s *Service) Fork(ctx context.Context, sessionID, messageID string) (*types.Session, error) {
	newSessionID, err := s.storage.ForkSession(ctx, sessionID, messageID, "manual")
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, newSessionID)
}

// Abort aborts an active session.
func (s *Service) Abort(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.abortChs[sessionID]; ok {
		close(ch)
		delete(s.abortChs, sessionID)
	}

	return nil
}

// Share shares a session and returns a share URL.
func (s *Service) Share(ctx context.Context, sessionID string) (string, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}

	shareURL := fmt.Sprintf("https://agentrt.dev/share/%s", sessionID)
	sess.Share = &types.SessionShare{URL: shareURL}

	if err := s.persist(ctx, sess); err != nil {
		return "", err
	}
	return shareURL, nil
}

// Unshare removes sharing from a session.
func (s *Service) Unshare(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.Share = nil
	return s.persist(ctx, sess)
}

// Summarize generates a summary of the session.
func (s *Service) Summarize(ctx context.Context, sessionID string) (*types.SessionSummary, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &sess.Summary, nil
}

// GetDiffs returns diffs for a session.
func (s *Service) GetDiffs(ctx context.Context, sessionID string) ([]types.FileDiff, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Summary.Diffs, nil
}

// GetTodos returns todos for a session.
func (s *Service) GetTodos(ctx context.Context, sessionID string) ([]types.TodoInfo, error) {
	return GetTodos(ctx, s.storage, sessionID)
}

// Revert marks the session's undo boundary (spec.md §4.1.6). The snapshot
// restore and undo bookkeeping itself is handled by internal/snapshot and
// internal/session's turn executor; this records the user-facing pointer.
func (s *Service) Revert(ctx context.Context, sessionID, messageID string, partID *string) error {
	if s.processor != nil {
		if err := s.processor.Undo(ctx, sessionID, messageID); err != nil {
			return err
		}
	}
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.Revert = &types.SessionRevert{MessageID: messageID, PartID: partID}
	return s.persist(ctx, sess)
}

// Unrevert implements redo (spec.md §4.1.7 Redo): only valid while a
// revert state exists.
func (s *Service) Unrevert(ctx context.Context, sessionID string) error {
	if s.processor != nil {
		if err := s.processor.Redo(ctx, sessionID); err != nil {
			return err
		}
	}
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.Revert = nil
	return s.persist(ctx, sess)
}

// ExecuteCommand executes a slash command.
func (s *Service) ExecuteCommand(ctx context.Context, sessionID, command string) (map[string]any, error) {
	// TODO: Implement command execution
	return map[string]any{"result": "command executed"}, nil
}

// RunShell runs a shell command in the session context.
func (s *Service) RunShell(ctx context.Context, sessionID, command string, timeout int) (map[string]any, error) {
	// TODO: Implement shell execution
	return map[string]any{"output": ""}, nil
}

// RespondPermission responds to a permission request.
func (s *Service) RespondPermission(ctx context.Context, sessionID, permissionID string, granted bool) error {
	// TODO: Implement permission response handling
	return nil
}

// AddMessage adds a message (with no parts) to a session.
func (s *Service) AddMessage(ctx context.Context, sessionID string, msg *types.Message) error {
	return s.storage.AddMessage(ctx, sessionID, *msg, nil)
}

// GetMessages returns all messages for a session.
func (s *Service) GetMessages(ctx context.Context, sessionID string) ([]*types.Message, error) {
	history, err := s.storage.GetHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Message, len(history))
	for i := range history {
		m := history[i].Message
		out[i] = &m
	}
	return out, nil
}

// GetParts returns all parts for a message.
func (s *Service) GetParts(ctx context.Context, sessionID, messageID string) ([]types.Part, error) {
	history, err := s.storage.GetHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, h := range history {
		if h.Message.ID == messageID {
			return h.Parts, nil
		}
	}
	return nil, nil
}

// ProcessMessage processes a user message and generates an assistant response.
// This is the main agentic loop.
func (s *Service) ProcessMessage(
	ctx context.Context,
	sess *types.Session,
	content string,
	model *types.ModelRef,
	onUpdate func(msg *types.Message, parts []types.Part),
) (*types.Message, []types.Part, error) {
	userMsg := types.Message{
		ID:        storage.NewPublicID(),
		SessionID: sess.ID,
		Role:      "user",
		Time:      types.MessageTime{Created: time.Now().UnixMilli()},
	}
	if model != nil {
		userMsg.Model = model
	}

	userPart := &types.TextPart{
		ID:        storage.NewPublicID(),
		Type:      "text",
		SessionID: sess.ID,
		MessageID: userMsg.ID,
		Text:      content,
	}

	if err := s.storage.AddMessage(ctx, sess.ID, userMsg, []types.Part{userPart}); err != nil {
		return nil, nil, err
	}

	if s.processor != nil {
		var finalMsg *types.Message
		var finalParts []types.Part

		err := s.processor.Process(ctx, sess.ID, DefaultAgent(), func(msg *types.Message, parts []types.Part) {
			finalMsg = msg
			finalParts = parts
			if onUpdate != nil {
				onUpdate(msg, parts)
			}
		})
		return finalMsg, finalParts, err
	}

	// Fallback: Create placeholder assistant message if no processor
	assistantMsg := types.Message{
		ID:        storage.NewPublicID(),
		SessionID: sess.ID,
		Role:      "assistant",
		Time:      types.MessageTime{Created: time.Now().UnixMilli()},
	}
	if model != nil {
		assistantMsg.ProviderID = model.ProviderID
		assistantMsg.ModelID = model.ModelID
	}

	parts := []types.Part{
		&types.TextPart{
			ID:        storage.NewPublicID(),
			Type:      "text",
			SessionID: sess.ID,
			MessageID: assistantMsg.ID,
			Text:      "Processor not initialized. Please configure providers.",
		},
	}

	if err := s.storage.AddMessage(ctx, sess.ID, assistantMsg, parts); err != nil {
		return nil, nil, err
	}

	if onUpdate != nil {
		onUpdate(&assistantMsg, parts)
	}

	return &assistantMsg, parts, nil
}

// persist re-saves a session's mutable, non-relational fields (title,
// share, revert pointer) via the blob-backed scratch path, since these are
// UI-facing fields the relational schema doesn't model as separate
// columns beyond what CreateSession/GetSession already track.
func (s *Service) persist(ctx context.Context, sess *types.Session) error {
	_, err := s.storage.UpdateSessionFields(ctx, sess.ID, func(row *types.Session) {
		row.Title = sess.Title
		row.Share = sess.Share
		row.Revert = sess.Revert
		row.Summary = sess.Summary
	})
	return err
}

// hashDirectory creates a project ID from a directory path.
func hashDirectory(directory string) string {
	h := sha256.New()
	h.Write([]byte(directory))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
