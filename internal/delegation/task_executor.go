package delegation

import (
	"context"
	"fmt"
	"time"

	"github.com/agentrt/agentrt/internal/session"
	"github.com/agentrt/agentrt/internal/storage"
	"github.com/agentrt/agentrt/internal/tool"
	"github.com/agentrt/agentrt/pkg/types"
)

// TaskExecutor implements tool.TaskExecutor by spawning a delegate
// session synchronously, grounded the same way as Orchestrator.execute
// but invoked directly from the Task tool call rather than via a
// delegation.requested event — the Task tool is a synchronous
// request/reply from the parent turn, not a fire-and-forget delegation
// row (spec.md §4.4 only describes the event-driven path; this is the
// tool-call entry point the original calls the "legacy" path via
// with_result_injection).
type TaskExecutor struct {
	registry *session.Registry
	storage  *storage.Storage
}

// NewTaskExecutor builds a TaskExecutor bound to registry and store.
func NewTaskExecutor(registry *session.Registry, store *storage.Storage) *TaskExecutor {
	return &TaskExecutor{registry: registry, storage: store}
}

// ExecuteSubtask implements tool.TaskExecutor.
func (e *TaskExecutor) ExecuteSubtask(ctx context.Context, parentSessionID, agentName, prompt string, opts tool.TaskOptions) (*tool.TaskResult, error) {
	parent, err := e.registry.LoadSession(ctx, parentSessionID)
	cwd := ""
	if err == nil {
		cwd = parent.Directory
	}

	title := opts.Description
	if title == "" {
		title = "subtask: " + agentName
	}
	child, err := e.registry.NewSession(ctx, cwd, title)
	if err != nil {
		return nil, fmt.Errorf("failed to create subagent session: %w", err)
	}

	ref, ok := e.registry.Get(child.ID)
	if !ok || ref.Local == nil {
		return nil, fmt.Errorf("subagent session actor failed to spawn")
	}

	userMsg := types.Message{
		ID: storage.NewPublicID(), SessionID: child.ID, Role: "user",
		Time: types.MessageTime{Created: time.Now().UnixMilli()},
	}
	userPart := &types.TextPart{
		ID: storage.NewPublicID(), SessionID: child.ID, MessageID: userMsg.ID,
		Type: "text", Text: prompt,
	}
	if err := e.storage.AddMessage(ctx, child.ID, userMsg, []types.Part{userPart}); err != nil {
		return nil, fmt.Errorf("failed to store subtask prompt: %w", err)
	}

	var output string
	if err := ref.Local.Prompt(ctx, func(msg *types.Message, parts []types.Part) {
		for _, p := range parts {
			if tp, ok := p.(*types.TextPart); ok {
				output = tp.Text
			}
		}
	}); err != nil {
		return &tool.TaskResult{SessionID: child.ID, Error: err.Error()}, nil
	}

	return &tool.TaskResult{Output: output, SessionID: child.ID}, nil
}
