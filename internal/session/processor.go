package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentrt/agentrt/internal/event"
	"github.com/agentrt/agentrt/internal/permission"
	"github.com/agentrt/agentrt/internal/provider"
	"github.com/agentrt/agentrt/internal/snapshot"
	"github.com/agentrt/agentrt/internal/storage"
	"github.com/agentrt/agentrt/internal/tool"
	"github.com/agentrt/agentrt/pkg/types"
)

// ExecutionTimeout bounds how long a prompt waits for the session's
// execution permit before S1 fails with "Session execution timeout"
// (spec.md §4.1.2 S1).
const ExecutionTimeout = 5 * time.Minute

// permitAcquireTimeout is the short try-acquire window before a prompt is
// considered "queued" and SessionQueued is emitted (spec.md §4.1.2 S1).
const permitAcquireTimeout = 50 * time.Millisecond

// Processor handles message processing and the agentic loop (spec.md
// §4.1: Session Actor & Turn Executor). It owns, per session, a
// single-permit execution semaphore and a cancel flag, matching the
// actor's described mutable state; internal/session/actor.go is the
// goroutine-per-session wrapper that serializes commands against this
// Processor.
type Processor struct {
	mu sync.Mutex

	providerRegistry  *provider.Registry
	toolRegistry      *tool.Registry
	storage           *storage.Storage
	permissionChecker *permission.Checker

	// Default provider and model to use when not specified
	defaultProviderID string
	defaultModelID    string

	// Active sessions being processed
	sessions map[string]*sessionState

	// snapshotBackend and middleware implement S4/S6 bracketing and the
	// S5 before/after-turn hooks (spec.md §4.1.2, §4.1.3). Both are
	// optional: a nil snapshotBackend skips bracketing entirely.
	snapshotBackend snapshot.Backend
	snapshotGC      snapshot.GCConfig
	middleware      *MiddlewarePipeline
}

// sessionState tracks the state of an active session being processed. A
// sessionState's permit and cancelFlag outlive any single turn (they are
// the actor's persistent mutable state); everything else is turn-scoped.
type sessionState struct {
	ctx    context.Context
	cancel context.CancelFunc

	message *types.Message
	parts   []types.Part
	waiters []chan error
	step    int
	retries int

	// permit is the session's single-permit execution semaphore
	// (spec.md §4.1.2 S1): exactly one turn may hold it at a time.
	permit chan struct{}
	// cancelFlag is set by Abort and consulted/reset by the turn loop
	// (spec.md §4.1.2 S0, S5, S7).
	cancelFlag atomic.Bool

	turnID          string
	preSnapshotID   string
	havePreSnapshot bool

	// mode and toolConfig are persistent actor state, mutated by
	// SetMode/SetToolPolicy/SetAllowedTools/etc. (spec.md §4.1.4) and read
	// at the top of each turn.
	mode       string
	toolConfig ToolConfig
}

// ToolPolicy controls which sources of tools a turn may draw from
// (spec.md §4.1.4).
type ToolPolicy int

const (
	// BuiltInAndProvider is the default: both built-in and provider/MCP
	// tools are available.
	BuiltInAndProvider ToolPolicy = iota
	BuiltInOnly
	ProviderOnly
)

// ToolConfig is the per-session tool selection state (spec.md §4.1.4).
// An empty Allowlist means "no restriction"; when non-empty it is
// exclusive (only listed tools are offered). Denylist is always
// exclusive and takes priority over the allowlist.
type ToolConfig struct {
	Policy    ToolPolicy
	Allowlist map[string]bool
	Denylist  map[string]bool
}

// Allowed reports whether toolID may be offered under this config.
func (tc ToolConfig) Allowed(toolID string) bool {
	if tc.Denylist != nil && tc.Denylist[toolID] {
		return false
	}
	if len(tc.Allowlist) > 0 {
		return tc.Allowlist[toolID]
	}
	return true
}

// ProcessCallback is called with message updates during processing.
type ProcessCallback func(msg *types.Message, parts []types.Part)

// NewProcessor creates a new session processor.
func NewProcessor(
	providerReg *provider.Registry,
	toolReg *tool.Registry,
	store *storage.Storage,
	permChecker *permission.Checker,
	defaultProviderID string,
	defaultModelID string,
) *Processor {
	// Use reasonable defaults if not specified
	if defaultProviderID == "" {
		defaultProviderID = "anthropic"
	}
	if defaultModelID == "" {
		defaultModelID = "claude-sonnet-4-20250514"
	}
	return &Processor{
		providerRegistry:  providerReg,
		toolRegistry:      toolReg,
		storage:           store,
		permissionChecker: permChecker,
		defaultProviderID: defaultProviderID,
		defaultModelID:    defaultModelID,
		sessions:          make(map[string]*sessionState),
		middleware:        NewMiddlewarePipeline(),
	}
}

// SetSnapshotBackend configures the snapshot backend used for S4/S6
// bracketing and Undo/Redo (spec.md §4.1.2, §4.1.7). A nil backend (the
// default) disables snapshotting entirely.
func (p *Processor) SetSnapshotBackend(backend snapshot.Backend, gc snapshot.GCConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshotBackend = backend
	p.snapshotGC = gc
}

// SetMiddleware replaces the turn middleware pipeline (spec.md §4.1.3).
// MaxStepsMiddleware is always appended by NewMiddlewarePipeline.
func (p *Processor) SetMiddleware(mw ...Middleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.middleware = NewMiddlewarePipeline(mw...)
}

// getOrCreateState returns the sessionState for sessionID, creating one
// (with its permit semaphore) on first use. Must be called with p.mu held.
func (p *Processor) getOrCreateState(sessionID string) *sessionState {
	state, ok := p.sessions[sessionID]
	if !ok {
		state = &sessionState{
			permit: make(chan struct{}, 1),
		}
		state.permit <- struct{}{}
		p.sessions[sessionID] = state
	}
	return state
}

// Process handles a new user message and generates an assistant response.
// This is the main entry point for the agentic loop, implementing S0
// (Accept) and S1 (Acquire permit) of spec.md §4.1.2: if a cancel was
// requested the flag is consulted but the prompt is never rejected,
// only serialized behind the execution permit.
func (p *Processor) Process(ctx context.Context, sessionID string, agent *Agent, callback ProcessCallback) error {
	p.mu.Lock()
	state := p.getOrCreateState(sessionID)
	p.mu.Unlock()

	// S1: try-acquire the permit; on contention emit SessionQueued and
	// wait up to ExecutionTimeout.
	select {
	case <-state.permit:
		// acquired immediately
	default:
		event.Publish(event.Event{
			Type: event.SessionQueued,
			Data: event.SessionQueuedData{SessionID: sessionID},
		})
		timer := time.NewTimer(ExecutionTimeout)
		defer timer.Stop()
		select {
		case <-state.permit:
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("session execution timeout")
		}
	}
	_ = permitAcquireTimeout // documents the short try-acquire window above

	// S0: reset cancel flag, mark running.
	state.cancelFlag.Store(false)

	loopCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	state.ctx = loopCtx
	state.cancel = cancel
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		waiters := state.waiters
		state.waiters = nil
		p.mu.Unlock()

		// S7: release the permit and clear the running state, then
		// notify anything waiting on the old single-flight queue.
		state.permit <- struct{}{}
		for _, waiter := range waiters {
			waiter <- nil
		}
	}()

	return p.runTurn(loopCtx, sessionID, state, agent, callback)
}

// Abort cancels processing for a session: it sets the cancel flag (so the
// S5 loop and S0 acceptance logic observe it) and cancels the turn's
// context (so blocking provider/tool calls unwind immediately rather than
// waiting for the next cooperative check point).
func (p *Processor) Abort(sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not processing: %s", sessionID)
	}

	state.cancelFlag.Store(true)
	if state.cancel != nil {
		state.cancel()
	}
	return nil
}

// IsProcessing returns whether a session is currently processing.
func (p *Processor) IsProcessing(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.sessions[sessionID]
	if !ok {
		return false
	}
	select {
	case <-state.permit:
		// Nobody held it; put it back and report idle.
		state.permit <- struct{}{}
		return false
	default:
		return true
	}
}

// GetActiveState returns the current state for a processing session.
func (p *Processor) GetActiveState(sessionID string) (*types.Message, []types.Part, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.sessions[sessionID]
	if !ok {
		return nil, nil, false
	}

	return state.message, state.parts, true
}
