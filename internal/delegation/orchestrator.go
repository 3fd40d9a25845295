// Package delegation drives agent-to-agent task handoff (spec.md §4.4),
// grounded on original_source/crates/agent/src/delegation/core.rs's
// DelegationOrchestrator: it subscribes to delegation.requested events,
// bounds parallel delegations with a weighted semaphore, spawns a child
// session for the target agent, runs the objective through it, and
// records the outcome back onto the Delegation row.
//
// Not ported from the Rust original: the routing-snapshot/mesh-peer
// provider selection and the verification-spec pipeline are separate,
// larger subsystems (crate::agent::remote::routing,
// crate::verification::service) with no other caller in this codebase;
// wiring them here without the rest of that machinery would just be
// dead code, so delegated sessions always run locally and completion is
// judged by whether the turn produced a final assistant message.
package delegation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/agentrt/agentrt/internal/event"
	"github.com/agentrt/agentrt/internal/session"
	"github.com/agentrt/agentrt/internal/storage"
	"github.com/agentrt/agentrt/pkg/types"
)

// Config mirrors DelegationOrchestratorConfig.
type Config struct {
	MaxParallel   int64
	WaitTimeout   time.Duration
	CancelGrace   time.Duration
	InjectResults bool
}

// DefaultConfig matches the Rust original's defaults: 5 parallel
// delegations, a 120s wait timeout, a 5s grace period before a cancelled
// delegation is force-aborted.
func DefaultConfig() Config {
	return Config{
		MaxParallel: 5,
		WaitTimeout: 120 * time.Second,
		CancelGrace: 5 * time.Second,
	}
}

type activeDelegation struct {
	parentSessionID string
	cancel          context.CancelFunc
	done            chan struct{}
}

// Orchestrator is the event-driven delegation runner.
type Orchestrator struct {
	registry *session.Registry
	storage  *storage.Storage
	config   Config
	sem      *semaphore.Weighted

	mu     sync.Mutex
	active map[string]*activeDelegation

	unsubscribe       func()
	unsubscribeCancel func()
}

// NewOrchestrator builds an orchestrator bound to registry for spawning
// delegate sessions and store for persisting delegation status.
func NewOrchestrator(registry *session.Registry, store *storage.Storage, config Config) *Orchestrator {
	if config.MaxParallel <= 0 {
		config.MaxParallel = 5
	}
	return &Orchestrator{
		registry: registry,
		storage:  store,
		config:   config,
		sem:      semaphore.NewWeighted(config.MaxParallel),
		active:   make(map[string]*activeDelegation),
	}
}

// Start subscribes to the event bus (spec.md §4.4's
// "subscribes to DelegationRequested{delegation}"). Call Stop to
// unsubscribe.
func (o *Orchestrator) Start() {
	o.unsubscribe = event.Subscribe(event.DelegationRequested, func(e event.Event) {
		data, ok := e.Data.(event.DelegationRequestedData)
		if !ok {
			return
		}
		go o.handleRequested(data.Delegation)
	})
	o.unsubscribeCancel = event.Subscribe(event.DelegationCancelRequested, func(e event.Event) {
		data, ok := e.Data.(event.DelegationCancelRequestedData)
		if !ok {
			return
		}
		o.handleCancelRequested(data.DelegationID)
	})
}

// Stop unsubscribes from the event bus.
func (o *Orchestrator) Stop() {
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
	if o.unsubscribeCancel != nil {
		o.unsubscribeCancel()
	}
}

func (o *Orchestrator) handleRequested(d types.Delegation) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	o.mu.Lock()
	o.active[d.ID] = &activeDelegation{parentSessionID: d.SessionID, cancel: cancel, done: done}
	o.mu.Unlock()

	defer func() {
		close(done)
		o.mu.Lock()
		delete(o.active, d.ID)
		o.mu.Unlock()
	}()

	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.fail(ctx, d, "delegation queue closed before execution could start")
		return
	}
	defer o.sem.Release(1)

	o.execute(ctx, d)
}

// handleCancelRequested cancels an in-flight delegation's context and
// waits up to CancelGrace before giving up (spec.md §4.4). Unlike the
// Rust original's force-abort-the-task-handle path, Go offers no hard
// task abort; cancellation here relies on the delegated turn observing
// ctx.Done() at its next cooperative checkpoint, same as session
// Abort (internal/session.Processor.Abort).
func (o *Orchestrator) handleCancelRequested(delegationID string) {
	o.mu.Lock()
	entry, ok := o.active[delegationID]
	o.mu.Unlock()
	if !ok {
		return
	}
	entry.cancel()
	select {
	case <-entry.done:
	case <-time.After(o.config.CancelGrace):
	}
}

func (o *Orchestrator) execute(ctx context.Context, d types.Delegation) {
	if err := o.storage.UpdateDelegationStatus(ctx, d.ID, types.DelegationRunning); err != nil {
		o.fail(ctx, d, fmt.Sprintf("failed to mark delegation running: %v", err))
		return
	}

	parent, err := o.registry.LoadSession(ctx, d.SessionID)
	cwd := ""
	if err == nil {
		cwd = parent.Directory
	}

	child, err := o.registry.NewSession(ctx, cwd, "delegation: "+d.TargetAgentID)
	if err != nil {
		o.fail(ctx, d, fmt.Sprintf("failed to create delegation session: %v", err))
		return
	}

	d.ChildSessionID = child.ID
	_ = o.storage.UpdateDelegation(ctx, d)

	ref, ok := o.registry.Get(child.ID)
	if !ok || ref.Local == nil {
		o.fail(ctx, d, "delegation session actor failed to spawn")
		return
	}
	ref.Local.SetMode("build")

	prompt := buildObjectivePrompt(d)
	userMsg := types.Message{
		ID:        storage.NewPublicID(),
		SessionID: child.ID,
		Role:      "user",
		Time:      types.MessageTime{Created: time.Now().UnixMilli()},
	}
	userPart := &types.TextPart{
		ID: storage.NewPublicID(), SessionID: child.ID, MessageID: userMsg.ID,
		Type: "text", Text: prompt,
	}
	if err := o.storage.AddMessage(ctx, child.ID, userMsg, []types.Part{userPart}); err != nil {
		o.fail(ctx, d, fmt.Sprintf("failed to store delegation objective: %v", err))
		return
	}

	var finalText string
	var turnErr error
	waitCtx := ctx
	var waitCancel context.CancelFunc
	if o.config.WaitTimeout > 0 {
		waitCtx, waitCancel = context.WithTimeout(ctx, o.config.WaitTimeout)
		defer waitCancel()
	}
	turnErr = ref.Local.Prompt(waitCtx, func(msg *types.Message, parts []types.Part) {
		for _, p := range parts {
			if tp, ok := p.(*types.TextPart); ok {
				finalText = tp.Text
			}
		}
	})

	if turnErr != nil {
		o.fail(ctx, d, turnErr.Error())
		return
	}

	d.PlanningSummary = finalText
	_ = o.storage.UpdateDelegation(ctx, d)
	if err := o.storage.UpdateDelegationStatus(ctx, d.ID, types.DelegationComplete); err != nil {
		o.fail(ctx, d, fmt.Sprintf("delegation completed but status update failed: %v", err))
		return
	}

	event.Publish(event.Event{
		Type: event.DelegationCompleted,
		Data: event.DelegationCompletedData{
			DelegationID: d.ID,
			SessionID:    d.SessionID,
			Result:       finalText,
		},
	})

	if o.config.InjectResults {
		o.injectResultIntoParent(ctx, d, finalText)
	}
}

func (o *Orchestrator) injectResultIntoParent(ctx context.Context, d types.Delegation, result string) {
	msg := types.Message{
		ID: storage.NewPublicID(), SessionID: d.SessionID, Role: "assistant",
		Time: types.MessageTime{Created: time.Now().UnixMilli()},
	}
	part := &types.TextPart{
		ID: storage.NewPublicID(), SessionID: d.SessionID, MessageID: msg.ID,
		Type: "text", Text: fmt.Sprintf("[delegation %s to %s] %s", d.ID, d.TargetAgentID, result),
	}
	_ = o.storage.AddMessage(ctx, d.SessionID, msg, []types.Part{part})
}

func (o *Orchestrator) fail(ctx context.Context, d types.Delegation, reason string) {
	if err := o.storage.UpdateDelegationStatus(ctx, d.ID, types.DelegationFailed); err != nil {
		_ = err
	}
	event.Publish(event.Event{
		Type: event.DelegationCompleted,
		Data: event.DelegationCompletedData{
			DelegationID: d.ID,
			SessionID:    d.SessionID,
			Result:       "error: " + reason,
		},
	})
}

func buildObjectivePrompt(d types.Delegation) string {
	prompt := d.Objective
	if d.Context != "" {
		prompt += "\n\nContext:\n" + d.Context
	}
	if d.Constraints != "" {
		prompt += "\n\nConstraints:\n" + d.Constraints
	}
	return prompt
}
