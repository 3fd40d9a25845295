package session

import (
	"context"
	"fmt"

	"github.com/agentrt/agentrt/internal/event"
	"github.com/agentrt/agentrt/pkg/types"
)

// Actor is the goroutine-per-session command processor described in
// spec.md §4.2 / §4.1, grounded on
// original_source/crates/agent/src/agent/session_actor.rs's kameo actor:
// every mutation to a session's in-memory state (mode, tool policy,
// pinned LLM config, cancellation) is serialized through a single command
// channel so the Processor's per-session permit/cancel-flag state is never
// touched from two goroutines at once.
type Actor struct {
	sessionID string
	processor *Processor
	service   *Service
	agent     *Agent

	cmds chan actorCmd
	done chan struct{}
}

type actorCmd struct {
	run func(ctx context.Context)
}

// NewActor starts a session actor and returns a handle to it. Call
// Shutdown to stop its goroutine.
func NewActor(sessionID string, processor *Processor, service *Service, agent *Agent) *Actor {
	if agent == nil {
		agent = DefaultAgent()
	}
	a := &Actor{
		sessionID: sessionID,
		processor: processor,
		service:   service,
		agent:     agent,
		cmds:      make(chan actorCmd, 16),
		done:      make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Actor) run() {
	ctx := context.Background()
	for {
		select {
		case cmd := <-a.cmds:
			cmd.run(ctx)
		case <-a.done:
			return
		}
	}
}

// submit enqueues a unit of work and blocks until it has run, matching the
// actor's request/reply semantics (spec.md §4.2: "Local(actor handle)").
func (a *Actor) submit(fn func(ctx context.Context)) {
	done := make(chan struct{})
	a.cmds <- actorCmd{run: func(ctx context.Context) {
		defer close(done)
		fn(ctx)
	}}
	<-done
}

// Prompt is the detached-task entry point (spec.md §4.1.2 S0): it hands
// off to Processor.Process, which itself spawns the actual turn so the
// actor's command loop stays responsive to Cancel/SetMode/etc. while a
// turn is running.
func (a *Actor) Prompt(ctx context.Context, callback ProcessCallback) error {
	return a.processor.Process(ctx, a.sessionID, a.agent, callback)
}

// Cancel requests cancellation of any in-flight turn (spec.md §4.1.2 S0).
func (a *Actor) Cancel() error {
	return a.processor.Abort(a.sessionID)
}

// SetMode changes the session's agent mode (e.g. "build", "plan").
func (a *Actor) SetMode(mode string) {
	a.submit(func(ctx context.Context) {
		p := a.processor
		p.mu.Lock()
		state := p.getOrCreateState(a.sessionID)
		state.mode = mode
		p.mu.Unlock()
	})
}

// GetMode returns the session's current agent mode.
func (a *Actor) GetMode() string {
	var mode string
	a.submit(func(ctx context.Context) {
		p := a.processor
		p.mu.Lock()
		state := p.getOrCreateState(a.sessionID)
		mode = state.mode
		p.mu.Unlock()
	})
	return mode
}

// SetProvider pins a provider/model pair as the session's LLM config
// (spec.md §4.1.1 SessionHandle turn-pinned config).
func (a *Actor) SetProvider(ctx context.Context, providerID, modelID string) error {
	if _, err := a.processor.providerRegistry.Get(providerID); err != nil {
		return fmt.Errorf("unknown provider: %s", providerID)
	}
	return a.setLLMConfig(ctx, providerID, modelID, nil)
}

// SetLlmConfig pins an LLM config with explicit params.
func (a *Actor) SetLlmConfig(ctx context.Context, providerID, modelID string, params map[string]any) error {
	return a.setLLMConfig(ctx, providerID, modelID, params)
}

// SetSessionModel re-pins only the model, keeping the session's current
// provider when modelID has no "provider/model" form.
func (a *Actor) SetSessionModel(ctx context.Context, modelRef string) error {
	providerID, modelID := splitModelRef(modelRef)
	if providerID == "" {
		cur, err := a.processor.storage.GetSessionLLMConfig(ctx, a.sessionID)
		if err != nil {
			return err
		}
		providerID = "anthropic"
		if cur != nil {
			providerID = cur.Provider
		}
	}
	return a.setLLMConfig(ctx, providerID, modelID, nil)
}

func splitModelRef(ref string) (provider, model string) {
	for i := 0; i < len(ref); i++ {
		if ref[i] == '/' {
			return ref[:i], ref[i+1:]
		}
	}
	return "", ref
}

func (a *Actor) setLLMConfig(ctx context.Context, providerID, modelID string, params map[string]any) error {
	cfg, err := a.processor.storage.CreateOrGetLLMConfig(ctx, types.LLMConfig{
		Provider: providerID,
		Model:    modelID,
		Params:   params,
	})
	if err != nil {
		return err
	}
	if err := a.processor.storage.SetSessionLLMConfig(ctx, a.sessionID, cfg.ID); err != nil {
		return err
	}
	if sess, err := a.processor.findSession(ctx, a.sessionID); err == nil {
		sess.LLMConfigID = cfg.ID
		event.Publish(event.Event{Type: event.SessionUpdated, Data: event.SessionUpdatedData{Info: sess}})
	}
	return nil
}

// GetLlmConfig returns the session's pinned LLM config, if any.
func (a *Actor) GetLlmConfig(ctx context.Context) (*types.LLMConfig, error) {
	return a.processor.storage.GetSessionLLMConfig(ctx, a.sessionID)
}

// SetToolPolicy/SetAllowedTools/etc. mutate the session's tool selection
// (spec.md §4.1.4).
func (a *Actor) SetToolPolicy(policy ToolPolicy) {
	a.submit(func(ctx context.Context) {
		p := a.processor
		p.mu.Lock()
		state := p.getOrCreateState(a.sessionID)
		state.toolConfig.Policy = policy
		p.mu.Unlock()
	})
}

func (a *Actor) SetAllowedTools(tools []string) {
	a.submit(func(ctx context.Context) {
		p := a.processor
		p.mu.Lock()
		state := p.getOrCreateState(a.sessionID)
		allow := make(map[string]bool, len(tools))
		for _, t := range tools {
			allow[t] = true
		}
		state.toolConfig.Allowlist = allow
		p.mu.Unlock()
	})
}

func (a *Actor) ClearAllowedTools() {
	a.submit(func(ctx context.Context) {
		p := a.processor
		p.mu.Lock()
		state := p.getOrCreateState(a.sessionID)
		state.toolConfig.Allowlist = nil
		p.mu.Unlock()
	})
}

func (a *Actor) SetDeniedTools(tools []string) {
	a.submit(func(ctx context.Context) {
		p := a.processor
		p.mu.Lock()
		state := p.getOrCreateState(a.sessionID)
		deny := make(map[string]bool, len(tools))
		for _, t := range tools {
			deny[t] = true
		}
		state.toolConfig.Denylist = deny
		p.mu.Unlock()
	})
}

func (a *Actor) ClearDeniedTools() {
	a.submit(func(ctx context.Context) {
		p := a.processor
		p.mu.Lock()
		state := p.getOrCreateState(a.sessionID)
		state.toolConfig.Denylist = nil
		p.mu.Unlock()
	})
}

// Undo/Redo delegate to the Processor's snapshot-backed implementation
// (spec.md §4.1.7).
func (a *Actor) Undo(ctx context.Context, messageID string) error {
	return a.processor.Undo(ctx, a.sessionID, messageID)
}

func (a *Actor) Redo(ctx context.Context) error {
	return a.processor.Redo(ctx, a.sessionID)
}

// SessionLimits reports the current configuration ceilings a client can
// display alongside a session (spec.md §4.1).
type SessionLimits struct {
	MaxSteps         int
	MaxContextTokens int
	ExecutionTimeout string
}

// GetSessionLimits returns the fixed ceilings the session operates under.
func (a *Actor) GetSessionLimits() SessionLimits {
	maxSteps := a.agent.MaxSteps
	if maxSteps <= 0 {
		maxSteps = MaxSteps
	}
	return SessionLimits{
		MaxSteps:         maxSteps,
		MaxContextTokens: MaxContextTokens,
		ExecutionTimeout: ExecutionTimeout.String(),
	}
}

// Shutdown stops the actor's command loop. The underlying session and its
// storage rows are untouched; only the in-process actor goroutine exits.
func (a *Actor) Shutdown() {
	close(a.done)
}
