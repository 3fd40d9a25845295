package session

import "context"

// MiddlewareAction is the verdict a middleware phase returns (spec.md
// §4.1.3).
type MiddlewareAction int

const (
	// Continue lets the turn proceed to the next step unmodified.
	Continue MiddlewareAction = iota
	// Stop ends the turn early with StopReason as the user-facing reason.
	Stop
	// Compact triggers context compaction before the turn continues.
	Compact
	// InjectMessage persists an extra user message before the turn
	// continues.
	InjectMessage
)

// MiddlewareResult is what a middleware phase returns.
type MiddlewareResult struct {
	Action     MiddlewareAction
	Reason     string
	Message    string
	StopReason string
}

func continueResult() MiddlewareResult { return MiddlewareResult{Action: Continue} }

// ConversationContext is the read-only view middleware receives; it must
// not be able to mutate persistent state (spec.md §4.1.3: "middleware is
// pure and side-effect-free with respect to storage").
type ConversationContext struct {
	SessionID        string
	HistoryLength    int
	Step             int
	MaxSteps         int
	ContextTokens    int
	CumulativeInput  int
	CumulativeOutput int
	Mode             string
}

// Middleware is one phase hook in the turn pipeline.
type Middleware interface {
	Name() string
	BeforeTurn(ctx context.Context, cc ConversationContext) MiddlewareResult
	AfterTurn(ctx context.Context, cc ConversationContext) MiddlewareResult
}

// baseMiddleware lets concrete middlewares implement only the phase they
// care about.
type baseMiddleware struct{}

func (baseMiddleware) BeforeTurn(ctx context.Context, cc ConversationContext) MiddlewareResult {
	return continueResult()
}

func (baseMiddleware) AfterTurn(ctx context.Context, cc ConversationContext) MiddlewareResult {
	return continueResult()
}

// MaxStepsMiddleware force-terminates a turn once it reaches the agent's
// step budget. It is always appended last so no other middleware can
// extend a turn past the budget (spec.md §4.1.3).
type MaxStepsMiddleware struct {
	baseMiddleware
}

func NewMaxStepsMiddleware() *MaxStepsMiddleware { return &MaxStepsMiddleware{} }

func (m *MaxStepsMiddleware) Name() string { return "max_steps" }

func (m *MaxStepsMiddleware) BeforeTurn(ctx context.Context, cc ConversationContext) MiddlewareResult {
	if cc.MaxSteps > 0 && cc.Step >= cc.MaxSteps {
		return MiddlewareResult{Action: Stop, StopReason: "max_steps", Reason: "maximum step count reached"}
	}
	return continueResult()
}

// PlanModeMiddleware injects a reminder that the agent is read-only while
// in plan mode (spec.md §4.1.3). Mode is read from ConversationContext
// (set by the actor via Processor.sessionState.mode), not captured at
// construction time, since one pipeline instance is shared across sessions.
type PlanModeMiddleware struct {
	baseMiddleware
}

func NewPlanModeMiddleware() *PlanModeMiddleware {
	return &PlanModeMiddleware{}
}

func (m *PlanModeMiddleware) Name() string { return "plan_mode" }

func (m *PlanModeMiddleware) BeforeTurn(ctx context.Context, cc ConversationContext) MiddlewareResult {
	if cc.Mode != "plan" {
		return continueResult()
	}
	if cc.Step != 0 {
		// Only remind once per turn, at the first step.
		return continueResult()
	}
	return MiddlewareResult{
		Action:  InjectMessage,
		Reason:  "plan mode active",
		Message: "Reminder: plan mode is active. Do not modify files or run mutating commands; propose a plan instead.",
	}
}

// CompactionMiddleware triggers compaction once the context grows past a
// token budget (spec.md §4.1.5 is invoked by whatever middleware returns
// Compact; this is the built-in policy that does so).
type CompactionMiddleware struct {
	baseMiddleware
	MaxContextTokens int
}

func NewCompactionMiddleware(maxContextTokens int) *CompactionMiddleware {
	return &CompactionMiddleware{MaxContextTokens: maxContextTokens}
}

func (m *CompactionMiddleware) Name() string { return "compaction" }

func (m *CompactionMiddleware) BeforeTurn(ctx context.Context, cc ConversationContext) MiddlewareResult {
	limit := m.MaxContextTokens
	if limit <= 0 {
		limit = MaxContextTokens
	}
	if cc.ContextTokens > limit {
		return MiddlewareResult{Action: Compact, Reason: "context token budget exceeded"}
	}
	return continueResult()
}

// MiddlewarePipeline runs a list of middlewares in order, short-circuiting
// on the first non-Continue result (spec.md §4.1.3). MaxStepsMiddleware is
// always appended last.
type MiddlewarePipeline struct {
	middlewares []Middleware
}

// NewMiddlewarePipeline builds a pipeline, appending MaxStepsMiddleware.
func NewMiddlewarePipeline(mw ...Middleware) *MiddlewarePipeline {
	mw = append(append([]Middleware{}, mw...), NewMaxStepsMiddleware())
	return &MiddlewarePipeline{middlewares: mw}
}

// RunBefore runs the before-turn phase of every middleware in order.
func (p *MiddlewarePipeline) RunBefore(ctx context.Context, cc ConversationContext) MiddlewareResult {
	for _, m := range p.middlewares {
		if r := m.BeforeTurn(ctx, cc); r.Action != Continue {
			return r
		}
	}
	return continueResult()
}

// RunAfter runs the after-turn phase of every middleware in order.
func (p *MiddlewarePipeline) RunAfter(ctx context.Context, cc ConversationContext) MiddlewareResult {
	for _, m := range p.middlewares {
		if r := m.AfterTurn(ctx, cc); r.Action != Continue {
			return r
		}
	}
	return continueResult()
}
