package delegation

import (
	"testing"
	"time"

	"github.com/agentrt/agentrt/pkg/types"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxParallel != 5 {
		t.Errorf("MaxParallel = %d, want 5", cfg.MaxParallel)
	}
	if cfg.WaitTimeout != 120*time.Second {
		t.Errorf("WaitTimeout = %v, want 120s", cfg.WaitTimeout)
	}
	if cfg.CancelGrace != 5*time.Second {
		t.Errorf("CancelGrace = %v, want 5s", cfg.CancelGrace)
	}
}

func TestNewOrchestrator_ZeroMaxParallelFallsBackToDefault(t *testing.T) {
	o := NewOrchestrator(nil, nil, Config{})
	if o.config.MaxParallel != 5 {
		t.Errorf("MaxParallel = %d, want fallback of 5 for a zero-value Config", o.config.MaxParallel)
	}
}

func TestNewOrchestrator_KeepsExplicitMaxParallel(t *testing.T) {
	o := NewOrchestrator(nil, nil, Config{MaxParallel: 2})
	if o.config.MaxParallel != 2 {
		t.Errorf("MaxParallel = %d, want 2", o.config.MaxParallel)
	}
}

func TestBuildObjectivePrompt(t *testing.T) {
	d := types.Delegation{Objective: "refactor the parser"}
	if got := buildObjectivePrompt(d); got != "refactor the parser" {
		t.Errorf("buildObjectivePrompt() = %q, want just the objective", got)
	}

	d = types.Delegation{
		Objective:   "refactor the parser",
		Context:     "see internal/parser",
		Constraints: "no new dependencies",
	}
	got := buildObjectivePrompt(d)
	want := "refactor the parser\n\nContext:\nsee internal/parser\n\nConstraints:\nno new dependencies"
	if got != want {
		t.Errorf("buildObjectivePrompt() = %q, want %q", got, want)
	}
}

func TestOrchestrator_HandleCancelRequested_UnknownDelegationIsNoop(t *testing.T) {
	o := NewOrchestrator(nil, nil, DefaultConfig())
	// Must return promptly without touching a nil registry/storage.
	o.handleCancelRequested("no-such-delegation")
}
