package provider

import "testing"

func TestGrammarPolicy_Active(t *testing.T) {
	var nilPolicy *GrammarPolicy
	if nilPolicy.Active() {
		t.Error("nil policy should not be active")
	}

	empty := &GrammarPolicy{}
	if empty.Active() {
		t.Error("policy with no grammar should not be active")
	}

	active := &GrammarPolicy{Grammar: "root ::= tool-call"}
	if !active.Active() {
		t.Error("policy with a grammar should be active")
	}
}

func TestGrammarPolicy_ApplyToRequest(t *testing.T) {
	req := &CompletionRequest{Temperature: 0.7, TopP: 0.9}

	inactive := &GrammarPolicy{}
	inactive.ApplyToRequest(req)
	if req.Temperature != 0.7 || req.TopP != 0.9 {
		t.Error("inactive policy should not modify the request")
	}

	active := &GrammarPolicy{Grammar: "root ::= tool-call"}
	active.ApplyToRequest(req)
	if req.Temperature != 0 || req.TopP != 0 {
		t.Errorf("active policy should zero Temperature/TopP, got %v/%v", req.Temperature, req.TopP)
	}
}

func TestClampContextTokens(t *testing.T) {
	tests := []struct {
		name                string
		promptTokens        int
		maxTokens           int
		configuredContext   int
		modelTrainedContext int
		want                int
	}{
		{"configured context wins", 100, 50, 4096, 8192, 4096},
		{"derived under trained cap", 100, 50, 0, 8192, 150},
		{"derived clamped to trained cap", 7000, 2000, 0, 8192, 8192},
		{"no trained cap known", 100, 50, 0, 0, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClampContextTokens(tt.promptTokens, tt.maxTokens, tt.configuredContext, tt.modelTrainedContext)
			if got != tt.want {
				t.Errorf("ClampContextTokens() = %d, want %d", got, tt.want)
			}
		})
	}
}
