package provider

// GrammarPolicy describes how sampling should be constrained when a chat
// template has produced a grammar for structured (tool-call) output.
//
// Grounded on original_source/crates/providers/llama-cpp/src/lib.rs's
// build_tool_sampler: once a grammar is attached, the sampler chain is
// collapsed to just [grammar, greedy] — temperature/top_p/top_k sampling on
// top of grammar constraints there corrupts the grammar's internal state
// and can trip assertions in the underlying grammar engine. The same
// reasoning applies here at the request level: once a provider has
// selected grammar-constrained decoding for a turn, any stochastic
// sampling parameters on that request are overridden to their
// deterministic equivalents instead of being layered on top.
type GrammarPolicy struct {
	// Grammar is non-empty when this turn's chat template produced a
	// structured-output grammar (tool schema, JSON schema) that the
	// provider should decode against instead of free-form sampling.
	Grammar string

	// Lazy mirrors llama.cpp's grammar_lazy: the grammar only engages
	// once a trigger token/pattern is observed, rather than constraining
	// the very first token.
	Lazy bool

	// Triggers are the lazy-grammar trigger strings (e.g. a tool-call
	// opening delimiter) that switch decoding from free-form to
	// grammar-constrained.
	Triggers []string
}

// Active reports whether this turn should use grammar-constrained decoding.
func (g *GrammarPolicy) Active() bool {
	return g != nil && g.Grammar != ""
}

// ApplyToRequest collapses a completion request's sampling parameters to
// the grammar+greedy equivalent when the policy is active: Temperature and
// TopP are zeroed, matching build_tool_sampler's "grammar + greedy only —
// no temp/top_p/top_k" chain. A request with no active grammar is returned
// unmodified.
func (g *GrammarPolicy) ApplyToRequest(req *CompletionRequest) {
	if !g.Active() {
		return
	}
	req.Temperature = 0
	req.TopP = 0
}

// ClampContextTokens mirrors the llama.cpp provider's n_ctx derivation:
// min(max(needed, configured), modelTrained), where needed is the prompt
// plus the requested completion. A configuredContext of 0 means "not
// pinned", so the context is sized to exactly cover what is needed; a
// modelTrainedContext of 0 means the trained length is unknown and no cap
// is applied.
func ClampContextTokens(promptTokens, maxTokens, configuredContext, modelTrainedContext int) int {
	needed := promptTokens + maxTokens
	if configuredContext > needed {
		needed = configuredContext
	}
	if modelTrainedContext > 0 && needed > modelTrainedContext {
		return modelTrainedContext
	}
	return needed
}
