package types

// Message represents either a User or Assistant message in a conversation
// (spec.md §3.2). Messages within a session are totally ordered by
// (created_at, internal_id); ParentMessageID, when set, must reference a
// message in the same session whose created_at is <= this message's.
type Message struct {
	ID              string      `json:"id"`
	SessionID       string      `json:"sessionID"`
	Role            string      `json:"role"` // "user" | "assistant"
	ParentMessageID *string     `json:"parentMessageID,omitempty"`
	Time            MessageTime `json:"time"`

	// User-specific fields
	Agent  string          `json:"agent,omitempty"`
	Model  *ModelRef       `json:"model,omitempty"`
	System *string         `json:"system,omitempty"`
	Tools  map[string]bool `json:"tools,omitempty"`

	// Assistant-specific fields
	ModelID    string        `json:"modelID,omitempty"`
	ProviderID string        `json:"providerID,omitempty"`
	Mode       string        `json:"mode,omitempty"`
	Finish     *string       `json:"finish,omitempty"`
	Cost       float64       `json:"cost,omitempty"`
	Tokens     *TokenUsage   `json:"tokens,omitempty"`
	Error      *MessageError `json:"error,omitempty"`

	// IsSummary marks an assistant message as a compaction summary
	// (spec.md §4.1.5 compact_messages).
	IsSummary bool `json:"isSummary,omitempty"`

	// Path records the working directory a message was produced in,
	// relevant for subagent/delegation child sessions with a different cwd.
	Path *MessagePath `json:"path,omitempty"`
}

// MessagePath records the cwd/root a message was generated in.
type MessagePath struct {
	Cwd  string `json:"cwd"`
	Root string `json:"root"`
}

// MessageTime contains timestamps for a message.
type MessageTime struct {
	Created int64  `json:"created"`
	Updated *int64 `json:"updated,omitempty"`
}

// ModelRef references a specific model from a provider.
type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

// TokenUsage contains token usage statistics for a message.
type TokenUsage struct {
	Input     int        `json:"input"`
	Output    int        `json:"output"`
	Reasoning int        `json:"reasoning,omitempty"`
	Cache     CacheUsage `json:"cache,omitempty"`
}

// CacheUsage contains cache hit/write statistics.
type CacheUsage struct {
	Read  int `json:"read"`
	Write int `json:"write"`
}

// MessageError represents an error that occurred during message processing.
type MessageError struct {
	Type    string `json:"type"` // "api" | "auth" | "output_length"
	Message string `json:"message"`
}
