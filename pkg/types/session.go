// Package types provides the core data types for the agentrt server.
package types

// Session represents a conversation session with the LLM (spec.md §3.2).
//
// The public id (ID) is a UUIDv7 string, stable across forks and exports.
// It is the only identifier that ever crosses a package boundary; the
// storage layer maps it to a dense internal integer id for foreign keys
// and ordering (spec.md §3.1) and that mapping never escapes storage.
type Session struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"projectID"`
	Directory string         `json:"directory"`
	Name      string         `json:"name,omitempty"`
	Title     string         `json:"title"`
	Version   string         `json:"version"`
	Summary   SessionSummary `json:"summary"`
	Share     *SessionShare  `json:"share,omitempty"`
	Time      SessionTime    `json:"time"`
	Revert    *SessionRevert `json:"revert,omitempty"`

	// LLM configuration pinned for the lifetime of a turn (spec.md §4.1.2 S2).
	LLMConfigID string `json:"llmConfigID,omitempty"`

	// Fork lineage. Invariant: if ParentID is set, all four fork fields are
	// set consistently (spec.md §3.2).
	ParentID        *string `json:"parentID,omitempty"`
	ForkOrigin      string  `json:"forkOrigin,omitempty"`      // e.g. "manual", "delegation"
	ForkPointType   string  `json:"forkPointType,omitempty"`   // "message"
	ForkPointRef    string  `json:"forkPointRef,omitempty"`    // message public id, or delegation id
	ForkInstructions string `json:"forkInstructions,omitempty"`

	// Remote routing: which mesh peer owns this session's actor, if any.
	ProviderNodeID string `json:"providerNodeID,omitempty"`

	// Pointers into the session's annotation streams.
	CurrentIntentSnapshotID string `json:"currentIntentSnapshotID,omitempty"`
	ActiveTaskID            string `json:"activeTaskID,omitempty"`

	CustomPrompt *CustomPrompt `json:"customPrompt,omitempty"`
}

// HasConsistentForkState checks the invariant from spec.md §3.2: if
// ParentID is set, all four fork fields must be set.
func (s *Session) HasConsistentForkState() bool {
	if s.ParentID == nil {
		return s.ForkOrigin == "" && s.ForkPointType == "" && s.ForkPointRef == ""
	}
	return s.ForkOrigin != "" && s.ForkPointType != "" && s.ForkPointRef != ""
}

// SessionSummary contains statistics about code changes in a session.
type SessionSummary struct {
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
	Files     int        `json:"files"`
	Diffs     []FileDiff `json:"diffs,omitempty"`
}

// FileDiff represents a diff for a single file.
type FileDiff struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Before    string `json:"before,omitempty"`
	After     string `json:"after,omitempty"`
}

// TodoInfo is a single structured task-list entry tracked by the
// todowrite/todoread tools.
type TodoInfo struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Status   string `json:"status"`   // "pending" | "in_progress" | "completed"
	Priority string `json:"priority"` // "high" | "medium" | "low"
}

// SessionTime contains timestamps for a session.
type SessionTime struct {
	Created    int64  `json:"created"`
	Updated    int64  `json:"updated"`
	Compacting *int64 `json:"compacting,omitempty"`
}

// SessionShare contains sharing information for a session.
type SessionShare struct {
	URL string `json:"url"`
}

// SessionRevert contains information about session revert state.
type SessionRevert struct {
	MessageID string  `json:"messageID"`
	PartID    *string `json:"partID,omitempty"`
	Snapshot  *string `json:"snapshot,omitempty"`
	Diff      *string `json:"diff,omitempty"`
}

// CustomPrompt represents a custom system prompt configuration.
type CustomPrompt struct {
	Type      string            `json:"type"` // "file" | "inline"
	Value     string            `json:"value"`
	LoadedAt  *int64            `json:"loadedAt,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}
