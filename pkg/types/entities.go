package types

// LLMConfig identifies a (provider, model, params) triple shared across
// sessions by upsert-by-identity (spec.md §3.2, §4.3.3).
type LLMConfig struct {
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Params   map[string]any `json:"params"`
}

// TaskStatus is the lifecycle of a Task annotation.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Task is an optional structured annotation attached to a session
// (spec.md §3.2). Status transitions are monotonic:
// pending -> in_progress -> {completed, cancelled}.
type Task struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionID"`
	Title     string     `json:"title"`
	Status    TaskStatus `json:"status"`
	CreatedAt int64      `json:"createdAt"`
	UpdatedAt int64      `json:"updatedAt"`
}

// CanTransitionTo reports whether a Task may move from its current status
// to the given next status under the monotonic lifecycle.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskPending:
		return next == TaskInProgress || next == TaskCancelled
	case TaskInProgress:
		return next == TaskCompleted || next == TaskCancelled
	default:
		return false
	}
}

// AlternativeStatus is the lifecycle of an Alternative annotation.
type AlternativeStatus string

const (
	AlternativeProposed AlternativeStatus = "proposed"
	AlternativeRejected AlternativeStatus = "rejected"
	AlternativeChosen   AlternativeStatus = "chosen"
)

// Decision records a choice point surfaced by the agent.
type Decision struct {
	ID                   string `json:"id"`
	SessionID            string `json:"sessionID"`
	TaskID               string `json:"taskID,omitempty"`
	Question             string `json:"question"`
	ChosenAlternativeID  string `json:"chosenAlternativeID,omitempty"`
	CreatedAt            int64  `json:"createdAt"`
}

// Alternative is one option considered for a Decision.
type Alternative struct {
	ID        string            `json:"id"`
	DecisionID string           `json:"decisionID"`
	Label     string            `json:"label"`
	Rationale string            `json:"rationale,omitempty"`
	Status    AlternativeStatus `json:"status"`
}

// ArtifactKind enumerates the kinds of artifacts a session can produce.
type ArtifactKind string

const (
	ArtifactFile     ArtifactKind = "file"
	ArtifactPatch    ArtifactKind = "patch"
	ArtifactDocument ArtifactKind = "document"
	ArtifactLink     ArtifactKind = "link"
)

// Artifact is a produced output referenced from a session.
type Artifact struct {
	ID         string       `json:"id"`
	SessionID  string       `json:"sessionID"`
	TaskID     string       `json:"taskID,omitempty"`
	Kind       ArtifactKind `json:"kind"`
	URIOrPath  string       `json:"uriOrPath"`
	CreatedAt  int64        `json:"createdAt"`
}

// ProgressKind enumerates the kinds of progress entries.
type ProgressKind string

const (
	ProgressNote      ProgressKind = "note"
	ProgressMilestone ProgressKind = "milestone"
	ProgressBlocker   ProgressKind = "blocker"
)

// ProgressEntry is an append-only progress note attached to a session/task.
type ProgressEntry struct {
	ID        string       `json:"id"`
	SessionID string       `json:"sessionID"`
	TaskID    string       `json:"taskID,omitempty"`
	Kind      ProgressKind `json:"kind"`
	Body      string       `json:"body"`
	CreatedAt int64        `json:"createdAt"`
}

// IntentSnapshot is a point-in-time summary of what the session is trying
// to accomplish, refreshed at S3 of the turn state machine (spec.md §4.1.2).
type IntentSnapshot struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	Summary   string `json:"summary"`
	CreatedAt int64  `json:"createdAt"`
}

// DelegationStatus is the lifecycle of a Delegation (spec.md §3.2).
type DelegationStatus string

const (
	DelegationRequested DelegationStatus = "requested"
	DelegationRunning   DelegationStatus = "running"
	DelegationComplete  DelegationStatus = "complete"
	DelegationFailed    DelegationStatus = "failed"
	DelegationCancelled DelegationStatus = "cancelled"
)

// CanTransitionTo enforces Requested -> Running -> {Complete,Failed,Cancelled}.
func (s DelegationStatus) CanTransitionTo(next DelegationStatus) bool {
	switch s {
	case DelegationRequested:
		return next == DelegationRunning || next == DelegationCancelled
	case DelegationRunning:
		return next == DelegationComplete || next == DelegationFailed || next == DelegationCancelled
	default:
		return false
	}
}

// Delegation represents a parent session instructing another agent to run
// in a child session (spec.md §3.2, §4.4).
type Delegation struct {
	ID                string           `json:"id"`
	SessionID         string           `json:"sessionID"` // parent
	TaskID            string           `json:"taskID,omitempty"`
	TargetAgentID     string           `json:"targetAgentID"`
	Objective         string           `json:"objective"`
	ObjectiveHash     string           `json:"objectiveHash"`
	Context           string           `json:"context,omitempty"`
	Constraints       string           `json:"constraints,omitempty"`
	ExpectedOutput    string           `json:"expectedOutput,omitempty"`
	VerificationSpec  string           `json:"verificationSpec,omitempty"`
	PlanningSummary   string           `json:"planningSummary,omitempty"`
	Status            DelegationStatus `json:"status"`
	RetryCount        int              `json:"retryCount"`
	ChildSessionID    string           `json:"childSessionID,omitempty"`
	CreatedAt         int64            `json:"createdAt"`
	CompletedAt       *int64           `json:"completedAt,omitempty"`
}

// RevertState marks that a session is currently in an undone state,
// eligible for redo. At most one exists per session (spec.md §3.2).
type RevertState struct {
	ID         string `json:"id"`
	SessionID  string `json:"sessionID"`
	MessageID  string `json:"messageID"`
	SnapshotID string `json:"snapshotID"`
	BackendID  string `json:"backendID"`
	CreatedAt  int64  `json:"createdAt"`
}

// SessionEvent is an append-only audit record captured by the event bus
// and persisted for replay (spec.md §3.2).
type SessionEvent struct {
	Seq       int64          `json:"seq"`
	SessionID string         `json:"sessionID"`
	Kind      string         `json:"kind"`
	CreatedAt int64          `json:"createdAt"`
	Data      map[string]any `json:"data,omitempty"`
}
