package types

import "encoding/json"

// Part represents a component of an assistant message.
// SDK compatible: all parts must have sessionID and messageID fields.
type Part interface {
	PartType() string
	PartID() string
	PartSessionID() string
	PartMessageID() string
}

// PartTime contains timing information for a message part.
type PartTime struct {
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

// TextPart represents a text content part.
// SDK compatible: includes sessionID and messageID fields.
type TextPart struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionID"` // SDK compatible
	MessageID string         `json:"messageID"` // SDK compatible
	Type      string         `json:"type"`      // always "text"
	Text      string         `json:"text"`
	Time      PartTime       `json:"time,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (p *TextPart) PartType() string      { return "text" }
func (p *TextPart) PartID() string        { return p.ID }
func (p *TextPart) PartSessionID() string { return p.SessionID }
func (p *TextPart) PartMessageID() string { return p.MessageID }

// ReasoningPart represents extended thinking/reasoning content.
// SDK compatible: includes sessionID and messageID fields.
type ReasoningPart struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionID"` // SDK compatible
	MessageID string   `json:"messageID"` // SDK compatible
	Type      string   `json:"type"`      // always "reasoning"
	Text      string   `json:"text"`
	Time      PartTime `json:"time,omitempty"`
}

func (p *ReasoningPart) PartType() string      { return "reasoning" }
func (p *ReasoningPart) PartID() string        { return p.ID }
func (p *ReasoningPart) PartSessionID() string { return p.SessionID }
func (p *ReasoningPart) PartMessageID() string { return p.MessageID }

// ToolPart represents a tool call and its result.
// SDK compatible: includes sessionID and messageID fields.
type ToolPart struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"sessionID"` // SDK compatible
	MessageID  string         `json:"messageID"` // SDK compatible
	Type       string         `json:"type"`      // always "tool"
	ToolCallID string         `json:"toolCallID"`
	ToolName   string         `json:"toolName"`
	Input      map[string]any `json:"input"`
	State      string         `json:"state"` // "pending" | "running" | "completed" | "error"
	Output     *string        `json:"output,omitempty"`
	Error      *string        `json:"error,omitempty"`
	Title      *string        `json:"title,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Time       PartTime       `json:"time,omitempty"`
}

func (p *ToolPart) PartType() string      { return "tool" }
func (p *ToolPart) PartID() string        { return p.ID }
func (p *ToolPart) PartSessionID() string { return p.SessionID }
func (p *ToolPart) PartMessageID() string { return p.MessageID }

// FilePart represents a file attachment.
// SDK compatible: includes sessionID and messageID fields.
type FilePart struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"` // SDK compatible
	MessageID string `json:"messageID"` // SDK compatible
	Type      string `json:"type"`      // always "file"
	Filename  string `json:"filename"`
	MediaType string `json:"mediaType"`
	URL       string `json:"url"`
}

func (p *FilePart) PartType() string      { return "file" }
func (p *FilePart) PartID() string        { return p.ID }
func (p *FilePart) PartSessionID() string { return p.SessionID }
func (p *FilePart) PartMessageID() string { return p.MessageID }

// SnapshotPart records a workspace snapshot taken around a mutating tool call.
type SnapshotPart struct {
	ID         string   `json:"id"`
	SessionID  string   `json:"sessionID"`
	MessageID  string   `json:"messageID"`
	Type       string   `json:"type"` // always "snapshot"
	SnapshotID string   `json:"snapshotID"`
	Paths      []string `json:"paths,omitempty"`
	Time       PartTime `json:"time,omitempty"`
}

func (p *SnapshotPart) PartType() string      { return "snapshot" }
func (p *SnapshotPart) PartID() string        { return p.ID }
func (p *SnapshotPart) PartSessionID() string { return p.SessionID }
func (p *SnapshotPart) PartMessageID() string { return p.MessageID }

// PromptPart carries the original content blocks of a user prompt verbatim
// (spec.md §4.1.2 S3, §6.2).
type PromptPart struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionID"`
	MessageID string          `json:"messageID"`
	Type      string          `json:"type"` // always "prompt"
	Blocks    []PromptBlock   `json:"blocks"`
	Display   string          `json:"display"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	Time      PartTime        `json:"time,omitempty"`
}

func (p *PromptPart) PartType() string      { return "prompt" }
func (p *PromptPart) PartID() string        { return p.ID }
func (p *PromptPart) PartSessionID() string { return p.SessionID }
func (p *PromptPart) PartMessageID() string { return p.MessageID }

// PromptBlock is one content block of a prompt (spec.md §6.2).
type PromptBlock struct {
	Kind        string `json:"kind"` // "text" | "resource_link" | "resource" | "image" | "audio"
	Text        string `json:"text,omitempty"`
	Name        string `json:"name,omitempty"`
	URI         string `json:"uri,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	Data        string `json:"data,omitempty"`       // base64 for Image/Audio/Blob
	ContentText string `json:"contentText,omitempty"` // TextResourceContents
}

// CompactionPart records a compaction summary (spec.md §4.1.5).
type CompactionPart struct {
	ID                 string   `json:"id"`
	SessionID           string   `json:"sessionID"`
	MessageID           string   `json:"messageID"`
	Type                string   `json:"type"` // always "compaction"
	Summary             string   `json:"summary"`
	OriginalTokenCount  int      `json:"originalTokenCount"`
	Time                PartTime `json:"time,omitempty"`
}

func (p *CompactionPart) PartType() string      { return "compaction" }
func (p *CompactionPart) PartID() string        { return p.ID }
func (p *CompactionPart) PartSessionID() string { return p.SessionID }
func (p *CompactionPart) PartMessageID() string { return p.MessageID }

// TurnSnapshotStartPart is a bookkeeping marker written before a turn's tool
// calls run, recording the pre-turn snapshot id (spec.md §4.1.2 S4).
type TurnSnapshotStartPart struct {
	ID         string   `json:"id"`
	SessionID  string   `json:"sessionID"`
	MessageID  string   `json:"messageID"`
	Type       string   `json:"type"` // always "turn_snapshot_start"
	TurnID     string   `json:"turnID"`
	SnapshotID string   `json:"snapshotID"`
	Time       PartTime `json:"time,omitempty"`
}

func (p *TurnSnapshotStartPart) PartType() string      { return "turn_snapshot_start" }
func (p *TurnSnapshotStartPart) PartID() string        { return p.ID }
func (p *TurnSnapshotStartPart) PartSessionID() string { return p.SessionID }
func (p *TurnSnapshotStartPart) PartMessageID() string { return p.MessageID }

// TurnSnapshotPatchPart records the paths that changed between the pre- and
// post-turn snapshots (spec.md §4.1.2 S6).
type TurnSnapshotPatchPart struct {
	ID             string   `json:"id"`
	SessionID      string   `json:"sessionID"`
	MessageID      string   `json:"messageID"`
	Type           string   `json:"type"` // always "turn_snapshot_patch"
	TurnID         string   `json:"turnID"`
	FromSnapshotID string   `json:"fromSnapshotID"`
	ToSnapshotID   string   `json:"toSnapshotID"`
	Paths          []string `json:"paths"`
	Time           PartTime `json:"time,omitempty"`
}

func (p *TurnSnapshotPatchPart) PartType() string      { return "turn_snapshot_patch" }
func (p *TurnSnapshotPatchPart) PartID() string        { return p.ID }
func (p *TurnSnapshotPatchPart) PartSessionID() string { return p.SessionID }
func (p *TurnSnapshotPatchPart) PartMessageID() string { return p.MessageID }

// PatchPart carries a unified diff produced by the apply_patch tool.
type PatchPart struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionID"`
	MessageID string   `json:"messageID"`
	Type      string   `json:"type"` // always "patch"
	Diff      string   `json:"diff"`
	Files     []string `json:"files,omitempty"`
	Time      PartTime `json:"time,omitempty"`
}

func (p *PatchPart) PartType() string      { return "patch" }
func (p *PatchPart) PartID() string        { return p.ID }
func (p *PatchPart) PartSessionID() string { return p.SessionID }
func (p *PatchPart) PartMessageID() string { return p.MessageID }

// RawPart is used for JSON unmarshaling of parts.
type RawPart struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"-"`
}

// UnmarshalPart unmarshals a JSON part into the appropriate type.
func UnmarshalPart(data []byte) (Part, error) {
	var raw RawPart
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	switch raw.Type {
	case "text":
		var p TextPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "reasoning":
		var p ReasoningPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "tool":
		var p ToolPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "file":
		var p FilePart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "snapshot":
		var p SnapshotPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "prompt":
		var p PromptPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "compaction":
		var p CompactionPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "turn_snapshot_start":
		var p TurnSnapshotStartPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "turn_snapshot_patch":
		var p TurnSnapshotPatchPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "patch":
		var p PatchPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	default:
		// Return raw part for unknown types
		var p TextPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	}
}
