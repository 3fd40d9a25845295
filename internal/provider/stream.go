package provider

import (
	"fmt"
	"io"

	"github.com/cloudwego/eino/schema"
)

// ChunkKind identifies which field of a StreamChunk is populated.
type ChunkKind int

const (
	ChunkText ChunkKind = iota
	ChunkThinking
	ChunkToolUseStart
	ChunkToolUseInputDelta
	ChunkToolUseComplete
	ChunkUsage
	ChunkDone
)

// StreamChunk is a normalized increment of a streaming completion: text,
// thinking, tool-call start/delta/complete, usage, or a terminal stop
// reason. Grounded on the tagged union the upstream llama.cpp and Anthropic
// provider loops push over an unbounded channel
// (original_source/crates/providers/llama-cpp/src/lib.rs), and built by
// re-deriving the same Index-based tool-call tracking this repo's
// internal/session/stream.go already does against the raw Eino
// *schema.Message stream.
type StreamChunk struct {
	Kind ChunkKind

	Text     string // ChunkText
	Thinking string // ChunkThinking

	ToolUseIndex int    // ChunkToolUseStart, ChunkToolUseInputDelta, ChunkToolUseComplete
	ToolUseID    string // ChunkToolUseStart, ChunkToolUseComplete
	ToolUseName  string // ChunkToolUseStart, ChunkToolUseComplete
	PartialJSON  string // ChunkToolUseInputDelta
	ToolCall     *schema.ToolCall // ChunkToolUseComplete: the fully accumulated call

	Usage *Usage // ChunkUsage

	StopReason string // ChunkDone: "end_turn" or "tool_use"
}

// Usage mirrors the upstream provider's per-turn token accounting.
type Usage struct {
	InputTokens     int
	OutputTokens    int
	CacheRead       int
	CacheWrite      int
	ReasoningTokens int
}

// pendingToolCall accumulates one tool call's arguments across delta chunks
// before it is considered complete.
type pendingToolCall struct {
	id        string
	name      string
	arguments string
}

// ChunkReader adapts a raw Eino *schema.Message stream into the StreamChunk
// union. It tracks in-progress tool calls by Index exactly as
// internal/session/stream.go's processMessageChunk does, but emits discrete
// chunks instead of mutating session state directly, so the provider layer
// itself can be exercised (and tested) without a full session.
type ChunkReader struct {
	stream   *CompletionStream
	pending  map[int]*pendingToolCall
	usage    *Usage
	done     bool
	queue    []*StreamChunk
}

// NewChunkReader wraps a completion stream for normalized chunk reading.
func NewChunkReader(stream *CompletionStream) *ChunkReader {
	return &ChunkReader{
		stream:  stream,
		pending: make(map[int]*pendingToolCall),
	}
}

// Next returns the next normalized chunk, or io.EOF once the stream and any
// queued completion/done chunks are exhausted.
func (r *ChunkReader) Next() (*StreamChunk, error) {
	if len(r.queue) > 0 {
		c := r.queue[0]
		r.queue = r.queue[1:]
		return c, nil
	}
	if r.done {
		return nil, io.EOF
	}

	msg, err := r.stream.Recv()
	if err == io.EOF {
		r.done = true
		if r.usage != nil {
			r.queue = append(r.queue, &StreamChunk{Kind: ChunkUsage, Usage: r.usage})
		}
		r.queue = append(r.queue, &StreamChunk{Kind: ChunkDone, StopReason: r.stopReason()})
		return r.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("stream recv: %w", err)
	}

	if msg.Content != "" {
		r.queue = append(r.queue, &StreamChunk{Kind: ChunkText, Text: msg.Content})
	}
	if msg.ReasoningContent != "" {
		r.queue = append(r.queue, &StreamChunk{Kind: ChunkThinking, Thinking: msg.ReasoningContent})
	}

	for _, tc := range msg.ToolCalls {
		index := 0
		if tc.Index != nil {
			index = *tc.Index
		}

		entry, exists := r.pending[index]
		if !exists && tc.ID != "" && tc.Function.Name != "" {
			entry = &pendingToolCall{id: tc.ID, name: tc.Function.Name}
			r.pending[index] = entry
			r.queue = append(r.queue, &StreamChunk{
				Kind:         ChunkToolUseStart,
				ToolUseIndex: index,
				ToolUseID:    tc.ID,
				ToolUseName:  tc.Function.Name,
			})
		}
		if tc.Function.Arguments != "" {
			if entry == nil {
				entry = r.pending[index]
			}
			if entry != nil {
				entry.arguments += tc.Function.Arguments
			}
			r.queue = append(r.queue, &StreamChunk{
				Kind:         ChunkToolUseInputDelta,
				ToolUseIndex: index,
				PartialJSON:  tc.Function.Arguments,
			})
		}
	}

	if msg.ResponseMeta != nil {
		if r.usage == nil {
			r.usage = &Usage{}
		}
		if msg.ResponseMeta.Usage != nil {
			r.usage.InputTokens = msg.ResponseMeta.Usage.PromptTokens
			r.usage.OutputTokens = msg.ResponseMeta.Usage.CompletionTokens
		}
	}

	if len(r.queue) == 0 {
		return r.Next()
	}
	c := r.queue[0]
	r.queue = r.queue[1:]
	return c, nil
}

func (r *ChunkReader) stopReason() string {
	if len(r.pending) > 0 {
		return "tool_use"
	}
	return "end_turn"
}

// ToolUseComplete finalizes a pending tool call by index, parsing its
// accumulated argument deltas into a schema.ToolCall. Callers invoke this
// once they've observed the final ChunkToolUseInputDelta for that index
// (e.g. on ChunkDone).
func (r *ChunkReader) ToolUseComplete(index int) *StreamChunk {
	entry, ok := r.pending[index]
	if !ok {
		return nil
	}
	return &StreamChunk{
		Kind:         ChunkToolUseComplete,
		ToolUseIndex: index,
		ToolUseID:    entry.id,
		ToolUseName:  entry.name,
		ToolCall: &schema.ToolCall{
			ID: entry.id,
			Function: schema.FunctionCall{
				Name:      entry.name,
				Arguments: entry.arguments,
			},
		},
	}
}
