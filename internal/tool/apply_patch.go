package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sergi/go-diff/diffmatchpatch"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/agentrt/agentrt/internal/event"
)

const applyPatchDescription = `Applies a unified-diff-style patch to a file.

Usage:
- The file_path parameter must be an absolute path to an existing file
- The patch parameter is the patch text, in the format produced by diffing
  tools (unified diff / Google diff-match-patch patch text)
- The tool fails if the patch does not apply cleanly against the file's
  current content, so stale patches are rejected rather than silently
  fuzzy-applied`

// ApplyPatchTool applies a unified-diff patch to an existing file, grounded
// on spec.md's apply_patch built-in and adapted from the teacher's
// diffmatchpatch-based diff.go helpers, reused here for the inverse
// operation (applying rather than producing a patch).
type ApplyPatchTool struct {
	workDir string
}

// ApplyPatchInput represents the input for the apply_patch tool.
type ApplyPatchInput struct {
	FilePath string `json:"filePath"`
	Patch    string `json:"patch"`
}

// NewApplyPatchTool creates a new apply_patch tool.
func NewApplyPatchTool(workDir string) *ApplyPatchTool {
	return &ApplyPatchTool{workDir: workDir}
}

func (t *ApplyPatchTool) ID() string          { return "apply_patch" }
func (t *ApplyPatchTool) Description() string { return applyPatchDescription }

func (t *ApplyPatchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {
				"type": "string",
				"description": "The absolute path to the file to patch"
			},
			"patch": {
				"type": "string",
				"description": "The unified-diff patch text to apply"
			}
		},
		"required": ["filePath", "patch"]
	}`)
}

func (t *ApplyPatchTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params ApplyPatchInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Patch == "" {
		return nil, fmt.Errorf("patch cannot be empty")
	}

	original, err := os.ReadFile(params.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(params.Patch)
	if err != nil {
		return nil, fmt.Errorf("failed to parse patch: %w", err)
	}
	if len(patches) == 0 {
		return nil, fmt.Errorf("patch contains no hunks")
	}

	patched, applied := dmp.PatchApply(patches, string(original))
	for i, ok := range applied {
		if !ok {
			return nil, fmt.Errorf("patch hunk %d did not apply cleanly; the file content may have diverged from the patch's context", i+1)
		}
	}

	if len(original) > 0 && patched == "" {
		return nil, fmt.Errorf("refusing to apply a patch that would empty a non-empty file")
	}

	if err := os.WriteFile(params.FilePath, []byte(patched), 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	if toolCtx != nil {
		event.Publish(event.Event{
			Type: event.FileEdited,
			Data: event.FileEditedData{File: params.FilePath},
		})
	}

	return &Result{
		Title:  fmt.Sprintf("Patched %s", filepath.Base(params.FilePath)),
		Output: fmt.Sprintf("Applied %d hunk(s)", len(patches)),
		Metadata: map[string]any{
			"file":  params.FilePath,
			"hunks": len(patches),
		},
	}, nil
}

func (t *ApplyPatchTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
