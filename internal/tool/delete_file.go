package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/agentrt/agentrt/internal/event"
)

const deleteFileDescription = `Deletes a file from the local filesystem.

Usage:
- The file_path parameter must be an absolute path
- The target must be a regular file; directories are rejected
- Fails if the file does not exist`

// DeleteFileTool implements file deletion.
type DeleteFileTool struct {
	workDir string
}

// DeleteFileInput represents the input for the delete_file tool.
type DeleteFileInput struct {
	FilePath string `json:"filePath"`
}

// NewDeleteFileTool creates a new delete_file tool.
func NewDeleteFileTool(workDir string) *DeleteFileTool {
	return &DeleteFileTool{workDir: workDir}
}

func (t *DeleteFileTool) ID() string          { return "delete_file" }
func (t *DeleteFileTool) Description() string { return deleteFileDescription }

func (t *DeleteFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {
				"type": "string",
				"description": "The absolute path to the file to delete"
			}
		},
		"required": ["filePath"]
	}`)
}

func (t *DeleteFileTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params DeleteFileInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	info, err := os.Stat(params.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not a file", params.FilePath)
	}

	if err := os.Remove(params.FilePath); err != nil {
		return nil, fmt.Errorf("failed to delete file: %w", err)
	}

	if toolCtx != nil {
		event.Publish(event.Event{
			Type: event.FileEdited,
			Data: event.FileEditedData{File: params.FilePath},
		})
	}

	return &Result{
		Title:  fmt.Sprintf("Deleted %s", filepath.Base(params.FilePath)),
		Output: fmt.Sprintf("Deleted %s", params.FilePath),
		Metadata: map[string]any{
			"file": params.FilePath,
		},
	}, nil
}

func (t *DeleteFileTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
