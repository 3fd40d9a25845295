package tool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEditTool_Execute(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "edit.txt")
	if err := os.WriteFile(testFile, []byte("Hello World"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	tool := NewEditTool(tmpDir)
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{
		"filePath": "` + testFile + `",
		"oldString": "World",
		"newString": "Go"
	}`)
	result, err := tool.Execute(ctx, input, toolCtx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !strings.Contains(result.Output, "Replaced") {
		t.Errorf("Output should mention 'Replaced', got: %s", result.Output)
	}

	data, _ := os.ReadFile(testFile)
	if string(data) != "Hello Go" {
		t.Errorf("File content = %q, want 'Hello Go'", string(data))
	}
}

func TestEditTool_StringNotFound(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "edit.txt")
	if err := os.WriteFile(testFile, []byte("Hello World"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	tool := NewEditTool(tmpDir)
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{
		"filePath": "` + testFile + `",
		"oldString": "NotFound",
		"newString": "Replacement"
	}`)
	_, err := tool.Execute(ctx, input, toolCtx)
	if err == nil {
		t.Error("Expected error when oldString not found")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Error should mention 'not found', got: %v", err)
	}
}

func TestEditTool_ReplaceAll(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "edit.txt")
	if err := os.WriteFile(testFile, []byte("foo bar foo baz foo"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	tool := NewEditTool(tmpDir)
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{
		"filePath": "` + testFile + `",
		"oldString": "foo",
		"newString": "qux",
		"replaceAll": true
	}`)
	_, err := tool.Execute(ctx, input, toolCtx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	data, _ := os.ReadFile(testFile)
	if string(data) != "qux bar qux baz qux" {
		t.Errorf("File content = %q, want 'qux bar qux baz qux'", string(data))
	}
}

func TestEditTool_SameStrings(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "edit.txt")
	if err := os.WriteFile(testFile, []byte("Hello World"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	tool := NewEditTool(tmpDir)
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{
		"filePath": "` + testFile + `",
		"oldString": "Hello",
		"newString": "Hello"
	}`)
	_, err := tool.Execute(ctx, input, toolCtx)
	if err == nil {
		t.Error("Expected error when oldString equals newString")
	}
	if !strings.Contains(err.Error(), "different") {
		t.Errorf("Error should mention 'different', got: %v", err)
	}
}

func TestEditTool_MultipleOccurrences(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "edit.txt")
	if err := os.WriteFile(testFile, []byte("foo bar foo baz foo"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	tool := NewEditTool(tmpDir)
	ctx := context.Background()
	toolCtx := testContext()

	// Without replaceAll, multiple occurrences should fail
	input := json.RawMessage(`{
		"filePath": "` + testFile + `",
		"oldString": "foo",
		"newString": "qux"
	}`)
	_, err := tool.Execute(ctx, input, toolCtx)
	if err == nil {
		t.Error("Expected error when oldString appears multiple times without replaceAll")
	}
	if !strings.Contains(err.Error(), "multiple times") {
		t.Errorf("Error should mention multiple matches, got: %v", err)
	}
}

func TestEditTool_LineTrimmedMatch(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "edit.txt")

	// Trailing whitespace on each line that the search text doesn't have.
	content := "func main()  \n    fmt.Println(\"hi\")   \n}  \n"
	if err := os.WriteFile(testFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	tool := NewEditTool(tmpDir)
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{
		"filePath": "` + testFile + `",
		"oldString": "func main()\n    fmt.Println(\"hi\")\n}",
		"newString": "func main() {\n    fmt.Println(\"bye\")\n}"
	}`)
	result, err := tool.Execute(ctx, input, toolCtx)
	if err != nil {
		t.Fatalf("Execute failed via line-trimmed rung: %v", err)
	}
	if !strings.Contains(result.Output, "Replaced") {
		t.Errorf("Output should mention 'Replaced', got: %s", result.Output)
	}

	data, _ := os.ReadFile(testFile)
	if !strings.Contains(string(data), "bye") {
		t.Errorf("File content should contain replacement, got: %q", string(data))
	}
}

func TestEditTool_BlockAnchorMatch(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "edit.txt")

	content := "func handler() {\n    x := compute()\n    log.Info(x)\n    return x\n}\n"
	if err := os.WriteFile(testFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	tool := NewEditTool(tmpDir)
	ctx := context.Background()
	toolCtx := testContext()

	// Interior line differs slightly from the file (log.Infof vs log.Info);
	// the first/last line anchors still match uniquely.
	input := json.RawMessage(`{
		"filePath": "` + testFile + `",
		"oldString": "func handler() {\n    y := compute()\n    log.Infof(y)\n    return x\n}",
		"newString": "func handler() {\n    x := compute()\n    return x\n}"
	}`)
	result, err := tool.Execute(ctx, input, toolCtx)
	if err != nil {
		t.Fatalf("Execute failed via block-anchor rung: %v", err)
	}
	if !strings.Contains(result.Output, "Replaced") {
		t.Errorf("Output should mention 'Replaced', got: %s", result.Output)
	}
}

func TestEditTool_WhitespaceNormalizedMatch(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "edit.txt")

	content := "if   x   ==  1 {\n    doThing()\n}\n"
	if err := os.WriteFile(testFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	tool := NewEditTool(tmpDir)
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{
		"filePath": "` + testFile + `",
		"oldString": "if x == 1 {",
		"newString": "if x == 2 {"
	}`)
	result, err := tool.Execute(ctx, input, toolCtx)
	if err != nil {
		t.Fatalf("Execute failed via whitespace-normalized rung: %v", err)
	}
	if !strings.Contains(result.Output, "Replaced") {
		t.Errorf("Output should mention 'Replaced', got: %s", result.Output)
	}
}

func TestEditTool_IndentationFlexibleMatch(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "edit.txt")

	content := "func f() {\n\t\tif ok {\n\t\t\treturn nil\n\t\t}\n}\n"
	if err := os.WriteFile(testFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	tool := NewEditTool(tmpDir)
	ctx := context.Background()
	toolCtx := testContext()

	// Same block shifted to a different indentation level.
	input := json.RawMessage(`{
		"filePath": "` + testFile + `",
		"oldString": "if ok {\n    return nil\n}",
		"newString": "if ok {\n    return errDone\n}"
	}`)
	result, err := tool.Execute(ctx, input, toolCtx)
	if err != nil {
		t.Fatalf("Execute failed via indentation-flexible rung: %v", err)
	}
	if !strings.Contains(result.Output, "Replaced") {
		t.Errorf("Output should mention 'Replaced', got: %s", result.Output)
	}
}

func TestEditTool_TrimmedBoundaryMatch(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "edit.txt")

	content := "  return x + y  \n"
	if err := os.WriteFile(testFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	tool := NewEditTool(tmpDir)
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{
		"filePath": "` + testFile + `",
		"oldString": "return x + y",
		"newString": "return x - y"
	}`)
	result, err := tool.Execute(ctx, input, toolCtx)
	if err != nil {
		t.Fatalf("Execute failed via trimmed-boundary rung: %v", err)
	}
	if !strings.Contains(result.Output, "Replaced") {
		t.Errorf("Output should mention 'Replaced', got: %s", result.Output)
	}
}

func TestEditTool_Properties(t *testing.T) {
	tool := NewEditTool("/tmp")

	if tool.ID() != "edit" {
		t.Errorf("Expected ID 'edit', got %q", tool.ID())
	}

	desc := tool.Description()
	if !strings.Contains(desc, "replacement") {
		t.Error("Description should mention 'replacement'")
	}

	params := tool.Parameters()
	if len(params) == 0 {
		t.Error("Parameters should not be empty")
	}

	var schema map[string]any
	if err := json.Unmarshal(params, &schema); err != nil {
		t.Errorf("Parameters should be valid JSON: %v", err)
	}

	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Error("Schema should have properties")
	}
	for _, name := range []string{"filePath", "oldString", "newString", "replaceAll"} {
		if _, ok := props[name]; !ok {
			t.Errorf("Schema should have %s property", name)
		}
	}
}

func TestEditTool_InvalidInput(t *testing.T) {
	tool := NewEditTool("/tmp")
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{invalid json}`)
	_, err := tool.Execute(ctx, input, toolCtx)
	if err == nil {
		t.Error("Expected error for invalid JSON input")
	}
}

func TestEditTool_FileNotFound(t *testing.T) {
	tool := NewEditTool("/tmp")
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{
		"filePath": "/nonexistent/file.txt",
		"oldString": "foo",
		"newString": "bar"
	}`)
	_, err := tool.Execute(ctx, input, toolCtx)
	if err == nil {
		t.Error("Expected error for nonexistent file")
	}
}

func TestEditTool_Metadata(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "edit.txt")
	if err := os.WriteFile(testFile, []byte("Hello World"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	tool := NewEditTool(tmpDir)
	ctx := context.Background()
	toolCtx := testContext()

	input := json.RawMessage(`{
		"filePath": "` + testFile + `",
		"oldString": "World",
		"newString": "Go"
	}`)
	result, err := tool.Execute(ctx, input, toolCtx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Metadata["file"] != testFile {
		t.Errorf("Expected file %q in metadata, got %v", testFile, result.Metadata["file"])
	}
	if result.Metadata["replacements"] != 1 {
		t.Errorf("Expected 1 replacement in metadata, got %v", result.Metadata["replacements"])
	}
}

func TestEditTool_EinoTool(t *testing.T) {
	tool := NewEditTool("/tmp")
	einoTool := tool.EinoTool()

	if einoTool == nil {
		t.Error("EinoTool should not return nil")
	}

	info, err := einoTool.Info(context.Background())
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}

	if info.Name != "edit" {
		t.Errorf("Expected name 'edit', got %q", info.Name)
	}
}

func TestReplaceWithLadder_AmbiguousFallsThrough(t *testing.T) {
	// "foo" is ambiguous (3 occurrences); a unique 2-line block anchored on
	// distinct first/last lines should still resolve via an earlier rung.
	content := "start foo\nmiddle foo\nend foo\n"
	_, _, err := replaceWithLadder(content, "foo", "bar", false)
	if err == nil {
		t.Fatal("expected ambiguous error for bare 'foo'")
	}
	if !strings.Contains(err.Error(), "multiple times") {
		t.Errorf("expected ambiguity error, got: %v", err)
	}
}

func TestReplaceWithLadder_EmptyOldString(t *testing.T) {
	_, _, err := replaceWithLadder("anything", "", "x", false)
	if err == nil {
		t.Error("expected error for empty oldString")
	}
}
