package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"regexp"
	"sort"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/hashicorp/hcl"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const codeSurgeonDescription = `Language-aware search and transform over a single file or content string.

BEHAVIOR:
- scope: selects AST-ish nodes (comments, strings, function, struct, ...).
  The entire node is selected.
- pattern: optional regex filter applied within the scope. If omitted, the
  entire scope is selected.
- replacement: applied to pattern matches within scope (enables transform
  mode). Supports regexp capture group references ($1, $name).
- action: applied to matched content after replacement (enables transform
  mode): delete, squeeze, upper, lower, titlecase, normalize, symbols,
  german.

SUPPORTED LANGUAGES AND SCOPES:
- go: comments, strings, imports, struct, function, interface (struct and
  interface accept scope_pattern to filter by name)
- hcl: resource, variable, comments, strings

Either content or file_path is required. Unsupported language/scope
combinations fail with an error rather than silently doing nothing.`

// CodeSurgeonTool implements scoped search/transform over a single file's
// source, grounded on
// original_source/crates/agent/src/tools/builtins/code_surgeon.rs. The
// original scopes seven languages via tree-sitter queries (srgn); no
// tree-sitter binding exists anywhere in this corpus, so this port narrows
// to the two languages backed by a real dependency here: Go (stdlib
// go/parser+go/ast — no third-party Go AST library appears in the corpus
// either, see DESIGN.md) and HCL (github.com/hashicorp/hcl, a genuine
// teacher-adjacent dependency).
type CodeSurgeonTool struct {
	workDir string
}

// CodeSurgeonInput represents the input for the code_surgeon tool.
type CodeSurgeonInput struct {
	Content      string `json:"content,omitempty"`
	FilePath     string `json:"filePath,omitempty"`
	Language     string `json:"language"`
	Scope        string `json:"scope"`
	ScopePattern string `json:"scopePattern,omitempty"`
	Pattern      string `json:"pattern,omitempty"`
	Replacement  string `json:"replacement,omitempty"`
	Action       string `json:"action,omitempty"`
}

// SurgeonMatch is a single match result in search mode.
type SurgeonMatch struct {
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Text   string `json:"text"`
}

// SurgeonSearchResult is returned in search mode.
type SurgeonSearchResult struct {
	Mode         string         `json:"mode"`
	Matches      []SurgeonMatch `json:"matches"`
	TotalMatches int            `json:"totalMatches"`
	File         string         `json:"file,omitempty"`
}

// SurgeonTransformResult is returned in transform mode.
type SurgeonTransformResult struct {
	Mode              string `json:"mode"`
	OriginalLength    int    `json:"originalLength"`
	TransformedLength int    `json:"transformedLength"`
	Content           string `json:"content"`
	ChangesMade       bool   `json:"changesMade"`
}

// NewCodeSurgeonTool creates a new code_surgeon tool.
func NewCodeSurgeonTool(workDir string) *CodeSurgeonTool {
	return &CodeSurgeonTool{workDir: workDir}
}

func (t *CodeSurgeonTool) ID() string          { return "code_surgeon" }
func (t *CodeSurgeonTool) Description() string { return codeSurgeonDescription }

func (t *CodeSurgeonTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"content": {"type": "string", "description": "Source content to process. Either content or filePath is required."},
			"filePath": {"type": "string", "description": "Path to a file to read and process. Either content or filePath is required."},
			"language": {"type": "string", "enum": ["go", "hcl"], "description": "Language for AST-aware scoping."},
			"scope": {"type": "string", "description": "Node kind to scope to. Available scopes depend on language."},
			"scopePattern": {"type": "string", "description": "Optional regex to filter scoped items by name (go struct/interface only)."},
			"pattern": {"type": "string", "description": "Regex matched within the scope."},
			"replacement": {"type": "string", "description": "Replacement text; enables transform mode."},
			"action": {"type": "string", "enum": ["delete", "squeeze", "upper", "lower", "titlecase", "normalize", "symbols", "german"], "description": "Action applied to matched content; enables transform mode."}
		},
		"required": ["language", "scope"]
	}`)
}

func (t *CodeSurgeonTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params CodeSurgeonInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	content := params.Content
	if content == "" {
		if params.FilePath == "" {
			return nil, fmt.Errorf("either content or filePath is required")
		}
		data, err := os.ReadFile(params.FilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		content = string(data)
	}

	spans, err := scopeSpans(params.Language, params.Scope, params.ScopePattern, content)
	if err != nil {
		return nil, err
	}

	matches, err := narrowSpans(content, spans, params.Pattern)
	if err != nil {
		return nil, err
	}

	output, err := renderSurgeonResult(content, matches, params, toolCtx, params.FilePath)
	if err != nil {
		return nil, err
	}

	return &Result{
		Title:  fmt.Sprintf("code_surgeon: %s/%s", params.Language, params.Scope),
		Output: output,
		Metadata: map[string]any{
			"language": params.Language,
			"scope":    params.Scope,
			"matches":  len(matches),
		},
	}, nil
}

func (t *CodeSurgeonTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}

type byteSpan struct{ start, end int }

// scopeSpans resolves the AST-ish node boundaries for a language+scope pair.
func scopeSpans(language, scope, scopePattern, content string) ([]byteSpan, error) {
	switch language {
	case "go":
		return goScopeSpans(scope, scopePattern, content)
	case "hcl":
		return hclScopeSpans(scope, content)
	default:
		return nil, fmt.Errorf("unsupported language: %s. Must be one of: go, hcl", language)
	}
}

func goScopeSpans(scope, scopePattern, content string) ([]byteSpan, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "input.go", content, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("invalid Go source: %w", err)
	}

	var nameFilter *regexp.Regexp
	if scopePattern != "" {
		nameFilter, err = regexp.Compile(scopePattern)
		if err != nil {
			return nil, fmt.Errorf("invalid scopePattern regex: %w", err)
		}
	}

	offset := func(pos token.Pos) int { return fset.Position(pos).Offset }

	var spans []byteSpan
	switch scope {
	case "comments":
		for _, cg := range file.Comments {
			spans = append(spans, byteSpan{offset(cg.Pos()), offset(cg.End())})
		}
	case "strings":
		ast.Inspect(file, func(n ast.Node) bool {
			if lit, ok := n.(*ast.BasicLit); ok && lit.Kind == token.STRING {
				spans = append(spans, byteSpan{offset(lit.Pos()), offset(lit.End())})
			}
			return true
		})
	case "imports":
		for _, imp := range file.Imports {
			spans = append(spans, byteSpan{offset(imp.Pos()), offset(imp.End())})
		}
	case "function", "func":
		ast.Inspect(file, func(n ast.Node) bool {
			if fn, ok := n.(*ast.FuncDecl); ok {
				spans = append(spans, byteSpan{offset(fn.Pos()), offset(fn.End())})
			}
			return true
		})
	case "struct":
		ast.Inspect(file, func(n ast.Node) bool {
			ts, ok := n.(*ast.TypeSpec)
			if !ok {
				return true
			}
			if _, ok := ts.Type.(*ast.StructType); !ok {
				return true
			}
			if nameFilter != nil && !nameFilter.MatchString(ts.Name.Name) {
				return true
			}
			spans = append(spans, byteSpan{offset(ts.Pos()), offset(ts.End())})
			return true
		})
	case "interface":
		ast.Inspect(file, func(n ast.Node) bool {
			ts, ok := n.(*ast.TypeSpec)
			if !ok {
				return true
			}
			if _, ok := ts.Type.(*ast.InterfaceType); !ok {
				return true
			}
			if nameFilter != nil && !nameFilter.MatchString(ts.Name.Name) {
				return true
			}
			spans = append(spans, byteSpan{offset(ts.Pos()), offset(ts.End())})
			return true
		})
	default:
		return nil, fmt.Errorf("unsupported Go scope: %s. Must be one of: comments, strings, imports, function, struct, interface", scope)
	}

	return spans, nil
}

// hclBlockPattern finds the opening brace of a top-level resource/variable
// block; the matching close is found by brace-depth counting below.
var hclBlockPattern = regexp.MustCompile(`(?m)^\s*(resource|variable)\s+"[^"]*"(?:\s+"[^"]*")?\s*\{`)

func hclScopeSpans(scope, content string) ([]byteSpan, error) {
	// hcl.Parse both validates syntax and rules out matching braces inside
	// strings/comments incorrectly, since a parse failure surfaces those
	// problems up front.
	if _, err := hcl.Parse(content); err != nil {
		return nil, fmt.Errorf("invalid HCL source: %w", err)
	}

	switch scope {
	case "resource", "variable":
		var spans []byteSpan
		for _, loc := range hclBlockPattern.FindAllStringIndex(content, -1) {
			kind := content[loc[0]:loc[1]]
			if !strings.Contains(strings.TrimSpace(kind), scope) {
				continue
			}
			braceStart := loc[1] - 1
			end := matchingBrace(content, braceStart)
			if end < 0 {
				continue
			}
			spans = append(spans, byteSpan{loc[0], end + 1})
		}
		return spans, nil
	case "comments":
		var spans []byteSpan
		for _, loc := range regexp.MustCompile(`#[^\n]*|//[^\n]*`).FindAllStringIndex(content, -1) {
			spans = append(spans, byteSpan{loc[0], loc[1]})
		}
		return spans, nil
	case "strings":
		var spans []byteSpan
		for _, loc := range regexp.MustCompile(`"(?:[^"\\]|\\.)*"`).FindAllStringIndex(content, -1) {
			spans = append(spans, byteSpan{loc[0], loc[1]})
		}
		return spans, nil
	default:
		return nil, fmt.Errorf("unsupported HCL scope: %s. Must be one of: resource, variable, comments, strings", scope)
	}
}

// matchingBrace finds the index of the '}' that closes the '{' at start,
// skipping braces that occur inside quoted strings.
func matchingBrace(content string, start int) int {
	depth := 0
	inString := false
	for i := start; i < len(content); i++ {
		c := content[i]
		switch {
		case c == '"' && (i == 0 || content[i-1] != '\\'):
			inString = !inString
		case inString:
			continue
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// narrowSpans applies an optional regex pattern within each scope span,
// returning the concrete matched byte ranges (a span becomes itself when no
// pattern is given).
func narrowSpans(content string, spans []byteSpan, pattern string) ([]byteSpan, error) {
	if pattern == "" {
		return spans, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern regex: %w", err)
	}

	var matches []byteSpan
	for _, sp := range spans {
		for _, loc := range re.FindAllStringIndex(content[sp.start:sp.end], -1) {
			matches = append(matches, byteSpan{sp.start + loc[0], sp.start + loc[1]})
		}
	}
	return matches, nil
}

func renderSurgeonResult(content string, matches []byteSpan, params CodeSurgeonInput, toolCtx *Context, filePath string) (string, error) {
	isTransform := params.Replacement != "" || params.Action != ""
	if !isTransform {
		result := SurgeonSearchResult{Mode: "search", TotalMatches: len(matches)}
		if filePath != "" {
			result.File = filePath
		}
		lineStarts := computeLineStarts(content)
		for _, m := range matches {
			line, col := lineAndColumn(lineStarts, m.start)
			result.Matches = append(result.Matches, SurgeonMatch{Line: line, Column: col, Text: content[m.start:m.end]})
		}
		data, err := json.MarshalIndent(result, "", "  ")
		return string(data), err
	}

	transformed, err := applyTransform(content, matches, params.Replacement, params.Action)
	if err != nil {
		return "", err
	}
	if len(content) > 0 && transformed == "" {
		return "", fmt.Errorf("refusing to transform a non-empty file into an empty one")
	}

	result := SurgeonTransformResult{
		Mode:              "transform",
		OriginalLength:    len(content),
		TransformedLength: len(transformed),
		Content:           transformed,
		ChangesMade:       transformed != content,
	}
	data, err := json.MarshalIndent(result, "", "  ")
	return string(data), err
}

func applyTransform(content string, matches []byteSpan, replacement, action string) (string, error) {
	ordered := append([]byteSpan(nil), matches...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].start > ordered[j].start })

	result := content
	for _, m := range ordered {
		text := result[m.start:m.end]
		if replacement != "" {
			text = replacement
		}
		if action != "" {
			transformed, err := applySurgeonAction(text, action)
			if err != nil {
				return "", err
			}
			text = transformed
		}
		result = result[:m.start] + text + result[m.end:]
	}
	return result, nil
}

var squeezeWhitespace = regexp.MustCompile(`[ \t]+`)

func applySurgeonAction(s, action string) (string, error) {
	switch action {
	case "delete":
		return "", nil
	case "squeeze":
		return squeezeWhitespace.ReplaceAllString(s, " "), nil
	case "upper":
		return strings.ToUpper(s), nil
	case "lower":
		return strings.ToLower(s), nil
	case "titlecase":
		return cases.Title(language.Und, cases.NoLower).String(s), nil
	case "normalize":
		return norm.NFC.String(s), nil
	case "symbols":
		return applySymbols(s), nil
	case "german":
		return applyGerman(s), nil
	default:
		return "", fmt.Errorf("unknown action: %s. Must be one of: delete, squeeze, upper, lower, titlecase, normalize, symbols, german", action)
	}
}

var symbolReplacer = strings.NewReplacer(
	"!=", "≠", "<=", "≤", ">=", "≥", "->", "→", "=>", "⇒",
)

func applySymbols(s string) string { return symbolReplacer.Replace(s) }

var germanReplacer = strings.NewReplacer(
	"ae", "ä", "oe", "ö", "ue", "ü",
	"Ae", "Ä", "Oe", "Ö", "Ue", "Ü",
)

func applyGerman(s string) string { return germanReplacer.Replace(s) }

func computeLineStarts(content string) []int {
	starts := []int{0}
	for i, c := range content {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func lineAndColumn(lineStarts []int, offset int) (line, column int) {
	idx := sort.Search(len(lineStarts), func(i int) bool { return lineStarts[i] > offset }) - 1
	if idx < 0 {
		idx = 0
	}
	return idx + 1, offset - lineStarts[idx] + 1
}
