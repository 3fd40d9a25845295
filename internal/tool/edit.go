package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agnivade/levenshtein"
	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/agentrt/agentrt/internal/event"
)

const editDescription = `Performs exact string replacements in files.

Usage:
- The file_path parameter must be an absolute path
- The old_string must exist in the file
- The new_string will replace old_string
- Use replace_all to replace all occurrences
- The edit will FAIL if old_string is ambiguous and replace_all is not set

When an exact match fails, the edit is retried through a ladder of
increasingly forgiving matchers (line-trimmed, block-anchor, whitespace-
normalized, indentation-flexible, escape-normalized, trimmed-boundary,
context-aware, then multi-occurrence) before giving up.`

// EditTool implements file editing with a fuzzy-matching fallback ladder,
// grounded on
// original_source/crates/agent/src/tools/builtins/edit.rs's replacer chain.
type EditTool struct {
	workDir string
}

// EditInput represents the input for the edit tool.
type EditInput struct {
	FilePath   string `json:"filePath"`
	OldString  string `json:"oldString"`
	NewString  string `json:"newString"`
	ReplaceAll bool   `json:"replaceAll,omitempty"`
}

// NewEditTool creates a new edit tool.
func NewEditTool(workDir string) *EditTool {
	return &EditTool{workDir: workDir}
}

func (t *EditTool) ID() string          { return "edit" }
func (t *EditTool) Description() string { return editDescription }

func (t *EditTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {
				"type": "string",
				"description": "The absolute path to the file to edit"
			},
			"oldString": {
				"type": "string",
				"description": "The exact text to replace"
			},
			"newString": {
				"type": "string",
				"description": "The text to replace it with"
			},
			"replaceAll": {
				"type": "boolean",
				"description": "Replace all occurrences (default: false)"
			}
		},
		"required": ["filePath", "oldString", "newString"]
	}`)
}

func (t *EditTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params EditInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	content, err := os.ReadFile(params.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	newText, count, err := replaceWithLadder(string(content), params.OldString, params.NewString, params.ReplaceAll)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(params.FilePath, []byte(newText), 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	if toolCtx != nil && toolCtx.SessionID != "" {
		event.Publish(event.Event{
			Type: event.FileEdited,
			Data: event.FileEditedData{File: params.FilePath},
		})
	}

	return &Result{
		Title:  fmt.Sprintf("Edited %s", filepath.Base(params.FilePath)),
		Output: fmt.Sprintf("Replaced %d occurrence(s)", count),
		Metadata: map[string]any{
			"file":         params.FilePath,
			"replacements": count,
		},
	}, nil
}

func (t *EditTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}

// matchReplacer is one rung of the matching ladder: given file content and
// the text being searched for, it returns every candidate substring of
// content it considers a match.
type matchReplacer func(content, find string) []string

// replaceLadder is the ordered list of matchers tried by replaceWithLadder,
// from strictest to most forgiving, matching the Rust original's
// `replacers` vec exactly in order and count.
var replaceLadder = []matchReplacer{
	simpleReplacer,
	lineTrimmedReplacer,
	blockAnchorReplacer,
	whitespaceNormalizedReplacer,
	indentationFlexibleReplacer,
	escapeNormalizedReplacer,
	trimmedBoundaryReplacer,
	contextAwareReplacer,
	multiOccurrenceReplacer,
}

// replaceWithLadder walks replaceLadder until a rung produces a candidate
// that resolves unambiguously (or, under replaceAll, that covers every
// occurrence at once).
func replaceWithLadder(content, oldString, newString string, replaceAll bool) (string, int, error) {
	if oldString == "" {
		return "", 0, fmt.Errorf("oldString cannot be empty")
	}
	if oldString == newString {
		return "", 0, fmt.Errorf("oldString and newString must be different")
	}

	foundAny := false

	for _, replacer := range replaceLadder {
		for _, search := range replacer(content, oldString) {
			idx := strings.Index(content, search)
			if idx < 0 {
				continue
			}
			foundAny = true

			if replaceAll {
				count := strings.Count(content, search)
				return strings.ReplaceAll(content, search, newString), count, nil
			}

			lastIdx := strings.LastIndex(content, search)
			if idx == lastIdx {
				return content[:idx] + newString + content[idx+len(search):], 1, nil
			}
			// Ambiguous under this rung; try the next one.
		}
	}

	if !foundAny {
		return "", 0, fmt.Errorf("oldString not found in file. The content may have changed or the string doesn't exist")
	}
	return "", 0, fmt.Errorf("oldString found multiple times and requires more code context to uniquely identify the intended match. Either provide a larger string with more surrounding context to make it unique or use replaceAll to change every instance of oldString")
}

// simpleReplacer is the exact-substring rung.
func simpleReplacer(content, find string) []string {
	if strings.Contains(content, find) {
		return []string{find}
	}
	return nil
}

// lineTrimmedReplacer matches a block of lines whose trimmed content is
// identical to find's trimmed lines, tolerating leading/trailing
// whitespace differences per line.
func lineTrimmedReplacer(content, find string) []string {
	originalLines := strings.Split(content, "\n")
	searchLines := trimTrailingEmptyLine(strings.Split(find, "\n"))
	if len(searchLines) == 0 || len(originalLines) < len(searchLines) {
		return nil
	}

	var matches []string
	for i := 0; i <= len(originalLines)-len(searchLines); i++ {
		match := true
		for j := range searchLines {
			if strings.TrimSpace(originalLines[i+j]) != strings.TrimSpace(searchLines[j]) {
				match = false
				break
			}
		}
		if match {
			matches = append(matches, strings.Join(originalLines[i:i+len(searchLines)], "\n"))
		}
	}
	return matches
}

// blockAnchorReplacer anchors on the first and last line of a >=3-line
// search block and scores interior-line similarity to break ties between
// candidate blocks.
func blockAnchorReplacer(content, find string) []string {
	const singleCandidateThreshold = 0.3
	const multipleCandidatesThreshold = 0.5

	originalLines := strings.Split(content, "\n")
	searchLines := trimTrailingEmptyLine(strings.Split(find, "\n"))
	if len(searchLines) < 3 {
		return nil
	}

	firstLine := strings.TrimSpace(searchLines[0])
	lastLine := strings.TrimSpace(searchLines[len(searchLines)-1])
	searchBlockSize := len(searchLines)

	type span struct{ start, end int }
	var candidates []span
	for i := range originalLines {
		if strings.TrimSpace(originalLines[i]) != firstLine {
			continue
		}
		for j := i + 2; j < len(originalLines); j++ {
			if strings.TrimSpace(originalLines[j]) == lastLine {
				candidates = append(candidates, span{i, j})
				break
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	calcSimilarity := func(sp span) float64 {
		actualBlockSize := sp.end - sp.start + 1
		if searchBlockSize > actualBlockSize+1 {
			return 0
		}
		linesToCheck := min(searchBlockSize-2, actualBlockSize-2)
		if linesToCheck <= 0 {
			return 1
		}
		var sim float64
		for j := 1; j < searchBlockSize-1; j++ {
			if j >= actualBlockSize-1 {
				break
			}
			originalLine := strings.TrimSpace(originalLines[sp.start+j])
			searchLine := strings.TrimSpace(searchLines[j])
			maxLen := max(len(originalLine), len(searchLine))
			if maxLen == 0 {
				continue
			}
			dist := levenshtein.ComputeDistance(originalLine, searchLine)
			sim += (1 - float64(dist)/float64(maxLen)) / float64(linesToCheck)
		}
		return sim
	}

	extract := func(sp span) string {
		return strings.Join(originalLines[sp.start:sp.end+1], "\n")
	}

	if len(candidates) == 1 {
		if calcSimilarity(candidates[0]) >= singleCandidateThreshold {
			return []string{extract(candidates[0])}
		}
		return nil
	}

	best := candidates[0]
	bestSim := -1.0
	for _, c := range candidates {
		if sim := calcSimilarity(c); sim > bestSim {
			bestSim = sim
			best = c
		}
	}
	if bestSim >= multipleCandidatesThreshold {
		return []string{extract(best)}
	}
	return nil
}

// whitespaceNormalizedReplacer matches after collapsing internal
// whitespace runs to single spaces.
func whitespaceNormalizedReplacer(content, find string) []string {
	normalize := func(s string) string { return strings.Join(strings.Fields(s), " ") }
	normalizedFind := normalize(find)
	findLines := strings.Split(find, "\n")

	var matches []string
	if len(findLines) > 1 {
		lines := strings.Split(content, "\n")
		if len(lines) >= len(findLines) {
			for i := 0; i <= len(lines)-len(findLines); i++ {
				block := strings.Join(lines[i:i+len(findLines)], "\n")
				if normalize(block) == normalizedFind {
					matches = append(matches, block)
				}
			}
		}
	} else {
		for _, line := range strings.Split(content, "\n") {
			if normalize(line) == normalizedFind {
				matches = append(matches, line)
			}
		}
	}
	return matches
}

// indentationFlexibleReplacer matches blocks that are identical once
// their common leading indentation is stripped from every non-blank line.
func indentationFlexibleReplacer(content, find string) []string {
	removeIndentation := func(text string) string {
		lines := strings.Split(text, "\n")
		minIndent := -1
		for _, l := range lines {
			if strings.TrimSpace(l) == "" {
				continue
			}
			indent := len(l) - len(strings.TrimLeft(l, " \t"))
			if minIndent == -1 || indent < minIndent {
				minIndent = indent
			}
		}
		if minIndent <= 0 {
			return text
		}
		out := make([]string, len(lines))
		for i, l := range lines {
			if strings.TrimSpace(l) == "" {
				out[i] = l
				continue
			}
			if len(l) >= minIndent {
				out[i] = l[minIndent:]
			} else {
				out[i] = l
			}
		}
		return strings.Join(out, "\n")
	}

	normalizedFind := removeIndentation(find)
	contentLines := strings.Split(content, "\n")
	findLines := strings.Split(find, "\n")
	if len(findLines) == 0 || len(contentLines) < len(findLines) {
		return nil
	}

	var matches []string
	for i := 0; i <= len(contentLines)-len(findLines); i++ {
		block := strings.Join(contentLines[i:i+len(findLines)], "\n")
		if removeIndentation(block) == normalizedFind {
			matches = append(matches, block)
		}
	}
	return matches
}

// escapeNormalizedReplacer matches after undoing common backslash escape
// sequences, for patches that came through a channel that escaped them.
func escapeNormalizedReplacer(content, find string) []string {
	unescape := func(s string) string {
		r := strings.NewReplacer(
			`\n`, "\n", `\t`, "\t", `\r`, "\r",
			`\'`, "'", `\"`, `"`, "\\`+"`", "`",
			`\\`, `\`, `\$`, "$",
		)
		return r.Replace(s)
	}

	unescapedFind := unescape(find)
	lines := strings.Split(content, "\n")
	findLines := strings.Split(unescapedFind, "\n")
	if len(findLines) == 0 || len(lines) < len(findLines) {
		return nil
	}

	var matches []string
	seen := make(map[string]bool)
	for i := 0; i <= len(lines)-len(findLines); i++ {
		block := strings.Join(lines[i:i+len(findLines)], "\n")
		if unescape(block) == unescapedFind && !seen[block] {
			matches = append(matches, block)
			seen[block] = true
		}
	}
	if len(matches) == 0 && strings.Contains(content, unescapedFind) {
		matches = append(matches, unescapedFind)
	}
	return matches
}

// trimmedBoundaryReplacer matches a block whose outer whitespace was
// trimmed from find, returning the untrimmed original block.
func trimmedBoundaryReplacer(content, find string) []string {
	trimmedFind := strings.TrimSpace(find)
	if trimmedFind == find {
		return nil
	}

	lines := strings.Split(content, "\n")
	findLines := strings.Split(find, "\n")
	if len(findLines) == 0 || len(lines) < len(findLines) {
		return nil
	}

	var matches []string
	for i := 0; i <= len(lines)-len(findLines); i++ {
		block := strings.Join(lines[i:i+len(findLines)], "\n")
		if strings.TrimSpace(block) == trimmedFind {
			matches = append(matches, block)
		}
	}
	return matches
}

// contextAwareReplacer anchors on first/last line like blockAnchorReplacer
// but accepts a match once at least half the interior lines agree,
// tolerating drift in the middle of a block.
func contextAwareReplacer(content, find string) []string {
	findLines := trimTrailingEmptyLine(strings.Split(find, "\n"))
	if len(findLines) < 3 {
		return nil
	}

	contentLines := strings.Split(content, "\n")
	firstLine := strings.TrimSpace(findLines[0])
	lastLine := strings.TrimSpace(findLines[len(findLines)-1])

	var matches []string
	for i := 0; i < len(contentLines); i++ {
		if strings.TrimSpace(contentLines[i]) != firstLine {
			continue
		}
		for j := i + 2; j < len(contentLines); j++ {
			if strings.TrimSpace(contentLines[j]) != lastLine {
				continue
			}
			block := contentLines[i : j+1]
			if len(block) != len(findLines) {
				break
			}
			matchingLines, totalNonEmpty := 0, 0
			for k := 1; k < len(block)-1; k++ {
				blockLine := strings.TrimSpace(block[k])
				findLine := strings.TrimSpace(findLines[k])
				if blockLine != "" || findLine != "" {
					totalNonEmpty++
					if blockLine == findLine {
						matchingLines++
					}
				}
			}
			if totalNonEmpty == 0 || float64(matchingLines)/float64(totalNonEmpty) >= 0.5 {
				matches = append(matches, strings.Join(block, "\n"))
			}
			break
		}
	}
	return matches
}

// multiOccurrenceReplacer is the last-resort rung used when replaceAll is
// requested and nothing earlier in the ladder produced a candidate: it
// simply confirms find occurs verbatim, letting replaceWithLadder's
// replaceAll branch replace every occurrence.
func multiOccurrenceReplacer(content, find string) []string {
	if strings.Contains(content, find) {
		return []string{find}
	}
	return nil
}

func trimTrailingEmptyLine(lines []string) []string {
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		return lines[:len(lines)-1]
	}
	return lines
}
