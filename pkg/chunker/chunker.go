// Package chunker splits source files into named, independently embeddable
// chunks with location metadata. It is a deliberate parser substitute:
// declarations are found by pattern matching across common syntaxes, and
// chunk boundaries by brace/indentation scanning. False positives and
// negatives are acceptable; downstream consumers only see the Chunker
// interface so a language-aware implementation can be swapped in.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// ChunkType classifies an extracted chunk.
type ChunkType string

const (
	TypeFunction ChunkType = "function"
	TypeClass    ChunkType = "class"
	TypeModule   ChunkType = "module"
)

const (
	maxFunctionLines = 200
	maxClassLines    = 300
	contextScanLines = 50
	moduleCharBudget = 2000
)

// Chunk is one extracted unit of source code.
type Chunk struct {
	Type      ChunkType
	Name      string
	Signature string
	Content   string
	// Context carries the file's leading imports and top comments,
	// captured once per file and shared by every chunk.
	Context   string
	StartLine int // 1-based, inclusive
	EndLine   int // 1-based, inclusive

	Dependencies []string
	Exports      []string
	Patterns     []string
}

// Chunker extracts chunks from a source file.
type Chunker interface {
	Chunk(filePath, source string) []Chunk
}

// PatternChunker is the heuristic, language-agnostic Chunker.
type PatternChunker struct{}

// NewPatternChunker creates a PatternChunker.
func NewPatternChunker() *PatternChunker {
	return &PatternChunker{}
}

// Chunk splits source into an ordered chunk list. Files with no
// declaration matches produce exactly one module-level chunk truncated to
// a fixed character budget.
func (c *PatternChunker) Chunk(filePath, source string) []Chunk {
	lines := strings.Split(source, "\n")
	fileContext := extractContext(lines)
	deps := extractDependencies(lines)

	var chunks []Chunk
	for i := 0; i < len(lines); i++ {
		decl, ok := matchDeclaration(lines[i])
		if !ok {
			continue
		}

		end := findChunkEnd(lines, i, decl.chunkType)
		content := strings.Join(lines[i:end+1], "\n")

		chunk := Chunk{
			Type:         decl.chunkType,
			Name:         decl.name,
			Signature:    strings.TrimSpace(lines[i]),
			Content:      content,
			Context:      fileContext,
			StartLine:    i + 1,
			EndLine:      end + 1,
			Dependencies: deps,
			Exports:      extractExports(decl),
			Patterns:     detectPatterns(decl.name, content),
		}
		chunks = append(chunks, chunk)

		// Skip past the chunk body so nested declarations are not
		// re-extracted as top-level chunks.
		i = end
	}

	if len(chunks) == 0 {
		return []Chunk{moduleChunk(filePath, lines, fileContext, deps)}
	}
	return chunks
}

// findChunkEnd locates the chunk's closing line via semantic-boundary
// scanning: brace depth returning to zero after having opened, indentation
// returning to the declaration's base level, or a new top-level
// declaration — whichever triggers first — bounded by a hard line cap.
func findChunkEnd(lines []string, start int, chunkType ChunkType) int {
	maxLines := maxFunctionLines
	if chunkType == TypeClass {
		maxLines = maxClassLines
	}
	limit := start + maxLines
	if limit >= len(lines) {
		limit = len(lines) - 1
	}

	baseIndent := indentOf(lines[start])
	depth := 0
	opened := false

	for i := start; i <= limit; i++ {
		line := lines[i]
		depth += strings.Count(line, "{") + strings.Count(line, "(")
		depth -= strings.Count(line, "}") + strings.Count(line, ")")

		if depth > 0 {
			opened = true
		}
		if opened && depth <= 0 {
			return i
		}

		// Indentation-delimited syntax: once past the declaration, a
		// non-blank line back at (or left of) the base indent ends the
		// chunk, as does the next top-level declaration.
		if !opened && i > start {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			if indentOf(line) <= baseIndent {
				return i - 1
			}
		}
	}
	return limit
}

func indentOf(line string) int {
	count := 0
	for _, r := range line {
		switch r {
		case ' ':
			count++
		case '\t':
			count += 4
		default:
			return count
		}
	}
	return count
}

// extractContext captures leading import/using lines and top comments from
// the first contextScanLines lines, once per file.
func extractContext(lines []string) string {
	var ctx []string
	limit := contextScanLines
	if limit > len(lines) {
		limit = len(lines)
	}
	for _, line := range lines[:limit] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if isImportLine(trimmed) || isCommentLine(trimmed) {
			ctx = append(ctx, trimmed)
		}
	}
	return strings.Join(ctx, "\n")
}

var importPrefixes = []string{
	"import ", "import(", "from ", "using ", "require(", "require ",
	"#include", "package ", "use ", "extern crate ",
}

func isImportLine(trimmed string) bool {
	for _, p := range importPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return trimmed == "import" || trimmed == "import ("
}

func isCommentLine(trimmed string) bool {
	return strings.HasPrefix(trimmed, "//") ||
		strings.HasPrefix(trimmed, "#") ||
		strings.HasPrefix(trimmed, "/*") ||
		strings.HasPrefix(trimmed, "*") ||
		strings.HasPrefix(trimmed, "--")
}

// extractDependencies pulls referenced module names out of import lines.
func extractDependencies(lines []string) []string {
	limit := contextScanLines
	if limit > len(lines) {
		limit = len(lines)
	}
	var deps []string
	seen := make(map[string]bool)
	for _, line := range lines[:limit] {
		trimmed := strings.TrimSpace(line)
		if !isImportLine(trimmed) {
			continue
		}
		name := importTarget(trimmed)
		if name != "" && !seen[name] {
			seen[name] = true
			deps = append(deps, name)
		}
	}
	return deps
}

// importTarget extracts the quoted or trailing module name of an import
// line. Best effort only.
func importTarget(line string) string {
	if start := strings.IndexAny(line, `"'`); start >= 0 {
		quote := line[start]
		rest := line[start+1:]
		if end := strings.IndexByte(rest, quote); end > 0 {
			return rest[:end]
		}
	}
	fields := strings.Fields(strings.TrimRight(line, ";"))
	if len(fields) >= 2 {
		return fields[len(fields)-1]
	}
	return ""
}

func moduleChunk(filePath string, lines []string, fileContext string, deps []string) Chunk {
	content := strings.Join(lines, "\n")
	if len(content) > moduleCharBudget {
		end := moduleCharBudget
		for end > 0 && !utf8.RuneStart(content[end]) {
			end--
		}
		content = content[:end]
	}
	name := filePath
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		name = name[idx+1:]
	}
	return Chunk{
		Type:         TypeModule,
		Name:         name,
		Signature:    name,
		Content:      content,
		Context:      fileContext,
		StartLine:    1,
		EndLine:      len(lines),
		Dependencies: deps,
		Patterns:     detectPatterns(name, content),
	}
}
