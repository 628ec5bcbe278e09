package chunker

import (
	"regexp"
	"strings"
	"unicode"
)

type declaration struct {
	chunkType ChunkType
	name      string
	exported  bool
	line      string
}

// declPattern pairs a declaration regex with the chunk type it produces.
// The first capture group is the declaration name. Patterns cover the
// common keyword syntaxes (Go, JS/TS, Python, Java/C#, Rust, Ruby); this
// is pattern matching, not parsing.
type declPattern struct {
	re        *regexp.Regexp
	chunkType ChunkType
}

var declPatterns = []declPattern{
	// Classes and class-like types first so `type Foo struct` is not
	// claimed by a function pattern.
	{regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:public\s+|private\s+|internal\s+|abstract\s+|final\s+|sealed\s+)*(?:class|interface|enum|trait)\s+([A-Za-z_]\w*)`), TypeClass},
	{regexp.MustCompile(`^(?:pub\s+)?(?:struct|enum|trait|impl)\s+([A-Za-z_]\w*)`), TypeClass},
	{regexp.MustCompile(`^type\s+([A-Za-z_]\w*)\s+(?:struct|interface)\b`), TypeClass},

	// Functions and methods.
	{regexp.MustCompile(`^func\s+(?:\([^)]*\)\s+)?([A-Za-z_]\w*)\s*\(`), TypeFunction},
	{regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_]\w*)\s*\(`), TypeFunction},
	{regexp.MustCompile(`^\s*(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\(`), TypeFunction},
	{regexp.MustCompile(`^\s*(?:pub\s+)?(?:async\s+)?fn\s+([A-Za-z_]\w*)`), TypeFunction},
	{regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_]\w*)\s*=\s*(?:async\s+)?(?:function\b|\([^)]*\)\s*=>)`), TypeFunction},
	{regexp.MustCompile(`^\s*(?:public|private|protected)\s+(?:static\s+)?(?:async\s+)?[\w<>,\[\]\s]+?\s([A-Za-z_]\w*)\s*\([^;]*$`), TypeFunction},
	{regexp.MustCompile(`^\s*def\s+(self\.)?([A-Za-z_]\w*)`), TypeFunction},
}

// matchDeclaration reports whether line starts a declaration.
func matchDeclaration(line string) (declaration, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || isCommentLine(trimmed) {
		return declaration{}, false
	}
	for _, p := range declPatterns {
		m := p.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := m[len(m)-1]
		if name == "" {
			continue
		}
		return declaration{
			chunkType: p.chunkType,
			name:      name,
			exported:  isExported(trimmed, name),
			line:      line,
		}, true
	}
	return declaration{}, false
}

func isExported(line, name string) bool {
	if strings.Contains(line, "export ") || strings.Contains(line, "pub ") ||
		strings.Contains(line, "public ") || strings.Contains(line, "module.exports") {
		return true
	}
	// Go convention: exported identifiers start uppercase.
	r := []rune(name)
	return len(r) > 0 && unicode.IsUpper(r[0])
}

func extractExports(decl declaration) []string {
	if decl.exported {
		return []string{decl.name}
	}
	return nil
}

// namePatterns label chunks by role-suggesting name substrings. Labels are
// used for filtering only, never for correctness.
var namePatterns = []string{
	"service", "handler", "controller", "repository", "manager", "client",
	"server", "router", "middleware", "factory", "builder", "validator",
	"parser", "worker", "store", "config", "helper", "util", "test",
}

func detectPatterns(name, body string) []string {
	var labels []string
	lowerName := strings.ToLower(name)
	for _, p := range namePatterns {
		if strings.Contains(lowerName, p) {
			labels = append(labels, p)
		}
	}

	if hasAny(body, "try ", "try{", "try:", "catch", "except", "rescue ", "err != nil", "throw ", "raise ", ".Error(") {
		labels = append(labels, "error-handling")
	}
	if hasAny(body, "async ", "await ", "go func", "Promise", "goroutine", "chan ", "<-") {
		labels = append(labels, "async")
	}
	if hasAny(body, "export ", "module.exports") {
		labels = append(labels, "exports")
	}
	return labels
}

func hasAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
