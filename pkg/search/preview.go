package search

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const previewWindow = 240

var wordPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

// preview extracts the slice of content densest in query terms, rather
// than blindly taking the head. Line boundaries anchor the window so
// snippets stay readable.
func preview(content, query string) string {
	content = strings.TrimSpace(content)
	if len(content) <= previewWindow {
		return content
	}

	terms := map[string]bool{}
	for _, t := range wordPattern.FindAllString(strings.ToLower(query), -1) {
		terms[t] = true
	}
	if len(terms) == 0 {
		return truncate(content, previewWindow)
	}

	lines := strings.Split(content, "\n")
	bestStart, bestScore := 0, -1
	for start := range lines {
		size, score := 0, 0
		for end := start; end < len(lines) && size < previewWindow; end++ {
			size += len(lines[end]) + 1
			for _, w := range wordPattern.FindAllString(strings.ToLower(lines[end]), -1) {
				if terms[w] {
					score++
				}
			}
		}
		if score > bestScore {
			bestStart, bestScore = start, score
		}
	}

	var sb strings.Builder
	for i := bestStart; i < len(lines) && sb.Len() < previewWindow; i++ {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(lines[i])
	}
	return truncate(strings.TrimSpace(sb.String()), previewWindow)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back up to a rune boundary so a multi-byte character is never
	// split.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	cut := s[:n]
	if idx := strings.LastIndexByte(cut, ' '); idx > n/2 {
		cut = cut[:idx]
	}
	return cut + "..."
}
