package search

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestPreviewShortContentVerbatim(t *testing.T) {
	assert.Equal(t, "short note", preview("short note", "anything"))
}

func TestPreviewPicksDensestWindow(t *testing.T) {
	filler := strings.Repeat("unrelated line about nothing in particular\n", 20)
	target := "the retry queue drains with exponential backoff\nbackoff caps at one minute\n"
	content := filler + target + filler

	got := preview(content, "retry backoff")
	assert.Contains(t, got, "retry queue")
	assert.Contains(t, got, "backoff")
}

func TestPreviewNoTermsFallsBackToHead(t *testing.T) {
	content := strings.Repeat("alpha beta gamma delta ", 40)
	got := preview(content, "???")
	assert.True(t, strings.HasPrefix(content, strings.TrimSuffix(got, "...")))
	assert.LessOrEqual(t, len(got), previewWindow+3)
}

func TestTruncateBreaksOnWord(t *testing.T) {
	got := truncate("one two three four five", 12)
	assert.Equal(t, "one two...", got)
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	s := strings.Repeat("é", 200)
	got := truncate(s, previewWindow)
	assert.True(t, utf8.ValidString(got))

	// A cut landing mid-rune backs up instead of splitting it.
	odd := truncate("日本語のドキュメント", 7)
	assert.True(t, utf8.ValidString(odd))
}
