package logger

import (
	"io"
	"regexp"
)

// Embedding provider credentials and generic secrets must never land in
// log sinks.
var redactPatterns = []*regexp.Regexp{
	// Voyage and OpenAI API keys
	regexp.MustCompile(`pa-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),

	// Bearer tokens
	regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),

	// Generic credentials
	regexp.MustCompile(`password["\s:=]+[^\s"]+`),
	regexp.MustCompile(`token["\s:=]+[a-zA-Z0-9._-]{20,}`),
	regexp.MustCompile(`secret["\s:=]+[^\s"]+`),
	regexp.MustCompile(`api[_-]?key["\s:=]+[^\s"]+`),
}

// Redact replaces credential-shaped substrings.
func Redact(s string) string {
	for _, pattern := range redactPatterns {
		s = pattern.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

func redactWriter(w io.Writer) io.Writer {
	return &redactingWriter{writer: w}
}

type redactingWriter struct {
	writer io.Writer
}

func (w *redactingWriter) Write(p []byte) (int, error) {
	redacted := Redact(string(p))
	if _, err := w.writer.Write([]byte(redacted)); err != nil {
		return 0, err
	}
	return len(p), nil
}
