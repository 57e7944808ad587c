package logger

import (
	"io"
	"regexp"
)

// Redactor scrubs credentials from log output before it reaches a writer.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor returns a Redactor covering the credential shapes this
// program handles: provider API keys, Telegram bot tokens, and bearer
// headers.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// Anthropic and OpenAI style keys.
			regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),
			// Google AI keys.
			regexp.MustCompile(`AIza[a-zA-Z0-9_-]{30,}`),
			// Telegram bot tokens.
			regexp.MustCompile(`\d{8,10}:[a-zA-Z0-9_-]{30,}`),
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),
			regexp.MustCompile(`(?i)(api[_-]?key|token|secret)["\s:=]+[a-zA-Z0-9._-]{12,}`),
		},
	}
}

// AddPattern registers an extra redaction pattern.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact replaces every credential match with a placeholder.
func (r *Redactor) Redact(s string) string {
	for _, pattern := range r.patterns {
		s = pattern.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// Wrap returns a writer that redacts everything written through it.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

func (w *redactingWriter) Write(p []byte) (int, error) {
	redacted := w.redactor.Redact(string(p))
	if _, err := w.writer.Write([]byte(redacted)); err != nil {
		return 0, err
	}
	// Report the original length so zerolog never sees a short write when
	// redaction shrinks the line.
	return len(p), nil
}
