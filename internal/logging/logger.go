// Package logging provides the credhub logger and the redaction helpers
// every subsystem uses before emitting anything derived from secret
// material.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// RedactedToken is the fixed token substituted for secret material in
// logs and externalised documents.
const RedactedToken = "********"

// Logger provides leveled logging with redaction support.
type Logger struct {
	debug   bool
	noColor bool
	out     io.Writer
}

// New creates a new logger writing to stderr.
func New(debug, noColor bool) *Logger {
	return &Logger{debug: debug, noColor: noColor, out: os.Stderr}
}

// NewWithWriter creates a logger with a custom sink, for tests.
func NewWithWriter(debug bool, out io.Writer) *Logger {
	return &Logger{debug: debug, noColor: true, out: out}
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.emit("\033[32m✓\033[0m", "✓", format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.emit("\033[33m⚠\033[0m", "⚠", format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.emit("\033[31m✗\033[0m", "✗", format, args...)
}

// Debug logs a debug message if debug mode is enabled.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.emit("\033[36m[DEBUG]\033[0m", "[DEBUG]", format, args...)
}

func (l *Logger) emit(colorPrefix, plainPrefix, format string, args ...interface{}) {
	prefix := plainPrefix
	if !l.noColor {
		prefix = colorPrefix
	}
	fmt.Fprintf(l.out, "%s %s\n", prefix, fmt.Sprintf(format, args...))
}

// Secret represents a value that must never appear in log output.
type Secret string

// String implements fmt.Stringer, always returning the redacted token.
func (s Secret) String() string {
	return RedactedToken
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return RedactedToken
}

// Redact replaces any occurrence of the given secrets in s with the
// redacted token. Trivially short values are skipped so common substrings
// do not get mangled.
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if len(secret) > 3 {
			result = strings.ReplaceAll(result, secret, RedactedToken)
		}
	}
	return result
}
