package logging

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecretNeverFormatsPlaintext(t *testing.T) {
	t.Parallel()

	s := Secret("super-secret-password")
	assert.Equal(t, RedactedToken, s.String())
	assert.Equal(t, RedactedToken, s.GoString())
	assert.Equal(t, RedactedToken, fmt.Sprintf("%v", s))
	assert.Equal(t, RedactedToken, fmt.Sprintf("%#v", s))
}

func TestRedact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		secrets  []string
		expected string
	}{
		{
			name:     "single secret",
			input:    "password is hunter42",
			secrets:  []string{"hunter42"},
			expected: "password is " + RedactedToken,
		},
		{
			name:     "multiple occurrences",
			input:    "tok123 and again tok123",
			secrets:  []string{"tok123"},
			expected: RedactedToken + " and again " + RedactedToken,
		},
		{
			name:     "short secrets skipped",
			input:    "value is abc",
			secrets:  []string{"abc"},
			expected: "value is abc",
		},
		{
			name:     "no secrets",
			input:    "nothing here",
			secrets:  nil,
			expected: "nothing here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Redact(tt.input, tt.secrets))
		})
	}
}

func TestDebugSuppressedByDefault(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(false, &buf)
	logger.Debug("should not appear")
	assert.Empty(t, buf.String())

	logger = NewWithWriter(true, &buf)
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestLevelsWriteToSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(false, &buf)
	logger.Info("stored %d credentials", 3)
	logger.Warn("provider %s skipped", "aws")
	logger.Error("save failed")

	out := buf.String()
	assert.Contains(t, out, "stored 3 credentials")
	assert.Contains(t, out, "provider aws skipped")
	assert.Contains(t, out, "save failed")
}
