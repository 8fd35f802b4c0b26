package secret

import (
	"regexp"
	"sync"

	"github.com/systmms/credhub/internal/cipher"
	"github.com/systmms/credhub/internal/logging"
)

// Redactor replaces one shape of serialised secret with the fixed
// redaction token.
type Redactor struct {
	// Name identifies the redactor, e.g. "secret-string".
	Name string
	// Pattern matches the serialised secret form to be replaced.
	Pattern *regexp.Regexp
}

// Redactors is an ordered, pluggable list of redactors applied to
// externalised configuration documents.
type Redactors struct {
	mu   sync.RWMutex
	list []Redactor
}

// NewRedactors returns a registry seeded with the built-in pair covering
// the secret string and secret bytes token forms.
func NewRedactors() *Redactors {
	return &Redactors{
		// The bytes form embeds the token grammar, so it must run first.
		list: []Redactor{
			{Name: "secret-bytes", Pattern: regexp.MustCompile(`!!binary\s+` + cipher.TokenPattern.String())},
			{Name: "secret-string", Pattern: cipher.TokenPattern},
		},
	}
}

// Register appends a redactor. Later registrations run after built-ins.
func (r *Redactors) Register(red Redactor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, red)
}

// Names returns the registered redactor names in application order.
func (r *Redactors) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.list))
	for _, red := range r.list {
		names = append(names, red.Name)
	}
	return names
}

// RedactDocument replaces every match of every registered redactor with
// the redaction token. Idempotent: the token itself matches no pattern,
// and non-secret content is left untouched.
func (r *Redactors) RedactDocument(doc []byte) []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := doc
	for _, red := range r.list {
		out = red.Pattern.ReplaceAll(out, []byte(logging.RedactedToken))
	}
	return out
}
