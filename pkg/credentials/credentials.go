// Package credentials defines the polymorphic credential records, the
// matcher algebra used to filter them, and the persistable record form
// stores read and write.
//
// Credentials are immutable once constructed: mutation happens by
// replacing a credential in its store, never in place.
package credentials

import (
	"sync"

	credErrors "github.com/systmms/credhub/internal/errors"
	"github.com/systmms/credhub/internal/logging"
)

// Credential is a typed, id-bearing record with one or more secret
// fields and metadata.
type Credential interface {
	// ID returns the stable opaque identifier, unique within a store.
	ID() string
	// Description returns the human-readable label.
	Description() string
	// Scope returns the visibility rule.
	Scope() Scope
	// TypeTag returns the credential variant tag, e.g. "usernamePassword".
	TypeTag() string
	// Snapshot returns the deterministic, secret-redacted field map used
	// for fingerprinting and equality of non-secret state. Secret fields
	// appear as the fixed redaction token.
	Snapshot() map[string]string
	// ToRecord returns the persistable form; secret fields carry
	// ciphertext tokens only.
	ToRecord() Record
}

// RunContextual is implemented by credentials that contextualise
// themselves for a run, e.g. by materialising key files. The resolution
// layer discards the result if it is no longer of the requested type.
type RunContextual interface {
	ForRun(run any) (Credential, error)
}

/// Record is the persisted shape of a credential: common metadata plus
// type-specific fields. Secret fields hold ciphertext tokens.
type Record struct {
	Type        string            `yaml:"type"`
	Scope       string            `yaml:"scope"`
	ID          string            `yaml:"id"`
	Description string            `yaml:"description,omitempty"`
	Fields      map[string]string `yaml:"fields,omitempty"`
}

// Decoder rebuilds one credential variant from its record form.
type Decoder func(Record) (Credential, error)

var (
	decodersMu sync.RWMutex
	decoders   = make(map[string]Decoder)
)

// RegisterType registers a decoder for a credential type tag. Built-in
// types self-register; extension types register at startup.
func RegisterType(tag string, dec Decoder) {
	decodersMu.Lock()
	defer decodersMu.Unlock()
	decoders[tag] = dec
}

// KnownTypes returns the registered type tags.
func KnownTypes() []string {
	decodersMu.RLock()
	defer decodersMu.RUnlock()
	tags := make([]string, 0, len(decoders))
	for tag := range decoders {
		tags = append(tags, tag)
	}
	return tags
}

// FromRecord rebuilds a credential from its persisted form.
func FromRecord(rec Record) (Credential, error) {
	decodersMu.RLock()
	dec, ok := decoders[rec.Type]
	decodersMu.RUnlock()
	if !ok {
		return nil, credErrors.Invalidf("unknown credential type %q", rec.Type)
	}
	return dec(rec)
}

// redacted is the token all snapshots substitute for secret fields.
const redacted = logging.RedactedToken

func baseSnapshot(c Credential) map[string]string {
	return map[string]string{
		"type":        c.TypeTag(),
		"scope":       c.Scope().String(),
		"id":          c.ID(),
		"description": c.Description(),
	}
}
