// Package secret provides the opaque containers for secret material.
// A SecretString or SecretBytes only ever holds a ciphertext token;
// plaintext exists transiently, and for byte payloads inside a
// memguard-locked buffer the caller must destroy.
package secret

import (
	"github.com/awnumar/memguard"
	"gopkg.in/yaml.v3"

	"github.com/systmms/credhub/internal/cipher"
	credErrors "github.com/systmms/credhub/internal/errors"
	"github.com/systmms/credhub/internal/logging"
)

// SecretString wraps an encrypted text value (password, token, passphrase).
type SecretString struct {
	token string
}

// NewString encrypts plaintext into a SecretString.
func NewString(c cipher.Cipher, plaintext string) (SecretString, error) {
	token, err := c.Encrypt([]byte(plaintext))
	if err != nil {
		return SecretString{}, err
	}
	return SecretString{token: token}, nil
}

// StringFromToken wraps an existing ciphertext token, as read from a
// persisted store document.
func StringFromToken(token string) SecretString {
	return SecretString{token: token}
}

// Token returns the ciphertext form. This is what serialisation emits.
func (s SecretString) Token() string {
	return s.token
}

// Plaintext decrypts the value. In-process use only.
func (s SecretString) Plaintext(c cipher.Cipher) (string, error) {
	if s.token == "" {
		return "", nil
	}
	data, err := c.Decrypt(s.token)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// IsZero reports whether the secret is unset.
func (s SecretString) IsZero() bool {
	return s.token == ""
}

// Equal compares plaintexts under c. Tokens are never compared byte-wise.
func (s SecretString) Equal(c cipher.Cipher, other SecretString) bool {
	if s.token == "" || other.token == "" {
		return s.token == other.token
	}
	return cipher.Equal(c, s.token, other.token)
}

// String implements fmt.Stringer; it always redacts.
func (s SecretString) String() string {
	return logging.RedactedToken
}

// GoString implements fmt.GoStringer; it always redacts.
func (s SecretString) GoString() string {
	return logging.RedactedToken
}

// MarshalYAML emits the ciphertext token, never plaintext.
func (s SecretString) MarshalYAML() (interface{}, error) {
	return s.token, nil
}

// UnmarshalYAML accepts a ciphertext token.
func (s *SecretString) UnmarshalYAML(node *yaml.Node) error {
	var token string
	if err := node.Decode(&token); err != nil {
		return credErrors.Wrap(credErrors.InvalidArgument, err, "decoding secret string")
	}
	s.token = token
	return nil
}

// SecretBytes wraps an encrypted byte payload (key file, keystore).
type SecretBytes struct {
	token string
}

// NewBytes encrypts data into a SecretBytes. The caller keeps ownership
// of data and should zero it after use.
func NewBytes(c cipher.Cipher, data []byte) (SecretBytes, error) {
	token, err := c.Encrypt(data)
	if err != nil {
		return SecretBytes{}, err
	}
	return SecretBytes{token: token}, nil
}

// BytesFromToken wraps an existing ciphertext token.
func BytesFromToken(token string) SecretBytes {
	return SecretBytes{token: token}
}

// Token returns the ciphertext form.
func (b SecretBytes) Token() string {
	return b.token
}

// Open decrypts the payload into a memguard-locked buffer. The caller
// MUST call Destroy on the returned buffer to wipe the plaintext.
func (b SecretBytes) Open(c cipher.Cipher) (*memguard.LockedBuffer, error) {
	if b.token == "" {
		return memguard.NewBufferFromBytes([]byte{}), nil
	}
	data, err := c.Decrypt(b.token)
	if err != nil {
		return nil, err
	}
	// NewBufferFromBytes wipes data for us.
	return memguard.NewBufferFromBytes(data), nil
}

// IsZero reports whether the payload is unset.
func (b SecretBytes) IsZero() bool {
	return b.token == ""
}

// Equal compares plaintexts under c.
func (b SecretBytes) Equal(c cipher.Cipher, other SecretBytes) bool {
	if b.token == "" || other.token == "" {
		return b.token == other.token
	}
	return cipher.Equal(c, b.token, other.token)
}

// String implements fmt.Stringer; it always redacts.
func (b SecretBytes) String() string {
	return logging.RedactedToken
}

// GoString implements fmt.GoStringer; it always redacts.
func (b SecretBytes) GoString() string {
	return logging.RedactedToken
}

// MarshalYAML emits the ciphertext token.
func (b SecretBytes) MarshalYAML() (interface{}, error) {
	return b.token, nil
}

// UnmarshalYAML accepts a ciphertext token.
func (b *SecretBytes) UnmarshalYAML(node *yaml.Node) error {
	var token string
	if err := node.Decode(&token); err != nil {
		return credErrors.Wrap(credErrors.InvalidArgument, err, "decoding secret bytes")
	}
	b.token = token
	return nil
}
