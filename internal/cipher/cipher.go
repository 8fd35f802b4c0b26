// Package cipher implements the pluggable cipher service used by the
// secret primitives. Ciphertext is carried as a self-describing token:
//
//	"{" + base64( versionByte || nonce || sealed ) + "}"
//
// The version byte selects the algorithm and key generation, which is
// what enables key rotation: decryption recognises every registered
// version, encryption always uses the newest.
package cipher

import (
	"bytes"
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"regexp"

	credErrors "github.com/systmms/credhub/internal/errors"
)

// KeySize is the AES-256 key size in bytes.
const KeySize = 32

// versionGCM identifies AES-256-GCM sealed tokens.
const versionGCM byte = 0x01

// TokenPattern recognises ciphertext tokens. The shortest possible token
// body is version(1) + nonce(12) + tag(16) bytes, 40 base64 characters.
// The redactor package reuses this pattern.
var TokenPattern = regexp.MustCompile(`\{[A-Za-z0-9+/]{40,}={0,2}\}`)

// Cipher encrypts and decrypts secret primitives.
type Cipher interface {
	// Encrypt seals plaintext into a ciphertext token.
	Encrypt(plaintext []byte) (string, error)

	// Decrypt opens a ciphertext token. Fails with InvalidArgument for
	// malformed tokens and IO for key or authentication failures.
	Decrypt(token string) ([]byte, error)

	// IsEncrypted reports whether s looks like a ciphertext token.
	IsEncrypted(s string) bool
}

// AESGCM is the built-in Cipher. It is not deterministic bitwise (a fresh
// nonce is drawn per encryption); equality of secrets is defined by
// comparing plaintexts, see Equal.
type AESGCM struct {
	keys    map[byte][]byte
	current byte
}

// NewAESGCM creates a cipher with a single current key.
func NewAESGCM(key []byte) (*AESGCM, error) {
	if len(key) != KeySize {
		return nil, credErrors.Invalidf("cipher key must be %d bytes, got %d", KeySize, len(key))
	}
	return &AESGCM{
		keys:    map[byte][]byte{versionGCM: key},
		current: versionGCM,
	}, nil
}

// AddKeyVersion registers an additional key under a new version byte and
// makes it current. Tokens sealed under older versions remain decryptable.
func (c *AESGCM) AddKeyVersion(version byte, key []byte) error {
	if len(key) != KeySize {
		return credErrors.Invalidf("cipher key must be %d bytes, got %d", KeySize, len(key))
	}
	if _, exists := c.keys[version]; exists {
		return credErrors.Conflictf("cipher key version %d already registered", version)
	}
	c.keys[version] = key
	c.current = version
	return nil
}

func (c *AESGCM) aead(version byte) (gocipher.AEAD, error) {
	key, ok := c.keys[version]
	if !ok {
		return nil, credErrors.New(credErrors.IO, "no cipher key for version %d", version)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, credErrors.Wrap(credErrors.IO, err, "initialising cipher")
	}
	return gocipher.NewGCM(block)
}

// Encrypt seals plaintext under the current key version.
func (c *AESGCM) Encrypt(plaintext []byte) (string, error) {
	aead, err := c.aead(c.current)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", credErrors.Wrap(credErrors.IO, err, "drawing nonce")
	}
	sealed := aead.Seal(nil, nonce, plaintext, []byte{c.current})

	body := make([]byte, 0, 1+len(nonce)+len(sealed))
	body = append(body, c.current)
	body = append(body, nonce...)
	body = append(body, sealed...)
	return "{" + base64.StdEncoding.EncodeToString(body) + "}", nil
}

// Decrypt opens a token sealed by any registered key version.
func (c *AESGCM) Decrypt(token string) ([]byte, error) {
	if !c.IsEncrypted(token) {
		return nil, credErrors.Invalidf("not a ciphertext token")
	}
	body, err := base64.StdEncoding.DecodeString(token[1 : len(token)-1])
	if err != nil {
		return nil, credErrors.Wrap(credErrors.InvalidArgument, err, "decoding ciphertext token")
	}
	version := body[0]
	aead, err := c.aead(version)
	if err != nil {
		return nil, err
	}
	if len(body) < 1+aead.NonceSize() {
		return nil, credErrors.Invalidf("ciphertext token too short")
	}
	nonce := body[1 : 1+aead.NonceSize()]
	sealed := body[1+aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, []byte{version})
	if err != nil {
		return nil, credErrors.Wrap(credErrors.IO, err, "opening ciphertext")
	}
	return plaintext, nil
}

// IsEncrypted reports whether s is shaped like a ciphertext token.
func (c *AESGCM) IsEncrypted(s string) bool {
	if len(s) < 3 || s[0] != '{' || s[len(s)-1] != '}' {
		return false
	}
	return TokenPattern.MatchString(s)
}

// Equal reports whether two tokens seal the same plaintext. This is the
// deterministic-for-equality comparison the store and fingerprinting rely
// on; tokens never compare byte-wise because nonces differ.
func Equal(c Cipher, a, b string) bool {
	if a == b {
		return true
	}
	pa, errA := c.Decrypt(a)
	pb, errB := c.Decrypt(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(pa, pb)
}
