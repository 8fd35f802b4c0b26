package cipher

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"

	credErrors "github.com/systmms/credhub/internal/errors"
)

// keyring coordinates for the master key.
const (
	keyringService = "credhub"
	keyringUser    = "master-key"
)

// LoadFileKey reads the master key from path, creating a fresh random key
// with 0600 permissions on first use.
func LoadFileKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != KeySize {
			return nil, credErrors.Invalidf("key file %s holds %d bytes, want %d", path, len(data), KeySize)
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, credErrors.Wrap(credErrors.IO, err, "reading key file %s", path)
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, credErrors.Wrap(credErrors.IO, err, "generating master key")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, credErrors.Wrap(credErrors.IO, err, "creating key directory")
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, credErrors.Wrap(credErrors.IO, err, "writing key file %s", path)
	}
	return key, nil
}

// LoadKeyringKey reads the master key from the OS keychain, creating one
// on first use. The key is stored base64-encoded because keychains hold
// strings.
func LoadKeyringKey() ([]byte, error) {
	encoded, err := keyring.Get(keyringService, keyringUser)
	if err == nil {
		key, decErr := base64.StdEncoding.DecodeString(encoded)
		if decErr != nil || len(key) != KeySize {
			return nil, credErrors.Invalidf("keychain entry for %s is corrupt", keyringService)
		}
		return key, nil
	}
	if err != keyring.ErrNotFound {
		return nil, credErrors.Wrap(credErrors.IO, err, "reading OS keychain")
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, credErrors.Wrap(credErrors.IO, err, "generating master key")
	}
	if err := keyring.Set(keyringService, keyringUser, base64.StdEncoding.EncodeToString(key)); err != nil {
		return nil, credErrors.Wrap(credErrors.IO, err, "writing OS keychain")
	}
	return key, nil
}

// LoadKey loads the master key from the configured source: "file" (with
// path), "keyring", or "static" (base64 key material, intended for tests).
func LoadKey(source, pathOrMaterial string) ([]byte, error) {
	switch source {
	case "", "file":
		return LoadFileKey(pathOrMaterial)
	case "keyring":
		return LoadKeyringKey()
	case "static":
		key, err := base64.StdEncoding.DecodeString(pathOrMaterial)
		if err != nil || len(key) != KeySize {
			return nil, credErrors.Invalidf("static key must be base64 of %d bytes", KeySize)
		}
		return key, nil
	default:
		return nil, credErrors.Invalidf("unknown cipher key source %q", source)
	}
}
