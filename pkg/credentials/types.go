package credentials

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/systmms/credhub/internal/cipher"
	credErrors "github.com/systmms/credhub/internal/errors"
	"github.com/systmms/credhub/internal/secret"
)

// The built-in credential type tags.
const (
	TypeUsernamePassword = "usernamePassword"
	TypeSecretText       = "secretText"
	TypeSecretFile       = "secretFile"
	TypeCertificate      = "certificate"
	TypeSSHPrivateKey    = "sshPrivateKey"
)

// fipsMinPasswordLength is the minimum password length enforced when the
// deployment runs with FIPS algorithms enabled.
const fipsMinPasswordLength = 14

// Factory constructs credentials under a cipher and the deployment's
// validation policy.
type Factory struct {
	Cipher cipher.Cipher
	// FIPS enforces the minimum password length at construction.
	FIPS bool
}

func (f Factory) id(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func (f Factory) checkPassword(password string) error {
	if f.FIPS && len(password) < fipsMinPasswordLength {
		return credErrors.Invalidf("password shorter than %d characters rejected in FIPS mode", fipsMinPasswordLength)
	}
	return nil
}

// meta is the common metadata every credential variant carries.
type meta struct {
	scope       Scope
	id          string
	description string
}

func (m meta) ID() string          { return m.id }
func (m meta) Description() string { return m.description }
func (m meta) Scope() Scope        { return m.scope }

// UsernamePassword is a username and password pair. When
// UsernameIsSecret is set, the username is redacted alongside the
// password in externalised forms.
type UsernamePassword struct {
	meta
	Username         string
	UsernameIsSecret bool
	Password         secret.SecretString
}

// NewUsernamePassword constructs a username/password credential. An
// empty id is replaced with a generated one.
func (f Factory) NewUsernamePassword(scope Scope, id, description, username, password string, usernameIsSecret bool) (*UsernamePassword, error) {
	if err := f.checkPassword(password); err != nil {
		return nil, err
	}
	pw, err := secret.NewString(f.Cipher, password)
	if err != nil {
		return nil, err
	}
	return &UsernamePassword{
		meta:             meta{scope: scope, id: f.id(id), description: description},
		Username:         username,
		UsernameIsSecret: usernameIsSecret,
		Password:         pw,
	}, nil
}

func (c *UsernamePassword) TypeTag() string { return TypeUsernamePassword }

func (c *UsernamePassword) Snapshot() map[string]string {
	snap := baseSnapshot(c)
	if c.UsernameIsSecret {
		snap["username"] = redacted
	} else {
		snap["username"] = c.Username
	}
	snap["usernameIsSecret"] = strconv.FormatBool(c.UsernameIsSecret)
	snap["password"] = redacted
	return snap
}

func (c *UsernamePassword) ToRecord() Record {
	return Record{
		Type:        TypeUsernamePassword,
		Scope:       c.scope.String(),
		ID:          c.id,
		Description: c.description,
		Fields: map[string]string{
			"username":         c.Username,
			"usernameIsSecret": strconv.FormatBool(c.UsernameIsSecret),
			"password":         c.Password.Token(),
		},
	}
}

// SecretText is an opaque secret string (API token, webhook secret).
type SecretText struct {
	meta
	Secret secret.SecretString
}

// NewSecretText constructs a secret text credential.
func (f Factory) NewSecretText(scope Scope, id, description, text string) (*SecretText, error) {
	s, err := secret.NewString(f.Cipher, text)
	if err != nil {
		return nil, err
	}
	return &SecretText{
		meta:   meta{scope: scope, id: f.id(id), description: description},
		Secret: s,
	}, nil
}

func (c *SecretText) TypeTag() string { return TypeSecretText }

func (c *SecretText) Snapshot() map[string]string {
	snap := baseSnapshot(c)
	snap["secret"] = redacted
	return snap
}

func (c *SecretText) ToRecord() Record {
	return Record{
		Type:        TypeSecretText,
		Scope:       c.scope.String(),
		ID:          c.id,
		Description: c.description,
		Fields:      map[string]string{"secret": c.Secret.Token()},
	}
}

// SecretFile is a named secret byte blob.
type SecretFile struct {
	meta
	FileName string
	Content  secret.SecretBytes
}

// NewSecretFile constructs a secret file credential. The caller keeps
// ownership of content and should zero it after the call.
func (f Factory) NewSecretFile(scope Scope, id, description, fileName string, content []byte) (*SecretFile, error) {
	if fileName == "" {
		return nil, credErrors.Invalidf("secret file needs a file name")
	}
	b, err := secret.NewBytes(f.Cipher, content)
	if err != nil {
		return nil, err
	}
	return &SecretFile{
		meta:     meta{scope: scope, id: f.id(id), description: description},
		FileName: fileName,
		Content:  b,
	}, nil
}

func (c *SecretFile) TypeTag() string { return TypeSecretFile }

func (c *SecretFile) Snapshot() map[string]string {
	snap := baseSnapshot(c)
	snap["fileName"] = c.FileName
	snap["content"] = redacted
	return snap
}

func (c *SecretFile) ToRecord() Record {
	return Record{
		Type:        TypeSecretFile,
		Scope:       c.scope.String(),
		ID:          c.id,
		Description: c.description,
		Fields: map[string]string{
			"fileName": c.FileName,
			"content":  c.Content.Token(),
		},
	}
}

// ForRun contextualises the file for a run; the default implementation
// returns the credential unchanged and leaves materialisation to the
// consumer.
func (c *SecretFile) ForRun(run any) (Credential, error) {
	return c, nil
}

// Certificate is a keystore blob plus its password.
type Certificate struct {
	meta
	KeyStore secret.SecretBytes
	Password secret.SecretString
}

// NewCertificate constructs a certificate credential.
func (f Factory) NewCertificate(scope Scope, id, description string, keyStore []byte, password string) (*Certificate, error) {
	if len(keyStore) == 0 {
		return nil, credErrors.Invalidf("certificate needs keystore bytes")
	}
	ks, err := secret.NewBytes(f.Cipher, keyStore)
	if err != nil {
		return nil, err
	}
	pw, err := secret.NewString(f.Cipher, password)
	if err != nil {
		return nil, err
	}
	return &Certificate{
		meta:     meta{scope: scope, id: f.id(id), description: description},
		KeyStore: ks,
		Password: pw,
	}, nil
}

func (c *Certificate) TypeTag() string { return TypeCertificate }

func (c *Certificate) Snapshot() map[string]string {
	snap := baseSnapshot(c)
	snap["keyStore"] = redacted
	snap["password"] = redacted
	return snap
}

func (c *Certificate) ToRecord() Record {
	return Record{
		Type:        TypeCertificate,
		Scope:       c.scope.String(),
		ID:          c.id,
		Description: c.description,
		Fields: map[string]string{
			"keyStore": c.KeyStore.Token(),
			"password": c.Password.Token(),
		},
	}
}

// SSHPrivateKey is an SSH username plus private key and optional
// passphrase.
type SSHPrivateKey struct {
	meta
	Username   string
	PrivateKey secret.SecretString
	Passphrase secret.SecretString
}

// NewSSHPrivateKey constructs an SSH private key credential.
func (f Factory) NewSSHPrivateKey(scope Scope, id, description, username, privateKey, passphrase string) (*SSHPrivateKey, error) {
	if privateKey == "" {
		return nil, credErrors.Invalidf("ssh credential needs a private key")
	}
	key, err := secret.NewString(f.Cipher, privateKey)
	if err != nil {
		return nil, err
	}
	pp, err := secret.NewString(f.Cipher, passphrase)
	if err != nil {
		return nil, err
	}
	return &SSHPrivateKey{
		meta:       meta{scope: scope, id: f.id(id), description: description},
		Username:   username,
		PrivateKey: key,
		Passphrase: pp,
	}, nil
}

func (c *SSHPrivateKey) TypeTag() string { return TypeSSHPrivateKey }

func (c *SSHPrivateKey) Snapshot() map[string]string {
	snap := baseSnapshot(c)
	snap["username"] = c.Username
	snap["privateKey"] = redacted
	snap["passphrase"] = redacted
	return snap
}

func (c *SSHPrivateKey) ToRecord() Record {
	return Record{
		Type:        TypeSSHPrivateKey,
		Scope:       c.scope.String(),
		ID:          c.id,
		Description: c.description,
		Fields: map[string]string{
			"username":   c.Username,
			"privateKey": c.PrivateKey.Token(),
			"passphrase": c.Passphrase.Token(),
		},
	}
}

func decodeMeta(rec Record) (meta, error) {
	scope, err := ParseScope(rec.Scope)
	if err != nil {
		return meta{}, err
	}
	if rec.ID == "" {
		return meta{}, credErrors.Invalidf("credential record of type %q has no id", rec.Type)
	}
	return meta{scope: scope, id: rec.ID, description: rec.Description}, nil
}

func init() {
	RegisterType(TypeUsernamePassword, func(rec Record) (Credential, error) {
		m, err := decodeMeta(rec)
		if err != nil {
			return nil, err
		}
		return &UsernamePassword{
			meta:             m,
			Username:         rec.Fields["username"],
			UsernameIsSecret: rec.Fields["usernameIsSecret"] == "true",
			Password:         secret.StringFromToken(rec.Fields["password"]),
		}, nil
	})
	RegisterType(TypeSecretText, func(rec Record) (Credential, error) {
		m, err := decodeMeta(rec)
		if err != nil {
			return nil, err
		}
		return &SecretText{meta: m, Secret: secret.StringFromToken(rec.Fields["secret"])}, nil
	})
	RegisterType(TypeSecretFile, func(rec Record) (Credential, error) {
		m, err := decodeMeta(rec)
		if err != nil {
			return nil, err
		}
		return &SecretFile{
			meta:     m,
			FileName: rec.Fields["fileName"],
			Content:  secret.BytesFromToken(rec.Fields["content"]),
		}, nil
	})
	RegisterType(TypeCertificate, func(rec Record) (Credential, error) {
		m, err := decodeMeta(rec)
		if err != nil {
			return nil, err
		}
		return &Certificate{
			meta:     m,
			KeyStore: secret.BytesFromToken(rec.Fields["keyStore"]),
			Password: secret.StringFromToken(rec.Fields["password"]),
		}, nil
	})
	RegisterType(TypeSSHPrivateKey, func(rec Record) (Credential, error) {
		m, err := decodeMeta(rec)
		if err != nil {
			return nil, err
		}
		return &SSHPrivateKey{
			meta:       m,
			Username:   rec.Fields["username"],
			PrivateKey: secret.StringFromToken(rec.Fields["privateKey"]),
			Passphrase: secret.StringFromToken(rec.Fields["passphrase"]),
		}, nil
	})
}

// Equal compares two credentials by value: metadata, non-secret fields
// byte-wise and secret fields by plaintext under c.
func Equal(c cipher.Cipher, a, b Credential) bool {
	if a == nil || b == nil {
		return a == b
	}
	ra, rb := a.ToRecord(), b.ToRecord()
	if ra.Type != rb.Type || ra.Scope != rb.Scope || ra.ID != rb.ID || ra.Description != rb.Description {
		return false
	}
	if len(ra.Fields) != len(rb.Fields) {
		return false
	}
	for key, va := range ra.Fields {
		vb, ok := rb.Fields[key]
		if !ok {
			return false
		}
		if c.IsEncrypted(va) && c.IsEncrypted(vb) {
			if !cipher.Equal(c, va, vb) {
				return false
			}
			continue
		}
		if va != vb {
			return false
		}
	}
	return true
}
