package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credhub/internal/cipher"
	credErrors "github.com/systmms/credhub/internal/errors"
	"github.com/systmms/credhub/internal/hierarchy"
	"github.com/systmms/credhub/internal/permissions"
	"github.com/systmms/credhub/pkg/credentials"
	"github.com/systmms/credhub/pkg/domain"
)

type mockSecretsManager struct {
	secrets   map[string]string
	listCalls int
}

func (m *mockSecretsManager) ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.listCalls++
	out := &secretsmanager.ListSecretsOutput{}
	for name := range m.secrets {
		n := name
		out.SecretList = append(out.SecretList, smtypes.SecretListEntry{Name: &n})
	}
	return out, nil
}

func (m *mockSecretsManager) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	value, ok := m.secrets[*params.SecretId]
	if !ok {
		return nil, &smtypes.ResourceNotFoundException{}
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: &value}, nil
}

func awsDoc(t *testing.T, doc awsSecretDoc) string {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(data)
}

func newAWSFixture(t *testing.T, mock *mockSecretsManager) (*AWSStore, credentials.Factory) {
	t.Helper()

	c, err := cipher.NewAESGCM(bytes.Repeat([]byte{0x2a}, cipher.KeySize))
	require.NoError(t, err)
	factory := credentials.Factory{Cipher: c}

	s, err := NewAWSStore(hierarchy.NewRoot(), AWSStoreOptions{
		Prefix:  "credhub/",
		Client:  mock,
		Factory: factory,
		TTL:     time.Hour,
	})
	require.NoError(t, err)
	return s, factory
}

func TestAWSStoreListsPrefixedSecrets(t *testing.T) {
	t.Parallel()

	mock := &mockSecretsManager{secrets: map[string]string{
		"credhub/gh-token": awsDoc(t, awsSecretDoc{
			Type:   credentials.TypeSecretText,
			ID:     "gh-token",
			Fields: map[string]string{"secret": "token-value"},
		}),
		"credhub/deploy": awsDoc(t, awsSecretDoc{
			Type:        credentials.TypeUsernamePassword,
			ID:          "deploy",
			Description: "deploy account",
			Fields: map[string]string{
				"username":         "alice",
				"password":         "hunter42hunter42",
				"usernameIsSecret": "true",
			},
		}),
		"unrelated/other": `{"type":"secretText","fields":{"secret":"x"}}`,
	}}
	s, factory := newAWSFixture(t, mock)

	creds := s.Credentials(domain.Global())
	require.Len(t, creds, 2)

	byID := make(map[string]credentials.Credential, len(creds))
	for _, c := range creds {
		byID[c.ID()] = c
	}

	tok, ok := byID["gh-token"].(*credentials.SecretText)
	require.True(t, ok)
	plain, err := tok.Secret.Plaintext(factory.Cipher)
	require.NoError(t, err)
	assert.Equal(t, "token-value", plain)

	up, ok := byID["deploy"].(*credentials.UsernamePassword)
	require.True(t, ok)
	assert.Equal(t, "deploy account", up.Description())
	assert.True(t, up.UsernameIsSecret, "field vocabulary matches the record form")
}

func TestAWSStoreDerivesIDFromName(t *testing.T) {
	t.Parallel()

	mock := &mockSecretsManager{secrets: map[string]string{
		"credhub/implicit-id": awsDoc(t, awsSecretDoc{
			Type:   credentials.TypeSecretText,
			Fields: map[string]string{"secret": "v"},
		}),
	}}
	s, _ := newAWSFixture(t, mock)

	creds := s.Credentials(domain.Global())
	require.Len(t, creds, 1)
	assert.Equal(t, "implicit-id", creds[0].ID())
}

func TestAWSStoreCachesWithinTTL(t *testing.T) {
	t.Parallel()

	mock := &mockSecretsManager{secrets: map[string]string{
		"credhub/tok": awsDoc(t, awsSecretDoc{
			Type:   credentials.TypeSecretText,
			ID:     "tok",
			Fields: map[string]string{"secret": "v"},
		}),
	}}
	s, _ := newAWSFixture(t, mock)

	s.Credentials(domain.Global())
	s.Credentials(domain.Global())
	assert.Equal(t, 1, mock.listCalls)

	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, 2, mock.listCalls)
}

func TestAWSStoreSkipsMalformedSecrets(t *testing.T) {
	t.Parallel()

	mock := &mockSecretsManager{secrets: map[string]string{
		"credhub/bad": "not json",
		"credhub/unknown": awsDoc(t, awsSecretDoc{
			Type:   "quantum",
			ID:     "x",
			Fields: map[string]string{},
		}),
		"credhub/good": awsDoc(t, awsSecretDoc{
			Type:   credentials.TypeSecretText,
			ID:     "good",
			Fields: map[string]string{"secret": "v"},
		}),
	}}
	s, _ := newAWSFixture(t, mock)

	creds := s.Credentials(domain.Global())
	require.Len(t, creds, 1)
	assert.Equal(t, "good", creds[0].ID())
}

func TestAWSStoreHonoursCancellation(t *testing.T) {
	t.Parallel()

	mock := &mockSecretsManager{secrets: map[string]string{
		"credhub/tok": awsDoc(t, awsSecretDoc{
			Type:   credentials.TypeSecretText,
			ID:     "tok",
			Fields: map[string]string{"secret": "v"},
		}),
	}}
	s, _ := newAWSFixture(t, mock)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Empty(t, s.CredentialsContext(cancelled, domain.Global(), ""))
	assert.Zero(t, mock.listCalls)

	creds := s.CredentialsContext(context.Background(), domain.Global(), "")
	require.Len(t, creds, 1)
	assert.Equal(t, "tok", creds[0].ID())
}

func TestAWSStoreIDHintFetchesSingleSecret(t *testing.T) {
	t.Parallel()

	mock := &mockSecretsManager{secrets: map[string]string{
		"credhub/gh-token": awsDoc(t, awsSecretDoc{
			Type:   credentials.TypeSecretText,
			ID:     "gh-token",
			Fields: map[string]string{"secret": "v"},
		}),
		"credhub/named-differently": awsDoc(t, awsSecretDoc{
			Type:   credentials.TypeSecretText,
			ID:     "other-id",
			Fields: map[string]string{"secret": "w"},
		}),
	}}
	s, _ := newAWSFixture(t, mock)

	creds := s.CredentialsContext(context.Background(), domain.Global(), `id == "gh-token"`)
	require.Len(t, creds, 1)
	assert.Equal(t, "gh-token", creds[0].ID())
	assert.Zero(t, mock.listCalls, "an id hint skips the listing")

	// An id that is not derivable from the secret name falls back to
	// the full listing.
	creds = s.CredentialsContext(context.Background(), domain.Global(), `id == "other-id"`)
	require.Len(t, creds, 2)
	assert.Equal(t, 1, mock.listCalls)
}

func TestAWSStoreIsReadOnly(t *testing.T) {
	t.Parallel()

	mock := &mockSecretsManager{secrets: map[string]string{}}
	s, _ := newAWSFixture(t, mock)

	doms := s.Domains()
	require.Len(t, doms, 1)
	assert.True(t, doms[0].IsGlobal())

	_, found := s.DomainByName("production")
	assert.False(t, found)
}

func TestAWSProviderReportsConstructionFailure(t *testing.T) {
	t.Parallel()

	p := &AWSProvider{err: credErrors.New(credErrors.OptionalDependencyMissing, "no AWS credentials")}
	_, err := p.StoresFor(hierarchy.NewRoot(), permissions.System)
	assert.True(t, credErrors.IsKind(err, credErrors.OptionalDependencyMissing))
}
