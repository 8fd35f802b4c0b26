package binding

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credhub/internal/cipher"
	credErrors "github.com/systmms/credhub/internal/errors"
	"github.com/systmms/credhub/internal/fingerprint"
	"github.com/systmms/credhub/internal/hierarchy"
	"github.com/systmms/credhub/internal/logging"
	"github.com/systmms/credhub/internal/permissions"
	"github.com/systmms/credhub/internal/providers"
	"github.com/systmms/credhub/internal/resolve"
	"github.com/systmms/credhub/pkg/credentials"
	"github.com/systmms/credhub/pkg/domain"
)

type harness struct {
	binder  *Binder
	ledger  *fingerprint.Ledger
	source  *providers.FileStoreSource
	root    *hierarchy.Context
	job     *hierarchy.Context
	factory credentials.Factory
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	c, err := cipher.NewAESGCM(bytes.Repeat([]byte{0x61}, cipher.KeySize))
	require.NoError(t, err)

	root := hierarchy.NewRoot()
	job, err := root.NewItem("deploy-job")
	require.NoError(t, err)

	checker := permissions.Checker{}
	source := providers.NewFileStoreSource(t.TempDir(), c, checker, nil)
	registry := providers.NewRegistry(nil)
	require.NoError(t, registry.Register(providers.NewSystemProvider(source)))
	require.NoError(t, registry.Register(providers.NewFolderProvider(source)))
	require.NoError(t, registry.Register(providers.NewUserProvider(source)))

	ledger := fingerprint.NewLedger(fingerprint.Options{Enabled: true})
	engine := resolve.New(registry, root, checker)

	return &harness{
		binder:  NewBinder(engine, ledger),
		ledger:  ledger,
		source:  source,
		root:    root,
		job:     job,
		factory: credentials.Factory{Cipher: c},
	}
}

func (h *harness) seed(t *testing.T, ctx *hierarchy.Context, scope credentials.Scope, id string) credentials.Credential {
	t.Helper()
	c, err := h.factory.NewSecretText(scope, id, "", "value-"+id)
	require.NoError(t, err)
	st, err := h.source.For(ctx)
	require.NoError(t, err)
	_, err = st.AddCredentials(domain.Global(), c)
	require.NoError(t, err)
	return c
}

func TestResolveLiteralID(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.seed(t, h.root, credentials.ScopeGlobal, "deploy-key")
	run := NewRun(h.job, "42", permissions.System)

	got, err := h.binder.ResolveByID(context.Background(), credentials.TypeSecretText, "deploy-key", run)
	require.NoError(t, err)
	assert.Equal(t, "deploy-key", got.ID())
}

func TestResolveRecordsFingerprintWhileInProgress(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	cred := h.seed(t, h.root, credentials.ScopeGlobal, "deploy-key")
	run := NewRun(h.job, "42", permissions.System)

	_, err := h.binder.ResolveByID(context.Background(), credentials.TypeSecretText, "deploy-key", run)
	require.NoError(t, err)

	rec, err := h.ledger.Of(cred)
	require.NoError(t, err)
	require.Len(t, rec.Runs, 1)
	assert.Equal(t, "deploy-job", rec.Runs[0].Job)
	assert.Equal(t, "42", rec.Runs[0].RunID)

	// A finished run resolves without recording.
	run.Finish()
	_, err = h.binder.ResolveByID(context.Background(), credentials.TypeSecretText, "deploy-key", run)
	require.NoError(t, err)
	rec, err = h.ledger.Of(cred)
	require.NoError(t, err)
	assert.Equal(t, "42", rec.Runs[len(rec.Runs)-1].RunID)
}

func TestDefaultParameterResolvesAsRunPrincipal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.seed(t, h.root, credentials.ScopeGlobal, "default-cred")

	run := NewRun(h.job, "7", permissions.System)
	run.SetParameter(Parameter{Name: "CREDS", CredentialID: "default-cred", IsDefault: true})

	got, err := h.binder.ResolveByID(context.Background(), credentials.TypeSecretText, "${CREDS}", run)
	require.NoError(t, err)
	assert.Equal(t, "default-cred", got.ID())
}

func TestUserSuppliedParameterResolvesAsThatUser(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	aliceCtx, err := h.root.User("alice")
	require.NoError(t, err)
	h.seed(t, aliceCtx, credentials.ScopeUser, "alice-token")
	h.job.ACL().Grant(permissions.Principal{ID: "alice"}, permissions.UseOwn)

	run := NewRun(h.job, "7", permissions.System)
	run.SetParameter(Parameter{Name: "CREDS", CredentialID: "alice-token", UserID: "alice"})

	got, err := h.binder.ResolveByID(context.Background(), credentials.TypeSecretText, "${CREDS}", run)
	require.NoError(t, err)
	assert.Equal(t, "alice-token", got.ID())
}

func TestUserSuppliedParameterDoesNotLeakOthersCredentials(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	bobCtx, err := h.root.User("bob")
	require.NoError(t, err)
	h.seed(t, bobCtx, credentials.ScopeUser, "bob-token")
	h.job.ACL().Grant(permissions.Principal{ID: "alice"}, permissions.UseOwn)
	h.job.ACL().Grant(permissions.Principal{ID: "bob"}, permissions.UseOwn)

	run := NewRun(h.job, "7", permissions.System)
	// Alice claims bob's credential id.
	run.SetParameter(Parameter{Name: "CREDS", CredentialID: "bob-token", UserID: "alice"})

	_, err = h.binder.ResolveByID(context.Background(), credentials.TypeSecretText, "${CREDS}", run)
	assert.True(t, credErrors.IsKind(err, credErrors.NotFound))
}

func TestUnknownParameterReference(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	run := NewRun(h.job, "7", permissions.System)

	_, err := h.binder.ResolveByID(context.Background(), credentials.TypeSecretText, "${MISSING}", run)
	assert.True(t, credErrors.IsKind(err, credErrors.NotFound))
}

func TestUnknownParameterReferenceFallsBackToLiteralID(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.seed(t, h.root, credentials.ScopeGlobal, "deploy-key")
	run := NewRun(h.job, "7", permissions.System)

	// No parameter named deploy-key exists, so the reference resolves
	// as a literal credential id.
	got, err := h.binder.ResolveByID(context.Background(), credentials.TypeSecretText, "${deploy-key}", run)
	require.NoError(t, err)
	assert.Equal(t, "deploy-key", got.ID())
}

func TestUserSuppliedParameterRequiresUser(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	run := NewRun(h.job, "7", permissions.System)
	run.SetParameter(Parameter{Name: "CREDS", CredentialID: "x"})

	_, err := h.binder.ResolveByID(context.Background(), credentials.TypeSecretText, "${CREDS}", run)
	assert.True(t, credErrors.IsKind(err, credErrors.InvalidArgument))
}

func TestFinishedRunIgnoresParameters(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.seed(t, h.root, credentials.ScopeGlobal, "deploy-key")

	run := NewRun(h.job, "7", permissions.System)
	run.SetParameter(Parameter{Name: "CREDS", CredentialID: "deploy-key", IsDefault: true})
	run.Finish()

	// The parameter is no longer consulted; CREDS is not a real id.
	_, err := h.binder.ResolveByID(context.Background(), credentials.TypeSecretText, "${CREDS}", run)
	assert.True(t, credErrors.IsKind(err, credErrors.NotFound))

	// Literal ids still resolve.
	got, err := h.binder.ResolveByID(context.Background(), credentials.TypeSecretText, "deploy-key", run)
	require.NoError(t, err)
	assert.Equal(t, "deploy-key", got.ID())
}

// shapeShifter contextualises itself into a different credential.
type shapeShifter struct {
	*credentials.SecretText
	into credentials.Credential
}

func (s *shapeShifter) ForRun(run any) (credentials.Credential, error) {
	return s.into, nil
}

func TestWrongTypeRunFormIsDiscarded(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	text, err := h.factory.NewSecretText(credentials.ScopeGlobal, "morph", "", "v")
	require.NoError(t, err)
	up, err := h.factory.NewUsernamePassword(credentials.ScopeGlobal, "morph", "", "alice", "hunter42hunter42", false)
	require.NoError(t, err)

	st, err := h.source.For(h.root)
	require.NoError(t, err)
	_, err = st.AddCredentials(domain.Global(), &shapeShifter{SecretText: text, into: up})
	require.NoError(t, err)

	var logs bytes.Buffer
	binder := NewBinder(h.binder.engine, h.ledger, WithLogger(logging.NewWithWriter(false, &logs)))
	run := NewRun(h.job, "9", permissions.System)

	got, err := binder.ResolveByID(context.Background(), credentials.TypeSecretText, "morph", run)
	require.NoError(t, err)
	assert.Equal(t, credentials.TypeSecretText, got.TypeTag())
	assert.Contains(t, logs.String(), "discarding run form")
}

func TestNilRunRejected(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.binder.ResolveByID(context.Background(), credentials.TypeSecretText, "x", nil)
	assert.True(t, credErrors.IsKind(err, credErrors.InvalidArgument))
}
