package resolve

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credhub/internal/cipher"
	credErrors "github.com/systmms/credhub/internal/errors"
	"github.com/systmms/credhub/internal/hierarchy"
	"github.com/systmms/credhub/internal/permissions"
	"github.com/systmms/credhub/internal/providers"
	"github.com/systmms/credhub/pkg/credentials"
	"github.com/systmms/credhub/pkg/domain"
	"github.com/systmms/credhub/pkg/store"
)

type harness struct {
	engine  *Engine
	source  *providers.FileStoreSource
	root    *hierarchy.Context
	team    *hierarchy.Context
	job     *hierarchy.Context
	factory credentials.Factory
	checker permissions.Checker
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	c, err := cipher.NewAESGCM(bytes.Repeat([]byte{0x5c}, cipher.KeySize))
	require.NoError(t, err)

	root := hierarchy.NewRoot()
	team, err := root.NewFolder("team")
	require.NoError(t, err)
	job, err := team.NewItem("deploy-job")
	require.NoError(t, err)

	checker := permissions.Checker{}
	source := providers.NewFileStoreSource(t.TempDir(), c, checker, nil)
	registry := providers.NewRegistry(nil)
	require.NoError(t, registry.Register(providers.NewSystemProvider(source)))
	require.NoError(t, registry.Register(providers.NewFolderProvider(source)))
	require.NoError(t, registry.Register(providers.NewUserProvider(source)))

	return &harness{
		engine:  New(registry, root, checker, opts...),
		source:  source,
		root:    root,
		team:    team,
		job:     job,
		factory: credentials.Factory{Cipher: c},
		checker: checker,
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

func ids(creds []credentials.Credential) []string {
	var out []string
	for _, c := range creds {
		out = append(out, c.ID())
	}
	return out
}

func TestLookupOrdersNearestFirst(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.seed(t, h.root, credentials.ScopeGlobal, "root-cred")
	h.seed(t, h.team, credentials.ScopeGlobal, "team-cred")
	h.seed(t, h.job, credentials.ScopeGlobal, "job-cred")

	got, err := h.engine.Lookup(context.Background(), Query{
		Type:      credentials.TypeSecretText,
		Context:   h.job,
		Principal: permissions.System,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"job-cred", "team-cred", "root-cred"}, ids(got))
}

func TestLookupDeduplicatesByID(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.seed(t, h.team, credentials.ScopeGlobal, "shared")
	h.seed(t, h.root, credentials.ScopeGlobal, "shared")

	got, err := h.engine.Lookup(context.Background(), Query{
		Type:      credentials.TypeSecretText,
		Context:   h.job,
		Principal: permissions.System,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "shared", got[0].ID())
}

func TestSystemScopeStaysAtRoot(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.seed(t, h.root, credentials.ScopeSystem, "root-ca")
	h.seed(t, h.root, credentials.ScopeGlobal, "shared-token")

	atRoot, err := h.engine.Lookup(context.Background(), Query{
		Type:      credentials.TypeSecretText,
		Principal: permissions.System,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"root-ca", "shared-token"}, ids(atRoot))

	atJob, err := h.engine.Lookup(context.Background(), Query{
		Type:      credentials.TypeSecretText,
		Context:   h.job,
		Principal: permissions.System,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"shared-token"}, ids(atJob))
}

func TestDomainRequirementsSelectDomains(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	st, err := h.source.For(h.root)
	require.NoError(t, err)

	spec, err := domain.NewHostnameSpecification("*.example.com", "")
	require.NoError(t, err)
	prod, err := domain.New("production", "", spec)
	require.NoError(t, err)

	prodCred, err := h.factory.NewSecretText(credentials.ScopeGlobal, "prod-db", "", "secret")
	require.NoError(t, err)
	_, err = st.AddDomain(prod, prodCred)
	require.NoError(t, err)
	h.seed(t, h.root, credentials.ScopeGlobal, "anywhere")

	// Without requirements only the global domain applies; a domain
	// carrying specifications needs a satisfying requirement of each kind.
	unscoped, err := h.engine.Lookup(context.Background(), Query{
		Type:      credentials.TypeSecretText,
		Principal: permissions.System,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"anywhere"}, ids(unscoped))

	matching, err := h.engine.Lookup(context.Background(), Query{
		Type:      credentials.TypeSecretText,
		Principal: permissions.System,
		Requirements: []domain.Requirement{
			{Kind: domain.KindHostname, Value: "db.example.com"},
		},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"prod-db", "anywhere"}, ids(matching))

	nonMatching, err := h.engine.Lookup(context.Background(), Query{
		Type:      credentials.TypeSecretText,
		Principal: permissions.System,
		Requirements: []domain.Requirement{
			{Kind: domain.KindHostname, Value: "db.internal.net"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"anywhere"}, ids(nonMatching))
}

func TestPrincipalWithoutGrantsSeesNothing(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.seed(t, h.job, credentials.ScopeGlobal, "job-cred")

	got, err := h.engine.Lookup(context.Background(), Query{
		Type:      credentials.TypeSecretText,
		Context:   h.job,
		Principal: permissions.Principal{ID: "alice"},
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUseItemGrantsItemVisibility(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.seed(t, h.job, credentials.ScopeGlobal, "job-cred")
	alice := permissions.Principal{ID: "alice"}
	h.job.ACL().Grant(alice, permissions.UseItem)

	got, err := h.engine.Lookup(context.Background(), Query{
		Type:      credentials.TypeSecretText,
		Context:   h.job,
		Principal: alice,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"job-cred"}, ids(got))
}

func TestUseOwnSurfacesOnlyPersonalStore(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.seed(t, h.job, credentials.ScopeGlobal, "job-cred")
	h.seed(t, h.root, credentials.ScopeGlobal, "root-cred")

	alice := permissions.Principal{ID: "alice"}
	aliceCtx, err := h.root.User("alice")
	require.NoError(t, err)
	h.seed(t, aliceCtx, credentials.ScopeUser, "alice-token")

	bobCtx, err := h.root.User("bob")
	require.NoError(t, err)
	h.seed(t, bobCtx, credentials.ScopeUser, "bob-token")

	h.job.ACL().Grant(alice, permissions.UseOwn)

	got, err := h.engine.Lookup(context.Background(), Query{
		Type:      credentials.TypeSecretText,
		Context:   h.job,
		Principal: alice,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice-token"}, ids(got))
}

func TestLookupByID(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.seed(t, h.root, credentials.ScopeGlobal, "deploy-key")

	got, err := h.engine.LookupByID(context.Background(), credentials.TypeSecretText, nil, permissions.System, "deploy-key")
	require.NoError(t, err)
	assert.Equal(t, "deploy-key", got.ID())

	_, err = h.engine.LookupByID(context.Background(), credentials.TypeSecretText, nil, permissions.System, "missing")
	assert.True(t, credErrors.IsKind(err, credErrors.NotFound))
}

func TestTypeProjectionSurfacesLegacyEntries(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	// Password-only lookups also surface username/password entries by
	// projecting the password into a secret text credential.
	types := NewTypeResolvers()
	types.Register(credentials.TypeUsernamePassword, credentials.TypeSecretText,
		func(c credentials.Credential) (credentials.Credential, error) {
			up := c.(*credentials.UsernamePassword)
			pw, err := up.Password.Plaintext(h.factory.Cipher)
			if err != nil {
				return nil, err
			}
			return h.factory.NewSecretText(up.Scope(), up.ID(), up.Description(), pw)
		})
	WithTypeResolvers(types)(h.engine)

	up, err := h.factory.NewUsernamePassword(credentials.ScopeGlobal, "deploy", "", "alice", "hunter42hunter42", false)
	require.NoError(t, err)
	st, err := h.source.For(h.root)
	require.NoError(t, err)
	_, err = st.AddCredentials(domain.Global(), up)
	require.NoError(t, err)
	h.seed(t, h.root, credentials.ScopeGlobal, "direct")

	got, err := h.engine.Lookup(context.Background(), Query{
		Type:      credentials.TypeSecretText,
		Principal: permissions.System,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"deploy", "direct"}, ids(got))

	for _, c := range got {
		assert.Equal(t, credentials.TypeSecretText, c.TypeTag())
	}
}

// remoteStore records the context and hint the engine hands it.
type remoteStore struct {
	ctx      *hierarchy.Context
	creds    []credentials.Credential
	lastHint string
	gotCtx   context.Context
}

func (s *remoteStore) Context() *hierarchy.Context { return s.ctx }
func (s *remoteStore) Domains() []domain.Domain    { return []domain.Domain{domain.Global()} }
func (s *remoteStore) DomainByName(name string) (domain.Domain, bool) {
	if name == "" {
		return domain.Global(), true
	}
	return domain.Domain{}, false
}
func (s *remoteStore) Credentials(d domain.Domain) []credentials.Credential {
	return s.creds
}
func (s *remoteStore) CredentialsContext(ctx context.Context, d domain.Domain, hint string) []credentials.Credential {
	s.gotCtx = ctx
	s.lastHint = hint
	return s.creds
}
func (s *remoteStore) HasPermission(permissions.Principal, permissions.Permission) bool {
	return true
}
func (s *remoteStore) Scopes() credentials.ScopeSet {
	return credentials.NewScopeSet(credentials.ScopeGlobal)
}

type remoteProvider struct {
	store *remoteStore
}

func (p *remoteProvider) Name() string                        { return "remote" }
func (p *remoteProvider) IsEnabled(c *hierarchy.Context) bool { return c.Kind() == hierarchy.KindRoot }
func (p *remoteProvider) StoresFor(c *hierarchy.Context, _ permissions.Principal) ([]store.Store, error) {
	return []store.Store{p.store}, nil
}

func TestDescribableMatcherReachesRemoteStores(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	cred := h.seed(t, h.root, credentials.ScopeGlobal, "remote-cred")

	remote := &remoteStore{ctx: h.root, creds: []credentials.Credential{cred}}
	require.NoError(t, h.engine.registry.Register(&remoteProvider{store: remote}))

	got, err := h.engine.Lookup(context.Background(), Query{
		Type:      credentials.TypeSecretText,
		Principal: permissions.System,
		Matcher:   credentials.ByID("remote-cred"),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, `id == "remote-cred"`, remote.lastHint)
	assert.NotNil(t, remote.gotCtx, "the caller's context reaches the store")
}

func TestLookupHonoursCancellation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.seed(t, h.root, credentials.ScopeGlobal, "cred")

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.engine.Lookup(cancelled, Query{
		Type:      credentials.TypeSecretText,
		Principal: permissions.System,
	})
	assert.True(t, credErrors.IsKind(err, credErrors.Cancelled))
}

func TestPartialResultsOnCancellation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, WithPartialResults())
	h.seed(t, h.root, credentials.ScopeGlobal, "cred")

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := h.engine.Lookup(cancelled, Query{
		Type:      credentials.TypeSecretText,
		Principal: permissions.System,
	})
	assert.True(t, credErrors.IsKind(err, credErrors.Cancelled))
	assert.Empty(t, got, "nothing was gathered before the cancellation")
}

func TestPolicyTypeRestrictionApplies(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.seed(t, h.root, credentials.ScopeGlobal, "tok")

	up, err := h.factory.NewUsernamePassword(credentials.ScopeGlobal, "deploy", "", "alice", "hunter42hunter42", false)
	require.NoError(t, err)
	st, err := h.source.For(h.root)
	require.NoError(t, err)
	_, err = st.AddCredentials(domain.Global(), up)
	require.NoError(t, err)

	// Restrict the system provider to username/password credentials.
	h.engine.registry.SetPolicy(&providers.Policy{Types: map[string][]string{
		"system": {credentials.TypeUsernamePassword},
	}})

	got, err := h.engine.Lookup(context.Background(), Query{
		Type:      credentials.TypeSecretText,
		Principal: permissions.System,
	})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = h.engine.Lookup(context.Background(), Query{
		Type:      credentials.TypeUsernamePassword,
		Principal: permissions.System,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"deploy"}, ids(got))
}
