package providers

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	credErrors "github.com/systmms/credhub/internal/errors"
	"github.com/systmms/credhub/internal/hierarchy"
	"github.com/systmms/credhub/internal/logging"
	"github.com/systmms/credhub/internal/permissions"
	"github.com/systmms/credhub/pkg/credentials"
	"github.com/systmms/credhub/pkg/domain"
	"github.com/systmms/credhub/pkg/store"
)

// SecretsManagerAPI is the Secrets Manager surface the store uses.
// Narrowed to an interface so tests can inject a mock client.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
}

// AWSStoreOptions configures the Secrets Manager backed store.
type AWSStoreOptions struct {
	Region string
	// Endpoint overrides the service endpoint (LocalStack, tests).
	Endpoint string
	// Prefix selects which secrets belong to this store. Only secrets
	// whose name starts with the prefix are surfaced.
	Prefix string
	// Static credentials for LocalStack and tests; the default chain is
	// used when empty.
	AccessKeyID     string
	SecretAccessKey string
	// Client overrides the real client (tests).
	Client SecretsManagerAPI
	// TTL bounds how long a listing is served from cache.
	TTL     time.Duration
	Checker permissions.Checker
	Factory credentials.Factory
	Logger  *logging.Logger
}

// AWSStore is a read-only credential store backed by AWS Secrets
// Manager. Each secret under the prefix holds one credential as a JSON
// document; all surfaced credentials live in the global domain. The
// store implements the read side only, mutation is UnsupportedOp at the
// call sites that probe for MutableStore.
type AWSStore struct {
	ctx     *hierarchy.Context
	client  SecretsManagerAPI
	prefix  string
	region  string
	ttl     time.Duration
	checker permissions.Checker
	factory credentials.Factory
	logger  *logging.Logger

	mu      sync.Mutex
	cached  []credentials.Credential
	fetched time.Time
}

// awsSecretDoc is the JSON layout of one secret. Fields carry plaintext
// values; they are sealed with the local cipher on ingestion.
type awsSecretDoc struct {
	Type        string            `json:"type"`
	Scope       string            `json:"scope"`
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Fields      map[string]string `json:"fields"`
}

// NewAWSStore opens the store bound to ctx. Without an injected client
// the default AWS config chain is loaded; a chain failure is reported
// as OptionalDependencyMissing so the provider walk can skip it.
func NewAWSStore(ctx *hierarchy.Context, opts AWSStoreOptions) (*AWSStore, error) {
	if opts.Logger == nil {
		opts.Logger = logging.New(false, true)
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}

	s := &AWSStore{
		ctx:     ctx,
		client:  opts.Client,
		prefix:  opts.Prefix,
		region:  opts.Region,
		ttl:     opts.TTL,
		checker: opts.Checker,
		factory: opts.Factory,
		logger:  opts.Logger,
	}

	if s.client == nil {
		configOpts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(opts.Region),
		}
		if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
			configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
				awscreds.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
			))
		}
		cfg, err := awsconfig.LoadDefaultConfig(context.Background(), configOpts...)
		if err != nil {
			return nil, credErrors.Wrap(credErrors.OptionalDependencyMissing, err, "loading AWS config")
		}
		var clientOpts []func(*secretsmanager.Options)
		if opts.Endpoint != "" {
			endpoint := opts.Endpoint
			clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
				o.BaseEndpoint = &endpoint
			})
		}
		s.client = secretsmanager.NewFromConfig(cfg, clientOpts...)
	}
	return s, nil
}

// Context returns the bound hierarchy context.
func (s *AWSStore) Context() *hierarchy.Context {
	return s.ctx
}

// Scopes returns the scopes surfaced credentials carry.
func (s *AWSStore) Scopes() credentials.ScopeSet {
	return credentials.NewScopeSet(credentials.ScopeGlobal)
}

// HasPermission delegates to the bound context's ACL.
func (s *AWSStore) HasPermission(p permissions.Principal, perm permissions.Permission) bool {
	return s.checker.Has(s.ctx.ACL(), p, perm)
}

// Domains returns the global domain; Secrets Manager has no equivalent
// of domain partitioning.
func (s *AWSStore) Domains() []domain.Domain {
	return []domain.Domain{domain.Global()}
}

// DomainByName resolves the empty name to the global domain.
func (s *AWSStore) DomainByName(name string) (domain.Domain, bool) {
	if name == "" {
		return domain.Global(), true
	}
	return domain.Domain{}, false
}

// fetchTimeout bounds listings made without a caller context.
const fetchTimeout = 10 * time.Second

// idHint recognises a single-id matcher description, letting the store
// fetch one secret instead of listing everything under the prefix.
var idHint = regexp.MustCompile(`^id == "([^"]+)"$`)

// Credentials lists the credentials under the prefix, bounded by a
// fixed timeout. Lookups go through CredentialsContext instead so the
// caller's cancellation applies.
func (s *AWSStore) Credentials(d domain.Domain) []credentials.Credential {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()
	return s.list(ctx, d)
}

// CredentialsContext lists under the caller's context. An id equality
// hint narrows the fetch to the one named secret; when the secret name
// does not carry the id the full listing still finds it.
func (s *AWSStore) CredentialsContext(ctx context.Context, d domain.Domain, hint string) []credentials.Credential {
	if !d.IsGlobal() {
		return nil
	}
	if m := idHint.FindStringSubmatch(hint); m != nil {
		if c, err := s.fetchOne(ctx, s.prefix+m[1]); err == nil {
			return []credentials.Credential{c}
		}
	}
	return s.list(ctx, d)
}

// list serves from the TTL cache, refreshing when stale. On a fetch
// failure the last good snapshot is served.
func (s *AWSStore) list(ctx context.Context, d domain.Domain) []credentials.Credential {
	if !d.IsGlobal() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.fetched) < s.ttl && s.cached != nil {
		return append([]credentials.Credential(nil), s.cached...)
	}
	fetched, err := s.fetch(ctx)
	if err != nil {
		s.logger.Warn("secrets manager listing failed, serving cached snapshot: %v", err)
		return append([]credentials.Credential(nil), s.cached...)
	}
	s.cached = fetched
	s.fetched = time.Now()
	return append([]credentials.Credential(nil), s.cached...)
}

// Refresh drops the cache and reloads from the service.
func (s *AWSStore) Refresh(ctx context.Context) error {
	fetched, err := s.fetch(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cached = fetched
	s.fetched = time.Now()
	s.mu.Unlock()
	return nil
}

func (s *AWSStore) fetch(ctx context.Context) ([]credentials.Credential, error) {
	var out []credentials.Credential
	var nextToken *string
	for {
		page, err := s.client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{NextToken: nextToken})
		if err != nil {
			return nil, credErrors.Wrap(credErrors.IO, err, "listing secrets")
		}
		for _, entry := range page.SecretList {
			if entry.Name == nil || !strings.HasPrefix(*entry.Name, s.prefix) {
				continue
			}
			c, err := s.fetchOne(ctx, *entry.Name)
			if err != nil {
				s.logger.Warn("skipping secret %s: %v", *entry.Name, err)
				continue
			}
			out = append(out, c)
		}
		if page.NextToken == nil {
			break
		}
		nextToken = page.NextToken
	}
	return out, nil
}

func (s *AWSStore) fetchOne(ctx context.Context, name string) (credentials.Credential, error) {
	value, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &name})
	if err != nil {
		return nil, credErrors.Wrap(credErrors.IO, err, "reading secret %s", name)
	}
	var raw []byte
	switch {
	case value.SecretString != nil:
		raw = []byte(*value.SecretString)
	case value.SecretBinary != nil:
		raw = value.SecretBinary
	default:
		return nil, credErrors.Invalidf("secret %s has no value", name)
	}

	var doc awsSecretDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, credErrors.Wrap(credErrors.InvalidArgument, err, "parsing secret %s", name)
	}
	if doc.ID == "" {
		doc.ID = strings.TrimPrefix(name, s.prefix)
	}
	return s.decode(doc)
}

func (s *AWSStore) decode(doc awsSecretDoc) (credentials.Credential, error) {
	scope := credentials.ScopeGlobal
	if doc.Scope != "" {
		parsed, err := credentials.ParseScope(doc.Scope)
		if err != nil {
			return nil, err
		}
		scope = parsed
	}
	f := doc.Fields
	switch doc.Type {
	case credentials.TypeUsernamePassword:
		return s.factory.NewUsernamePassword(scope, doc.ID, doc.Description, f["username"], f["password"], f["usernameIsSecret"] == "true")
	case credentials.TypeSecretText:
		return s.factory.NewSecretText(scope, doc.ID, doc.Description, f["secret"])
	case credentials.TypeSecretFile:
		return s.factory.NewSecretFile(scope, doc.ID, doc.Description, f["fileName"], []byte(f["content"]))
	case credentials.TypeSSHPrivateKey:
		return s.factory.NewSSHPrivateKey(scope, doc.ID, doc.Description, f["username"], f["privateKey"], f["passphrase"])
	case credentials.TypeCertificate:
		return s.factory.NewCertificate(scope, doc.ID, doc.Description, []byte(f["keystore"]), f["password"])
	default:
		return nil, credErrors.Invalidf("unknown credential type %q", doc.Type)
	}
}

// AWSProvider surfaces an AWSStore at the root context.
type AWSProvider struct {
	store *AWSStore
	err   error
}

// NewAWSProvider wraps the store construction. A construction error is
// retained and reported per walk, letting resolution proceed with the
// provider skipped.
func NewAWSProvider(ctx *hierarchy.Context, opts AWSStoreOptions) *AWSProvider {
	s, err := NewAWSStore(ctx, opts)
	return &AWSProvider{store: s, err: err}
}

func (p *AWSProvider) Name() string { return "aws-secrets-manager" }

func (p *AWSProvider) IsEnabled(ctx *hierarchy.Context) bool {
	return ctx.Kind() == hierarchy.KindRoot
}

func (p *AWSProvider) StoresFor(ctx *hierarchy.Context, _ permissions.Principal) ([]store.Store, error) {
	if p.err != nil {
		return nil, p.err
	}
	return []store.Store{p.store}, nil
}
