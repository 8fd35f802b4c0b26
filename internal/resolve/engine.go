// Package resolve implements credential lookup: given a hierarchy
// context, an acting principal and a set of domain requirements, the
// engine walks the provider contributions and returns the matching
// credentials in precedence order.
package resolve

import (
	"context"

	credErrors "github.com/systmms/credhub/internal/errors"
	"github.com/systmms/credhub/internal/hierarchy"
	"github.com/systmms/credhub/internal/logging"
	"github.com/systmms/credhub/internal/metrics"
	"github.com/systmms/credhub/internal/permissions"
	"github.com/systmms/credhub/internal/providers"
	"github.com/systmms/credhub/pkg/credentials"
	"github.com/systmms/credhub/pkg/domain"
	"github.com/systmms/credhub/pkg/store"
)

// Engine performs lookups against a provider registry.
type Engine struct {
	registry *providers.Registry
	root     *hierarchy.Context
	checker  permissions.Checker
	logger   *logging.Logger
	partial  bool
	types    *TypeResolvers
}

// Option configures an Engine.
type Option func(*Engine)

// WithPartialResults makes a cancelled lookup return what it gathered
// so far alongside the Cancelled error.
func WithPartialResults() Option {
	return func(e *Engine) { e.partial = true }
}

// WithLogger overrides the engine logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTypeResolvers installs a legacy-type resolver registry.
func WithTypeResolvers(t *TypeResolvers) Option {
	return func(e *Engine) { e.types = t }
}

// New creates an engine over registry rooted at root.
func New(registry *providers.Registry, root *hierarchy.Context, checker permissions.Checker, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		root:     root,
		checker:  checker,
		logger:   logging.New(false, true),
		types:    NewTypeResolvers(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query names one lookup.
type Query struct {
	// Type is the credential type tag wanted.
	Type string
	// Context is where the lookup happens; nil means the root.
	Context *hierarchy.Context
	// Principal is the acting authentication.
	Principal permissions.Principal
	// Requirements select which domains apply. An empty set matches the
	// global domain and any domain whose specifications are vacuous.
	Requirements []domain.Requirement
	// Matcher further narrows the results; nil matches everything.
	Matcher credentials.Matcher
}

// Lookup returns the credentials satisfying q in precedence order:
// nearest context first, then by provider registration order, with
// duplicate ids collapsed to their first occurrence.
//
// Visibility follows the acting principal. The SYSTEM principal sees
// everything its walk reaches. Any other principal sees the item and
// installation stores only when it holds UseItem on the lookup context,
// and its own personal store only when it holds UseOwn.
func (e *Engine) Lookup(ctx context.Context, q Query) ([]credentials.Credential, error) {
	at := q.Context
	if at == nil {
		at = e.root
	}
	metrics.IncLookups()

	// A describable matcher doubles as a query hint for remote stores.
	hint, described := describable(q.Matcher)
	if described {
		e.logger.Debug("lookup type=%s context=%q matcher=%s", q.Type, at.FullName(), hint)
	}

	seen := make(map[string]bool)
	var out []credentials.Credential

	gather := func(walkFrom *hierarchy.Context, as permissions.Principal, only *hierarchy.Context) error {
		contribs, err := e.registry.Contributions(walkFrom, as)
		if err != nil {
			return err
		}
		for _, contrib := range contribs {
			if err := ctx.Err(); err != nil {
				return credErrors.Wrap(credErrors.Cancelled, err, "lookup cancelled")
			}
			if only != nil && contrib.Store.Context() != only {
				continue
			}
			e.collect(ctx, contrib, at, as, q, hint, seen, &out)
		}
		return nil
	}

	runErr := func() error {
		if q.Principal.IsSystem() {
			return gather(at, permissions.System, nil)
		}
		// Non-system principals trigger re-queries under their grants:
		// UseItem surfaces the stores the item itself would see, UseOwn
		// surfaces the principal's personal store and nothing else.
		if e.checker.Has(at.ACL(), q.Principal, permissions.UseItem) {
			if err := gather(at, permissions.System, nil); err != nil {
				return err
			}
		}
		if e.checker.Has(at.ACL(), q.Principal, permissions.UseOwn) {
			user, err := e.root.User(q.Principal.ID)
			if err != nil {
				return err
			}
			if err := gather(user, q.Principal, user); err != nil {
				return err
			}
		}
		return nil
	}()

	if runErr != nil {
		if e.partial {
			return out, runErr
		}
		return nil, runErr
	}

	metrics.AddCredentialsReturned(len(out))
	return out, nil
}

// collect appends the matching credentials of one contribution. Stores
// doing remote work receive the caller's context and the matcher hint.
func (e *Engine) collect(ctx context.Context, contrib providers.Contribution, at *hierarchy.Context, as permissions.Principal, q Query, hint string, seen map[string]bool, out *[]credentials.Credential) {
	st := contrib.Store
	policy := e.registry.Policy()
	for _, d := range st.Domains() {
		if !d.Matches(q.Requirements) {
			continue
		}
		var creds []credentials.Credential
		if rs, ok := st.(store.RemoteStore); ok {
			creds = rs.CredentialsContext(ctx, d, hint)
		} else {
			creds = st.Credentials(d)
		}
		for _, c := range creds {
			if !e.visible(c, st.Context(), at, as) {
				continue
			}
			if !policy.AllowsType(contrib.Provider, c.TypeTag()) {
				continue
			}
			final, ok := e.types.project(c, q.Type)
			if !ok {
				continue
			}
			if q.Matcher != nil && !q.Matcher.Matches(final) {
				continue
			}
			if seen[final.ID()] {
				continue
			}
			seen[final.ID()] = true
			*out = append(*out, final)
		}
	}
}

// visible applies scope visibility.
func (e *Engine) visible(c credentials.Credential, storeCtx, at *hierarchy.Context, as permissions.Principal) bool {
	switch c.Scope() {
	case credentials.ScopeSystem:
		// SYSTEM credentials never leave the root context.
		return storeCtx.Kind() == hierarchy.KindRoot && at.Kind() == hierarchy.KindRoot
	case credentials.ScopeUser:
		return storeCtx.Kind() == hierarchy.KindUser && storeCtx.Name() == as.ID
	default:
		return true
	}
}

// LookupByID finds the single credential with the given id, or NotFound.
func (e *Engine) LookupByID(ctx context.Context, typeTag string, at *hierarchy.Context, principal permissions.Principal, id string) (credentials.Credential, error) {
	results, err := e.Lookup(ctx, Query{
		Type:      typeTag,
		Context:   at,
		Principal: principal,
		Matcher:   credentials.ByID(id),
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, credErrors.NotFoundf("no credential %q visible from %q", id, contextName(at, e.root))
	}
	return results[0], nil
}

func contextName(at, root *hierarchy.Context) string {
	if at == nil {
		at = root
	}
	return at.FullName()
}

func describable(m credentials.Matcher) (string, bool) {
	if m == nil {
		return "", false
	}
	return m.Describe()
}
