// Package providers hosts the registry of credential providers. A
// provider contributes zero or more stores at each context of the
// hierarchy; the resolution engine walks a context's ancestry and asks
// every registered provider for its stores along the way.
package providers

import (
	"sync"

	"github.com/systmms/credhub/internal/hierarchy"
	"github.com/systmms/credhub/internal/logging"
	"github.com/systmms/credhub/internal/metrics"
	"github.com/systmms/credhub/internal/permissions"
	"github.com/systmms/credhub/pkg/store"

	credErrors "github.com/systmms/credhub/internal/errors"
)

// Provider contributes credential stores at hierarchy contexts.
type Provider interface {
	// Name identifies the provider in policy and diagnostics.
	Name() string

	// IsEnabled reports whether the provider participates at ctx at
	// all. Disabled providers are skipped without logging.
	IsEnabled(ctx *hierarchy.Context) bool

	// StoresFor returns the stores this provider contributes at ctx for
	// the acting principal. An OptionalDependencyMissing error means a
	// backing system is unavailable; the walk logs and skips it.
	StoresFor(ctx *hierarchy.Context, p permissions.Principal) ([]store.Store, error)
}

// Registry holds providers in registration order. Registration order is
// significant: it fixes the precedence of stores during resolution.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]Provider
	policy policyHolder
	logger *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.New(false, true)
	}
	r := &Registry{
		byName: make(map[string]Provider),
		logger: logger,
	}
	r.policy.set(&Policy{})
	return r
}

// Register adds p. Registering a duplicate name fails with Conflict.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[p.Name()]; exists {
		return credErrors.Conflictf("provider %q already registered", p.Name())
	}
	r.byName[p.Name()] = p
	r.order = append(r.order, p.Name())
	return nil
}

// Providers returns registered providers in registration order.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// ByName finds a registered provider.
func (r *Registry) ByName(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// Contribution is one store surfaced during a walk, tagged with the
// provider that surfaced it so type policy can be applied downstream.
type Contribution struct {
	Provider string
	Store    store.Store
}

// Contributions collects the stores visible from ctx, walking from ctx
// up to the root. At each ancestor every enabled provider is consulted
// in registration order. Node contexts delegate to the root:
// credentials for agents live in the installation-wide stores.
//
// Provider failures of kind OptionalDependencyMissing are logged and
// skipped; other failures are logged and skipped too, except Cancelled
// and IO, which abort the walk.
func (r *Registry) Contributions(ctx *hierarchy.Context, principal permissions.Principal) ([]Contribution, error) {
	if ctx == nil {
		return nil, nil
	}
	if ctx.Kind() == hierarchy.KindNode {
		ctx = ctx.Root()
	}

	policy := r.Policy()
	var out []Contribution
	for c := ctx; c != nil; c = c.Parent() {
		for _, p := range r.Providers() {
			if !policy.Admits(p.Name()) || !p.IsEnabled(c) {
				continue
			}
			stores, err := p.StoresFor(c, principal)
			if err != nil {
				switch {
				case credErrors.IsKind(err, credErrors.OptionalDependencyMissing):
					r.logger.Debug("provider %s skipped at %s: %v", p.Name(), c.FullName(), err)
					metrics.IncProviderSkips()
				case credErrors.IsKind(err, credErrors.Cancelled), credErrors.IsKind(err, credErrors.IO):
					return nil, err
				default:
					r.logger.Warn("provider %s failed at %s: %v", p.Name(), c.FullName(), err)
					metrics.IncProviderSkips()
				}
				continue
			}
			for _, st := range stores {
				out = append(out, Contribution{Provider: p.Name(), Store: st})
			}
		}
	}
	return out, nil
}

// StoresOf is Contributions without the provider attribution.
func (r *Registry) StoresOf(ctx *hierarchy.Context, principal permissions.Principal) ([]store.Store, error) {
	contribs, err := r.Contributions(ctx, principal)
	if err != nil {
		return nil, err
	}
	out := make([]store.Store, 0, len(contribs))
	for _, c := range contribs {
		out = append(out, c.Store)
	}
	return out, nil
}
