package hierarchy

import (
	"sync"

	credErrors "github.com/systmms/credhub/internal/errors"
)

// Resolver maps contexts to opaque tokens and back. One resolver exists
// per context kind; extension kinds register their own.
type Resolver interface {
	// Name is the resolver's registration name, e.g. "tree" or "user".
	Name() string
	// Token renders ctx as an opaque token, or ok=false when the
	// resolver does not handle this context kind.
	Token(ctx *Context) (string, bool)
	// Resolve maps a token back to a context.
	Resolve(token string) (*Context, error)
}

// ResolverRegistry holds the registered context resolvers. External
// addressability (CLI, URL surface) goes through this registry so the
// core needs no per-wrapper types.
type ResolverRegistry struct {
	mu     sync.RWMutex
	byName map[string]Resolver
	order  []string
}

// NewResolverRegistry returns a registry with the built-in resolvers for
// a given root: "tree" (root, folders, items), "user" and "node".
func NewResolverRegistry(root *Context) *ResolverRegistry {
	r := &ResolverRegistry{byName: make(map[string]Resolver)}
	r.Register(&treeResolver{root: root})
	r.Register(&prefixResolver{name: "user", kind: KindUser, root: root})
	r.Register(&prefixResolver{name: "node", kind: KindNode, root: root})
	return r
}

// Register adds a resolver. Later registrations with the same name win,
// which lets deployments override built-ins.
func (r *ResolverRegistry) Register(res Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[res.Name()]; !exists {
		r.order = append(r.order, res.Name())
	}
	r.byName[res.Name()] = res
}

// Get returns the resolver registered under name.
func (r *ResolverRegistry) Get(name string) (Resolver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.byName[name]
	return res, ok
}

// TokenFor renders ctx with the first resolver that handles it, returning
// the resolver name and token.
func (r *ResolverRegistry) TokenFor(ctx *Context) (resolver, token string, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		if tok, ok := r.byName[name].Token(ctx); ok {
			return name, tok, nil
		}
	}
	return "", "", credErrors.Invalidf("no resolver handles %s context %q", ctx.Kind(), ctx.FullName())
}

// treeResolver addresses the root, folders and items by full name.
type treeResolver struct {
	root *Context
}

func (t *treeResolver) Name() string { return "tree" }

func (t *treeResolver) Token(ctx *Context) (string, bool) {
	switch ctx.Kind() {
	case KindRoot, KindFolder, KindItem:
		return ctx.FullName(), true
	}
	return "", false
}

func (t *treeResolver) Resolve(token string) (*Context, error) {
	return t.root.Find(token)
}

// prefixResolver addresses user and node contexts by bare name.
type prefixResolver struct {
	name string
	kind Kind
	root *Context
}

func (p *prefixResolver) Name() string { return p.name }

func (p *prefixResolver) Token(ctx *Context) (string, bool) {
	if ctx.Kind() != p.kind {
		return "", false
	}
	return ctx.Name(), true
}

func (p *prefixResolver) Resolve(token string) (*Context, error) {
	if token == "" {
		return nil, credErrors.Invalidf("empty %s token", p.name)
	}
	return p.root.Find(p.name + ":" + token)
}
