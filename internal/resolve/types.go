package resolve

import (
	"sync"

	"github.com/systmms/credhub/pkg/credentials"
)

// Projection converts a credential of a source type into the requested
// type. Returning an error drops the credential from the result set.
type Projection func(credentials.Credential) (credentials.Credential, error)

// TypeResolvers maps legacy credential types onto their successors so a
// lookup for the new type also surfaces old-style entries. Direct type
// matches always take precedence over projections.
type TypeResolvers struct {
	mu sync.RWMutex
	// by target type, then source type
	projections map[string]map[string]Projection
}

// NewTypeResolvers creates an empty registry.
func NewTypeResolvers() *TypeResolvers {
	return &TypeResolvers{projections: make(map[string]map[string]Projection)}
}

// Register installs a projection from credentials of type from to
// lookups of type to. A later registration for the same pair replaces
// the earlier one.
func (t *TypeResolvers) Register(from, to string, p Projection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.projections[to] == nil {
		t.projections[to] = make(map[string]Projection)
	}
	t.projections[to][from] = p
}

// project maps c onto the wanted type. A direct type match passes
// through unchanged; otherwise a registered projection is applied.
func (t *TypeResolvers) project(c credentials.Credential, wanted string) (credentials.Credential, bool) {
	if c.TypeTag() == wanted {
		return c, true
	}
	if t == nil {
		return nil, false
	}
	t.mu.RLock()
	p, ok := t.projections[wanted][c.TypeTag()]
	t.mu.RUnlock()
	if !ok {
		return nil, false
	}
	projected, err := p(c)
	if err != nil || projected == nil || projected.TypeTag() != wanted {
		return nil, false
	}
	return projected, true
}
