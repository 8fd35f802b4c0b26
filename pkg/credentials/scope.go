package credentials

import (
	"strings"

	credErrors "github.com/systmms/credhub/internal/errors"
)

// Scope is the visibility rule governing which contexts may observe a
// credential. The total order is System < Global < User.
type Scope int

const (
	// ScopeSystem credentials are visible only when the consuming
	// context is the installation root.
	ScopeSystem Scope = iota
	// ScopeGlobal credentials are visible to any descendant of the
	// defining store's context.
	ScopeGlobal
	// ScopeUser credentials live in a per-user store and are visible
	// only while the defining user is the effective principal.
	ScopeUser
)

var scopeNames = map[Scope]string{
	ScopeSystem: "SYSTEM",
	ScopeGlobal: "GLOBAL",
	ScopeUser:   "USER",
}

func (s Scope) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	return "GLOBAL"
}

// ParseScope maps a persisted scope name back to a Scope.
func ParseScope(name string) (Scope, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "SYSTEM":
		return ScopeSystem, nil
	case "GLOBAL":
		return ScopeGlobal, nil
	case "USER":
		return ScopeUser, nil
	default:
		return ScopeGlobal, credErrors.Invalidf("unknown scope %q", name)
	}
}

// ScopeSet is a set of allowed scopes, as advertised by a store.
type ScopeSet map[Scope]bool

// NewScopeSet builds a set from the given scopes.
func NewScopeSet(scopes ...Scope) ScopeSet {
	set := make(ScopeSet, len(scopes))
	for _, s := range scopes {
		set[s] = true
	}
	return set
}

// Contains reports membership.
func (s ScopeSet) Contains(scope Scope) bool {
	return s[scope]
}

// List returns the scopes in visibility order. A singleton list makes a
// scope selector irrelevant.
func (s ScopeSet) List() []Scope {
	var out []Scope
	for _, scope := range []Scope{ScopeSystem, ScopeGlobal, ScopeUser} {
		if s[scope] {
			out = append(out, scope)
		}
	}
	return out
}
