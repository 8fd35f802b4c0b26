// Package permissions defines the permission tokens, principals and the
// per-context ACL credhub stores delegate authorisation to.
package permissions

import "sync"

// Permission is a named permission token.
type Permission string

// The credentials permission surface.
const (
	View          Permission = "Credentials.View"
	Create        Permission = "Credentials.Create"
	Update        Permission = "Credentials.Update"
	Delete        Permission = "Credentials.Delete"
	ManageDomains Permission = "Credentials.ManageDomains"

	// UseOwn and UseItem govern whose credentials a running task may
	// consume; they are granted on items and runs rather than stores.
	UseOwn  Permission = "Credentials.UseOwn"
	UseItem Permission = "Credentials.UseItem"

	// Administer implies every other permission.
	Administer Permission = "Administer"
)

// Principal is an authenticated identity. credhub receives principals,
// it never authenticates them.
type Principal struct {
	ID string
}

// System is the internal principal that sees everything.
var System = Principal{ID: "SYSTEM"}

// Anonymous is the unauthenticated principal.
var Anonymous = Principal{ID: "anonymous"}

// IsSystem reports whether p is the SYSTEM principal.
func (p Principal) IsSystem() bool {
	return p.ID == System.ID
}

// ACL maps principals to granted permissions for one context.
type ACL struct {
	mu     sync.RWMutex
	grants map[string]map[Permission]bool
}

// NewACL creates an empty ACL.
func NewACL() *ACL {
	return &ACL{grants: make(map[string]map[Permission]bool)}
}

// Grant gives perms to p.
func (a *ACL) Grant(p Principal, perms ...Permission) {
	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.grants[p.ID]
	if !ok {
		set = make(map[Permission]bool)
		a.grants[p.ID] = set
	}
	for _, perm := range perms {
		set[perm] = true
	}
}

// Revoke removes perms from p.
func (a *ACL) Revoke(p Principal, perms ...Permission) {
	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.grants[p.ID]
	if !ok {
		return
	}
	for _, perm := range perms {
		delete(set, perm)
	}
}

// Has reports whether p holds perm. SYSTEM holds everything and
// Administer implies everything.
func (a *ACL) Has(p Principal, perm Permission) bool {
	if p.IsSystem() {
		return true
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	set, ok := a.grants[p.ID]
	if !ok {
		return false
	}
	return set[perm] || set[Administer]
}

// Checker evaluates permissions under the deployment policy knobs.
type Checker struct {
	// UseOwnImpliesAdminister elevates UseOwn checks to require
	// administrator rights when set.
	UseOwnImpliesAdminister bool
}

// Has evaluates perm for p against acl, applying policy elevation.
func (c Checker) Has(acl *ACL, p Principal, perm Permission) bool {
	if acl == nil {
		return p.IsSystem()
	}
	if perm == UseOwn && c.UseOwnImpliesAdminister {
		return acl.Has(p, Administer)
	}
	return acl.Has(p, perm)
}
