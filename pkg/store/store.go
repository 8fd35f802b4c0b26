// Package store defines the store abstraction hosting domain-partitioned
// credential collections.
//
// Capability is modelled by interface, not introspection: every store
// implements Store (the read side); writable stores additionally
// implement MutableStore; stores whose domain set can be edited
// implement MutableDomainsStore. Callers discover capability with a type
// assertion:
//
//	if ms, ok := s.(store.MutableStore); ok {
//	    changed, err := ms.AddCredentials(d, c)
//	    ...
//	}
//
// A store that implements MutableStore but not MutableDomainsStore has
// an immutable domain set; domain operations on it fail with
// UnsupportedOp at the call site rather than being absent.
package store

import (
	"context"

	"github.com/systmms/credhub/internal/hierarchy"
	"github.com/systmms/credhub/internal/permissions"
	"github.com/systmms/credhub/pkg/credentials"
	"github.com/systmms/credhub/pkg/domain"
)

// Store is the read side every credential store implements.
//
// Implementations must be safe for concurrent use; readers observe a
// consistent snapshot of the (domain, credentials) structure.
type Store interface {
	// Context returns the hierarchy context this store is bound to. A
	// store's lifetime equals its context's lifetime.
	Context() *hierarchy.Context

	// Domains returns the ordered domain list. The global domain is
	// always present and always first.
	Domains() []domain.Domain

	// DomainByName finds a domain by name; the empty string names the
	// global domain.
	DomainByName(name string) (domain.Domain, bool)

	// Credentials returns the credentials of d in insertion order. The
	// returned slice is a copy; mutating it does not affect the store.
	Credentials(d domain.Domain) []credentials.Credential

	// HasPermission reports whether the principal holds perm on this
	// store. Authorisation is delegated to the bound context's ACL.
	HasPermission(p permissions.Principal, perm permissions.Permission) bool

	// Scopes returns the credential scopes this store accepts.
	Scopes() credentials.ScopeSet
}

// RemoteStore is implemented by stores whose credential listing does
// remote work. The resolution engine prefers this entry point so
// lookups stay cancellable and a describable matcher reaches the
// backend as a narrowing hint. The hint may be empty and the store may
// ignore it; the engine applies the matcher locally regardless.
type RemoteStore interface {
	Store

	// CredentialsContext is Credentials under the caller's context with
	// an optional query hint in matcher description form.
	CredentialsContext(ctx context.Context, d domain.Domain, hint string) []credentials.Credential
}

// MutableStore is a store whose credentials can be edited.
type MutableStore interface {
	Store

	// AddCredentials inserts c into d. Returns false without error when
	// an equal credential is already present; fails with Conflict when
	// the id is already taken within d, and Unauthorised without the
	// Create permission.
	AddCredentials(d domain.Domain, c credentials.Credential) (bool, error)

	// RemoveCredentials deletes c from d. Fails with NotFound when c is
	// not present and Unauthorised without the Delete permission.
	RemoveCredentials(d domain.Domain, c credentials.Credential) (bool, error)

	// UpdateCredentials replaces current with replacement in d. Fails
	// with Conflict when current is no longer present (lost update) and
	// Unauthorised without the Update permission.
	UpdateCredentials(d domain.Domain, current, replacement credentials.Credential) (bool, error)

	// Save persists the full store atomically. Failures are of kind IO.
	Save() error
}

// MutableDomainsStore is a mutable store whose domain set can be edited.
type MutableDomainsStore interface {
	MutableStore

	// AddDomain inserts d with optional seed credentials. Fails with
	// Conflict on a duplicate name and Unauthorised without the
	// ManageDomains permission.
	AddDomain(d domain.Domain, seed ...credentials.Credential) (bool, error)

	// RemoveDomain deletes d and its credentials. Removing the global
	// domain fails with UnsupportedOp.
	RemoveDomain(d domain.Domain) (bool, error)

	// UpdateDomain replaces current with replacement, keeping the
	// credentials. Fails with Conflict when the new name collides or
	// current is gone.
	UpdateDomain(current, replacement domain.Domain) (bool, error)
}
