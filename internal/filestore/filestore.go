// Package filestore implements the YAML-backed credential store bound to
// one hierarchy context. It is the store implementation behind the
// system (root), folder and user providers.
package filestore

import (
	"sync"

	"github.com/systmms/credhub/internal/cipher"
	credErrors "github.com/systmms/credhub/internal/errors"
	"github.com/systmms/credhub/internal/hierarchy"
	"github.com/systmms/credhub/internal/logging"
	"github.com/systmms/credhub/internal/permissions"
	"github.com/systmms/credhub/pkg/credentials"
	"github.com/systmms/credhub/pkg/domain"
)

// Options configures a file store.
type Options struct {
	// Path of the backing YAML document.
	Path string
	// Scopes this store accepts for new credentials.
	Scopes credentials.ScopeSet
	// Checker evaluates permissions against the context ACL.
	Checker permissions.Checker
	// Cipher compares secret payloads for equality.
	Cipher cipher.Cipher
	Logger *logging.Logger
}

// Store is a mutable, domain-partitioned credential store persisted as
// one YAML document. The in-memory structure is guarded by a
// single-writer lock; persistence runs under a separate mutex so a slow
// flush never blocks readers.
type Store struct {
	ctx     *hierarchy.Context
	path    string
	scopes  credentials.ScopeSet
	checker permissions.Checker
	cipher  cipher.Cipher
	logger  *logging.Logger

	mu      sync.RWMutex
	domains []*domainEntry // [0] is always the global domain

	saveMu      sync.Mutex
	bulkMu      sync.Mutex
	bulkDepth   int
	savePending bool
}

type domainEntry struct {
	dom   domain.Domain
	creds []credentials.Credential
}

// New opens (or initialises) the store for ctx. A missing backing file
// yields an empty store holding only the global domain.
func New(ctx *hierarchy.Context, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = logging.New(false, true)
	}
	if opts.Scopes == nil {
		opts.Scopes = credentials.NewScopeSet(credentials.ScopeGlobal, credentials.ScopeSystem)
	}
	s := &Store{
		ctx:     ctx,
		path:    opts.Path,
		scopes:  opts.Scopes,
		checker: opts.Checker,
		cipher:  opts.Cipher,
		logger:  opts.Logger,
		domains: []*domainEntry{{dom: domain.Global()}},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Context returns the bound hierarchy context.
func (s *Store) Context() *hierarchy.Context {
	return s.ctx
}

// Scopes returns the scopes this store accepts.
func (s *Store) Scopes() credentials.ScopeSet {
	return s.scopes
}

// HasPermission delegates to the bound context's ACL.
func (s *Store) HasPermission(p permissions.Principal, perm permissions.Permission) bool {
	return s.checker.Has(s.ctx.ACL(), p, perm)
}

// Domains returns the ordered domain list, global first.
func (s *Store) Domains() []domain.Domain {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Domain, len(s.domains))
	for i, e := range s.domains {
		out[i] = e.dom
	}
	return out
}

// DomainByName finds a domain; the empty name is the global domain.
func (s *Store) DomainByName(name string) (domain.Domain, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e := s.entryByName(name); e != nil {
		return e.dom, true
	}
	return domain.Domain{}, false
}

// Credentials returns a copy of d's credential list in insertion order.
func (s *Store) Credentials(d domain.Domain) []credentials.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.entryByName(d.Name())
	if e == nil {
		return nil
	}
	return append([]credentials.Credential(nil), e.creds...)
}

// entryByName must be called with mu held.
func (s *Store) entryByName(name string) *domainEntry {
	for _, e := range s.domains {
		if e.dom.Name() == name {
			return e
		}
	}
	return nil
}

// checkScope rejects credentials whose scope the store does not accept.
func (s *Store) checkScope(c credentials.Credential) error {
	if !s.scopes.Contains(c.Scope()) {
		return credErrors.Invalidf("scope %s is not accepted by the %q store", c.Scope(), s.ctx.FullName())
	}
	return nil
}

func indexByID(creds []credentials.Credential, id string) int {
	for i, c := range creds {
		if c.ID() == id {
			return i
		}
	}
	return -1
}

// AddCredentials inserts c into d.
func (s *Store) AddCredentials(d domain.Domain, c credentials.Credential) (bool, error) {
	return s.AddCredentialsAs(permissions.System, d, c)
}

// AddCredentialsAs is AddCredentials with an explicit principal.
func (s *Store) AddCredentialsAs(p permissions.Principal, d domain.Domain, c credentials.Credential) (bool, error) {
	changed, err := s.addCredentials(p, d, c)
	if err != nil {
		return false, err
	}
	if changed {
		if err := s.saveOrDefer(); err != nil {
			return true, err
		}
	}
	return changed, nil
}

func (s *Store) addCredentials(p permissions.Principal, d domain.Domain, c credentials.Credential) (bool, error) {
	if !s.HasPermission(p, permissions.Create) {
		return false, credErrors.Unauthorisedf("%s lacks %s on %q", p.ID, permissions.Create, s.ctx.FullName())
	}
	if err := s.checkScope(c); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryByName(d.Name())
	if e == nil {
		return false, credErrors.NotFoundf("no domain %q in store", d.Name())
	}
	if i := indexByID(e.creds, c.ID()); i >= 0 {
		if credentials.Equal(s.cipher, e.creds[i], c) {
			return false, nil
		}
		return false, credErrors.Conflictf("credential id %q already present in domain %q", c.ID(), d.Name())
	}
	e.creds = append(e.creds, c)
	return true, nil
}

// RemoveCredentials deletes c (matched by id) from d.
func (s *Store) RemoveCredentials(d domain.Domain, c credentials.Credential) (bool, error) {
	return s.RemoveCredentialsAs(permissions.System, d, c)
}

// RemoveCredentialsAs is RemoveCredentials with an explicit principal.
func (s *Store) RemoveCredentialsAs(p permissions.Principal, d domain.Domain, c credentials.Credential) (bool, error) {
	if !s.HasPermission(p, permissions.Delete) {
		return false, credErrors.Unauthorisedf("%s lacks %s on %q", p.ID, permissions.Delete, s.ctx.FullName())
	}
	s.mu.Lock()
	e := s.entryByName(d.Name())
	if e == nil {
		s.mu.Unlock()
		return false, credErrors.NotFoundf("no domain %q in store", d.Name())
	}
	i := indexByID(e.creds, c.ID())
	if i < 0 {
		s.mu.Unlock()
		return false, credErrors.NotFoundf("no credential %q in domain %q", c.ID(), d.Name())
	}
	e.creds = append(e.creds[:i], e.creds[i+1:]...)
	s.mu.Unlock()
	return true, s.saveOrDefer()
}

// UpdateCredentials replaces current with replacement in d. A lost
// update (current no longer present) fails with Conflict.
func (s *Store) UpdateCredentials(d domain.Domain, current, replacement credentials.Credential) (bool, error) {
	return s.UpdateCredentialsAs(permissions.System, d, current, replacement)
}

// UpdateCredentialsAs is UpdateCredentials with an explicit principal.
func (s *Store) UpdateCredentialsAs(p permissions.Principal, d domain.Domain, current, replacement credentials.Credential) (bool, error) {
	if !s.HasPermission(p, permissions.Update) {
		return false, credErrors.Unauthorisedf("%s lacks %s on %q", p.ID, permissions.Update, s.ctx.FullName())
	}
	if err := s.checkScope(replacement); err != nil {
		return false, err
	}
	s.mu.Lock()
	e := s.entryByName(d.Name())
	if e == nil {
		s.mu.Unlock()
		return false, credErrors.NotFoundf("no domain %q in store", d.Name())
	}
	i := indexByID(e.creds, current.ID())
	if i < 0 || !credentials.Equal(s.cipher, e.creds[i], current) {
		s.mu.Unlock()
		return false, credErrors.Conflictf("credential %q was modified concurrently", current.ID())
	}
	if replacement.ID() != current.ID() {
		if j := indexByID(e.creds, replacement.ID()); j >= 0 {
			s.mu.Unlock()
			return false, credErrors.Conflictf("credential id %q already present in domain %q", replacement.ID(), d.Name())
		}
	}
	e.creds[i] = replacement
	s.mu.Unlock()
	return true, s.saveOrDefer()
}

// AddDomain inserts d with optional seed credentials. Adding an equal
// domain again returns false unchanged.
func (s *Store) AddDomain(d domain.Domain, seed ...credentials.Credential) (bool, error) {
	return s.AddDomainAs(permissions.System, d, seed...)
}

// AddDomainAs is AddDomain with an explicit principal.
func (s *Store) AddDomainAs(p permissions.Principal, d domain.Domain, seed ...credentials.Credential) (bool, error) {
	if !s.HasPermission(p, permissions.ManageDomains) {
		return false, credErrors.Unauthorisedf("%s lacks %s on %q", p.ID, permissions.ManageDomains, s.ctx.FullName())
	}
	if d.IsGlobal() {
		return false, credErrors.Unsupportedf("the global domain always exists")
	}
	s.mu.Lock()
	if e := s.entryByName(d.Name()); e != nil {
		equal := e.dom.Equal(d)
		s.mu.Unlock()
		if equal {
			return false, nil
		}
		return false, credErrors.Conflictf("domain %q already exists", d.Name())
	}
	seen := make(map[string]bool, len(seed))
	for _, c := range seed {
		if seen[c.ID()] {
			s.mu.Unlock()
			return false, credErrors.Conflictf("duplicate credential id %q in seed", c.ID())
		}
		seen[c.ID()] = true
		if err := s.checkScope(c); err != nil {
			s.mu.Unlock()
			return false, err
		}
	}
	s.domains = append(s.domains, &domainEntry{dom: d, creds: append([]credentials.Credential(nil), seed...)})
	s.mu.Unlock()
	return true, s.saveOrDefer()
}

// RemoveDomain deletes d and its credentials. The global domain cannot
// be removed.
func (s *Store) RemoveDomain(d domain.Domain) (bool, error) {
	return s.RemoveDomainAs(permissions.System, d)
}

// RemoveDomainAs is RemoveDomain with an explicit principal.
func (s *Store) RemoveDomainAs(p permissions.Principal, d domain.Domain) (bool, error) {
	if !s.HasPermission(p, permissions.ManageDomains) {
		return false, credErrors.Unauthorisedf("%s lacks %s on %q", p.ID, permissions.ManageDomains, s.ctx.FullName())
	}
	if d.IsGlobal() {
		return false, credErrors.Unsupportedf("cannot remove the global domain")
	}
	s.mu.Lock()
	for i, e := range s.domains {
		if e.dom.Name() == d.Name() {
			s.domains = append(s.domains[:i], s.domains[i+1:]...)
			s.mu.Unlock()
			return true, s.saveOrDefer()
		}
	}
	s.mu.Unlock()
	return false, nil
}

// UpdateDomain replaces current with replacement, keeping credentials.
func (s *Store) UpdateDomain(current, replacement domain.Domain) (bool, error) {
	return s.UpdateDomainAs(permissions.System, current, replacement)
}

// UpdateDomainAs is UpdateDomain with an explicit principal.
func (s *Store) UpdateDomainAs(p permissions.Principal, current, replacement domain.Domain) (bool, error) {
	if !s.HasPermission(p, permissions.ManageDomains) {
		return false, credErrors.Unauthorisedf("%s lacks %s on %q", p.ID, permissions.ManageDomains, s.ctx.FullName())
	}
	if current.IsGlobal() || replacement.IsGlobal() {
		return false, credErrors.Unsupportedf("the global domain cannot be renamed")
	}
	s.mu.Lock()
	e := s.entryByName(current.Name())
	if e == nil {
		s.mu.Unlock()
		return false, credErrors.Conflictf("domain %q no longer exists", current.Name())
	}
	if replacement.Name() != current.Name() {
		if other := s.entryByName(replacement.Name()); other != nil {
			s.mu.Unlock()
			return false, credErrors.Conflictf("domain %q already exists", replacement.Name())
		}
	}
	e.dom = replacement
	s.mu.Unlock()
	return true, s.saveOrDefer()
}
