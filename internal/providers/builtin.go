package providers

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/systmms/credhub/internal/cipher"
	"github.com/systmms/credhub/internal/filestore"
	"github.com/systmms/credhub/internal/hierarchy"
	"github.com/systmms/credhub/internal/logging"
	"github.com/systmms/credhub/internal/permissions"
	"github.com/systmms/credhub/pkg/credentials"
	"github.com/systmms/credhub/pkg/store"
)

// FileStoreSource opens and caches the per-context file stores under a
// base directory. Stores are opened lazily on first use and kept for
// the context's lifetime.
type FileStoreSource struct {
	dir     string
	cipher  cipher.Cipher
	checker permissions.Checker
	logger  *logging.Logger

	mu   sync.Mutex
	open map[*hierarchy.Context]*filestore.Store
}

// NewFileStoreSource creates a source rooted at dir.
func NewFileStoreSource(dir string, c cipher.Cipher, checker permissions.Checker, logger *logging.Logger) *FileStoreSource {
	return &FileStoreSource{
		dir:     dir,
		cipher:  c,
		checker: checker,
		logger:  logger,
		open:    make(map[*hierarchy.Context]*filestore.Store),
	}
}

// pathFor maps a context to its backing file. The root store lives at
// system.yaml; item stores under items/, user stores under users/.
func (s *FileStoreSource) pathFor(ctx *hierarchy.Context) string {
	switch ctx.Kind() {
	case hierarchy.KindRoot:
		return filepath.Join(s.dir, "system.yaml")
	case hierarchy.KindUser:
		return filepath.Join(s.dir, "users", ctx.Name()+".yaml")
	default:
		segments := strings.Split(ctx.FullName(), "/")
		return filepath.Join(s.dir, "items", filepath.Join(segments...)+".yaml")
	}
}

func (s *FileStoreSource) scopesFor(ctx *hierarchy.Context) credentials.ScopeSet {
	switch ctx.Kind() {
	case hierarchy.KindRoot:
		return credentials.NewScopeSet(credentials.ScopeSystem, credentials.ScopeGlobal)
	case hierarchy.KindUser:
		return credentials.NewScopeSet(credentials.ScopeUser)
	default:
		return credentials.NewScopeSet(credentials.ScopeGlobal)
	}
}

// For returns the store bound to ctx, opening it on first use.
func (s *FileStoreSource) For(ctx *hierarchy.Context) (*filestore.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.open[ctx]; ok {
		return st, nil
	}
	st, err := filestore.New(ctx, filestore.Options{
		Path:    s.pathFor(ctx),
		Scopes:  s.scopesFor(ctx),
		Checker: s.checker,
		Cipher:  s.cipher,
		Logger:  s.logger,
	})
	if err != nil {
		return nil, err
	}
	s.open[ctx] = st
	return st, nil
}

// SystemProvider contributes the installation-wide store singleton at
// the root context. Its credentials carry SYSTEM or GLOBAL scope.
type SystemProvider struct {
	source *FileStoreSource
}

// NewSystemProvider creates the root-store provider.
func NewSystemProvider(source *FileStoreSource) *SystemProvider {
	return &SystemProvider{source: source}
}

func (p *SystemProvider) Name() string { return "system" }

func (p *SystemProvider) IsEnabled(ctx *hierarchy.Context) bool {
	return ctx.Kind() == hierarchy.KindRoot
}

func (p *SystemProvider) StoresFor(ctx *hierarchy.Context, _ permissions.Principal) ([]store.Store, error) {
	st, err := p.source.For(ctx)
	if err != nil {
		return nil, err
	}
	return []store.Store{st}, nil
}

// FolderProvider contributes one store per folder or item context. A
// credential placed on a folder is visible to everything beneath it.
type FolderProvider struct {
	source *FileStoreSource
}

// NewFolderProvider creates the per-folder store provider.
func NewFolderProvider(source *FileStoreSource) *FolderProvider {
	return &FolderProvider{source: source}
}

func (p *FolderProvider) Name() string { return "folder" }

func (p *FolderProvider) IsEnabled(ctx *hierarchy.Context) bool {
	return ctx.Kind() == hierarchy.KindFolder || ctx.Kind() == hierarchy.KindItem
}

func (p *FolderProvider) StoresFor(ctx *hierarchy.Context, _ permissions.Principal) ([]store.Store, error) {
	st, err := p.source.For(ctx)
	if err != nil {
		return nil, err
	}
	return []store.Store{st}, nil
}

// UserProvider contributes the acting principal's personal store at
// their own user context. Other principals' stores are never surfaced.
type UserProvider struct {
	source *FileStoreSource
}

// NewUserProvider creates the personal-store provider.
func NewUserProvider(source *FileStoreSource) *UserProvider {
	return &UserProvider{source: source}
}

func (p *UserProvider) Name() string { return "user" }

func (p *UserProvider) IsEnabled(ctx *hierarchy.Context) bool {
	return ctx.Kind() == hierarchy.KindUser
}

func (p *UserProvider) StoresFor(ctx *hierarchy.Context, principal permissions.Principal) ([]store.Store, error) {
	if ctx.Name() != principal.ID {
		return nil, nil
	}
	st, err := p.source.For(ctx)
	if err != nil {
		return nil, err
	}
	return []store.Store{st}, nil
}
