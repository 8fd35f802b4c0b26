package commands

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/systmms/credhub/internal/cipher"
	"github.com/systmms/credhub/internal/config"
	"github.com/systmms/credhub/internal/fingerprint"
	"github.com/systmms/credhub/internal/hierarchy"
	"github.com/systmms/credhub/internal/logging"
	"github.com/systmms/credhub/internal/metrics"
	"github.com/systmms/credhub/internal/permissions"
	"github.com/systmms/credhub/internal/providers"
	"github.com/systmms/credhub/internal/resolve"
	"github.com/systmms/credhub/pkg/credentials"

	credErrors "github.com/systmms/credhub/internal/errors"
)

// App carries the wired subsystems shared by all commands. Wiring is
// lazy: flags are parsed before Init runs.
type App struct {
	ConfigFile     string
	Logger         *logging.Logger
	NonInteractive bool

	Config    *config.Config
	Cipher    cipher.Cipher
	Factory   credentials.Factory
	Root      *hierarchy.Context
	Resolvers *hierarchy.ResolverRegistry
	Registry  *providers.Registry
	Source    *providers.FileStoreSource
	Engine    *resolve.Engine
	Ledger    *fingerprint.Ledger

	initialised bool
}

// NewApp creates an unwired App; commands call Init in their RunE.
func NewApp() *App {
	return &App{Logger: logging.New(false, false)}
}

// Init loads configuration and wires the stores, providers and engine.
func (a *App) Init() error {
	if a.initialised {
		return nil
	}

	cfg, err := config.Load(a.ConfigFile)
	if err != nil {
		return err
	}
	cfg.Logger = a.Logger
	a.Config = cfg

	metrics.Init()

	key, err := cipher.LoadKey(cfg.Cipher.KeySource, a.keySourceArg())
	if err != nil {
		return err
	}
	c, err := cipher.NewAESGCM(key)
	if err != nil {
		return err
	}
	a.Cipher = c
	a.Factory = credentials.Factory{Cipher: c, FIPS: cfg.FIPSAlgorithms}

	checker := permissions.Checker{UseOwnImpliesAdminister: cfg.UseOwnImpliesAdminister}

	a.Root = hierarchy.NewRoot()
	if err := a.restoreHierarchy(); err != nil {
		return err
	}
	a.Resolvers = hierarchy.NewResolverRegistry(a.Root)

	a.Source = providers.NewFileStoreSource(cfg.StoresDir, c, checker, a.Logger)
	a.Registry = providers.NewRegistry(a.Logger)
	if err := a.Registry.Register(providers.NewSystemProvider(a.Source)); err != nil {
		return err
	}
	if err := a.Registry.Register(providers.NewFolderProvider(a.Source)); err != nil {
		return err
	}
	if err := a.Registry.Register(providers.NewUserProvider(a.Source)); err != nil {
		return err
	}
	if cfg.Providers.AWS.Enabled {
		aws := providers.NewAWSProvider(a.Root, providers.AWSStoreOptions{
			Region:          cfg.Providers.AWS.Region,
			Endpoint:        cfg.Providers.AWS.Endpoint,
			Prefix:          cfg.Providers.AWS.Prefix,
			AccessKeyID:     cfg.Providers.AWS.AccessKeyID,
			SecretAccessKey: cfg.Providers.AWS.SecretAccessKey,
			Checker:         checker,
			Factory:         a.Factory,
			Logger:          a.Logger,
		})
		if err := a.Registry.Register(aws); err != nil {
			return err
		}
	}
	a.Registry.SetPolicy(a.policyFromConfig())

	a.Engine = resolve.New(a.Registry, a.Root, checker, resolve.WithLogger(a.Logger))

	a.Ledger = fingerprint.NewLedger(fingerprint.Options{
		Enabled:   cfg.FingerprintEnabled(),
		Algorithm: cfg.FingerprintAlgorithm(),
	})
	if err := a.Ledger.LoadFrom(a.LedgerPath()); err != nil {
		return err
	}

	a.initialised = true
	return nil
}

func (a *App) keySourceArg() string {
	switch a.Config.Cipher.KeySource {
	case "static":
		return a.Config.Cipher.KeyMaterial
	default:
		return a.Config.KeyFile()
	}
}

func (a *App) policyFromConfig() *providers.Policy {
	p := &providers.Policy{Allowed: a.Config.Providers.Allowed}
	if len(a.Config.Providers.Disabled) > 0 {
		p.Disabled = make(map[string]bool, len(a.Config.Providers.Disabled))
		for _, name := range a.Config.Providers.Disabled {
			p.Disabled[name] = true
		}
	}
	if len(a.Config.Providers.TypeRestrictions) > 0 {
		p.Types = a.Config.Providers.TypeRestrictions
	}
	if len(a.Config.Providers.TypeDenials) > 0 {
		p.TypeDenials = a.Config.Providers.TypeDenials
	}
	return p
}

// LedgerPath is where the fingerprint ledger persists.
func (a *App) LedgerPath() string {
	return filepath.Join(a.Config.StoresDir, "fingerprints.yaml")
}

// restoreHierarchy rebuilds the context tree from the store directory
// layout: items/<path>.yaml files define folders and items, a yaml file
// with a same-named subdirectory is a folder; users/<name>.yaml files
// define user contexts.
func (a *App) restoreHierarchy() error {
	itemsDir := filepath.Join(a.Config.StoresDir, "items")
	err := filepath.WalkDir(itemsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".yaml") {
			return nil
		}
		rel, err := filepath.Rel(itemsDir, path)
		if err != nil {
			return err
		}
		return a.restoreBranch(strings.TrimSuffix(rel, ".yaml"), strings.TrimSuffix(path, ".yaml"))
	})
	if err != nil {
		return credErrors.Wrap(credErrors.IO, err, "restoring hierarchy from %s", itemsDir)
	}

	usersDir := filepath.Join(a.Config.StoresDir, "users")
	entries, err := os.ReadDir(usersDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return credErrors.Wrap(credErrors.IO, err, "restoring users from %s", usersDir)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		if _, err := a.Root.User(strings.TrimSuffix(e.Name(), ".yaml")); err != nil {
			return err
		}
	}
	return nil
}

// restoreBranch ensures the context chain for one store file exists.
func (a *App) restoreBranch(rel, diskPath string) error {
	segments := strings.Split(filepath.ToSlash(rel), "/")
	cur := a.Root
	for i, segment := range segments {
		existing, err := cur.Find(joinSegments(segments[:i+1]))
		if err == nil {
			cur = existing
			continue
		}
		leaf := i == len(segments)-1
		if leaf {
			// A same-named directory means children exist below.
			if info, statErr := os.Stat(diskPath); statErr == nil && info.IsDir() {
				cur, err = cur.NewFolder(segment)
			} else {
				cur, err = cur.NewItem(segment)
			}
		} else {
			cur, err = cur.NewFolder(segment)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func joinSegments(segments []string) string {
	return strings.Join(segments, "/")
}
