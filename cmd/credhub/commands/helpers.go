package commands

import (
	"strings"

	"github.com/systmms/credhub/internal/hierarchy"
	"github.com/systmms/credhub/internal/permissions"
	"github.com/systmms/credhub/pkg/credentials"
	"github.com/systmms/credhub/pkg/domain"
	"github.com/systmms/credhub/pkg/store"

	credErrors "github.com/systmms/credhub/internal/errors"
)

// displayName renders the root's empty full name readably.
func displayName(fullName string) string {
	if fullName == "" {
		return "(root)"
	}
	return fullName
}

func scopeList(set credentials.ScopeSet) string {
	var names []string
	for _, s := range set.List() {
		names = append(names, s.String())
	}
	return strings.Join(names, ", ")
}

// contextFlag resolves the --context flag: empty means the root, a
// "user:" or "node:" prefix addresses those context kinds, anything
// else is a tree path.
func (a *App) contextFlag(value string) (*hierarchy.Context, error) {
	ctx, err := a.Root.Find(value)
	if err != nil {
		return nil, credErrors.NotFoundf("no such context %q", value)
	}
	return ctx, nil
}

// principalFlag maps --user to a principal; empty means SYSTEM.
func principalFlag(user string) permissions.Principal {
	if user == "" {
		return permissions.System
	}
	return permissions.Principal{ID: user}
}

// requirementFlags assembles domain requirements from the flag values.
func requirementFlags(hostname, scheme, path, uri string) []domain.Requirement {
	var reqs []domain.Requirement
	if hostname != "" {
		reqs = append(reqs, domain.Requirement{Kind: domain.KindHostname, Value: hostname})
	}
	if scheme != "" {
		reqs = append(reqs, domain.Requirement{Kind: domain.KindScheme, Value: scheme})
	}
	if path != "" {
		reqs = append(reqs, domain.Requirement{Kind: domain.KindPath, Value: path})
	}
	if uri != "" {
		reqs = append(reqs, domain.Requirement{Kind: domain.KindURI, Value: uri})
	}
	return reqs
}

// domainFor resolves a --domain flag against a store; empty names the
// global domain.
func domainFor(st store.Store, name string) (domain.Domain, error) {
	d, ok := st.DomainByName(name)
	if !ok {
		return domain.Domain{}, credErrors.NotFoundf("no such domain %q", name)
	}
	return d, nil
}
