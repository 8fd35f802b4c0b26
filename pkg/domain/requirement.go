package domain

import (
	"net/url"
	"strings"
)

// RequirementKind names the facet of a connection a requirement asserts.
type RequirementKind string

const (
	KindHostname RequirementKind = "hostname"
	KindScheme   RequirementKind = "scheme"
	KindPath     RequirementKind = "path"
	KindURI      RequirementKind = "uri"
)

// Requirement is a (kind, value) pair asserted by a caller at lookup time.
type Requirement struct {
	Kind  RequirementKind
	Value string
}

// HostnameRequirement builds a hostname requirement.
func HostnameRequirement(host string) Requirement {
	return Requirement{Kind: KindHostname, Value: host}
}

// SchemeRequirement builds a scheme requirement.
func SchemeRequirement(scheme string) Requirement {
	return Requirement{Kind: KindScheme, Value: scheme}
}

// PathRequirement builds a path requirement.
func PathRequirement(path string) Requirement {
	return Requirement{Kind: KindPath, Value: path}
}

// URIRequirement builds a uri requirement.
func URIRequirement(uri string) Requirement {
	return Requirement{Kind: KindURI, Value: uri}
}

// RequirementsFromURI derives the full requirement set for a target URI:
// scheme, hostname (with port when present), path and the URI itself.
// Unparseable input yields only a uri requirement.
func RequirementsFromURI(raw string) []Requirement {
	if raw == "" {
		return nil
	}
	reqs := []Requirement{URIRequirement(raw)}
	u, err := url.Parse(raw)
	if err != nil {
		return reqs
	}
	if u.Scheme != "" {
		reqs = append(reqs, SchemeRequirement(strings.ToLower(u.Scheme)))
	}
	if u.Host != "" {
		reqs = append(reqs, HostnameRequirement(u.Host))
	}
	if u.Path != "" {
		reqs = append(reqs, PathRequirement(u.Path))
	}
	return reqs
}
