// Package domain implements named credential groupings and the
// specification predicates that map lookup requirements onto them.
package domain

import (
	"net/url"
	"reflect"
	"strings"

	credErrors "github.com/systmms/credhub/internal/errors"
)

// Domain is a named partition of a store's credentials. The zero value
// is the distinguished global domain.
type Domain struct {
	name        string // empty means global
	description string
	specs       []Specification
}

// Global returns the distinguished global domain present in every store.
func Global() Domain {
	return Domain{}
}

// New creates a named domain. The name must be non-empty and free of
// path separators; use Global for the global domain.
func New(name, description string, specs ...Specification) (Domain, error) {
	if strings.TrimSpace(name) == "" {
		return Domain{}, credErrors.Invalidf("domain name must not be empty")
	}
	if strings.ContainsAny(name, "/\\") {
		return Domain{}, credErrors.Invalidf("domain name %q contains path separators", name)
	}
	return Domain{name: name, description: description, specs: specs}, nil
}

// IsGlobal reports whether d is the global domain.
func (d Domain) IsGlobal() bool {
	return d.name == ""
}

// Name returns the domain name; empty for the global domain.
func (d Domain) Name() string {
	return d.name
}

// Description returns the human-readable description.
func (d Domain) Description() string {
	return d.description
}

// Specs returns the ordered specification list.
func (d Domain) Specs() []Specification {
	return d.specs
}

// Matches reports whether the requirement set satisfies the domain: for
// every specification, at least one requirement of its kind must match.
// Requirements with no corresponding specification are ignored, so a
// domain without specifications constrains nothing.
func (d Domain) Matches(reqs []Requirement) bool {
	for _, spec := range d.specs {
		satisfied := false
		for _, req := range reqs {
			if req.Kind != spec.Kind() {
				continue
			}
			if spec.Test(req.Value) == Match {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false
		}
	}
	return true
}

// URLSegment renders the domain name for the URL surface: "_" for the
// global domain, percent-encoded name otherwise.
func (d Domain) URLSegment() string {
	if d.IsGlobal() {
		return "_"
	}
	return url.PathEscape(d.name)
}

// Equal compares name, description and specification parameters.
func (d Domain) Equal(other Domain) bool {
	if d.name != other.name || d.description != other.description {
		return false
	}
	if len(d.specs) != len(other.specs) {
		return false
	}
	for i := range d.specs {
		if d.specs[i].Kind() != other.specs[i].Kind() {
			return false
		}
		if !reflect.DeepEqual(d.specs[i].Params(), other.specs[i].Params()) {
			return false
		}
	}
	return true
}
