package domain

import (
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	credErrors "github.com/systmms/credhub/internal/errors"
)

// Result is the outcome of testing one requirement value against a
// specification.
type Result int

const (
	// NoMatch means the value definitely does not satisfy the spec.
	NoMatch Result = iota
	// Match means the value satisfies the spec.
	Match
	// Indeterminate means the spec cannot judge the value (e.g. empty).
	Indeterminate
)

// Specification is a predicate over one kind of requirement.
type Specification interface {
	// Kind returns the requirement kind this specification interrogates.
	Kind() RequirementKind
	// Test judges one requirement value.
	Test(value string) Result
	// Params returns the persistable parameters of this specification.
	Params() map[string]string
}

// HostnameSpecification matches hostnames against include and exclude
// lists. Each entry is matched per dotted segment; a segment is a regular
// expression with "*" standing for any run of non-dot characters. An
// entry may carry an optional ":port" suffix, in which case the
// requirement's port participates in the match.
type HostnameSpecification struct {
	includes []hostPattern
	excludes []hostPattern
	rawInc   string
	rawExc   string
}

type hostPattern struct {
	segments []*regexp.Regexp
	port     string
}

func compileHostPattern(entry string) (hostPattern, error) {
	host := entry
	var port string
	if i := strings.LastIndex(entry, ":"); i >= 0 {
		host, port = entry[:i], entry[i+1:]
	}
	var p hostPattern
	p.port = port
	for _, segment := range strings.Split(strings.ToLower(host), ".") {
		expr := strings.ReplaceAll(segment, "*", "[^.]*")
		re, err := regexp.Compile("^(?i:" + expr + ")$")
		if err != nil {
			return hostPattern{}, credErrors.Wrap(credErrors.InvalidArgument, err,
				"invalid hostname specification %q", entry)
		}
		p.segments = append(p.segments, re)
	}
	return p, nil
}

func (p hostPattern) matches(value string) bool {
	host := value
	var port string
	if i := strings.LastIndex(value, ":"); i >= 0 {
		host, port = value[:i], value[i+1:]
	}
	if p.port != "" && p.port != port {
		return false
	}
	segments := strings.Split(host, ".")
	if len(segments) != len(p.segments) {
		return false
	}
	for i, re := range p.segments {
		if !re.MatchString(segments[i]) {
			return false
		}
	}
	return true
}

func compileHostList(raw string) ([]hostPattern, error) {
	var out []hostPattern
	for _, entry := range splitList(raw) {
		p, err := compileHostPattern(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// NewHostnameSpecification compiles include/exclude lists (whitespace or
// comma separated). Empty includes admit every hostname not excluded.
func NewHostnameSpecification(includes, excludes string) (*HostnameSpecification, error) {
	inc, err := compileHostList(includes)
	if err != nil {
		return nil, err
	}
	exc, err := compileHostList(excludes)
	if err != nil {
		return nil, err
	}
	return &HostnameSpecification{includes: inc, excludes: exc, rawInc: includes, rawExc: excludes}, nil
}

func (s *HostnameSpecification) Kind() RequirementKind { return KindHostname }

func (s *HostnameSpecification) Test(value string) Result {
	if value == "" {
		return Indeterminate
	}
	value = strings.ToLower(value)
	for _, p := range s.excludes {
		if p.matches(value) {
			return NoMatch
		}
	}
	if len(s.includes) == 0 {
		return Match
	}
	for _, p := range s.includes {
		if p.matches(value) {
			return Match
		}
	}
	return NoMatch
}

func (s *HostnameSpecification) Params() map[string]string {
	return map[string]string{"includes": s.rawInc, "excludes": s.rawExc}
}

// SchemeSpecification matches URI schemes against a one-of list,
// case-insensitively.
type SchemeSpecification struct {
	schemes []string
	raw     string
}

// NewSchemeSpecification parses a whitespace or comma separated scheme list.
func NewSchemeSpecification(schemes string) (*SchemeSpecification, error) {
	list := splitList(schemes)
	if len(list) == 0 {
		return nil, credErrors.Invalidf("scheme specification needs at least one scheme")
	}
	for i, s := range list {
		list[i] = strings.ToLower(strings.TrimSuffix(s, "://"))
	}
	return &SchemeSpecification{schemes: list, raw: schemes}, nil
}

func (s *SchemeSpecification) Kind() RequirementKind { return KindScheme }

func (s *SchemeSpecification) Test(value string) Result {
	if value == "" {
		return Indeterminate
	}
	value = strings.ToLower(strings.TrimSuffix(value, "://"))
	for _, scheme := range s.schemes {
		if scheme == value {
			return Match
		}
	}
	return NoMatch
}

func (s *SchemeSpecification) Params() map[string]string {
	return map[string]string{"schemes": s.raw}
}

// PathSpecification matches request paths against a prefix list.
type PathSpecification struct {
	prefixes []string
	raw      string
}

// NewPathSpecification parses a whitespace or comma separated prefix list.
func NewPathSpecification(prefixes string) (*PathSpecification, error) {
	list := splitList(prefixes)
	if len(list) == 0 {
		return nil, credErrors.Invalidf("path specification needs at least one prefix")
	}
	for i, p := range list {
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		list[i] = p
	}
	return &PathSpecification{prefixes: list, raw: prefixes}, nil
}

func (s *PathSpecification) Kind() RequirementKind { return KindPath }

func (s *PathSpecification) Test(value string) Result {
	if value == "" {
		return Indeterminate
	}
	if !strings.HasPrefix(value, "/") {
		value = "/" + value
	}
	for _, prefix := range s.prefixes {
		if strings.HasPrefix(value, prefix) {
			return Match
		}
	}
	return NoMatch
}

func (s *PathSpecification) Params() map[string]string {
	return map[string]string{"prefixes": s.raw}
}

// URISpecification matches whole URIs against a glob list with ** support.
type URISpecification struct {
	globs []string
	raw   string
}

// NewURISpecification parses a whitespace or comma separated glob list.
func NewURISpecification(globs string) (*URISpecification, error) {
	list := splitList(globs)
	if len(list) == 0 {
		return nil, credErrors.Invalidf("uri specification needs at least one glob")
	}
	for _, g := range list {
		if !doublestar.ValidatePattern(g) {
			return nil, credErrors.Invalidf("invalid uri specification glob %q", g)
		}
	}
	return &URISpecification{globs: list, raw: globs}, nil
}

func (s *URISpecification) Kind() RequirementKind { return KindURI }

func (s *URISpecification) Test(value string) Result {
	if value == "" {
		return Indeterminate
	}
	for _, g := range s.globs {
		if ok, err := doublestar.Match(g, value); err == nil && ok {
			return Match
		}
	}
	return NoMatch
}

func (s *URISpecification) Params() map[string]string {
	return map[string]string{"globs": s.raw}
}

// SpecificationFromParams rebuilds a specification from its persisted
// (kind, params) form.
func SpecificationFromParams(kind string, params map[string]string) (Specification, error) {
	switch RequirementKind(kind) {
	case KindHostname:
		return NewHostnameSpecification(params["includes"], params["excludes"])
	case KindScheme:
		return NewSchemeSpecification(params["schemes"])
	case KindPath:
		return NewPathSpecification(params["prefixes"])
	case KindURI:
		return NewURISpecification(params["globs"])
	default:
		return nil, credErrors.Invalidf("unknown specification kind %q", kind)
	}
}

func splitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
