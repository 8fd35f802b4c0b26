package credentials

import (
	"fmt"
	"strings"
)

// Matcher is a composable predicate over credentials.
type Matcher interface {
	// Matches reports whether c satisfies the predicate.
	Matches(c Credential) bool
	// Describe returns the predicate in CQL form when the matcher is
	// describable. Describable matchers are safe to push down to remote
	// stores; non-describable ones degrade to local filtering.
	Describe() (string, bool)
}

type alwaysMatcher struct{}

func (alwaysMatcher) Matches(Credential) bool  { return true }
func (alwaysMatcher) Describe() (string, bool) { return "true", true }

type neverMatcher struct{}

func (neverMatcher) Matches(Credential) bool  { return false }
func (neverMatcher) Describe() (string, bool) { return "false", true }

// Always matches every credential.
func Always() Matcher { return alwaysMatcher{} }

// Never matches no credential.
func Never() Matcher { return neverMatcher{} }

type idMatcher struct {
	id string
}

func (m idMatcher) Matches(c Credential) bool {
	return c.ID() == m.id
}

func (m idMatcher) Describe() (string, bool) {
	return fmt.Sprintf("id == %q", m.id), true
}

// ByID matches credentials with the given id.
func ByID(id string) Matcher { return idMatcher{id: id} }

type scopeMatcher struct {
	scope Scope
}

func (m scopeMatcher) Matches(c Credential) bool {
	return c.Scope() == m.scope
}

func (m scopeMatcher) Describe() (string, bool) {
	return "scope == " + m.scope.String(), true
}

// ByScope matches credentials with the given scope.
func ByScope(scope Scope) Matcher { return scopeMatcher{scope: scope} }

type typeMatcher struct {
	tag string
}

func (m typeMatcher) Matches(c Credential) bool {
	return c.TypeTag() == m.tag
}

func (m typeMatcher) Describe() (string, bool) {
	return fmt.Sprintf("type == %q", m.tag), true
}

// ByType matches credentials with the given type tag.
func ByType(tag string) Matcher { return typeMatcher{tag: tag} }

type andMatcher struct {
	ms []Matcher
}

func (m andMatcher) Matches(c Credential) bool {
	for _, sub := range m.ms {
		if !sub.Matches(c) {
			return false
		}
	}
	return true
}

func (m andMatcher) Describe() (string, bool) {
	return describeJoin(m.ms, " && ")
}

// And matches when every sub-matcher matches; with no sub-matchers it is
// Always.
func And(ms ...Matcher) Matcher {
	if len(ms) == 0 {
		return Always()
	}
	return andMatcher{ms: ms}
}

type orMatcher struct {
	ms []Matcher
}

func (m orMatcher) Matches(c Credential) bool {
	for _, sub := range m.ms {
		if sub.Matches(c) {
			return true
		}
	}
	return false
}

func (m orMatcher) Describe() (string, bool) {
	return describeJoin(m.ms, " || ")
}

// Or matches when any sub-matcher matches; with no sub-matchers it is
// Never.
func Or(ms ...Matcher) Matcher {
	if len(ms) == 0 {
		return Never()
	}
	return orMatcher{ms: ms}
}

type notMatcher struct {
	m Matcher
}

func (m notMatcher) Matches(c Credential) bool {
	return !m.m.Matches(c)
}

func (m notMatcher) Describe() (string, bool) {
	desc, ok := m.m.Describe()
	if !ok {
		return "", false
	}
	return "!(" + desc + ")", true
}

// Not inverts a matcher.
func Not(m Matcher) Matcher { return notMatcher{m: m} }

type funcMatcher struct {
	pred func(Credential) bool
	desc string
}

func (m funcMatcher) Matches(c Credential) bool {
	return m.pred(c)
}

func (m funcMatcher) Describe() (string, bool) {
	if m.desc == "" {
		return "", false
	}
	return m.desc, true
}

// Func wraps a custom predicate. It is describable only when desc is a
// non-empty CQL string.
func Func(pred func(Credential) bool, desc string) Matcher {
	return funcMatcher{pred: pred, desc: desc}
}

func describeJoin(ms []Matcher, sep string) (string, bool) {
	parts := make([]string, 0, len(ms))
	for _, m := range ms {
		desc, ok := m.Describe()
		if !ok {
			return "", false
		}
		parts = append(parts, desc)
	}
	return "(" + strings.Join(parts, sep) + ")", true
}

// Filter returns the credentials matching m, preserving order.
func Filter(creds []Credential, m Matcher) []Credential {
	if m == nil {
		return creds
	}
	out := make([]Credential, 0, len(creds))
	for _, c := range creds {
		if m.Matches(c) {
			out = append(out, c)
		}
	}
	return out
}
