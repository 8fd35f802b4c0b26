package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	credErrors "github.com/systmms/credhub/internal/errors"
)

func TestHostnameSpecification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		includes string
		excludes string
		value    string
		want     Result
	}{
		{"wildcard subdomain matches", "*.github.com", "", "api.github.com", Match},
		{"wildcard does not span dots", "*.github.com", "", "a.b.github.com", NoMatch},
		{"bare domain needs exact segments", "*.github.com", "", "github.com", NoMatch},
		{"case insensitive", "*.GitHub.com", "", "API.github.COM", Match},
		{"multiple entries", "github.com, *.github.com", "", "github.com", Match},
		{"exclude wins", "*.example.com", "internal.example.com", "internal.example.com", NoMatch},
		{"port participates when specified", "db.example.com:5432", "", "db.example.com:5432", Match},
		{"port mismatch", "db.example.com:5432", "", "db.example.com:3306", NoMatch},
		{"empty includes admit all", "", "", "anything.example.org", Match},
		{"empty value indeterminate", "*.github.com", "", "", Indeterminate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := NewHostnameSpecification(tt.includes, tt.excludes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, spec.Test(tt.value))
		})
	}
}

func TestHostnameSpecificationRejectsBadPattern(t *testing.T) {
	t.Parallel()

	_, err := NewHostnameSpecification("ap[i.github.com", "")
	assert.True(t, credErrors.IsKind(err, credErrors.InvalidArgument))
}

func TestSchemeSpecification(t *testing.T) {
	t.Parallel()

	spec, err := NewSchemeSpecification("https, ssh")
	require.NoError(t, err)

	assert.Equal(t, Match, spec.Test("https"))
	assert.Equal(t, Match, spec.Test("HTTPS"))
	assert.Equal(t, Match, spec.Test("ssh://"))
	assert.Equal(t, NoMatch, spec.Test("http"))
	assert.Equal(t, Indeterminate, spec.Test(""))

	_, err = NewSchemeSpecification("   ")
	assert.True(t, credErrors.IsKind(err, credErrors.InvalidArgument))
}

func TestPathSpecification(t *testing.T) {
	t.Parallel()

	spec, err := NewPathSpecification("/api/v2, /internal")
	require.NoError(t, err)

	assert.Equal(t, Match, spec.Test("/api/v2/users"))
	assert.Equal(t, Match, spec.Test("api/v2"))
	assert.Equal(t, Match, spec.Test("/internal"))
	assert.Equal(t, NoMatch, spec.Test("/public"))
	assert.Equal(t, Indeterminate, spec.Test(""))
}

func TestURISpecification(t *testing.T) {
	t.Parallel()

	spec, err := NewURISpecification("https://*.example.com/**")
	require.NoError(t, err)

	assert.Equal(t, Match, spec.Test("https://api.example.com/v1/keys"))
	assert.Equal(t, NoMatch, spec.Test("http://api.example.com/v1/keys"))
	assert.Equal(t, Indeterminate, spec.Test(""))

	_, err = NewURISpecification("https://[")
	assert.True(t, credErrors.IsKind(err, credErrors.InvalidArgument))
}

func TestDomainMatches(t *testing.T) {
	t.Parallel()

	hostSpec, err := NewHostnameSpecification("*.github.com", "")
	require.NoError(t, err)
	schemeSpec, err := NewSchemeSpecification("https")
	require.NoError(t, err)

	github, err := New("github", "GitHub API credentials", hostSpec, schemeSpec)
	require.NoError(t, err)

	tests := []struct {
		name string
		reqs []Requirement
		want bool
	}{
		{
			name: "all specs satisfied",
			reqs: []Requirement{HostnameRequirement("api.github.com"), SchemeRequirement("https")},
			want: true,
		},
		{
			name: "one spec unsatisfied",
			reqs: []Requirement{HostnameRequirement("api.github.com"), SchemeRequirement("http")},
			want: false,
		},
		{
			name: "missing kind leaves spec unsatisfied",
			reqs: []Requirement{HostnameRequirement("api.github.com")},
			want: false,
		},
		{
			name: "unknown requirement kinds are ignored",
			reqs: []Requirement{
				HostnameRequirement("api.github.com"),
				SchemeRequirement("https"),
				PathRequirement("/repos"),
			},
			want: true,
		},
		{
			name: "empty requirements never satisfy specs",
			reqs: nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, github.Matches(tt.reqs))
		})
	}
}

func TestGlobalDomainConstrainsNothing(t *testing.T) {
	t.Parallel()

	global := Global()
	assert.True(t, global.IsGlobal())
	assert.True(t, global.Matches(nil))
	assert.True(t, global.Matches([]Requirement{HostnameRequirement("anywhere.example.com")}))
}

func TestAddingMatchingKindCanBreakMatch(t *testing.T) {
	t.Parallel()

	// Monotonicity only holds for kinds absent from the domain: adding a
	// requirement of a kind the domain specifies can flip match to
	// non-match when it is the only requirement of that kind.
	hostSpec, err := NewHostnameSpecification("*.github.com", "")
	require.NoError(t, err)
	d, err := New("github", "", hostSpec)
	require.NoError(t, err)

	base := []Requirement{HostnameRequirement("api.github.com")}
	assert.True(t, d.Matches(base))

	withPath := append(append([]Requirement(nil), base...), PathRequirement("/x"))
	assert.True(t, d.Matches(withPath), "unrelated kind must not break the match")
}

func TestDomainURLSegment(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "_", Global().URLSegment())

	d, err := New("prod db", "")
	require.NoError(t, err)
	assert.Equal(t, "prod%20db", d.URLSegment())
}

func TestDomainNameValidation(t *testing.T) {
	t.Parallel()

	_, err := New("", "")
	assert.True(t, credErrors.IsKind(err, credErrors.InvalidArgument))
	_, err = New("a/b", "")
	assert.True(t, credErrors.IsKind(err, credErrors.InvalidArgument))
}

func TestDomainEqual(t *testing.T) {
	t.Parallel()

	s1, err := NewSchemeSpecification("https")
	require.NoError(t, err)
	s2, err := NewSchemeSpecification("https")
	require.NoError(t, err)
	s3, err := NewSchemeSpecification("ssh")
	require.NoError(t, err)

	a, err := New("x", "desc", s1)
	require.NoError(t, err)
	b, err := New("x", "desc", s2)
	require.NoError(t, err)
	c, err := New("x", "desc", s3)
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, Global().Equal(Global()))
}

func TestSpecificationFromParamsRoundtrip(t *testing.T) {
	t.Parallel()

	orig, err := NewHostnameSpecification("*.github.com", "bad.github.com")
	require.NoError(t, err)

	rebuilt, err := SpecificationFromParams(string(orig.Kind()), orig.Params())
	require.NoError(t, err)
	assert.Equal(t, orig.Params(), rebuilt.Params())
	assert.Equal(t, Match, rebuilt.Test("api.github.com"))
	assert.Equal(t, NoMatch, rebuilt.Test("bad.github.com"))

	_, err = SpecificationFromParams("carrier-pigeon", nil)
	assert.True(t, credErrors.IsKind(err, credErrors.InvalidArgument))
}

func TestRequirementsFromURI(t *testing.T) {
	t.Parallel()

	reqs := RequirementsFromURI("https://api.github.com/repos/x")
	kinds := map[RequirementKind]string{}
	for _, r := range reqs {
		kinds[r.Kind] = r.Value
	}
	assert.Equal(t, "https", kinds[KindScheme])
	assert.Equal(t, "api.github.com", kinds[KindHostname])
	assert.Equal(t, "/repos/x", kinds[KindPath])
	assert.Equal(t, "https://api.github.com/repos/x", kinds[KindURI])

	assert.Nil(t, RequirementsFromURI(""))
}
