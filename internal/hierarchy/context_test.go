package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	credErrors "github.com/systmms/credhub/internal/errors"
)

func TestFullNames(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	folder, err := root.NewFolder("team-a")
	require.NoError(t, err)
	sub, err := folder.NewFolder("payments")
	require.NoError(t, err)
	item, err := sub.NewItem("deploy-job")
	require.NoError(t, err)

	assert.Equal(t, "", root.FullName())
	assert.Equal(t, "team-a", folder.FullName())
	assert.Equal(t, "team-a/payments", sub.FullName())
	assert.Equal(t, "team-a/payments/deploy-job", item.FullName())
}

func TestFindRoundtrip(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	folder, err := root.NewFolder("infra")
	require.NoError(t, err)
	item, err := folder.NewItem("builder")
	require.NoError(t, err)
	user, err := root.User("alice")
	require.NoError(t, err)
	node, err := root.Node("agent-7")
	require.NoError(t, err)

	for _, ctx := range []*Context{root, folder, item, user, node} {
		found, err := root.Find(ctx.FullName())
		require.NoError(t, err)
		assert.Same(t, ctx, found, "roundtrip for %q", ctx.FullName())
	}

	_, err = root.Find("infra/missing")
	assert.True(t, credErrors.IsKind(err, credErrors.NotFound))
	_, err = root.Find("user:nobody")
	assert.True(t, credErrors.IsKind(err, credErrors.NotFound))
}

func TestDuplicateChildRejected(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	_, err := root.NewFolder("dup")
	require.NoError(t, err)
	_, err = root.NewFolder("dup")
	assert.True(t, credErrors.IsKind(err, credErrors.Conflict))
}

func TestInvalidNamesRejected(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	for _, name := range []string{"", "a/b", "a:b"} {
		_, err := root.NewItem(name)
		assert.True(t, credErrors.IsKind(err, credErrors.InvalidArgument), "name %q", name)
	}
}

func TestUserAndNodeAreIdempotent(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	u1, err := root.User("bob")
	require.NoError(t, err)
	u2, err := root.User("bob")
	require.NoError(t, err)
	assert.Same(t, u1, u2)

	n1, err := root.Node("agent")
	require.NoError(t, err)
	n2, err := root.Node("agent")
	require.NoError(t, err)
	assert.Same(t, n1, n2)

	// Users and nodes hang off the root even when created from a child.
	folder, err := root.NewFolder("f")
	require.NoError(t, err)
	u3, err := folder.User("bob")
	require.NoError(t, err)
	assert.Same(t, u1, u3)
}

func TestParentChain(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	folder, err := root.NewFolder("a")
	require.NoError(t, err)
	item, err := folder.NewItem("b")
	require.NoError(t, err)

	assert.Same(t, folder, item.Parent())
	assert.Same(t, root, folder.Parent())
	assert.Nil(t, root.Parent())
	assert.Same(t, root, item.Root())
}

func TestResolverRegistryRoundtrip(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	folder, err := root.NewFolder("ops")
	require.NoError(t, err)
	user, err := root.User("carol")
	require.NoError(t, err)

	registry := NewResolverRegistry(root)

	resolver, token, err := registry.TokenFor(folder)
	require.NoError(t, err)
	assert.Equal(t, "tree", resolver)
	res, ok := registry.Get(resolver)
	require.True(t, ok)
	found, err := res.Resolve(token)
	require.NoError(t, err)
	assert.Same(t, folder, found)

	resolver, token, err = registry.TokenFor(user)
	require.NoError(t, err)
	assert.Equal(t, "user", resolver)
	res, _ = registry.Get(resolver)
	found, err = res.Resolve(token)
	require.NoError(t, err)
	assert.Same(t, user, found)

	_, ok = registry.Get("nope")
	assert.False(t, ok)
}
