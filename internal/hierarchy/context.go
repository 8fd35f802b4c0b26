// Package hierarchy models the containment tree stores attach to: one
// root, nested folders, leaf items, per-user contexts and nodes (which
// delegate to the root). Each context carries its own ACL.
package hierarchy

import (
	"sort"
	"strings"
	"sync"

	credErrors "github.com/systmms/credhub/internal/errors"
	"github.com/systmms/credhub/internal/permissions"
)

// Kind tags a context variant.
type Kind int

const (
	KindRoot Kind = iota
	KindFolder
	KindItem
	KindUser
	KindNode
)

var kindNames = map[Kind]string{
	KindRoot:   "root",
	KindFolder: "folder",
	KindItem:   "item",
	KindUser:   "user",
	KindNode:   "node",
}

func (k Kind) String() string {
	return kindNames[k]
}

// Context is one node in the hierarchy.
type Context struct {
	kind   Kind
	name   string
	parent *Context
	root   *Context
	acl    *permissions.ACL

	mu       sync.RWMutex
	children map[string]*Context
	users    map[string]*Context
	nodes    map[string]*Context
}

// NewRoot creates the installation root. The root store singleton is
// attached to this context by the provider wiring.
func NewRoot() *Context {
	root := &Context{
		kind:     KindRoot,
		acl:      permissions.NewACL(),
		children: make(map[string]*Context),
		users:    make(map[string]*Context),
		nodes:    make(map[string]*Context),
	}
	root.root = root
	return root
}

func (c *Context) child(kind Kind, name string) (*Context, error) {
	if name == "" || strings.ContainsAny(name, "/:") {
		return nil, credErrors.Invalidf("invalid context name %q", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.children[name]; exists {
		return nil, credErrors.Conflictf("context %q already exists under %s", name, c.FullName())
	}
	child := &Context{
		kind:     kind,
		name:     name,
		parent:   c,
		root:     c.root,
		acl:      permissions.NewACL(),
		children: make(map[string]*Context),
	}
	c.children[name] = child
	return child, nil
}

// NewFolder creates a folder under c. Valid under the root or a folder.
func (c *Context) NewFolder(name string) (*Context, error) {
	if c.kind != KindRoot && c.kind != KindFolder {
		return nil, credErrors.Invalidf("cannot create folder under %s context", c.kind)
	}
	return c.child(KindFolder, name)
}

// NewItem creates a leaf item (project, job) under c.
func (c *Context) NewItem(name string) (*Context, error) {
	if c.kind != KindRoot && c.kind != KindFolder {
		return nil, credErrors.Invalidf("cannot create item under %s context", c.kind)
	}
	return c.child(KindItem, name)
}

// User returns the per-user context for username, creating it on first
// use. User contexts hang off the root.
func (c *Context) User(username string) (*Context, error) {
	if c.kind != KindRoot {
		return c.root.User(username)
	}
	if username == "" {
		return nil, credErrors.Invalidf("empty username")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.users[username]; ok {
		return u, nil
	}
	u := &Context{
		kind:   KindUser,
		name:   username,
		parent: c,
		root:   c,
		acl:    permissions.NewACL(),
	}
	c.users[username] = u
	return u, nil
}

// Node returns the node context for name, creating it on first use.
// Nodes delegate store enumeration to the root.
func (c *Context) Node(name string) (*Context, error) {
	if c.kind != KindRoot {
		return c.root.Node(name)
	}
	if name == "" {
		return nil, credErrors.Invalidf("empty node name")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.nodes[name]; ok {
		return n, nil
	}
	n := &Context{
		kind:   KindNode,
		name:   name,
		parent: c,
		root:   c,
		acl:    permissions.NewACL(),
	}
	c.nodes[name] = n
	return n, nil
}

// Kind returns the context variant.
func (c *Context) Kind() Kind {
	return c.kind
}

// Name returns the context's own segment name; empty for the root.
func (c *Context) Name() string {
	return c.name
}

// Parent returns the containing context, nil for the root.
func (c *Context) Parent() *Context {
	if c.kind == KindRoot {
		return nil
	}
	return c.parent
}

// Root returns the installation root.
func (c *Context) Root() *Context {
	return c.root
}

// ACL returns the context's access control list.
func (c *Context) ACL() *permissions.ACL {
	return c.acl
}

// FullName returns the slash-joined path from the root; the root itself
// is the empty string, user contexts render as "user:<name>" and node
// contexts as "node:<name>".
func (c *Context) FullName() string {
	switch c.kind {
	case KindRoot:
		return ""
	case KindUser:
		return "user:" + c.name
	case KindNode:
		return "node:" + c.name
	}
	var segments []string
	for cur := c; cur != nil && cur.kind != KindRoot; cur = cur.parent {
		segments = append(segments, cur.name)
	}
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return strings.Join(segments, "/")
}

// Find resolves a full name back to a context under c's root. The empty
// string resolves to the root.
func (c *Context) Find(fullName string) (*Context, error) {
	root := c.root
	if fullName == "" {
		return root, nil
	}
	if rest, ok := strings.CutPrefix(fullName, "user:"); ok {
		root.mu.RLock()
		u, exists := root.users[rest]
		root.mu.RUnlock()
		if !exists {
			return nil, credErrors.NotFoundf("no such user context %q", rest)
		}
		return u, nil
	}
	if rest, ok := strings.CutPrefix(fullName, "node:"); ok {
		root.mu.RLock()
		n, exists := root.nodes[rest]
		root.mu.RUnlock()
		if !exists {
			return nil, credErrors.NotFoundf("no such node context %q", rest)
		}
		return n, nil
	}
	cur := root
	for _, segment := range strings.Split(fullName, "/") {
		cur.mu.RLock()
		next, exists := cur.children[segment]
		cur.mu.RUnlock()
		if !exists {
			return nil, credErrors.NotFoundf("no such context %q", fullName)
		}
		cur = next
	}
	return cur, nil
}

// Children returns the direct child contexts sorted by name.
func (c *Context) Children() []*Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Context, 0, len(c.children))
	for _, child := range c.children {
		out = append(out, child)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
