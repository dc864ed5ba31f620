package directory

import (
	"strings"

	"github.com/edgedir/rd/pkg/linkformat"
)

// Node is one path segment in a registration's resource tree. The tree's
// root is the registration itself; children are created on demand as link
// targets are applied. Within one parent no two children share a name.
//
// Nodes are owned by their Registration and are only touched under the
// registration's lock.
type Node struct {
	name     string
	attrs    *linkformat.Attributes
	children map[string]*Node
	order    []string
}

func newNode(name string) *Node {
	return &Node{
		name:     name,
		attrs:    linkformat.NewAttributes(),
		children: make(map[string]*Node),
	}
}

// Name returns the node's path segment.
func (n *Node) Name() string { return n.name }

// Attributes returns the node's attribute set.
func (n *Node) Attributes() *linkformat.Attributes { return n.attrs }

// child returns the named child, creating it if absent. A freshly created
// intermediate starts with empty attributes and is not serialized until a
// link marks it as an endpoint resource.
func (n *Node) child(name string) *Node {
	if c, ok := n.children[name]; ok {
		return c
	}
	c := newNode(name)
	n.children[name] = c
	n.order = append(n.order, name)
	return c
}

// ensurePath walks the segments from n, creating missing intermediates,
// and returns the terminal node. Segment matching is exact and
// case-sensitive.
func (n *Node) ensurePath(segments []string) *Node {
	cur := n
	for _, seg := range segments {
		cur = cur.child(seg)
	}
	return cur
}

// applyLink resolves the link's path under n and replaces the target
// node's attributes with the link's (clear-then-copy, so re-registering
// identical links is idempotent). The reserved "ep" attribute marks the
// node as a registered resource of endpointName for serialization.
func (n *Node) applyLink(link linkformat.Link, endpointName string) {
	target := n.ensurePath(link.Path)
	target.attrs.CopyFrom(link.Attrs)
	target.attrs.Set(linkformat.AttrEndpoint, endpointName)
}

// nodeRef pairs a node with its absolute path for the traversal stack.
type nodeRef struct {
	node *Node
	path string
}

// appendLinks walks the subtree below n depth-first (iteratively, so
// arbitrarily deep registered paths cannot exhaust the call stack) and
// appends one link-format entry per node that carries the "ep" marker and
// matches query. Paths are emitted as prefix + /segment/....
func (n *Node) appendLinks(entries []string, prefix string, query linkformat.Query) []string {
	stack := make([]nodeRef, 0, len(n.order))
	for i := len(n.order) - 1; i >= 0; i-- {
		name := n.order[i]
		stack = append(stack, nodeRef{n.children[name], "/" + name})
	}
	for len(stack) > 0 {
		ref := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if ref.node.attrs.Has(linkformat.AttrEndpoint) && query.Match(ref.node.attrs) {
			entries = append(entries, linkformat.FormatEntry(prefix+ref.path, ref.node.attrs))
		}
		for i := len(ref.node.order) - 1; i >= 0; i-- {
			name := ref.node.order[i]
			stack = append(stack, nodeRef{ref.node.children[name], ref.path + "/" + name})
		}
	}
	return entries
}

// serialize renders the subtree below n as a link-format document with
// each matched node's path prefixed by prefix (normally the
// registration's context).
func (n *Node) serialize(prefix string, query linkformat.Query) string {
	return strings.Join(n.appendLinks(nil, prefix, query), ",")
}
