// Copyright 2024 The Relql Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package scopetree implements the mutable, parent-pointer ScopeTree that
// records which PathIds are bound where and enforces the correlation and
// visibility rules of the source language. See spec §3.2/§4.2.
//
// Unlike the original implementation's weak parent pointers (needed there
// to avoid leaking reference cycles under refcounting), this port uses
// plain pointers: Go's tracing garbage collector reclaims cycles natively,
// so a parent/children pointer tree is the idiomatic representation here,
// the same way the teacher's sql/plan node trees use plain slices of
// children rather than an arena of indices.
package scopetree

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/relql/relql/pathid"
	"github.com/relql/relql/relqlerrors"
)

// Kind distinguishes the three node shapes a ScopeTree node can take.
type Kind int

const (
	// Fence represents a SET-OF argument / statement boundary: paths
	// cannot be pulled up across it unconditionally.
	Fence Kind = iota
	// Branch groups paths without fencing.
	Branch
	// PathNode carries a PathID.
	PathNode
)

func (k Kind) String() string {
	switch k {
	case Fence:
		return "fence"
	case Branch:
		return "branch"
	case PathNode:
		return "path"
	default:
		return "unknown"
	}
}

// Node is one ScopeTree node.
type Node struct {
	Kind     Kind
	Parent   *Node
	Children []*Node

	PathID *pathid.PathID // set iff Kind == PathNode

	UniqueID string // optional; links back to an IR set node

	// Namespaces declared by this subtree (e.g. a WITH alias or
	// polymorphic-intersection tag introduced here).
	Namespaces pathid.Namespace

	Optional      bool // path may be NULL
	UnnestFence   bool // prevents pull-up across this node
	ProtectParent bool
}

func newNode(kind Kind) *Node {
	return &Node{Kind: kind}
}

func attachChild(parent, child *Node) {
	child.Parent = parent
	parent.Children = append(parent.Children, child)
}

func detach(n *Node) {
	if n.Parent == nil {
		return
	}
	siblings := n.Parent.Children
	for i, c := range siblings {
		if c == n {
			n.Parent.Children = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}
	n.Parent = nil
}

// Tree is a forest of ScopeTree nodes rooted at Root, plus a side index
// for UniqueID lookups.
type Tree struct {
	Root     *Node
	byUnique map[string]*Node
	Logger   *logrus.Entry
}

// New creates a ScopeTree with a fresh branch root.
func New() *Tree {
	return &Tree{
		Root:     newNode(Branch),
		byUnique: make(map[string]*Node),
		Logger:   logrus.NewEntry(logrus.StandardLogger()),
	}
}

func (t *Tree) index(n *Node) {
	if n.UniqueID != "" {
		t.byUnique[n.UniqueID] = n
	}
	for _, c := range n.Children {
		t.index(c)
	}
}

// AttachChild appends an already-constructed node as a child of parent.
func (t *Tree) AttachChild(parent, child *Node) {
	attachChild(parent, child)
	t.index(child)
}

// AttachFence creates and attaches a new fence node under parent.
func (t *Tree) AttachFence(parent *Node) *Node {
	n := newNode(Fence)
	t.AttachChild(parent, n)
	return n
}

// AttachBranch creates and attaches a new branch node under parent.
func (t *Tree) AttachBranch(parent *Node) *Node {
	n := newNode(Branch)
	t.AttachChild(parent, n)
	return n
}

// AttachPath builds a spine of path nodes under parent, one per type-prefix
// of id. Link-property steps annotate the prior step rather than
// introducing a new nested path node.
func (t *Tree) AttachPath(parent *Node, id pathid.PathID) *Node {
	cur := parent
	var last *Node
	for n := 0; n <= id.NumSteps(); n++ {
		pfx, err := id.Prefix(n)
		if err != nil {
			break
		}
		if n > 0 && id.Steps()[n-1].IsLinkProp && last != nil {
			// Link properties annotate the previous path node; they do not
			// introduce a new nested path node of their own.
			continue
		}
		node := newNode(PathNode)
		node.PathID = &pfx
		t.AttachChild(cur, node)
		cur = node
		last = node
	}
	if last == nil {
		last = newNode(PathNode)
		last.PathID = &id
		t.AttachChild(parent, last)
	}
	return last
}

// accumulatedNamespace returns the union of namespaces declared on the path
// from the root down to (and including) n.
func accumulatedNamespace(n *Node) pathid.Namespace {
	var ns pathid.Namespace
	for cur := n; cur != nil; cur = cur.Parent {
		ns = ns.Union(cur.Namespaces)
	}
	return ns
}

// visiblePathID returns n's PathID stripped of the namespaces accumulated
// from the root to n, or nil if n is not a path node.
func visiblePathID(n *Node) *pathid.PathID {
	if n.Kind != PathNode || n.PathID == nil {
		return nil
	}
	stripped := n.PathID.StripNamespace(accumulatedNamespace(n.Parent))
	return &stripped
}

// FindVisible walks ancestors of from (inclusive), accumulating namespaces,
// and returns the first node whose PathID equals id after stripping the
// accumulated namespace. It also considers children of any such ancestor,
// per the §3.2 visibility definition.
func (t *Tree) FindVisible(from *Node, id pathid.PathID) *Node {
	for anc := from; anc != nil; anc = anc.Parent {
		ns := accumulatedNamespace(anc.Parent)
		if found := findEqualWithin(anc, id, ns); found != nil {
			return found
		}
	}
	return nil
}

// findEqualWithin searches n and n's children (non-recursively beyond one
// level, matching "a child of any such ancestor") for a PathID equal to id
// once ns is stripped from both sides.
func findEqualWithin(n *Node, id pathid.PathID, ns pathid.Namespace) *Node {
	localNS := ns.Union(n.Namespaces)
	if n.Kind == PathNode && n.PathID != nil && n.PathID.EqualsAfterStrip(id, localNS) {
		return n
	}
	for _, c := range n.Children {
		childNS := localNS.Union(c.Namespaces)
		if c.Kind == PathNode && c.PathID != nil && c.PathID.EqualsAfterStrip(id, childNS) {
			return c
		}
	}
	return nil
}

// IsAnyPrefixVisible checks prefix visibility of id (in path order) from
// node.
func (t *Tree) IsAnyPrefixVisible(from *Node, id pathid.PathID) bool {
	for n := 0; n <= id.NumSteps(); n++ {
		pfx, err := id.Prefix(n)
		if err != nil {
			continue
		}
		if t.FindVisible(from, pfx) != nil {
			return true
		}
	}
	return false
}

// MarkAsOptional sets Optional on the visible node for id, if any.
func (t *Tree) MarkAsOptional(from *Node, id pathid.PathID) {
	if n := t.FindVisible(from, id); n != nil {
		n.Optional = true
	}
}

// FindDescendant returns the first descendant of n (including n) whose
// PathID equals id after stripping n's own declared namespace.
func (t *Tree) FindDescendant(n *Node, id pathid.PathID) *Node {
	var found *Node
	var walk func(*Node, pathid.Namespace)
	walk = func(cur *Node, ns pathid.Namespace) {
		if found != nil {
			return
		}
		localNS := ns.Union(cur.Namespaces)
		if cur.Kind == PathNode && cur.PathID != nil && cur.PathID.EqualsAfterStrip(id, localNS) {
			found = cur
			return
		}
		for _, c := range cur.Children {
			walk(c, localNS)
		}
	}
	walk(n, pathid.Namespace{})
	return found
}

// FindUnfenced searches ancestors of from for a path node equal to id that
// is not separated from from by an intervening fence, stopping at (and
// reporting, via the crossed bool) the first UnnestFence encountered.
func (t *Tree) FindUnfenced(from *Node, id pathid.PathID) (node *Node, crossedUnnestFence bool) {
	cur := from
	for cur != nil {
		if cur.UnnestFence {
			crossedUnnestFence = true
		}
		if cur.Kind == PathNode && cur.PathID != nil {
			ns := accumulatedNamespace(cur.Parent)
			if cur.PathID.EqualsAfterStrip(id, ns) {
				return cur, crossedUnnestFence
			}
		}
		if cur.Kind == Fence && cur != from {
			break
		}
		cur = cur.Parent
	}
	return nil, crossedUnnestFence
}

// FindByUniqueID looks up the node registered under id, if any.
func (t *Tree) FindByUniqueID(id string) *Node {
	return t.byUnique[id]
}

// Remove detaches n from its parent.
func (t *Tree) Remove(n *Node) {
	detach(n)
}

// RemoveDescendants deletes every descendant of n whose PathID equals id
// after stripping the narrower of the two namespaces (the two bindings may
// refer to the same path even if one carries extra scoping tags).
func (t *Tree) RemoveDescendants(n *Node, id pathid.PathID) {
	var victims []*Node
	var walk func(*Node)
	walk = func(cur *Node) {
		for _, c := range cur.Children {
			if c.Kind == PathNode && c.PathID != nil {
				narrow := id.Namespace()
				if len(c.PathID.Namespace().HardTags()) < len(narrow.HardTags()) {
					narrow = c.PathID.Namespace()
				}
				if c.PathID.EqualsAfterStrip(id, narrow) {
					victims = append(victims, c)
					continue
				}
			}
			walk(c)
		}
	}
	walk(n)
	for _, v := range victims {
		detach(v)
	}
}

// Collapse removes n from the tree, reparenting its children onto n's
// parent.
func (t *Tree) Collapse(n *Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	detach(n)
	for _, c := range n.Children {
		c.Namespaces = n.Namespaces.Union(c.Namespaces)
		t.AttachChild(parent, c)
	}
}

// Copy deep-copies the subtree rooted at n (detached from any tree).
func Copy(n *Node) *Node {
	if n == nil {
		return nil
	}
	cp := &Node{
		Kind:          n.Kind,
		UniqueID:      n.UniqueID,
		Namespaces:    n.Namespaces,
		Optional:      n.Optional,
		UnnestFence:   n.UnnestFence,
		ProtectParent: n.ProtectParent,
	}
	if n.PathID != nil {
		id := *n.PathID
		cp.PathID = &id
	}
	for _, c := range n.Children {
		child := Copy(c)
		attachChild(cp, child)
	}
	return cp
}

// collectNamespaces returns the union of every namespace declared anywhere
// within node's subtree (dns in §4.2's algorithm).
func collectNamespaces(node *Node) pathid.Namespace {
	ns := node.Namespaces
	for _, c := range node.Children {
		ns = ns.Union(collectNamespaces(c))
	}
	return ns
}

// pathDescendantsTopDown returns every PathNode descendant of node
// (including node itself), in top-down order.
func pathDescendantsTopDown(node *Node) []*Node {
	var out []*Node
	if node.Kind == PathNode {
		out = append(out, node)
	}
	for _, c := range node.Children {
		out = append(out, pathDescendantsTopDown(c)...)
	}
	return out
}

// AttachSubtree is the sole ScopeTree operation that can raise
// relqlerrors.ErrScopeConflict. See §4.2 for the full algorithm; this
// implements it faithfully modulo the simplifications noted inline.
func (t *Tree) AttachSubtree(self *Node, node *Node) error {
	if node.Kind == PathNode {
		fence := newNode(Fence)
		attachChild(fence, node)
		node = fence
	}

	dns := collectNamespaces(node)

	for _, d := range pathDescendantsTopDown(node) {
		if d.PathID == nil {
			continue
		}
		stripped := d.PathID.StripNamespace(dns)

		if existing := t.FindVisible(self, stripped); existing != nil {
			// Already visible from self: this descendant is dominated by
			// an existing binding and is discarded from the incoming
			// subtree.
			t.Logger.WithField("path", stripped.String()).Trace("scopetree: discarding dominated descendant")
			detach(d)
			continue
		}

		if within := t.FindDescendant(self, stripped); within != nil {
			// Already bound within self's own fence: promote by discarding
			// the incoming duplicate.
			detach(d)
			continue
		}

		if unfenced, crossed := t.FindUnfenced(self, stripped); unfenced != nil {
			if crossed {
				return relqlerrors.ErrScopeConflict.New(
					fmt.Sprintf("%s", d.PathID.String()),
					fmt.Sprintf("%s", unfenced.PathID.String()),
				)
			}
			// Promote the existing unfenced node by reparenting it to
			// self, then discard the incoming duplicate.
			detach(unfenced)
			t.AttachChild(self, unfenced)
			detach(d)
			continue
		}

		// Net-new binding: strip the now-redundant namespace tags declared
		// by the incoming subtree before it lands under self.
		*d.PathID = d.PathID.StripNamespace(dns)
	}

	t.AttachChild(self, node)
	return nil
}
