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

package scopetree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relql/relql/pathid"
)

var (
	userType  = pathid.TypeRef{QualName: "default::User"}
	issueType = pathid.TypeRef{QualName: "default::Issue"}
	ownerPtr  = pathid.PointerRef{QualName: "default::Issue.owner"}
)

func TestAttachPathBuildsSpine(t *testing.T) {
	require := require.New(t)

	tree := New()
	id := pathid.Extend(pathid.New(userType), ownerPtr, "owner", pathid.Inbound, false, issueType, issueType, pathid.Namespace{})
	leaf := tree.AttachPath(tree.Root, id)

	require.NotNil(leaf)
	require.Equal(PathNode, leaf.Kind)
	require.True(leaf.PathID.Equals(id))

	// The root's sole descendant chain should contain the root-type node
	// too.
	found := tree.FindDescendant(tree.Root, pathid.New(userType))
	require.NotNil(found)
}

func TestFindVisibleAcrossAncestors(t *testing.T) {
	require := require.New(t)

	tree := New()
	id := pathid.New(userType)
	branch := tree.AttachBranch(tree.Root)
	tree.AttachPath(branch, id)

	child := tree.AttachBranch(branch)
	require.NotNil(tree.FindVisible(child, id))
}

func TestMarkAsOptional(t *testing.T) {
	require := require.New(t)

	tree := New()
	id := pathid.New(userType)
	node := tree.AttachPath(tree.Root, id)
	require.False(node.Optional)

	tree.MarkAsOptional(tree.Root, id)
	require.True(node.Optional)
}

func TestAttachSubtreeDiscardsDominatedDuplicate(t *testing.T) {
	require := require.New(t)

	tree := New()
	id := pathid.New(userType)
	tree.AttachPath(tree.Root, id)

	dup := newNode(PathNode)
	dupID := id
	dup.PathID = &dupID

	require.NoError(tree.AttachSubtree(tree.Root, dup))
	// The duplicate must not have been attached as a second path node: only
	// one PathNode for userType exists under root.
	count := 0
	var walk func(*Node)
	walk = func(n *Node) {
		if n.Kind == PathNode && n.PathID != nil && n.PathID.Equals(id) {
			count++
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(tree.Root)
	require.Equal(1, count)
}

func TestAttachSubtreeConflictAcrossUnnestFence(t *testing.T) {
	require := require.New(t)

	tree := New()
	id := pathid.New(userType)

	fence := tree.AttachFence(tree.Root)
	fence.UnnestFence = true
	tree.AttachPath(fence, id)

	// An unrelated branch introduces the same path unfenced; since the only
	// existing binding sits behind an UnnestFence, merging must fail.
	incoming := newNode(PathNode)
	incomingID := id
	incoming.PathID = &incomingID

	other := tree.AttachBranch(tree.Root)
	err := tree.AttachSubtree(other, incoming)
	require.Error(err)
}

func TestRemoveDescendants(t *testing.T) {
	require := require.New(t)

	tree := New()
	id := pathid.New(userType)
	tree.AttachPath(tree.Root, id)
	require.NotNil(tree.FindDescendant(tree.Root, id))

	tree.RemoveDescendants(tree.Root, id)
	require.Nil(tree.FindDescendant(tree.Root, id))
}

func TestCollapseReparentsChildren(t *testing.T) {
	require := require.New(t)

	tree := New()
	branch := tree.AttachBranch(tree.Root)
	leaf := tree.AttachPath(branch, pathid.New(userType))

	tree.Collapse(branch)
	require.Equal(tree.Root, leaf.Parent)
}

func TestCopyIsIndependent(t *testing.T) {
	require := require.New(t)

	tree := New()
	leaf := tree.AttachPath(tree.Root, pathid.New(userType))

	cp := Copy(tree.Root)
	require.NotSame(tree.Root, cp)
	require.Len(cp.Children, len(tree.Root.Children))
	_ = leaf
}
