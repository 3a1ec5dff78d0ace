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

package cardinality

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relql/relql/ir"
	"github.com/relql/relql/pathid"
	"github.com/relql/relql/schema"
	"github.com/relql/relql/scopetree"
)

// fakePointer/fakeSchema are a minimal schema.Schema stand-in sufficient to
// drive cardinality inference in isolation, the way the teacher's
// planbuilder tests stand up a bare in-memory catalog rather than a full
// engine.
type fakePointer struct {
	ref         pathid.PointerRef
	singularOut bool
	singularIn  bool
	isID        bool
	exclusive   bool
}

func (p fakePointer) QualName() string      { return p.ref.QualName }
func (p fakePointer) Ref() pathid.PointerRef { return p.ref }

type fakeSchema struct {
	pointers map[string]fakePointer
}

func (s fakeSchema) Get(qualname string) (schema.Object, bool)          { return nil, false }
func (s fakeSchema) MaterialType(t schema.ObjectType) schema.ObjectType { return t }
func (s fakeSchema) Descendants(t schema.ObjectType) []schema.ObjectType { return nil }
func (s fakeSchema) Children(t schema.ObjectType) []schema.ObjectType    { return nil }
func (s fakeSchema) IsView(t schema.ObjectType) bool                    { return false }
func (s fakeSchema) PeelView(t schema.ObjectType) schema.ObjectType     { return t }
func (s fakeSchema) IsVirtual(t schema.ObjectType) bool                 { return false }
func (s fakeSchema) GetPointer(t schema.ObjectType, name string) (schema.Pointer, bool) {
	return nil, false
}
func (s fakeSchema) Source(p schema.Pointer) schema.ObjectType { return nil }
func (s fakeSchema) Target(p schema.Pointer) schema.ObjectType { return nil }
func (s fakeSchema) PointerCardinality(p schema.Pointer) schema.Cardinality {
	return schema.CardinalityOne
}
func (s fakeSchema) Singular(p schema.Pointer, dir pathid.PointerDirection) bool {
	fp, ok := s.pointers[p.QualName()]
	if !ok {
		return false
	}
	if dir == pathid.Inbound {
		return fp.singularIn
	}
	return fp.singularOut
}
func (s fakeSchema) IsLinkProperty(p schema.Pointer) bool { return false }
func (s fakeSchema) IsIDPointer(p schema.Pointer) bool {
	return s.pointers[p.QualName()].isID
}
func (s fakeSchema) ShortName(p schema.Pointer) string                { return p.QualName() }
func (s fakeSchema) Constraints(p schema.Pointer) []schema.Constraint { return nil }
func (s fakeSchema) IsExclusive(p schema.Pointer) bool {
	return s.pointers[p.QualName()].exclusive
}
func (s fakeSchema) Generic(p schema.Pointer) bool { return false }
func (s fakeSchema) Storage(p schema.Pointer) (string, schema.TableType, string, string, bool) {
	return "", schema.ObjectTypeTable, "", "", false
}

var (
	userType  = pathid.TypeRef{QualName: "default::User"}
	issueType = pathid.TypeRef{QualName: "default::Issue"}

	ownerRef = pathid.PointerRef{QualName: "default::Issue.owner"}
	idRef    = pathid.PointerRef{QualName: "default::Issue.id"}
)

// idgen stamps every fixture node with a unique id so the (node, scope)
// memo never conflates two distinct literals built with a bare composite
// literal (which otherwise all carry the zero NodeID).
var idgen ir.IDGen

func stamp[T interface{ SetID(ir.NodeID) }](n T) T {
	n.SetID(idgen.Next())
	return n
}

func TestLeavesAreOne(t *testing.T) {
	require := require.New(t)
	inf := NewInferrer(fakeSchema{pointers: map[string]fakePointer{}}, scopetree.New())

	c, err := inf.Infer(stamp(&ir.EmptySet{}), nil)
	require.NoError(err)
	require.Equal(ONE, c)

	c, err = inf.Infer(stamp(&ir.Constant{Value: 1}), nil)
	require.NoError(err)
	require.Equal(ONE, c)
}

func TestOpCallSetOfResultIsMany(t *testing.T) {
	require := require.New(t)
	inf := NewInferrer(fakeSchema{}, scopetree.New())

	call := stamp(&ir.OpCall{Name: "std::array_unpack", ResultTypeMod: ir.SetOfArg})
	c, err := inf.Infer(call, nil)
	require.NoError(err)
	require.Equal(MANY, c)
}

func TestOpCallMaxOfNonSetOfArgs(t *testing.T) {
	require := require.New(t)
	sch := fakeSchema{pointers: map[string]fakePointer{
		ownerRef.QualName: {ref: ownerRef, singularOut: false},
	}}
	tree := scopetree.New()
	inf := NewInferrer(sch, tree)

	issuePath := pathid.New(issueType)
	ownerPath := pathid.Extend(issuePath, ownerRef, "owner", pathid.Outbound, false, userType, userType, pathid.Namespace{})
	tree.AttachPath(tree.Root, ownerPath)

	manySet := stamp(&ir.Set{
		PathID: ownerPath,
		RPtr: &ir.RPtr{
			Source: stamp(&ir.Set{PathID: issuePath}),
			Ptrcls: ir.PointerInfo{Ref: ownerRef},
		},
	})
	call := stamp(&ir.OpCall{
		Name: "std::count",
		Args: []ir.CallArg{
			{Value: stamp(&ir.Constant{Value: 1}), TypeMod: ir.Singleton},
			{Value: manySet, TypeMod: ir.Singleton},
		},
	})
	c, err := inf.Infer(call, tree.Root)
	require.NoError(err)
	require.Equal(MANY, c)
}

func TestOpCallSetOfArgDoesNotBroadenCardinality(t *testing.T) {
	require := require.New(t)
	sch := fakeSchema{pointers: map[string]fakePointer{
		ownerRef.QualName: {ref: ownerRef, singularOut: false},
	}}
	tree := scopetree.New()
	inf := NewInferrer(sch, tree)

	issuePath := pathid.New(issueType)
	ownerPath := pathid.Extend(issuePath, ownerRef, "owner", pathid.Outbound, false, userType, userType, pathid.Namespace{})
	manySet := stamp(&ir.Set{
		PathID: ownerPath,
		RPtr: &ir.RPtr{
			Source: stamp(&ir.Set{PathID: issuePath}),
			Ptrcls: ir.PointerInfo{Ref: ownerRef},
		},
	})
	call := stamp(&ir.OpCall{
		Name:          "std::count",
		ResultTypeMod: ir.Singleton,
		Args: []ir.CallArg{
			{Value: manySet, TypeMod: ir.SetOfArg},
		},
	})
	c, err := inf.Infer(call, tree.Root)
	require.NoError(err)
	require.Equal(ONE, c)
}

func TestSetWithSingularOutboundPointerInheritsSourceCardinality(t *testing.T) {
	require := require.New(t)
	sch := fakeSchema{pointers: map[string]fakePointer{
		ownerRef.QualName: {ref: ownerRef, singularOut: true},
	}}
	tree := scopetree.New()
	inf := NewInferrer(sch, tree)

	issuePath := pathid.New(issueType)
	ownerPath := pathid.Extend(issuePath, ownerRef, "owner", pathid.Outbound, false, userType, userType, pathid.Namespace{})

	set := stamp(&ir.Set{
		PathID: ownerPath,
		RPtr: &ir.RPtr{
			Source: stamp(&ir.Set{PathID: issuePath}),
			Ptrcls: ir.PointerInfo{Ref: ownerRef},
		},
	})
	c, err := inf.Infer(set, tree.Root)
	require.NoError(err)
	require.Equal(ONE, c)
}

func TestSetWithNonSingularPointerIsMany(t *testing.T) {
	require := require.New(t)
	sch := fakeSchema{pointers: map[string]fakePointer{
		ownerRef.QualName: {ref: ownerRef, singularOut: false},
	}}
	tree := scopetree.New()
	inf := NewInferrer(sch, tree)

	issuePath := pathid.New(issueType)
	ownerPath := pathid.Extend(issuePath, ownerRef, "owner", pathid.Outbound, false, userType, userType, pathid.Namespace{})

	set := stamp(&ir.Set{
		PathID: ownerPath,
		RPtr: &ir.RPtr{
			Source: stamp(&ir.Set{PathID: issuePath}),
			Ptrcls: ir.PointerInfo{Ref: ownerRef},
		},
	})
	c, err := inf.Infer(set, tree.Root)
	require.NoError(err)
	require.Equal(MANY, c)
}

func TestSetAlreadyVisibleIsReferenceNotTraversal(t *testing.T) {
	require := require.New(t)
	sch := fakeSchema{pointers: map[string]fakePointer{
		ownerRef.QualName: {ref: ownerRef, singularOut: false},
	}}
	tree := scopetree.New()
	inf := NewInferrer(sch, tree)

	issuePath := pathid.New(issueType)
	ownerPath := pathid.Extend(issuePath, ownerRef, "owner", pathid.Outbound, false, userType, userType, pathid.Namespace{})
	// AttachPath nests the owner node under the Issue node; it is visible
	// from the node AttachPath returns, not from the root.
	scope := tree.AttachPath(tree.Root, ownerPath)

	set := stamp(&ir.Set{
		PathID: ownerPath,
		RPtr: &ir.RPtr{
			Source: stamp(&ir.Set{PathID: issuePath}),
			Ptrcls: ir.PointerInfo{Ref: ownerRef},
		},
	})
	c, err := inf.Infer(set, scope)
	require.NoError(err)
	require.Equal(ONE, c)
}

func TestSelectLiteralLimitOneIsOne(t *testing.T) {
	require := require.New(t)
	inf := NewInferrer(fakeSchema{}, scopetree.New())

	stmt := stamp(&ir.SelectStmt{
		Result: stamp(&ir.Set{PathID: pathid.New(issueType)}),
		Limit:  stamp(&ir.Constant{Value: 1}),
	})
	c, err := inf.Infer(stmt, nil)
	require.NoError(err)
	require.Equal(ONE, c)
}

func TestSelectFilterOnExclusivePointerIsOne(t *testing.T) {
	require := require.New(t)
	sch := fakeSchema{pointers: map[string]fakePointer{
		idRef.QualName: {ref: idRef, isID: true},
	}}
	inf := NewInferrer(sch, scopetree.New())

	issuePath := pathid.New(issueType)
	idPath := pathid.Extend(issuePath, idRef, "id", pathid.Outbound, false, pathid.TypeRef{QualName: "std::uuid"}, pathid.TypeRef{QualName: "std::uuid"}, pathid.Namespace{})

	result := stamp(&ir.Set{PathID: issuePath})
	filter := stamp(&ir.OpCall{
		Name: "=",
		Args: []ir.CallArg{
			{Value: stamp(&ir.Set{
				PathID: idPath,
				RPtr: &ir.RPtr{
					Source: result,
					Ptrcls: ir.PointerInfo{Ref: idRef},
				},
			})},
			{Value: stamp(&ir.Parameter{Name: "id"})},
		},
	})
	stmt := stamp(&ir.SelectStmt{Result: result, Where: filter})

	c, err := inf.Infer(stmt, nil)
	require.NoError(err)
	require.Equal(ONE, c)
}

func TestSetOpUnionExclusiveIsMaxOfOperands(t *testing.T) {
	require := require.New(t)
	inf := NewInferrer(fakeSchema{}, scopetree.New())

	u := stamp(&ir.SetOpUnion{
		Left:      stamp(&ir.Constant{Value: 1}),
		Right:     stamp(&ir.Constant{Value: 2}),
		Exclusive: true,
	})
	c, err := inf.Infer(u, nil)
	require.NoError(err)
	require.Equal(ONE, c)
}

func TestSetOpUnionNonExclusiveIsAlwaysMany(t *testing.T) {
	require := require.New(t)
	inf := NewInferrer(fakeSchema{}, scopetree.New())

	u := stamp(&ir.SetOpUnion{
		Left:  stamp(&ir.Constant{Value: 1}),
		Right: stamp(&ir.Constant{Value: 2}),
	})
	c, err := inf.Infer(u, nil)
	require.NoError(err)
	require.Equal(MANY, c)
}

func TestMembershipAndExistsAreScalarOne(t *testing.T) {
	require := require.New(t)
	inf := NewInferrer(fakeSchema{}, scopetree.New())

	m := stamp(&ir.Membership{Left: stamp(&ir.Constant{Value: 1}), Right: stamp(&ir.Constant{Value: 2})})
	c, err := inf.Infer(m, nil)
	require.NoError(err)
	require.Equal(ONE, c)

	ex := stamp(&ir.Exists{Inner: stamp(&ir.Constant{Value: 1})})
	c, err = inf.Infer(ex, nil)
	require.NoError(err)
	require.Equal(ONE, c)
}

func TestInsertWithoutIteratorIsOne(t *testing.T) {
	require := require.New(t)
	inf := NewInferrer(fakeSchema{}, scopetree.New())

	stmt := stamp(&ir.InsertStmt{Subject: stamp(&ir.Set{PathID: pathid.New(issueType)})})
	c, err := inf.Infer(stmt, nil)
	require.NoError(err)
	require.Equal(ONE, c)
}

func TestMemoAvoidsRecomputation(t *testing.T) {
	require := require.New(t)
	inf := NewInferrer(fakeSchema{}, scopetree.New())

	c := stamp(&ir.Constant{Value: 1})
	_, err := inf.Infer(c, nil)
	require.NoError(err)

	_, ok := inf.Memo.get(c, nil)
	require.True(ok)
}
