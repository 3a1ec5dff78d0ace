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

package relql

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relql/relql/ir"
	"github.com/relql/relql/pathid"
	"github.com/relql/relql/rel"
	"github.com/relql/relql/schema"
)

var (
	issueType = pathid.TypeRef{QualName: "default::Issue"}
	titleRef  = pathid.PointerRef{QualName: "default::Issue.title"}
)

type issueObjType struct{ ref pathid.TypeRef }

func (o issueObjType) QualName() string    { return o.ref.QualName }
func (o issueObjType) Ref() pathid.TypeRef { return o.ref }

type titlePointer struct{}

func (titlePointer) QualName() string       { return titleRef.QualName }
func (titlePointer) Ref() pathid.PointerRef { return titleRef }

// fakeSchema resolves only what this package's end-to-end test needs: a
// single object type with one inline scalar pointer, the minimal shape
// relgen.go's rangeForSet/lowerPath branches require.
type fakeSchema struct{}

func (fakeSchema) Get(qualname string) (schema.Object, bool) {
	if qualname == issueType.QualName {
		return issueObjType{ref: issueType}, true
	}
	return nil, false
}
func (fakeSchema) MaterialType(t schema.ObjectType) schema.ObjectType  { return t }
func (fakeSchema) Descendants(t schema.ObjectType) []schema.ObjectType { return nil }
func (fakeSchema) Children(t schema.ObjectType) []schema.ObjectType    { return nil }
func (fakeSchema) IsView(t schema.ObjectType) bool                     { return false }
func (fakeSchema) PeelView(t schema.ObjectType) schema.ObjectType      { return t }
func (fakeSchema) IsVirtual(t schema.ObjectType) bool                  { return false }
func (fakeSchema) GetPointer(t schema.ObjectType, name string) (schema.Pointer, bool) {
	if name == "title" {
		return titlePointer{}, true
	}
	return nil, false
}
func (fakeSchema) Source(p schema.Pointer) schema.ObjectType { return issueObjType{ref: issueType} }
func (fakeSchema) Target(p schema.Pointer) schema.ObjectType {
	return issueObjType{ref: pathid.TypeRef{QualName: "std::str"}}
}
func (fakeSchema) PointerCardinality(p schema.Pointer) schema.Cardinality {
	return schema.CardinalityOne
}
func (fakeSchema) Singular(p schema.Pointer, dir pathid.PointerDirection) bool { return true }
func (fakeSchema) IsLinkProperty(p schema.Pointer) bool                        { return false }
func (fakeSchema) IsIDPointer(p schema.Pointer) bool                          { return false }
func (fakeSchema) ShortName(p schema.Pointer) string                          { return "title" }
func (fakeSchema) Constraints(p schema.Pointer) []schema.Constraint          { return nil }
func (fakeSchema) IsExclusive(p schema.Pointer) bool                        { return false }
func (fakeSchema) Generic(p schema.Pointer) bool                            { return false }
func (fakeSchema) Storage(p schema.Pointer) (string, schema.TableType, string, string, bool) {
	return "issue", schema.ObjectTypeTable, "title", "text", true
}

func TestCompileBareRootProducesRangeVarAndIDColumn(t *testing.T) {
	require := require.New(t)

	root := &ir.Set{PathID: pathid.New(issueType)}
	tree, err := Compile(root, fakeSchema{}, CompileOptions{})
	require.NoError(err)
	require.NotNil(tree)

	stmt := tree.Statement.(*rel.SelectStmt)
	require.Len(stmt.From, 1)
	rv, ok := stmt.From[0].(*rel.RangeVar)
	require.True(ok)
	require.Equal("issue", rv.Relation)

	require.Len(stmt.TargetList, 1)
	require.Equal("value", stmt.TargetList[0].Alias)
	col, ok := stmt.TargetList[0].Expr.(*rel.ColumnRef)
	require.True(ok)
	require.Equal("id", col.Column)
}

func TestCompileShapeProjectsTupleVar(t *testing.T) {
	require := require.New(t)

	root := &ir.Set{PathID: pathid.New(issueType)}
	titleID := pathid.Extend(root.PathID, titleRef, "title", pathid.Outbound, false,
		pathid.TypeRef{QualName: "std::str"}, pathid.TypeRef{QualName: "std::str"}, pathid.Namespace{})
	root.Shape = &ir.Shape{Elements: []ir.ShapeElement{
		{Name: "title", Value: &ir.Set{
			PathID: titleID,
			RPtr: &ir.RPtr{
				Source: root,
				Ptrcls: ir.PointerInfo{
					Ref:      titleRef,
					NormName: "title",
					Target:   pathid.TypeRef{QualName: "std::str"},
				},
			},
		}},
	}}

	tree, err := Compile(root, fakeSchema{}, CompileOptions{})
	require.NoError(err)

	stmt := tree.Statement.(*rel.SelectStmt)
	require.Equal("result", stmt.TargetList[0].Alias)
	tv, ok := stmt.TargetList[0].Expr.(*rel.TupleVar)
	require.True(ok)
	require.Len(tv.Elements, 1)
	require.Equal("title", tv.Elements[0].Name)
}

func TestCompileRejectsNonSetRoot(t *testing.T) {
	require := require.New(t)

	_, err := Compile(&ir.EmptySet{}, fakeSchema{}, CompileOptions{})
	require.Error(err)
}
