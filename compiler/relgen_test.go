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

package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relql/relql/ir"
	"github.com/relql/relql/pathid"
	"github.com/relql/relql/rel"
	"github.com/relql/relql/schema"
)

// issueObjectSchema is a fakeSchema that additionally resolves
// "default::Issue" to a concrete table, and its "owner" pointer to an
// inline column, so relgen_test can exercise rangeForSet/lowerPath without
// a real catalog.
type issueObjectSchema struct{ fakeSchema }

type issueObjType struct{ ref pathid.TypeRef }

func (o issueObjType) QualName() string    { return o.ref.QualName }
func (o issueObjType) Ref() pathid.TypeRef { return o.ref }

func (issueObjectSchema) Get(qualname string) (schema.Object, bool) {
	if qualname == issueType.QualName {
		return issueObjType{ref: issueType}, true
	}
	return nil, false
}

func (issueObjectSchema) Storage(p schema.Pointer) (string, schema.TableType, string, string, bool) {
	if p.Ref().QualName == ownerRef.QualName {
		return "issue", schema.ObjectTypeTable, "owner_id", "uuid", true
	}
	return "", schema.ObjectTypeTable, "", "", false
}

func newIssueTestEnv() *Environment {
	return NewEnvironment(issueObjectSchema{}, Options{})
}

func TestGetSetRVarBareRootUsesRangeForSet(t *testing.T) {
	require := require.New(t)
	env := newIssueTestEnv()
	c := NewCompiler(env)
	pop := c.PushStmt(&rel.SelectStmt{}, env.Scopes.Root)
	defer pop()

	root := &ir.Set{PathID: pathid.New(issueType)}
	rv, err := c.GetSetRVar(root)
	require.NoError(err)

	rangeVar, ok := rv.(*rel.RangeVar)
	require.True(ok)
	require.Equal("issue", rangeVar.Relation)

	value, err := c.Paths().GetPathVar(root.PathID)
	require.NoError(err)
	col, ok := value.(*rel.ColumnRef)
	require.True(ok)
	require.Equal("id", col.Column)
	require.Equal(rangeVar.Alias, col.RVar)
}

func TestGetSetRVarInlinePathReusesSourceAlias(t *testing.T) {
	require := require.New(t)
	env := newIssueTestEnv()
	c := NewCompiler(env)
	pop := c.PushStmt(&rel.SelectStmt{}, env.Scopes.Root)
	defer pop()

	root := &ir.Set{PathID: pathid.New(issueType)}
	_, err := c.GetSetRVar(root)
	require.NoError(err)

	ownerID := pathid.Extend(root.PathID, ownerRef, "owner", pathid.Outbound, false, userType, userType, pathid.Namespace{})
	owner := &ir.Set{
		PathID: ownerID,
		RPtr: &ir.RPtr{
			Source: root,
			Ptrcls: ir.PointerInfo{Ref: ownerRef, NormName: "owner", Target: userType, MaterialTarget: userType},
		},
	}

	rv, err := c.GetSetRVar(owner)
	require.NoError(err)
	require.Nil(rv) // inline pointer contributes no new rvar of its own

	value, err := c.Paths().GetPathVar(owner.PathID)
	require.NoError(err)
	col, ok := value.(*rel.ColumnRef)
	require.True(ok)
	require.Equal("owner_id", col.Column)

	rootIdentity, err := c.Paths().GetPathOutput(root.PathID, IdentityAspect)
	require.NoError(err)
	rootCol := rootIdentity.(*rel.ColumnRef)
	require.Equal(rootCol.RVar, col.RVar) // reuses the source's own alias
}

func TestGetSetRVarMembershipSetLowersToBoolOrSubselect(t *testing.T) {
	require := require.New(t)
	env := newIssueTestEnv()
	c := NewCompiler(env)
	pop := c.PushStmt(&rel.SelectStmt{}, env.Scopes.Root)
	defer pop()

	left := &ir.Constant{Value: int64(1), Type: pathid.TypeRef{QualName: "std::int64"}}
	right := &ir.Constant{Value: int64(1), Type: pathid.TypeRef{QualName: "std::int64"}}
	member := &ir.Set{
		PathID: pathid.New(pathid.TypeRef{QualName: "std::bool"}),
		Expr:   &ir.Membership{Left: left, Right: right},
	}

	rv, err := c.GetSetRVar(member)
	require.NoError(err)

	sub, ok := rv.(*rel.RangeSubselect)
	require.True(ok)
	require.Len(sub.Subquery.TargetList, 1)
	require.Equal("value", sub.Subquery.TargetList[0].Alias)

	value, err := c.Paths().GetPathVar(member.PathID)
	require.NoError(err)
	col, ok := value.(*rel.ColumnRef)
	require.True(ok)
	require.Equal(sub.Alias, col.RVar)
}

func TestGetSetRVarMemoizesOnScopeID(t *testing.T) {
	require := require.New(t)
	env := newIssueTestEnv()
	c := NewCompiler(env)
	pop := c.PushStmt(&rel.SelectStmt{}, env.Scopes.Root)
	defer pop()

	root := &ir.Set{PathID: pathid.New(issueType), ScopeID: "root"}
	first, err := c.GetSetRVar(root)
	require.NoError(err)

	second, err := c.GetSetRVar(root)
	require.NoError(err)
	require.Equal(first, second)
}
