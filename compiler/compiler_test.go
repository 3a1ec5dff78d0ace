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

	"github.com/relql/relql/pathid"
	"github.com/relql/relql/rel"
	"github.com/relql/relql/schema"
)

type fakeSchema struct{}

func (fakeSchema) Get(qualname string) (schema.Object, bool)           { return nil, false }
func (fakeSchema) MaterialType(t schema.ObjectType) schema.ObjectType  { return t }
func (fakeSchema) Descendants(t schema.ObjectType) []schema.ObjectType { return nil }
func (fakeSchema) Children(t schema.ObjectType) []schema.ObjectType    { return nil }
func (fakeSchema) IsView(t schema.ObjectType) bool                     { return false }
func (fakeSchema) PeelView(t schema.ObjectType) schema.ObjectType      { return t }
func (fakeSchema) IsVirtual(t schema.ObjectType) bool                  { return false }
func (fakeSchema) GetPointer(t schema.ObjectType, name string) (schema.Pointer, bool) {
	return nil, false
}
func (fakeSchema) Source(p schema.Pointer) schema.ObjectType { return nil }
func (fakeSchema) Target(p schema.Pointer) schema.ObjectType { return nil }
func (fakeSchema) PointerCardinality(p schema.Pointer) schema.Cardinality {
	return schema.CardinalityOne
}
func (fakeSchema) Singular(p schema.Pointer, dir pathid.PointerDirection) bool { return true }
func (fakeSchema) IsLinkProperty(p schema.Pointer) bool                       { return false }
func (fakeSchema) IsIDPointer(p schema.Pointer) bool                          { return false }
func (fakeSchema) ShortName(p schema.Pointer) string                         { return p.QualName() }
func (fakeSchema) Constraints(p schema.Pointer) []schema.Constraint          { return nil }
func (fakeSchema) IsExclusive(p schema.Pointer) bool                        { return false }
func (fakeSchema) Generic(p schema.Pointer) bool                            { return false }
func (fakeSchema) Storage(p schema.Pointer) (string, schema.TableType, string, string, bool) {
	return "", schema.ObjectTypeTable, "", "", false
}

var (
	issueType = pathid.TypeRef{QualName: "default::Issue"}
	userType  = pathid.TypeRef{QualName: "default::User"}
	ownerRef  = pathid.PointerRef{QualName: "default::Issue.owner"}
)

func newTestEnv() *Environment {
	return NewEnvironment(fakeSchema{}, Options{})
}

func TestNextAliasIsDeterministicPerHint(t *testing.T) {
	require := require.New(t)
	env := newTestEnv()

	require.Equal("t0", env.NextAlias("t"))
	require.Equal("t1", env.NextAlias("t"))
	require.Equal("q0", env.NextAlias("q"))
}

func TestOrdinalAssignsStablePositions(t *testing.T) {
	require := require.New(t)
	env := newTestEnv()

	require.Equal(1, env.Ordinal("id"))
	require.Equal(2, env.Ordinal("name"))
	require.Equal(1, env.Ordinal("id")) // stable on repeat

	m := env.ArgMap()
	require.Equal(1, m["id"])
	require.Equal(2, m["name"])
}

func TestVolatilityRefStack(t *testing.T) {
	require := require.New(t)
	env := newTestEnv()

	_, _, ok := env.TopVolatilityRef()
	require.False(ok)

	idCol := &rel.ColumnRef{RVar: "t0", Column: "id"}
	env.PushVolatilityRef("t0", idCol)

	alias, expr, ok := env.TopVolatilityRef()
	require.True(ok)
	require.Equal("t0", alias)
	require.Equal(idCol, expr)

	env.PopVolatilityRef()
	_, _, ok = env.TopVolatilityRef()
	require.False(ok)
}

func TestPathCtxPutAndGetVar(t *testing.T) {
	require := require.New(t)
	env := newTestEnv()
	pc := NewPathCtx(env)

	id := pathid.New(issueType)
	expr := &rel.ColumnRef{RVar: "t0", Column: "id"}
	pc.PutPathVar(id, IdentityAspect, expr)

	got, err := pc.GetPathOutput(id, IdentityAspect)
	require.NoError(err)
	require.Equal(expr, got)

	_, ok := pc.MaybeGetPathOutput(id, ValueAspect)
	require.False(ok)
}

func TestPathCtxGetPathVarMissingRaises(t *testing.T) {
	require := require.New(t)
	env := newTestEnv()
	pc := NewPathCtx(env)

	_, err := pc.GetPathVar(pathid.New(issueType))
	require.Error(err)
}

func TestJoinConditionBuildsIdentityEquality(t *testing.T) {
	require := require.New(t)
	env := newTestEnv()
	pc := NewPathCtx(env)

	left := pathid.New(issueType)
	right := pathid.Extend(left, ownerRef, "owner", pathid.Outbound, false, userType, userType, pathid.Namespace{})

	pc.PutPathVar(left, IdentityAspect, &rel.ColumnRef{RVar: "t0", Column: "id"})
	pc.PutPathVar(right, IdentityAspect, &rel.ColumnRef{RVar: "t1", Column: "id"})

	cond, err := pc.JoinCondition(left, right)
	require.NoError(err)

	op, ok := cond.(*rel.OpExpr)
	require.True(ok)
	require.Equal("=", op.Op)
}

func TestRelCtxIncludeAndJoin(t *testing.T) {
	require := require.New(t)
	env := newTestEnv()
	stmt := &rel.SelectStmt{}
	pc := NewPathCtx(env)
	rc := NewRelCtx(env, stmt, pc)

	issuePath := pathid.New(issueType)
	rv0 := &rel.RangeVar{Relation: "issue", Alias: "t0"}
	rc.IncludeRVar(issuePath, rv0, "t0", pathid.Namespace{})
	require.Len(stmt.From, 1)

	ownerPath := pathid.Extend(issuePath, ownerRef, "owner", pathid.Outbound, false, userType, userType, pathid.Namespace{})
	rv1 := &rel.RangeVar{Relation: "user", Alias: "t1"}
	cond := &rel.OpExpr{Op: "=", Left: &rel.ColumnRef{RVar: "t0", Column: "owner_id"}, Right: &rel.ColumnRef{RVar: "t1", Column: "id"}}
	rc.RelJoin(rv1, cond, rel.InnerJoin)

	require.Len(stmt.From, 1) // the two rvars collapsed into one join entry
	join, ok := stmt.From[0].(*rel.JoinExpr)
	require.True(ok)
	require.Equal(rv0, join.Left)
	require.Equal(rv1, join.Right)
	require.False(join.Semi)

	_ = ownerPath
}

func TestRelCtxSemiJoinMarksSemi(t *testing.T) {
	require := require.New(t)
	env := newTestEnv()
	stmt := &rel.SelectStmt{}
	pc := NewPathCtx(env)
	rc := NewRelCtx(env, stmt, pc)

	rv0 := &rel.RangeVar{Relation: "issue", Alias: "t0"}
	rc.IncludeRVar(pathid.New(issueType), rv0, "t0", pathid.Namespace{})

	rv1 := &rel.RangeVar{Relation: "comment", Alias: "t1"}
	cond := &rel.OpExpr{Op: "=", Left: &rel.ColumnRef{RVar: "t1", Column: "issue_id"}, Right: &rel.ColumnRef{RVar: "t0", Column: "id"}}
	rc.SemiJoin(rv1, cond)

	join, ok := stmt.From[0].(*rel.JoinExpr)
	require.True(ok)
	require.True(join.Semi)
}
