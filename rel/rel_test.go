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

package rel

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSelectStmtImplementsStatement(t *testing.T) {
	var s Statement = &SelectStmt{
		TargetList: []TargetEntry{{Expr: &ColumnRef{RVar: "t", Column: "id"}, Alias: "id"}},
		From:       []Relation{&RangeVar{Relation: "issue", Alias: "t"}},
	}
	require.NotNil(t, s)
}

func TestJoinExprNestsRelations(t *testing.T) {
	require := require.New(t)

	left := &RangeVar{Relation: "issue", Alias: "t0"}
	right := &RangeVar{Relation: "user", Alias: "t1"}
	join := &JoinExpr{
		Type: InnerJoin,
		Left: left,
		Right: right,
		Condition: &OpExpr{
			Op:   "=",
			Left: &ColumnRef{RVar: "t0", Column: "owner_id"},
			Right: &ColumnRef{RVar: "t1", Column: "id"},
		},
	}
	require.Equal(left, join.Left)
	require.Equal(right, join.Right)
}

func TestInspectVisitsEveryNode(t *testing.T) {
	require := require.New(t)

	expr := &CoalesceExpr{Args: []Expr{
		&ColumnRef{RVar: "t", Column: "a"},
		&NumericConstant{Value: decimal.NewFromInt(0)},
	}}

	var visited []Expr
	Inspect(expr, func(e Expr) bool {
		visited = append(visited, e)
		return true
	})
	require.Len(visited, 3)
}

func TestInspectStopsDescendingWhenFFalse(t *testing.T) {
	require := require.New(t)

	inner := &ColumnRef{RVar: "t", Column: "a"}
	expr := &NullTest{Arg: inner}

	var visited []Expr
	Inspect(expr, func(e Expr) bool {
		visited = append(visited, e)
		return false
	})
	require.Len(visited, 1)
}

func TestTransformUpRewritesLeaves(t *testing.T) {
	require := require.New(t)

	expr := &OpExpr{
		Op:   "+",
		Left: &ColumnRef{RVar: "t", Column: "a"},
		Right: &NumericConstant{Value: decimal.NewFromInt(1)},
	}

	out, err := TransformUp(expr, func(e Expr) (Expr, error) {
		if c, ok := e.(*ColumnRef); ok {
			return &ColumnRef{RVar: c.RVar, Column: "renamed_" + c.Column}, nil
		}
		return e, nil
	})
	require.NoError(err)

	op := out.(*OpExpr)
	col := op.Left.(*ColumnRef)
	require.Equal("renamed_a", col.Column)
}

func TestTransformUpPreservesCaseShape(t *testing.T) {
	require := require.New(t)

	expr := &CaseExpr{
		Whens: []CaseWhen{
			{Cond: &BooleanConstant{Value: true}, Then: &NumericConstant{Value: decimal.NewFromInt(1)}},
		},
		Else: &NullConstant{},
	}

	out, err := TransformUp(expr, func(e Expr) (Expr, error) { return e, nil })
	require.NoError(err)

	ce := out.(*CaseExpr)
	require.Len(ce.Whens, 1)
	require.NotNil(ce.Else)
}

func TestNullableFieldIsReportedByIsNullable(t *testing.T) {
	require := require.New(t)
	c := &ColumnRef{RVar: "t", Column: "a"}
	c.Nullable = true
	require.True(c.IsNullable())
}
