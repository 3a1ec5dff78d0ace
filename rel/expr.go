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

import "github.com/shopspring/decimal"

// Expr is implemented by every scalar relational expression node.
//
// Nullable is computed bottom-up by the expression compiler as each node
// is built (spec §4.8): a node is nullable if any operand it cannot prove
// non-null is nullable. It is stored on the node rather than recomputed,
// the way the teacher's sql.Expression implementations cache their
// resolved sql.Type rather than re-deriving it on every access.
type Expr interface {
	exprNode()
	IsNullable() bool
}

type base struct{ Nullable bool }

func (b base) IsNullable() bool { return b.Nullable }

// SetNullable stamps a node's nullability after construction. base is
// unexported so outside packages cannot embed it directly into a new
// node kind (Expr stays closed), but the promoted exported method lets
// the expression compiler (package compiler) set nullability on a plain
// composite literal the way ir.base.SetID lets an elaborator stamp a
// NodeID without being able to fabricate new IR node kinds.
func (b *base) SetNullable(v bool) { b.Nullable = v }

// ColumnRef is `rvar.column`.
type ColumnRef struct {
	base
	RVar  string
	Column string
}

func (*ColumnRef) exprNode() {}

// ParamRef is a positional query parameter (`$1`, `$2`, ...).
type ParamRef struct {
	base
	Ordinal int
	Name    string // original source name, for ArgMap construction
}

func (*ParamRef) exprNode() {}

// StringConstant is a SQL string literal.
type StringConstant struct {
	base
	Value string
}

func (*StringConstant) exprNode() {}

// NumericConstant is an exact numeric literal, stored via shopspring/decimal
// to avoid float round-off when compiling integer/decimal source literals
// (spec §4.8).
type NumericConstant struct {
	base
	Value decimal.Decimal
}

func (*NumericConstant) exprNode() {}

// BooleanConstant is a SQL boolean literal.
type BooleanConstant struct {
	base
	Value bool
}

func (*BooleanConstant) exprNode() {}

// NullConstant is the untyped SQL NULL.
type NullConstant struct {
	base
}

func (*NullConstant) exprNode() {}

// FuncCall is a function or aggregate call.
type FuncCall struct {
	base
	Name        string
	Args        []Expr
	Distinct    bool
	IsAggregate bool
	WithOrdinality bool // WITH ORDINALITY suffix for set-returning calls in FROM
	FilterClause Expr   // FILTER (WHERE ...) on an aggregate
}

func (*FuncCall) exprNode() {}

// OpExpr is an infix binary operator (`a OP b`), or a prefix unary one
// when Left is nil.
type OpExpr struct {
	base
	Op    string
	Left  Expr // nil for a prefix operator
	Right Expr
}

func (*OpExpr) exprNode() {}

// CaseWhen is one WHEN/THEN arm of a CaseExpr.
type CaseWhen struct {
	Cond Expr
	Then Expr
}

// CaseExpr is `CASE WHEN ... THEN ... ELSE ... END`.
type CaseExpr struct {
	base
	Whens []CaseWhen
	Else  Expr
}

func (*CaseExpr) exprNode() {}

// CoalesceExpr is `COALESCE(args...)`.
type CoalesceExpr struct {
	base
	Args []Expr
}

func (*CoalesceExpr) exprNode() {}

// NullTest is `expr IS [NOT] NULL`.
type NullTest struct {
	base
	Arg     Expr
	Negated bool
}

func (*NullTest) exprNode() {}

// SubLinkType names the SQL sublink shape a SubLink compiles to.
type SubLinkType int

const (
	ExistsSubLink SubLinkType = iota
	AnySubLink
	AllSubLink
	ExprSubLink
)

// SubLink is a correlated or uncorrelated subquery used as a scalar value
// (`EXISTS (...)`, `x = ANY (...)`, a scalar `(SELECT ...)`).
type SubLink struct {
	base
	Type     SubLinkType
	TestExpr Expr // the `x` side of `x = ANY (subquery)`; nil for EXISTS/ExprSubLink
	Op       string
	Subquery *SelectStmt
	Negated  bool
}

func (*SubLink) exprNode() {}

// RowExpr is an explicit `ROW(args...)` constructor.
type RowExpr struct {
	base
	Args       []Expr
	ColNames   []string
}

func (*RowExpr) exprNode() {}

// ImplicitRowExpr is a parenthesized `(a, b, c)` row constructor emitted
// without the ROW keyword (used for tuple literals the shape compiler
// does not need explicitly typed).
type ImplicitRowExpr struct {
	base
	Args []Expr
}

func (*ImplicitRowExpr) exprNode() {}

// ArrayExpr is `ARRAY[args...]`.
type ArrayExpr struct {
	base
	Args        []Expr
	ElementType string // SQL type name, for empty/typed array literals
}

func (*ArrayExpr) exprNode() {}

// TypeCast is `expr::type`. It has no field marking a forced cast; IR's
// TypeCast.Force only affects the nullability the expression compiler
// assigns to this node.
type TypeCast struct {
	base
	Arg  Expr
	Type string
}

func (*TypeCast) exprNode() {}

// Indirection is `arg[index]` or `arg.field`.
type Indirection struct {
	base
	Arg   Expr
	Index Expr    // set for array/tuple positional indexing
	Field string  // set for named tuple field access
}

func (*Indirection) exprNode() {}

// Indices is an array slice `arg[lower:upper]`.
type Indices struct {
	base
	Arg   Expr
	Lower Expr // nil if unspecified
	Upper Expr // nil if unspecified
}

func (*Indices) exprNode() {}

// TupleVar is a compiled tuple value: a named set of member expressions,
// as produced by the shape compiler (spec §4.8) and used as a Set's value
// aspect output when the Set has a Shape attached.
type TupleVar struct {
	base
	Elements []TupleVarElement
}

func (*TupleVar) exprNode() {}

// TupleVarElement is one member of a TupleVar, named after the shape
// element (or its PathId's target pointer) it came from.
type TupleVarElement struct {
	Name  string
	Value Expr
}
