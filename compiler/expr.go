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
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/relql/relql/ir"
	"github.com/relql/relql/rel"
	"github.com/relql/relql/relqlerrors"
)

// CompileExpr lowers a scalar IR node to a rel.Expr (spec §4.8). Set-lowering
// dispatcher constructs (subqueries, UNIONs, aggregate set-returning calls,
// EXISTS/Membership relations) are handled by relgen.go's GetSetRVar;
// CompileExpr handles everything the §4.7 dispatch table routes to "the
// expression compiler" plus the scalar leaves every handler bottoms out on.
func CompileExpr(c *Compiler, node ir.Node) (rel.Expr, error) {
	return compileExprCtx(c, node, false)
}

// compileExprCtx is CompileExpr threading the WHERE-context flag §4.4's
// boolean-operator translation needs: in a WHERE clause AND/OR may use
// native SQL semantics for AND and a nullable-safe OR helper; outside WHERE
// both must be lifted to a bitwise computation over int::bool so that NULL
// operands propagate NULL rather than being coerced to a boolean result.
func compileExprCtx(c *Compiler, node ir.Node, inWhere bool) (rel.Expr, error) {
	switch n := node.(type) {
	case nil:
		return &rel.NullConstant{}, nil

	case *ir.EmptySet:
		nc := &rel.NullConstant{}
		nc.SetNullable(true)
		return nc, nil

	case *ir.Constant:
		return compileConstant(n)

	case *ir.Parameter:
		return compileParameter(c, n)

	case *ir.Set:
		return compileSetAsScalar(c, n)

	case *ir.OpCall:
		return compileOpCall(c, n, inWhere)

	case *ir.IfElse:
		return compileIfElse(c, n)

	case *ir.Coalesce:
		return compileCoalesceScalar(c, n)

	case *ir.Equivalence:
		return compileEquivalence(c, n)

	case *ir.TypeCheckOp:
		return compileTypeCheck(c, n)

	case *ir.TypeCast:
		return compileTypeCast(c, n)

	case *ir.Array:
		return compileArray(c, n)

	case *ir.Tuple:
		return compileTupleLiteral(c, n)

	case *ir.TupleIndirection:
		return compileTupleIndirection(c, n)

	case *ir.IndexIndirection:
		return compileIndexIndirection(c, n)

	case *ir.SliceIndirection:
		return compileSliceIndirection(c, n)

	case *ir.Distinct:
		return compileExprCtx(c, n.Inner, inWhere)

	case *ir.Membership:
		return c.lowerMembershipScalar(n)

	case *ir.Exists:
		return c.lowerExistsScalar(n)

	default:
		return nil, relqlerrors.ErrInternalLookupFailure.New(fmt.Sprintf("%T", node), "expr")
	}
}

// nullableSetter is satisfied by every rel.Expr concrete type via the
// promoted rel.base.SetNullable method; setNullable stamps nullability
// onto a freshly constructed node without needing access to rel's
// unexported base field.
type nullableSetter interface {
	SetNullable(bool)
}

func setNullable(e rel.Expr, v bool) rel.Expr {
	if ns, ok := e.(nullableSetter); ok {
		ns.SetNullable(v)
	}
	return e
}

func compileConstant(n *ir.Constant) (rel.Expr, error) {
	lit, err := literalExpr(n.Value)
	if err != nil {
		return nil, err
	}
	// Scalar constants are always cast to their schema type (§4.8): a
	// literal that arrived from the IR already typed still gets an
	// explicit cast so downstream SQL never relies on untyped-literal
	// inference. rel.TypeCast has no force flag, so this is a plain
	// `::type` cast.
	return &rel.TypeCast{Arg: lit, Type: n.Type.QualName}, nil
}

func literalExpr(v any) (rel.Expr, error) {
	switch val := v.(type) {
	case nil:
		return &rel.NullConstant{}, nil
	case string:
		return &rel.StringConstant{Value: val}, nil
	case bool:
		return &rel.BooleanConstant{Value: val}, nil
	case int:
		return &rel.NumericConstant{Value: decimal.NewFromInt(int64(val))}, nil
	case int64:
		return &rel.NumericConstant{Value: decimal.NewFromInt(val)}, nil
	case float64:
		return &rel.NumericConstant{Value: decimal.NewFromFloat(val)}, nil
	case decimal.Decimal:
		return &rel.NumericConstant{Value: val}, nil
	default:
		return nil, relqlerrors.ErrInternalLookupFailure.New(fmt.Sprintf("%T", v), "constant")
	}
}

func compileParameter(c *Compiler, n *ir.Parameter) (rel.Expr, error) {
	ordinal := c.Env.Ordinal(n.Name)
	name := ""
	if c.Env.Options.UseNamedParams {
		name = n.Name
	}
	return &rel.ParamRef{Ordinal: ordinal, Name: name}, nil
}

// compileSetAsScalar resolves a Set reached in scalar position: lower it
// through the set-lowering dispatcher, then read its value aspect back out
// of the current frame's path context.
func compileSetAsScalar(c *Compiler, n *ir.Set) (rel.Expr, error) {
	if _, err := c.GetSetRVar(n); err != nil {
		return nil, err
	}
	v, err := c.Paths().GetPathVar(n.PathID)
	if err != nil {
		return nil, WrapQueryError(err, n)
	}
	return v, nil
}

var opSymbols = map[string]string{
	"=": "=", "!=": "!=", "<": "<", "<=": "<=", ">": ">", ">=": ">=",
	"+": "+", "-": "-", "*": "*", "/": "/", "%": "%", "++": "||",
	"like": "LIKE", "ilike": "ILIKE",
}

func compileOpCall(c *Compiler, n *ir.OpCall, inWhere bool) (rel.Expr, error) {
	switch n.Name {
	case "and":
		return compileBoolOp(c, n, inWhere, true)
	case "or":
		return compileBoolOp(c, n, inWhere, false)
	case "not":
		arg, err := compileCallArg(c, n, 0, inWhere)
		if err != nil {
			return nil, err
		}
		return &rel.OpExpr{Op: "NOT", Right: arg}, nil
	}

	args := make([]rel.Expr, len(n.Args))
	nullable := false
	for i, a := range n.Args {
		e, err := compileExprCtx(c, a.Value, false)
		if err != nil {
			return nil, err
		}
		args[i] = e
		nullable = nullable || e.IsNullable()
	}

	if sym, ok := opSymbols[n.Name]; ok && len(args) == 2 {
		return setNullable(&rel.OpExpr{Op: sym, Left: args[0], Right: args[1]}, !n.NullSafe && nullable), nil
	}
	if sym, ok := opSymbols[n.Name]; ok && len(args) == 1 {
		return setNullable(&rel.OpExpr{Op: sym, Right: args[0]}, !n.NullSafe && nullable), nil
	}

	return setNullable(&rel.FuncCall{
		Name:        n.Name,
		Args:        args,
		IsAggregate: n.IsAggregate,
	}, !n.NullSafe), nil
}

func compileCallArg(c *Compiler, n *ir.OpCall, i int, inWhere bool) (rel.Expr, error) {
	if i >= len(n.Args) {
		return &rel.NullConstant{}, nil
	}
	return compileExprCtx(c, n.Args[i].Value, inWhere)
}

// compileBoolOp implements §4.4's three-valued-logic translation: inside a
// WHERE clause, AND keeps native SQL semantics and OR is routed through a
// nullable-safe helper that treats NULL as false; outside WHERE, both
// operators are lifted onto a bitwise int computation so that a NULL
// operand yields a NULL result rather than being coerced to boolean.
func compileBoolOp(c *Compiler, n *ir.OpCall, inWhere, isAnd bool) (rel.Expr, error) {
	if len(n.Args) != 2 {
		return nil, relqlerrors.ErrInternalLookupFailure.New(n.Name, "expr")
	}
	l, err := compileExprCtx(c, n.Args[0].Value, inWhere)
	if err != nil {
		return nil, err
	}
	r, err := compileExprCtx(c, n.Args[1].Value, inWhere)
	if err != nil {
		return nil, err
	}

	if inWhere {
		if isAnd {
			return &rel.OpExpr{Op: "AND", Left: l, Right: r}, nil
		}
		// Nullable-safe OR: coalesce each operand to false before ORing, so
		// an unknown operand behaves as "no evidence" rather than
		// poisoning the whole predicate to NULL/unknown.
		safeL := &rel.CoalesceExpr{Args: []rel.Expr{l, &rel.BooleanConstant{Value: false}}}
		safeR := &rel.CoalesceExpr{Args: []rel.Expr{r, &rel.BooleanConstant{Value: false}}}
		return &rel.OpExpr{Op: "OR", Left: safeL, Right: safeR}, nil
	}

	// Outside WHERE: lift to int::bool bitwise ops to preserve NULL
	// propagation.
	lInt := &rel.TypeCast{Arg: l, Type: "int"}
	rInt := &rel.TypeCast{Arg: r, Type: "int"}
	bitOp := "&"
	if !isAnd {
		bitOp = "|"
	}
	bitsNullable := l.IsNullable() || r.IsNullable()
	bits := setNullable(&rel.OpExpr{Op: bitOp, Left: lInt, Right: rInt}, bitsNullable)
	return setNullable(&rel.TypeCast{Arg: bits, Type: "bool"}, bitsNullable), nil
}

func compileIfElse(c *Compiler, n *ir.IfElse) (rel.Expr, error) {
	cond, err := compileExprCtx(c, n.Cond, false)
	if err != nil {
		return nil, err
	}
	ifExpr, err := compileExprCtx(c, n.IfExpr, false)
	if err != nil {
		return nil, err
	}
	elseExpr, err := compileExprCtx(c, n.ElseExpr, false)
	if err != nil {
		return nil, err
	}
	return setNullable(&rel.CaseExpr{
		Whens: []rel.CaseWhen{{Cond: cond, Then: ifExpr}},
		Else:  elseExpr,
	}, ifExpr.IsNullable() || elseExpr.IsNullable()), nil
}

// compileCoalesceScalar handles spec §4.7's "Coalesce (L ?? R) with R ONE"
// case: a plain scalar COALESCE. The R-MANY case needs the OptionalRel
// union scaffold and is handled by relgen.go's lowerCoalesce, which is
// reached when the Coalesce is a Set's Expr (its normal position in the
// IR); this scalar form exists for a Coalesce reached directly as a
// function argument where both operands are already known ONE.
func compileCoalesceScalar(c *Compiler, n *ir.Coalesce) (rel.Expr, error) {
	l, err := compileExprCtx(c, n.Left, false)
	if err != nil {
		return nil, err
	}
	r, err := compileExprCtx(c, n.Right, false)
	if err != nil {
		return nil, err
	}
	return setNullable(&rel.CoalesceExpr{Args: []rel.Expr{l, r}}, l.IsNullable() && r.IsNullable()), nil
}

func compileEquivalence(c *Compiler, n *ir.Equivalence) (rel.Expr, error) {
	l, err := compileExprCtx(c, n.Left, false)
	if err != nil {
		return nil, err
	}
	r, err := compileExprCtx(c, n.Right, false)
	if err != nil {
		return nil, err
	}
	op := "IS NOT DISTINCT FROM"
	if n.Negated {
		op = "IS DISTINCT FROM"
	}
	return &rel.OpExpr{Op: op, Left: l, Right: r}, nil
}

func compileTypeCheck(c *Compiler, n *ir.TypeCheckOp) (rel.Expr, error) {
	left, err := compileExprCtx(c, n.Left, false)
	if err != nil {
		return nil, err
	}
	call := &rel.FuncCall{Name: "edgedb.issubclass", Args: []rel.Expr{left, &rel.StringConstant{Value: n.Right.QualName}}}
	if n.Negated {
		return &rel.OpExpr{Op: "NOT", Right: call}, nil
	}
	return call, nil
}

// compileTypeCast implements §4.8/§5's json->scalar cast wrapper: casting
// from json to a scalar type is not a plain SQL cast because a malformed
// payload must fail with a source-context-carrying runtime error rather
// than an opaque cast error, so it is routed through jsonb_assert_type.
func compileTypeCast(c *Compiler, n *ir.TypeCast) (rel.Expr, error) {
	inner, err := compileExprCtx(c, n.Inner, false)
	if err != nil {
		return nil, err
	}
	if n.TargetType.QualName != "std::json" && isJSONCastSource(n.Inner) {
		return setNullable(&rel.FuncCall{
			Name: "jsonb_assert_type",
			Args: []rel.Expr{
				inner,
				&rel.ArrayExpr{Args: []rel.Expr{&rel.StringConstant{Value: n.TargetType.QualName}, &rel.StringConstant{Value: "null"}}, ElementType: "text"},
			},
		}, true), nil
	}
	return setNullable(&rel.TypeCast{Arg: inner, Type: n.TargetType.QualName}, inner.IsNullable() && !n.Force), nil
}

// isJSONCastSource is a conservative approximation of "the cast's source
// expression is typed std::json": the full IR doesn't carry resolved
// scalar types on every node, so this only recognizes a TypeCast whose
// inner expression is itself already a json-targeted cast or json
// constant; anything else falls back to a plain SQL cast.
func isJSONCastSource(n ir.Node) bool {
	switch inner := n.(type) {
	case *ir.TypeCast:
		return inner.TargetType.QualName == "std::json"
	case *ir.Constant:
		return inner.Type.QualName == "std::json"
	default:
		return false
	}
}

// compileArray implements §4.8/§5's array-constructor wrapper: the
// constructor always goes through safe_array_expr, which in turn wraps
// the literal ARRAY[...] in _nullif_array_nulls whenever any element may
// be NULL, so that a NULL element inside the constructor yields a SQL
// NULL array overall rather than an array containing a NULL (matching the
// source language's all-or-nothing array-of-NULL semantics).
func compileArray(c *Compiler, n *ir.Array) (rel.Expr, error) {
	elems := make([]rel.Expr, len(n.Elements))
	anyNullable := false
	for i, e := range n.Elements {
		ce, err := compileExprCtx(c, e, false)
		if err != nil {
			return nil, err
		}
		elems[i] = ce
		anyNullable = anyNullable || ce.IsNullable()
	}
	arr := &rel.ArrayExpr{Args: elems}
	if !anyNullable {
		return &rel.FuncCall{Name: "safe_array_expr", Args: []rel.Expr{arr}}, nil
	}
	guarded := setNullable(&rel.FuncCall{Name: "_nullif_array_nulls", Args: []rel.Expr{arr}}, true)
	return setNullable(&rel.FuncCall{Name: "safe_array_expr", Args: []rel.Expr{guarded}}, true), nil
}

func compileTupleLiteral(c *Compiler, n *ir.Tuple) (rel.Expr, error) {
	elems := make([]rel.Expr, len(n.Elements))
	for i, e := range n.Elements {
		ce, err := compileExprCtx(c, e.Value, false)
		if err != nil {
			return nil, err
		}
		elems[i] = ce
	}
	return &rel.ImplicitRowExpr{Args: elems}, nil
}

func compileTupleIndirection(c *Compiler, n *ir.TupleIndirection) (rel.Expr, error) {
	tup, err := compileExprCtx(c, n.Tuple, false)
	if err != nil {
		return nil, err
	}
	if tv, ok := tup.(*rel.TupleVar); ok {
		for _, el := range tv.Elements {
			if el.Name == n.Name {
				return el.Value, nil
			}
		}
	}
	return setNullable(&rel.Indirection{Arg: tup, Field: n.Name}, tup.IsNullable()), nil
}

// compileIndexIndirection emits indexing per §4.4 as native operand[i],
// with the index passed through normalizeIndex's CASE expression so a
// negative index counts from the end. Source scalar typing isn't resolved
// here (the schema lookup lives one level up, at the Set/path layer), so
// every operand, string or array, gets this native form; no substr-based
// string indexing is emitted.
func compileIndexIndirection(c *Compiler, n *ir.IndexIndirection) (rel.Expr, error) {
	operand, err := compileExprCtx(c, n.Operand, false)
	if err != nil {
		return nil, err
	}
	index, err := compileExprCtx(c, n.Index, false)
	if err != nil {
		return nil, err
	}
	normIdx := normalizeIndex(operand, index)
	return setNullable(&rel.Indirection{Arg: operand, Index: normIdx}, true), nil
}

// normalizeIndex wraps a possibly-negative index in a CASE expression
// implementing SRC's negative-index-from-the-end semantics: a negative idx
// is offset by operand's length.
func normalizeIndex(operand, idx rel.Expr) rel.Expr {
	isNeg := &rel.OpExpr{Op: "<", Left: idx, Right: &rel.NumericConstant{Value: decimal.Zero}}
	adjusted := &rel.OpExpr{Op: "+", Left: idx, Right: &rel.FuncCall{Name: "array_length", Args: []rel.Expr{operand}}}
	return &rel.CaseExpr{Whens: []rel.CaseWhen{{Cond: isNeg, Then: adjusted}}, Else: idx}
}

// compileSliceIndirection emits a half-open slice with negative-index
// normalization; an unspecified lower bound becomes 1 and an unspecified
// upper bound becomes the operand's length (§4.4).
func compileSliceIndirection(c *Compiler, n *ir.SliceIndirection) (rel.Expr, error) {
	operand, err := compileExprCtx(c, n.Operand, false)
	if err != nil {
		return nil, err
	}
	var lower, upper rel.Expr
	if n.Lower != nil {
		l, err := compileExprCtx(c, n.Lower, false)
		if err != nil {
			return nil, err
		}
		lower = normalizeIndex(operand, l)
	} else {
		lower = &rel.NumericConstant{Value: decimal.NewFromInt(1)}
	}
	if n.Upper != nil {
		u, err := compileExprCtx(c, n.Upper, false)
		if err != nil {
			return nil, err
		}
		upper = normalizeIndex(operand, u)
	} else {
		upper = &rel.FuncCall{Name: "array_length", Args: []rel.Expr{operand}}
	}
	return setNullable(&rel.Indices{Arg: operand, Lower: lower, Upper: upper}, true), nil
}
