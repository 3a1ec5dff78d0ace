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
	"strings"

	"github.com/shopspring/decimal"

	"github.com/relql/relql/cardinality"
	"github.com/relql/relql/ir"
	"github.com/relql/relql/pathid"
	"github.com/relql/relql/rel"
	"github.com/relql/relql/relqlerrors"
	"github.com/relql/relql/schema"
)

// lowered is what every set-lowering handler produces: the relation to
// join into the enclosing FROM clause, and the expressions that become
// the Set's path-id output under the value/identity aspects (spec §3.5).
// Handlers that build a derived subquery run inside a pushed child frame
// (so their own joins/target list land on their own statement, not the
// caller's); GetSetRVar does the registration into the PARENT frame's
// RelCtx/PathCtx only after popping that child frame, which is what keeps
// a handler's internal bookkeeping from leaking into — or colliding
// with — the frame it will itself be joined into.
type lowered struct {
	rel      rel.Relation
	value    rel.Expr
	identity rel.Expr
	optional bool
}

// GetSetRVar is the Set-Lowering Dispatcher's entry point (spec §4.7): it
// resolves ir_set to a rel.Relation included in the current scope
// statement's FROM clause, memoizing on the Set's ScopeTree binding the way
// the teacher's analyzer memoizes a resolved sql.Node per scope so a
// re-visited reference reuses the already-built plan rather than
// re-expanding it.
func (c *Compiler) GetSetRVar(s *ir.Set) (rel.Relation, error) {
	if rv, ok := c.CachedRVar(s.ScopeID); ok {
		return rv, nil
	}

	// Plain pointer navigation and bare roots never need their own derived
	// table: they join directly into the statement already active at this
	// point, matching §4.7 step 3's "pick the statement assigned to the
	// PathId... otherwise use the current relation" (no subrelation is
	// created at all in this case).
	if s.Expr == nil {
		var lw *lowered
		var err error
		if s.RPtr != nil {
			lw, err = c.lowerPath(s)
		} else {
			lw, err = c.rangeForSet(s)
		}
		if err != nil {
			return nil, WrapQueryError(err, s)
		}
		c.registerAspects(s, lw)
		if err := c.CompileShape(s); err != nil {
			return nil, err
		}
		c.CacheRVar(s.ScopeID, lw.rel)
		return lw.rel, nil
	}

	scope := c.scopeFor(s)
	inner := &rel.SelectStmt{}
	pop := c.PushStmt(inner, scope)
	lw, err := c.dispatchExprSet(s, inner)
	pop()
	if err != nil {
		return nil, WrapQueryError(err, s)
	}

	if (scope != nil && scope.Optional) || lw.optional {
		lw = c.wrapOptionalRel(lw)
	}

	c.registerAspects(s, lw)
	if err := c.CompileShape(s); err != nil {
		return nil, err
	}
	c.CacheRVar(s.ScopeID, lw.rel)
	return lw.rel, nil
}

// registerAspects performs §4.7 step 5 ("for each new rvar produced by the
// handler, include it in the scope stmt under its declared aspects") in
// the frame that is current once GetSetRVar's own push (if any) has been
// popped — i.e. the caller's frame, which is what later reads the path's
// value/identity back out.
func (c *Compiler) registerAspects(s *ir.Set, lw *lowered) {
	// A nil relation means the handler contributed no new rvar of its own
	// (e.g. an inline pointer or a link property read off an rvar already
	// in the current frame): only the path output needs registering.
	if lw.rel != nil {
		alias := c.Env.NextAlias(pathIDHint(s.PathID))
		if rv, ok := namedAlias(lw.rel); ok {
			alias = rv
		}
		c.Rels().IncludeRVar(s.PathID, lw.rel, alias, pathid.Namespace{})
	}
	c.setAspects(s.PathID, lw.value, lw.identity, false)
}

// namedAlias extracts the alias a handler already assigned its relation,
// if the relation kind carries one, so registerAspects reuses it rather
// than minting a redundant second alias.
func namedAlias(r rel.Relation) (string, bool) {
	switch rv := r.(type) {
	case *rel.RangeVar:
		return rv.Alias, true
	case *rel.RangeSubselect:
		return rv.Alias, true
	case *rel.ValuesRangeVar:
		return rv.Alias, true
	default:
		return "", false
	}
}

// dispatchExprSet implements §4.7's predicate table for every Set whose
// Expr is non-nil, running inside the child frame already pushed by
// GetSetRVar for this Set's own subrelation (inner).
func (c *Compiler) dispatchExprSet(s *ir.Set, inner *rel.SelectStmt) (*lowered, error) {
	switch expr := s.Expr.(type) {
	case *ir.SelectStmt:
		return c.lowerSubqueryStmt(s, expr, inner)

	case *ir.Membership:
		return c.lowerMembership(expr, inner)

	case *ir.EmptySet:
		return c.lowerEmptySet()

	case *ir.SetOpUnion:
		return c.lowerSetOpUnion(s, expr)

	case *ir.Distinct:
		return c.lowerDistinct(s, expr)

	case *ir.IfElse:
		return c.lowerIfElseSet(expr, inner)

	case *ir.Coalesce:
		return c.lowerCoalesceSet(s, expr)

	case *ir.Equivalence:
		return c.lowerEquivalenceSet(expr, inner)

	case *ir.Tuple:
		return c.lowerTupleSet(expr, inner)

	case *ir.TupleIndirection:
		return c.lowerTupleIndirectionSet(expr, inner)

	case *ir.OpCall:
		return c.lowerCallSet(s, expr, inner)

	case *ir.Exists:
		return c.lowerExistsSet(expr, inner)

	default:
		return c.lowerScalarAsRel(s, expr, inner)
	}
}

// lowerSubqueryStmt handles "is_subquery_set": a Set wrapping a nested
// SelectStmt. inner (the frame already pushed for this Set) becomes the
// compiled subquery body; it is then wrapped as a RangeSubselect for the
// caller to include. Insert/Update/Delete subqueries are not reached here:
// statement execution beyond SELECT projection is out of the core's scope
// (spec §1).
func (c *Compiler) lowerSubqueryStmt(s *ir.Set, sel *ir.SelectStmt, inner *rel.SelectStmt) (*lowered, error) {
	if sel.Iterator != nil {
		if _, err := c.GetSetRVar(sel.Iterator); err != nil {
			return nil, err
		}
	}
	resultExpr, err := CompileExpr(c, sel.Result)
	if err != nil {
		return nil, err
	}
	inner.TargetList = append(inner.TargetList, rel.TargetEntry{Expr: resultExpr, Alias: "value"})
	if sel.Where != nil {
		where, err := compileExprCtx(c, sel.Where, true)
		if err != nil {
			return nil, err
		}
		inner.Where = where
	}
	if sel.Limit != nil {
		lim, err := CompileExpr(c, sel.Limit)
		if err != nil {
			return nil, err
		}
		inner.Limit = lim
	}
	if sel.Offset != nil {
		off, err := CompileExpr(c, sel.Offset)
		if err != nil {
			return nil, err
		}
		inner.Offset = off
	}

	alias := c.Env.NextAlias(pathIDHint(s.PathID))
	sub := &rel.RangeSubselect{Alias: alias, Subquery: inner}
	valueCol := &rel.ColumnRef{RVar: alias, Column: "value"}
	return &lowered{rel: sub, value: valueCol, identity: valueCol}, nil
}

// lowerMembership emits the `bool_or(A = B)` over a cross join shape §4.7
// names for `A IN B`, NOT-wrapped for `NOT IN`; both forms are COALESCEd so
// an empty B yields false for IN and true for NOT IN rather than NULL.
func (c *Compiler) lowerMembership(m *ir.Membership, inner *rel.SelectStmt) (*lowered, error) {
	left, err := CompileExpr(c, m.Left)
	if err != nil {
		return nil, err
	}
	right, err := CompileExpr(c, m.Right)
	if err != nil {
		return nil, err
	}
	eq := &rel.OpExpr{Op: "=", Left: left, Right: right}
	agg := &rel.FuncCall{Name: "bool_or", Args: []rel.Expr{eq}, IsAggregate: true}
	var value rel.Expr
	if m.Negated {
		value = &rel.CoalesceExpr{Args: []rel.Expr{
			&rel.OpExpr{Op: "NOT", Right: agg},
			&rel.BooleanConstant{Value: true},
		}}
	} else {
		value = &rel.CoalesceExpr{Args: []rel.Expr{agg, &rel.BooleanConstant{Value: false}}}
	}
	return c.wrapScalarAsSubselect(inner, value, "m")
}

// lowerMembershipScalar is CompileExpr's fallback for a Membership reached
// directly in scalar position (e.g. nested inside a boolean expression
// rather than as a Set's own Expr): lower it through the full dispatcher
// and read back its value aspect, mirroring compileSetAsScalar.
func (c *Compiler) lowerMembershipScalar(m *ir.Membership) (rel.Expr, error) {
	fresh := &ir.Set{Expr: m}
	if _, err := c.GetSetRVar(fresh); err != nil {
		return nil, err
	}
	return c.Paths().GetPathVar(fresh.PathID)
}

// lowerExistsScalar is CompileExpr's fallback for an Exists node reached
// directly in scalar position.
func (c *Compiler) lowerExistsScalar(e *ir.Exists) (rel.Expr, error) {
	inner, err := c.lowerAsSubselect(e.Inner)
	if err != nil {
		return nil, err
	}
	return &rel.SubLink{Type: rel.ExistsSubLink, Subquery: inner, Negated: e.Negated}, nil
}

// lowerExistsSet handles an Exists reached as a Set's Expr: emits a
// SubLink(EXISTS, subq), negated if asked (§4.7's "EXISTS pred" row).
func (c *Compiler) lowerExistsSet(e *ir.Exists, inner *rel.SelectStmt) (*lowered, error) {
	expr, err := c.lowerExistsScalar(e)
	if err != nil {
		return nil, err
	}
	return c.wrapScalarAsSubselect(inner, expr, "x")
}

// lowerAsSubselect compiles node as a standalone scalar-producing
// SelectStmt in its own pushed frame, for use as a SubLink's subquery or a
// set-op arm.
func (c *Compiler) lowerAsSubselect(node ir.Node) (*rel.SelectStmt, error) {
	stmt := &rel.SelectStmt{}
	pop := c.PushStmt(stmt, c.Scope())
	defer pop()
	expr, err := CompileExpr(c, node)
	if err != nil {
		return nil, err
	}
	stmt.TargetList = append(stmt.TargetList, rel.TargetEntry{Expr: expr, Alias: "value"})
	return stmt, nil
}

// lowerEmptySet produces a NullRelation rvar bonded on path_id.
func (c *Compiler) lowerEmptySet() (*lowered, error) {
	alias := c.Env.NextAlias("e")
	vr := &rel.ValuesRangeVar{Alias: alias, Columns: []string{"value"}, Rows: []rel.ValuesRow{
		{Values: []rel.Expr{&rel.NullConstant{}}},
	}}
	nullRef := setNullable(&rel.ColumnRef{RVar: alias, Column: "value"}, true)
	return &lowered{rel: vr, value: nullRef, identity: nullRef}, nil
}

// lowerSetOpUnion compiles each arm into a subquery and produces a
// UNION ALL included as an rvar.
func (c *Compiler) lowerSetOpUnion(s *ir.Set, u *ir.SetOpUnion) (*lowered, error) {
	leftStmt, err := c.lowerAsSubselect(u.Left)
	if err != nil {
		return nil, err
	}
	rightStmt, err := c.lowerAsSubselect(u.Right)
	if err != nil {
		return nil, err
	}
	combined := &rel.SelectStmt{Op: rel.SetOpUnionAll, Left: leftStmt, Right: rightStmt}
	alias := c.Env.NextAlias(pathIDHint(s.PathID))
	sub := &rel.RangeSubselect{Alias: alias, Subquery: combined}
	valueCol := &rel.ColumnRef{RVar: alias, Column: "value"}
	return &lowered{rel: sub, value: valueCol, identity: valueCol}, nil
}

// lowerDistinct compiles inner as a subquery and lifts its value output
// into a DISTINCT projection (rel models DISTINCT as a whole-target-list
// flag rather than a column subset, so distinct-on-value is expressed
// that way here).
func (c *Compiler) lowerDistinct(s *ir.Set, d *ir.Distinct) (*lowered, error) {
	innerStmt, err := c.lowerAsSubselect(d.Inner)
	if err != nil {
		return nil, err
	}
	innerStmt.Distinct = true
	alias := c.Env.NextAlias("dst")
	sub := &rel.RangeSubselect{Alias: alias, Subquery: innerStmt}
	valueCol := &rel.ColumnRef{RVar: alias, Column: "value"}
	return &lowered{rel: sub, value: valueCol, identity: valueCol}, nil
}

// lowerIfElseSet compiles cond into a column ref, emits two arms (if-expr
// under cond, else-expr under NOT cond), UNION ALL, include.
func (c *Compiler) lowerIfElseSet(n *ir.IfElse, inner *rel.SelectStmt) (*lowered, error) {
	condExpr, err := CompileExpr(c, n.Cond)
	if err != nil {
		return nil, err
	}

	ifArm := &rel.SelectStmt{Where: condExpr}
	ifValue, err := CompileExpr(c, n.IfExpr)
	if err != nil {
		return nil, err
	}
	ifArm.TargetList = append(ifArm.TargetList, rel.TargetEntry{Expr: ifValue, Alias: "value"})

	elseArm := &rel.SelectStmt{Where: &rel.OpExpr{Op: "NOT", Right: condExpr}}
	elseValue, err := CompileExpr(c, n.ElseExpr)
	if err != nil {
		return nil, err
	}
	elseArm.TargetList = append(elseArm.TargetList, rel.TargetEntry{Expr: elseValue, Alias: "value"})

	combined := &rel.SelectStmt{Op: rel.SetOpUnionAll, Left: ifArm, Right: elseArm}
	return c.wrapStmtAsSubselect(combined, "ie")
}

// lowerCoalesceSet handles the R-MANY form of Coalesce (the R-ONE scalar
// form is compileCoalesceScalar in expr.go): wraps the right side in the
// OptionalRel union-with-marker scaffold (§4.7.2), falling back to the
// left's value wherever the marker shows the right side was empty.
func (c *Compiler) lowerCoalesceSet(s *ir.Set, n *ir.Coalesce) (*lowered, error) {
	leftExpr, err := CompileExpr(c, n.Left)
	if err != nil {
		return nil, err
	}
	rightCard, err := c.Env.Card.Infer(n.Right, c.Scope())
	if err != nil {
		return nil, err
	}
	if rightCard == cardinality.ONE {
		rightExpr, err := CompileExpr(c, n.Right)
		if err != nil {
			return nil, err
		}
		value := &rel.CoalesceExpr{Args: []rel.Expr{leftExpr, rightExpr}}
		return c.wrapScalarAsSubselect(c.Stmt(), value, "co")
	}

	rightStmt, err := c.lowerAsSubselect(n.Right)
	if err != nil {
		return nil, err
	}
	wrapped := c.wrapOptionalRelStmt(rightStmt, leftExpr)
	return c.wrapStmtAsSubselect(wrapped, "co")
}

// wrapOptionalRelStmt implements §4.7.2's scaffold for a statement whose
// RHS computation may yield zero rows: LHS arm being scopeRel, RHS arm
// pinned to fallback, each prefixed with a marker column, UNION ALL,
// filtered outside by marker = first_value(marker) OVER ().
func (c *Compiler) wrapOptionalRelStmt(scopeRel *rel.SelectStmt, fallback rel.Expr) *rel.SelectStmt {
	emptyArm := &rel.SelectStmt{
		TargetList: []rel.TargetEntry{
			{Expr: literalInt(2), Alias: "marker"},
			{Expr: fallback, Alias: "value"},
		},
	}

	scopeArm := &rel.SelectStmt{
		TargetList: append([]rel.TargetEntry{{Expr: literalInt(1), Alias: "marker"}}, scopeRel.TargetList...),
		From:       scopeRel.From,
		Where:      scopeRel.Where,
		GroupBy:    scopeRel.GroupBy,
		Having:     scopeRel.Having,
	}

	union := &rel.SelectStmt{Op: rel.SetOpUnionAll, Left: scopeArm, Right: emptyArm}
	unionAlias := c.Env.NextAlias("opt")
	unionSub := &rel.RangeSubselect{Alias: unionAlias, Subquery: union}

	markerCol := &rel.ColumnRef{RVar: unionAlias, Column: "marker"}
	firstMarker := &rel.FuncCall{Name: "first_value", Args: []rel.Expr{markerCol}}
	markerOK := &rel.OpExpr{Op: "=", Left: markerCol, Right: firstMarker}

	return &rel.SelectStmt{
		TargetList: []rel.TargetEntry{{Expr: &rel.ColumnRef{RVar: unionAlias, Column: "value"}, Alias: "value"}},
		From:       []rel.Relation{unionSub},
		Where:      markerOK,
	}
}

// wrapOptionalRel wraps an already-lowered derived relation in the
// OptionalRel scaffold when the ScopeTree marked this Set's scope
// optional, or when the handler itself flagged lw.optional (§4.7.2,
// applied generically to whatever the dispatcher already built).
func (c *Compiler) wrapOptionalRel(lw *lowered) *lowered {
	sub, ok := lw.rel.(*rel.RangeSubselect)
	if !ok {
		return lw
	}
	wrapped := c.wrapOptionalRelStmt(sub.Subquery, &rel.NullConstant{})
	alias := c.Env.NextAlias("opt")
	out := &rel.RangeSubselect{Alias: alias, Subquery: wrapped, Bonds: sub.Bonds}
	valueCol := setNullable(&rel.ColumnRef{RVar: alias, Column: "value"}, true)
	return &lowered{rel: out, value: valueCol, identity: valueCol}
}

func literalInt(v int64) rel.Expr {
	return &rel.NumericConstant{Value: decimal.NewFromInt(v)}
}

// lowerEquivalenceSet handles an Equivalence reached as a Set's own Expr
// (as opposed to nested scalar position, handled by compileEquivalence).
func (c *Compiler) lowerEquivalenceSet(n *ir.Equivalence, inner *rel.SelectStmt) (*lowered, error) {
	expr, err := compileEquivalence(c, n)
	if err != nil {
		return nil, err
	}
	return c.wrapScalarAsSubselect(inner, expr, "eqv")
}

// lowerTupleSet compiles each element through the expression compiler,
// producing a TupleVar value whose elements keep their names (an unnamed
// element is named by its position).
func (c *Compiler) lowerTupleSet(n *ir.Tuple, inner *rel.SelectStmt) (*lowered, error) {
	elems := make([]rel.TupleVarElement, len(n.Elements))
	for i, el := range n.Elements {
		v, err := CompileExpr(c, el.Value)
		if err != nil {
			return nil, err
		}
		name := el.Name
		if name == "" {
			name = fmt.Sprintf("%d", i)
		}
		elems[i] = rel.TupleVarElement{Name: name, Value: v}
	}
	tv := &rel.TupleVar{Elements: elems}
	return c.wrapScalarAsSubselect(inner, tv, "tup")
}

// lowerTupleIndirectionSet lowers the tuple Set and returns the named
// element as the value, per §4.7's "Tuple indirection" row.
func (c *Compiler) lowerTupleIndirectionSet(n *ir.TupleIndirection, inner *rel.SelectStmt) (*lowered, error) {
	expr, err := compileTupleIndirection(c, n)
	if err != nil {
		return nil, err
	}
	return c.wrapScalarAsSubselect(inner, expr, "ti")
}

// lowerScalarAsRel handles any other expression that reaches the
// dispatcher as a Set's Expr (§4.7's "Other expressions -> expression
// compiler" row): compile via the expression compiler and wrap as a
// one-row projection.
func (c *Compiler) lowerScalarAsRel(s *ir.Set, expr ir.Node, inner *rel.SelectStmt) (*lowered, error) {
	value, err := CompileExpr(c, expr)
	if err != nil {
		return nil, err
	}
	return c.wrapScalarAsSubselect(inner, value, "v")
}

// wrapScalarAsSubselect appends value to stmt's target list and wraps stmt
// as a RangeSubselect under a fresh alias, the shape every scalar-producing
// handler above shares.
func (c *Compiler) wrapScalarAsSubselect(stmt *rel.SelectStmt, value rel.Expr, hint string) (*lowered, error) {
	stmt.TargetList = append(stmt.TargetList, rel.TargetEntry{Expr: value, Alias: "value"})
	return c.wrapStmtAsSubselect(stmt, hint)
}

// wrapStmtAsSubselect wraps an already-fully-built statement (with its own
// "value"-aliased target entry) as a RangeSubselect under a fresh alias.
func (c *Compiler) wrapStmtAsSubselect(stmt *rel.SelectStmt, hint string) (*lowered, error) {
	alias := c.Env.NextAlias(hint)
	sub := &rel.RangeSubselect{Alias: alias, Subquery: stmt}
	valueCol := &rel.ColumnRef{RVar: alias, Column: "value"}
	return &lowered{rel: sub, value: valueCol, identity: valueCol}, nil
}

// setAspects records a path's value/identity output in the current frame's
// PathCtx.
func (c *Compiler) setAspects(id pathid.PathID, value, identity rel.Expr, nullable bool) {
	if nullable {
		value = setNullable(value, true)
	}
	c.Paths().PutPathVar(id, ValueAspect, value)
	c.Paths().PutPathVar(id, IdentityAspect, identity)
}

// rangeForSet handles the "plain root (no expr, no rptr)" row: the rvar
// for a bare object-type root, as `range_for_set` produces in the
// original.
func (c *Compiler) rangeForSet(s *ir.Set) (*lowered, error) {
	typeRef := s.PathID.Root()
	obj, ok := c.Env.Schema.Get(typeRef.QualName)
	if !ok {
		return nil, relqlerrors.ErrUnknownReference.New(typeRef.QualName)
	}
	objType, ok := obj.(schema.ObjectType)
	if !ok {
		return nil, relqlerrors.ErrUnknownReference.New(typeRef.QualName)
	}
	material := c.Env.Schema.MaterialType(objType)
	alias := c.Env.NextAlias(pathIDHint(s.PathID))
	table := strings.ToLower(shortName(material.QualName()))
	rv := &rel.RangeVar{Relation: table, Alias: alias}
	idCol := &rel.ColumnRef{RVar: alias, Column: "id"}
	return &lowered{rel: rv, value: idCol, identity: idCol}, nil
}

// pointerStub adapts ir.PointerInfo to schema.Pointer for calls into
// Schema that only need the IR-level pointer summary, mirroring
// cardinality.schemaPointerStub (duplicated per-package rather than
// shared, consistent with the rest of the codebase).
type pointerStub struct{ info ir.PointerInfo }

func (p pointerStub) QualName() string       { return p.info.Ref.QualName }
func (p pointerStub) Ref() pathid.PointerRef { return p.info.Ref }

// lowerPath implements §4.7.1: plain pointer navigation (rptr is set, no
// expr). It operates directly on the current (caller's) frame: a path
// navigation never needs its own derived table, only an additional join.
func (c *Compiler) lowerPath(s *ir.Set) (*lowered, error) {
	rptr := s.RPtr
	ptr := pointerStub{rptr.Ptrcls}

	// The source is already lowered iff its identity aspect is bound in the
	// current frame's PathCtx; consulting the ScopeTree here would be wrong
	// for the common case of a plain, unscoped Set (buildScopeTree attaches
	// a node only for Sets that open a scope of their own, per §4.2/§4.7).
	if _, ok := c.Paths().MaybeGetPathOutput(rptr.Source.PathID, IdentityAspect); !ok {
		if _, err := c.GetSetRVar(rptr.Source); err != nil {
			return nil, err
		}
	}

	table, tableType, column, _, ok := c.Env.Schema.Storage(ptr)
	if !ok {
		return nil, relqlerrors.ErrInternalLookupFailure.New(rptr.Ptrcls.Ref.QualName, "storage")
	}

	sourceIdentity, err := c.Paths().GetPathOutput(rptr.Source.PathID, IdentityAspect)
	if err != nil {
		return nil, err
	}

	isObjectTarget := rptr.Ptrcls.Target.QualName != "" && !isScalarTypeName(rptr.Ptrcls.Target.QualName)

	if tableType == schema.ObjectTypeTable {
		// Inline: the pointer's value lives on the source's own row, under
		// the source's already-bound alias.
		sourceAlias := refAlias(sourceIdentity)
		valueCol := &rel.ColumnRef{RVar: sourceAlias, Column: column}
		return &lowered{rel: nil, value: valueCol, identity: valueCol}, nil
	}

	// Link (mapping) table: emit the pointer rvar via both source and
	// target columns.
	linkAlias := c.Env.NextAlias("l")
	linkRV := &rel.RangeVar{Relation: table, Alias: linkAlias}
	joinCond := &rel.OpExpr{Op: "=", Left: sourceIdentity, Right: &rel.ColumnRef{RVar: linkAlias, Column: "source"}}
	c.Rels().RelJoin(linkRV, joinCond, rel.InnerJoin)

	targetCol := &rel.ColumnRef{RVar: linkAlias, Column: "target"}

	if rptr.Ptrcls.IsLinkProperty {
		propCol := &rel.ColumnRef{RVar: linkAlias, Column: column}
		return &lowered{rel: nil, value: propCol, identity: propCol}, nil
	}

	if !isObjectTarget {
		return &lowered{rel: nil, value: targetCol, identity: targetCol}, nil
	}

	targetTable := shortName(rptr.Ptrcls.Target.QualName)
	targetAlias := c.Env.NextAlias(shortName(rptr.Ptrcls.Target.QualName))
	targetRV := &rel.RangeVar{Relation: targetTable, Alias: targetAlias}
	targetJoin := &rel.OpExpr{Op: "=", Left: targetCol, Right: &rel.ColumnRef{RVar: targetAlias, Column: "id"}}
	c.Rels().RelJoin(targetRV, targetJoin, rel.InnerJoin)

	idCol := &rel.ColumnRef{RVar: targetAlias, Column: "id"}
	return &lowered{rel: nil, value: idCol, identity: idCol}, nil
}

// refAlias extracts the range-variable alias a ColumnRef addresses;
// lowerPath uses it to reuse the source path's already-bound alias for an
// inline pointer rather than minting a redundant one.
func refAlias(e rel.Expr) string {
	if cr, ok := e.(*rel.ColumnRef); ok {
		return cr.RVar
	}
	return ""
}

// isScalarTypeName is a conservative check used only to decide whether a
// pointer target needs a further target-table join (object) or not
// (scalar): every std:: type is treated as scalar, matching the schema
// naming convention the rest of the core assumes.
func isScalarTypeName(qualName string) bool {
	return len(qualName) >= 5 && qualName[:5] == "std::"
}

// lowerCallSet dispatches a function/aggregate call reached as a Set's own
// Expr (§4.7.3). Only std::array_enumerate becomes a range entry (a
// RangeVar with declared columns, since rel has no dedicated RangeFunction
// node), with its WITH ORDINALITY index column patched to zero-based; every
// other call, set-returning or not, is projected as the value of a
// subselect. Aggregate calls with a non-empty initial value are wrapped in
// COALESCE(agg, iv).
func (c *Compiler) lowerCallSet(s *ir.Set, n *ir.OpCall, inner *rel.SelectStmt) (*lowered, error) {
	if alias, identity, ok := c.Env.TopVolatilityRef(); ok && !n.IsAggregate {
		// Inject the enclosing source row's identity as a volatility
		// reference (§4.7.3) so a volatile function call is correlated
		// per-source-row rather than hoisted out once.
		valuesAlias := c.Env.NextAlias("volref")
		vr := &rel.ValuesRangeVar{Alias: valuesAlias, Columns: []string{"id"}, Rows: []rel.ValuesRow{
			{Values: []rel.Expr{identity}},
		}}
		cond := &rel.OpExpr{Op: "=", Left: &rel.ColumnRef{RVar: alias, Column: "id"}, Right: &rel.ColumnRef{RVar: valuesAlias, Column: "id"}}
		c.Rels().RelJoin(vr, cond, rel.InnerJoin)
	}

	call, err := compileOpCall(c, n, false)
	if err != nil {
		return nil, err
	}

	if n.Name == "std::array_enumerate" {
		if fc, ok := call.(*rel.FuncCall); ok {
			fc.WithOrdinality = true
			return c.lowerArrayEnumerate(fc)
		}
	}

	if n.IsAggregate && n.InitialValue != nil {
		iv, err := CompileExpr(c, n.InitialValue)
		if err != nil {
			return nil, err
		}
		call = &rel.CoalesceExpr{Args: []rel.Expr{call, iv}}
	}

	return c.wrapScalarAsSubselect(inner, call, "fn")
}

// lowerArrayEnumerate implements §4.7.3's zero-basing patch for
// std::array_enumerate's WITH ORDINALITY index column: Postgres's WITH
// ORDINALITY numbers from 1, but the source language's array_enumerate
// yields 0-based indices, so the ordinality column is emitted as
// `ordinality - 1`.
func (c *Compiler) lowerArrayEnumerate(fc *rel.FuncCall) (*lowered, error) {
	alias := c.Env.NextAlias("ae")
	// The actual FuncCall-as-range-function rendering is a backend-codegen
	// concern outside this core (rel has no RangeFunction node); its shape
	// is recorded here via Columns so downstream codegen knows what this
	// RangeVar stands for.
	rv := &rel.RangeVar{Relation: fc.Name, Alias: alias, Columns: []string{"value", "ordinality"}}
	ordinalCol := &rel.ColumnRef{RVar: alias, Column: "ordinality"}
	zeroBased := &rel.OpExpr{Op: "-", Left: ordinalCol, Right: literalInt(1)}
	valueCol := &rel.ColumnRef{RVar: alias, Column: "value"}
	tv := &rel.TupleVar{Elements: []rel.TupleVarElement{
		{Name: "0", Value: zeroBased},
		{Name: "1", Value: valueCol},
	}}
	return &lowered{rel: rv, value: tv, identity: tv}, nil
}
