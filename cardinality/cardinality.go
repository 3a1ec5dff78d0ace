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

// Package cardinality implements the dispatch-on-node-kind inference pass
// producing ONE or MANY per IR expression (spec §3.3/§4.3), with a
// per-(node, scope) memo. The lowering dispatcher consults these results to
// decide, among other things, whether a sub-relation needs OptionalRel
// wrapping.
package cardinality

import (
	"github.com/relql/relql/ir"
	"github.com/relql/relql/pathid"
	"github.com/relql/relql/relqlerrors"
	"github.com/relql/relql/schema"
	"github.com/relql/relql/scopetree"
)

// Cardinality is the coarse ONE/MANY lattice this pass computes. ONE is the
// bottom element: max(ONE, ONE) = ONE, max(ONE, MANY) = max(MANY, ONE) =
// MANY.
type Cardinality int

const (
	ONE Cardinality = iota
	MANY
)

// Max implements the "max treats ONE as bottom, MANY as top" rule used
// throughout §4.3.
func Max(a, b Cardinality) Cardinality {
	if a == MANY || b == MANY {
		return MANY
	}
	return ONE
}

// MaxAll folds Max over a slice, defaulting to ONE for an empty slice.
func MaxAll(cs ...Cardinality) Cardinality {
	out := ONE
	for _, c := range cs {
		out = Max(out, c)
	}
	return out
}

// key is the memoization key: (expr, scope).
type key struct {
	node  ir.NodeID
	scope string
}

// Memo holds the per-(node, scope) cardinality cache described in §4.3.
// Per §9, this is a side table keyed by node identity rather than an
// attribute mutated onto IR nodes.
type Memo struct {
	m map[key]Cardinality
}

// NewMemo creates an empty memo.
func NewMemo() *Memo { return &Memo{m: make(map[key]Cardinality)} }

func (m *Memo) get(n ir.Node, scope *scopetree.Node) (Cardinality, bool) {
	c, ok := m.m[memoKey(n, scope)]
	return c, ok
}

func (m *Memo) put(n ir.Node, scope *scopetree.Node, c Cardinality) {
	m.m[memoKey(n, scope)] = c
}

func memoKey(n ir.Node, scope *scopetree.Node) key {
	scopeID := ""
	if scope != nil {
		scopeID = scope.UniqueID
	}
	var id ir.NodeID
	if n != nil {
		id = n.ID()
	}
	return key{node: id, scope: scopeID}
}

// Inferrer carries the side tables the inference pass needs: the schema
// (for pointer singularity/exclusivity), the scope tree (for "already
// visible" Set detection and for resolving a Set's child scope), and the
// memo.
type Inferrer struct {
	Schema schema.Schema
	Tree   *scopetree.Tree
	Memo   *Memo
}

// NewInferrer builds an Inferrer sharing a fresh memo.
func NewInferrer(sch schema.Schema, tree *scopetree.Tree) *Inferrer {
	return &Inferrer{Schema: sch, Tree: tree, Memo: NewMemo()}
}

// Infer computes the cardinality of node as observed from scope (the
// ScopeTree node representing the lexical point node is evaluated at; may
// be nil for context-free leaves).
func (inf *Inferrer) Infer(node ir.Node, scope *scopetree.Node) (Cardinality, error) {
	if node == nil {
		return ONE, nil
	}
	if c, ok := inf.Memo.get(node, scope); ok {
		return c, nil
	}
	c, err := inf.infer(node, scope)
	if err != nil {
		return 0, err
	}
	inf.Memo.put(node, scope, c)
	return c, nil
}

func (inf *Inferrer) infer(node ir.Node, scope *scopetree.Node) (Cardinality, error) {
	switch n := node.(type) {
	case *ir.EmptySet, *ir.Constant, *ir.Parameter:
		return ONE, nil

	case *ir.Set:
		return inf.inferSet(n, scope)

	case *ir.OpCall:
		return inf.inferOpCall(n, scope)

	case *ir.IfElse:
		cond, err := inf.Infer(n.Cond, scope)
		if err != nil {
			return 0, err
		}
		a, err := inf.Infer(n.IfExpr, scope)
		if err != nil {
			return 0, err
		}
		b, err := inf.Infer(n.ElseExpr, scope)
		if err != nil {
			return 0, err
		}
		return MaxAll(cond, a, b), nil

	case *ir.Coalesce:
		l, err := inf.Infer(n.Left, scope)
		if err != nil {
			return 0, err
		}
		r, err := inf.Infer(n.Right, scope)
		if err != nil {
			return 0, err
		}
		return Max(l, r), nil

	case *ir.IndexIndirection:
		a, err := inf.Infer(n.Operand, scope)
		if err != nil {
			return 0, err
		}
		b, err := inf.Infer(n.Index, scope)
		if err != nil {
			return 0, err
		}
		return Max(a, b), nil

	case *ir.SliceIndirection:
		a, err := inf.Infer(n.Operand, scope)
		if err != nil {
			return 0, err
		}
		l, err := inf.Infer(n.Lower, scope)
		if err != nil {
			return 0, err
		}
		u, err := inf.Infer(n.Upper, scope)
		if err != nil {
			return 0, err
		}
		return MaxAll(a, l, u), nil

	case *ir.SetOpUnion:
		l, err := inf.Infer(n.Left, scope)
		if err != nil {
			return 0, err
		}
		r, err := inf.Infer(n.Right, scope)
		if err != nil {
			return 0, err
		}
		if !n.Exclusive {
			return MANY, nil
		}
		return Max(l, r), nil

	case *ir.Distinct:
		return inf.Infer(n.Inner, scope)

	case *ir.Exists, *ir.Membership:
		return ONE, nil

	case *ir.TypeCheckOp:
		return inf.Infer(n.Left, scope)

	case *ir.TypeCast:
		return inf.Infer(n.Inner, scope)

	case *ir.Equivalence:
		l, err := inf.Infer(n.Left, scope)
		if err != nil {
			return 0, err
		}
		r, err := inf.Infer(n.Right, scope)
		if err != nil {
			return 0, err
		}
		return Max(l, r), nil

	case *ir.Array:
		return inf.inferAll(scope, n.Elements...)

	case *ir.Tuple:
		vals := make([]ir.Node, len(n.Elements))
		for i, e := range n.Elements {
			vals[i] = e.Value
		}
		return inf.inferAll(scope, vals...)

	case *ir.TupleIndirection:
		return inf.Infer(n.Tuple, scope)

	case *ir.SelectStmt:
		return inf.inferSelect(n, scope)

	case *ir.InsertStmt:
		if n.Iterator != nil {
			return inf.Infer(n.Iterator, scope)
		}
		return ONE, nil

	case *ir.UpdateStmt:
		return inf.inferUpdateDelete(n.Where, n.Iterator, scope)

	case *ir.DeleteStmt:
		return inf.inferUpdateDelete(n.Where, n.Iterator, scope)

	default:
		return 0, relqlerrors.ErrAmbiguousCardinality.New()
	}
}

func (inf *Inferrer) inferAll(scope *scopetree.Node, nodes ...ir.Node) (Cardinality, error) {
	out := ONE
	for _, nd := range nodes {
		c, err := inf.Infer(nd, scope)
		if err != nil {
			return 0, err
		}
		out = Max(out, c)
	}
	return out, nil
}

func (inf *Inferrer) inferSet(n *ir.Set, scope *scopetree.Node) (Cardinality, error) {
	if n.RPtr != nil {
		// A Set whose path is already visible at the parent fence is a
		// reference, not a traversal: ONE.
		if scope != nil && inf.Tree != nil {
			if inf.Tree.FindVisible(scope, n.PathID) != nil {
				return ONE, nil
			}
		}
		if inf.Schema.Singular(schemaPointerStub{n.RPtr.Ptrcls}, n.RPtr.Direction) {
			return inf.Infer(n.RPtr.Source, scope)
		}
		return MANY, nil
	}
	if n.Expr != nil {
		childScope := scope
		if n.ScopeID != "" && inf.Tree != nil {
			if s := inf.Tree.FindByUniqueID(n.ScopeID); s != nil {
				childScope = s
			}
		}
		return inf.Infer(n.Expr, childScope)
	}
	return ONE, nil
}

// schemaPointerStub adapts an ir.PointerInfo to schema.Pointer when the
// caller only has the IR-level pointer summary on hand (no schema.Pointer
// lookup performed yet). Cardinality inference only ever has the IR's view
// of the pointer; the lowering code uses its own equivalent adapter
// (compiler.pointerStub).
type schemaPointerStub struct{ info ir.PointerInfo }

func (s schemaPointerStub) QualName() string      { return s.info.Ref.QualName }
func (s schemaPointerStub) Ref() pathid.PointerRef { return s.info.Ref }

func (inf *Inferrer) inferOpCall(n *ir.OpCall, scope *scopetree.Node) (Cardinality, error) {
	if n.ResultTypeMod == ir.SetOfArg {
		return MANY, nil
	}
	out := ONE
	for _, arg := range n.Args {
		if arg.TypeMod == ir.SetOfArg {
			continue // SET-OF args do not broaden cardinality
		}
		c, err := inf.Infer(arg.Value, scope)
		if err != nil {
			return 0, err
		}
		out = Max(out, c)
	}
	return out, nil
}

func (inf *Inferrer) inferSelect(n *ir.SelectStmt, scope *scopetree.Node) (Cardinality, error) {
	if isLiteralOne(n.Limit) {
		return ONE, nil
	}

	base, err := inf.Infer(n.Result, scope)
	if err != nil {
		return 0, err
	}
	if n.Where != nil {
		if inf.analyseFilterClause(n.Result, n.Where) {
			base = ONE
		} else {
			whereCard, err := inf.Infer(n.Where, scope)
			if err != nil {
				return 0, err
			}
			base = Max(base, whereCard)
		}
	}
	if n.Iterator != nil {
		iterCard, err := inf.Infer(n.Iterator, scope)
		if err != nil {
			return 0, err
		}
		base = Max(base, iterCard)
	}
	return base, nil
}

func (inf *Inferrer) inferUpdateDelete(where ir.Node, iterator *ir.Set, scope *scopetree.Node) (Cardinality, error) {
	base := ONE
	if where != nil {
		c, err := inf.Infer(where, scope)
		if err != nil {
			return 0, err
		}
		base = Max(base, c)
	}
	if iterator != nil {
		c, err := inf.Infer(iterator, scope)
		if err != nil {
			return 0, err
		}
		base = Max(base, c)
	}
	return base, nil
}

func isLiteralOne(n ir.Node) bool {
	c, ok := n.(*ir.Constant)
	if !ok {
		return false
	}
	switch v := c.Value.(type) {
	case int:
		return v == 1
	case int64:
		return v == 1
	}
	return false
}

// analyseFilterClause walks a conjunction of equality checks (an OpCall
// named "and" nesting OpCall "=" leaves) looking for `left = right` where
// one side is a path off result (including the implicit id of an object
// path) and the other side is ONE. If any matched pointer is the id
// pointer or carries the exclusive constraint, the statement is ONE
// (spec §4.3).
func (inf *Inferrer) analyseFilterClause(result ir.Node, filter ir.Node) bool {
	for _, eq := range flattenAnd(filter) {
		call, ok := eq.(*ir.OpCall)
		if !ok || call.Name != "=" || len(call.Args) != 2 {
			continue
		}
		left, right := call.Args[0].Value, call.Args[1].Value
		if inf.matchesUniqueFilter(result, left, right) || inf.matchesUniqueFilter(result, right, left) {
			return true
		}
	}
	return false
}

func (inf *Inferrer) matchesUniqueFilter(result ir.Node, pathSide, valueSide ir.Node) bool {
	resultSet, ok := result.(*ir.Set)
	if !ok {
		return false
	}
	set, ok := pathSide.(*ir.Set)
	if !ok {
		return false
	}
	if c, err := inf.Infer(valueSide, nil); err != nil || c != ONE {
		return false
	}
	if set.RPtr == nil {
		// result itself compared to a value: its implicit id.
		return set.PathID.Equals(resultSet.PathID)
	}
	if set.RPtr.Source == nil || !set.RPtr.Source.PathID.Equals(resultSet.PathID) {
		return false
	}
	ptr := set.RPtr.Ptrcls
	return inf.Schema.IsIDPointer(schemaPointerStub{ptr}) || inf.Schema.IsExclusive(schemaPointerStub{ptr})
}

func flattenAnd(n ir.Node) []ir.Node {
	call, ok := n.(*ir.OpCall)
	if !ok || call.Name != "and" || len(call.Args) != 2 {
		return []ir.Node{n}
	}
	out := flattenAnd(call.Args[0].Value)
	out = append(out, flattenAnd(call.Args[1].Value)...)
	return out
}
