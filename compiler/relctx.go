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
	"github.com/relql/relql/pathid"
	"github.com/relql/relql/rel"
	"github.com/relql/relql/scopetree"
)

// RelCtx manages the FROM clause of the statement currently under
// construction: which range variables are included, how new ones join in,
// and the bookkeeping relgen.go needs to decide semi-join vs. direct join
// (spec §4.6).
type RelCtx struct {
	env   *Environment
	stmt  *rel.SelectStmt
	paths *PathCtx
}

// NewRelCtx creates a relation context for stmt, sharing paths for output
// bookkeeping.
func NewRelCtx(env *Environment, stmt *rel.SelectStmt, paths *PathCtx) *RelCtx {
	return &RelCtx{env: env, stmt: stmt, paths: paths}
}

// IncludeRVar appends rv to the statement's FROM list (as a bare relation
// if this is the first entry, or cross-joined with the rest otherwise is
// left to RelJoin) and records id's bond against it.
func (c *RelCtx) IncludeRVar(id pathid.PathID, rv rel.Relation, alias string, ns pathid.Namespace) {
	parent := topRelation(c.stmt)
	c.stmt.From = append(c.stmt.From, rv)
	c.paths.PutPathBond(id, alias, ns)
	if parent != nil {
		c.env.RecordParentRelation(rv, parent)
	}
}

// RelJoin joins newRel into the FROM clause under condition, replacing the
// last-added relation with the join combining it and newRel. It is the
// ordinary (non-semi) traversal join: pointer navigation, shape element
// relations, anything whose right side contributes output columns.
func (c *RelCtx) RelJoin(newRel rel.Relation, condition rel.Expr, typ rel.JoinType) {
	if len(c.stmt.From) == 0 {
		c.stmt.From = []rel.Relation{newRel}
		return
	}
	last := c.stmt.From[len(c.stmt.From)-1]
	join := &rel.JoinExpr{Type: typ, Left: last, Right: newRel, Condition: condition}
	c.stmt.From[len(c.stmt.From)-1] = join
	c.env.RecordParentRelation(newRel, last)
}

// SemiJoin joins newRel in for filtering purposes only (EXISTS-shaped: no
// output column of newRel becomes visible), per spec §4.6's semi-join
// rule. No lowering code in this package calls it.
func (c *RelCtx) SemiJoin(newRel rel.Relation, condition rel.Expr) {
	if len(c.stmt.From) == 0 {
		c.stmt.From = []rel.Relation{newRel}
		return
	}
	last := c.stmt.From[len(c.stmt.From)-1]
	join := &rel.JoinExpr{Type: rel.InnerJoin, Left: last, Right: newRel, Condition: condition, Semi: true}
	c.stmt.From[len(c.stmt.From)-1] = join
	c.env.RecordParentRelation(newRel, last)
}

// UpdateScope re-homes id's visible binding in the ScopeTree to node,
// used after a subquery pull-up promotes a path node out of a nested
// fence (spec §4.6, mirroring scopetree.AttachSubtree's promotion step
// for the relational side of the same operation).
func (c *RelCtx) UpdateScope(scope *scopetree.Node, id pathid.PathID) {
	c.env.Scopes.MarkAsOptional(scope, id)
}

// topRelation returns stmt's current sole top-level FROM relation (after
// all joins so far have collapsed it to one entry), or nil if empty.
func topRelation(stmt *rel.SelectStmt) rel.Relation {
	if len(stmt.From) == 0 {
		return nil
	}
	return stmt.From[len(stmt.From)-1]
}
