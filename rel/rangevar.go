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

import "github.com/relql/relql/pathid"

// Relation is implemented by every FROM-clause entry: a plain table
// reference, a subselect, a VALUES list, or a join combining two others.
type Relation interface {
	relationNode()
}

// JoinType names the join kind a JoinExpr performs.
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
	FullJoin
)

// Bond carries path-context bookkeeping attached to a range variable: the
// PathId it was introduced for, the namespace live at the point it was
// bound, and per-aspect output expressions keyed by aspect name
// ("identity", "value", "serialized", "source" — spec §3.5). This is the
// Go shape of the teacher-absent path_rvar_map/path_namespace/path_outputs
// bookkeeping spec §4.5/§4.6 describe; compiler.PathCtx is the only code
// that mutates it.
type Bond struct {
	PathID      pathid.PathID
	Namespace   pathid.Namespace
	Outputs     map[string]Expr // aspect -> output expression
	Optional    bool
}

// RangeVar is a plain table (or CTE) reference in a FROM clause.
type RangeVar struct {
	Relation string // table or CTE name
	Alias    string
	Columns  []string // column names, in storage order, if known

	// Bonds lists every PathId this range variable provides an output
	// for, in the order they were bound. A RangeVar can serve more than
	// one Bond when several paths share a single table row (e.g. an
	// object type's own properties share its base rvar).
	Bonds []*Bond
}

func (*RangeVar) relationNode() {}

// RangeSubselect is a derived table: FROM (SELECT ...) AS alias.
type RangeSubselect struct {
	Alias    string
	Columns  []string
	Lateral  bool
	Subquery *SelectStmt
	Bonds    []*Bond
}

func (*RangeSubselect) relationNode() {}

// ValuesRow is one row of a VALUES range variable.
type ValuesRow struct {
	Values []Expr
}

// ValuesRangeVar is a literal VALUES(...) used as a range variable, as
// emitted by volatility-reference injection (spec §4.7.3) to correlate a
// volatile function call with its enclosing source row.
type ValuesRangeVar struct {
	Alias   string
	Columns []string
	Rows    []ValuesRow
	Bonds   []*Bond
}

func (*ValuesRangeVar) relationNode() {}

// JoinExpr combines two relations. Semi marks a semi-join (EXISTS-shaped:
// only Left's columns are exposed, Right is used for filtering only),
// produced by relctx.SemiJoin (spec §4.6).
type JoinExpr struct {
	Type      JoinType
	Left      Relation
	Right     Relation
	Condition Expr
	Semi      bool
}

func (*JoinExpr) relationNode() {}
