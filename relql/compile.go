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

// Package relql is the top-level entry point (spec §6): Compile takes an
// elaborated IR tree and a Schema and produces the compiled relational
// Tree, wiring cardinality inference, the ScopeTree, and the set-lowering
// dispatcher together the way the teacher's engine.go's QueryWithBindings
// wires the parser, analyzer, and executor behind one call.
package relql

import (
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"

	"github.com/relql/relql/compiler"
	"github.com/relql/relql/ir"
	"github.com/relql/relql/rel"
	"github.com/relql/relql/relqlerrors"
	"github.com/relql/relql/schema"
	"github.com/relql/relql/scopetree"
)

// OutputFormat selects how Compile packages the compiled statement's
// final row shape (spec §6). Re-exported from package compiler since
// CompileOptions, not compiler.Options, is this package's public surface.
type OutputFormat = compiler.OutputFormat

const (
	NativeOutput = compiler.NativeOutput
	JSONOutput   = compiler.JSONOutput
)

// CompileOptions configures a single Compile call (spec §6): output
// packaging, whether to skip shape serialization entirely, whether to
// assume the query root is already a singleton, and whether bind
// parameters are addressed by name or ordinal. SingletonMode is passed
// through to compiler.Options, but no lowering code reads it, so it does
// not change the compiled tree.
type CompileOptions struct {
	OutputFormat   OutputFormat
	IgnoreShapes   bool
	SingletonMode  bool
	UseNamedParams bool
	Logger         *logrus.Entry
	Tracer         opentracing.Tracer
}

func (o CompileOptions) toCompilerOptions() compiler.Options {
	return compiler.Options{
		OutputFormat:   o.OutputFormat,
		IgnoreShapes:   o.IgnoreShapes,
		SingletonMode:  o.SingletonMode,
		UseNamedParams: o.UseNamedParams,
		Logger:         o.Logger,
		Tracer:         o.Tracer,
	}
}

// Compile lowers an elaborated IR tree onto the relational IR (spec §6):
// cardinality inference and the set-lowering dispatcher share the single
// Environment/Compiler this call builds, and the result is a rel.Tree
// whose ArgMap binds every named parameter encountered to a stable
// ordinal.
func Compile(tree ir.Node, sch schema.Schema, opts CompileOptions) (*rel.Tree, error) {
	root, ok := tree.(*ir.Set)
	if !ok {
		return nil, relqlerrors.ErrInternalLookupFailure.New("ir.Node", "query root (*ir.Set)")
	}

	env := compiler.NewEnvironment(sch, opts.toCompilerOptions())
	defer env.Finish()

	buildScopeTree(root, env.Scopes, env.Scopes.Root)

	c := compiler.NewCompiler(env)
	pop := c.PushStmt(&rel.SelectStmt{}, env.Scopes.Root)
	defer pop()

	// GetSetRVar includes the root's relation in the current statement's
	// FROM list itself (registerAspects), so it is not appended again here.
	if _, err := c.GetSetRVar(root); err != nil {
		return nil, err
	}

	resultExpr, err := c.Paths().GetPathVar(root.PathID)
	if err != nil {
		return nil, compiler.WrapQueryError(err, root)
	}
	stmt := c.Stmt()
	alias := "value"
	if root.Shape != nil {
		if serialized, ok := c.Paths().MaybeGetPathOutput(root.PathID, compiler.SerializedAspect); ok {
			resultExpr = serialized
			alias = "result"
		}
	}
	stmt.TargetList = append(stmt.TargetList, rel.TargetEntry{Expr: resultExpr, Alias: alias})

	return &rel.Tree{Statement: stmt, ArgMap: env.ArgMap()}, nil
}

// buildScopeTree is a minimal elaboration pass (spec §5's "elaboration
// pass that runs before lowering"): it walks the IR tree once, attaching
// a ScopeTree branch for every Set that opens a scope (ScopeID != "") so
// the lowering dispatcher's FindVisible/FindByUniqueID calls have a real
// tree to consult. It does not attempt the original implementation's full
// fence-vs-branch/correlation analysis (WITH-block and SET-OF-argument
// fencing); those are approximated by the dispatcher itself treating every
// non-path, non-root Set as its own derived subquery (see relgen.go),
// which already isolates SET-OF argument evaluation without needing a
// dedicated Fence node per call site.
func buildScopeTree(node ir.Node, tree *scopetree.Tree, parent *scopetree.Node) {
	switch n := node.(type) {
	case nil:
		return

	case *ir.Set:
		if n == nil {
			return
		}
		scope := parent
		if n.ScopeID != "" {
			scope = &scopetree.Node{Kind: scopetree.Branch, UniqueID: n.ScopeID}
			tree.AttachChild(parent, scope)
		}
		buildScopeTree(n.Expr, tree, scope)
		if n.RPtr != nil {
			buildScopeTree(n.RPtr.Source, tree, parent)
		}
		if n.Shape != nil {
			for _, el := range n.Shape.Elements {
				buildScopeTree(el.Value, tree, scope)
			}
		}

	case *ir.SelectStmt:
		buildScopeTree(n.Iterator, tree, parent)
		buildScopeTree(n.Result, tree, parent)
		buildScopeTree(n.Where, tree, parent)
		buildScopeTree(n.Having, tree, parent)
		buildScopeTree(n.Offset, tree, parent)
		buildScopeTree(n.Limit, tree, parent)
		for _, g := range n.GroupBy {
			buildScopeTree(g, tree, parent)
		}
		for _, o := range n.OrderBy {
			buildScopeTree(o.Expr, tree, parent)
		}

	case *ir.InsertStmt:
		buildScopeTree(n.Subject, tree, parent)
		buildScopeTree(n.Iterator, tree, parent)

	case *ir.UpdateStmt:
		buildScopeTree(n.Subject, tree, parent)
		buildScopeTree(n.Iterator, tree, parent)
		buildScopeTree(n.Where, tree, parent)

	case *ir.DeleteStmt:
		buildScopeTree(n.Subject, tree, parent)
		buildScopeTree(n.Iterator, tree, parent)
		buildScopeTree(n.Where, tree, parent)

	case *ir.OpCall:
		for _, a := range n.Args {
			buildScopeTree(a.Value, tree, parent)
		}
		buildScopeTree(n.InitialValue, tree, parent)

	case *ir.IfElse:
		buildScopeTree(n.Cond, tree, parent)
		buildScopeTree(n.IfExpr, tree, parent)
		buildScopeTree(n.ElseExpr, tree, parent)

	case *ir.Coalesce:
		buildScopeTree(n.Left, tree, parent)
		buildScopeTree(n.Right, tree, parent)

	case *ir.Distinct:
		buildScopeTree(n.Inner, tree, parent)

	case *ir.Exists:
		buildScopeTree(n.Inner, tree, parent)

	case *ir.SetOpUnion:
		buildScopeTree(n.Left, tree, parent)
		buildScopeTree(n.Right, tree, parent)

	case *ir.Membership:
		buildScopeTree(n.Left, tree, parent)
		buildScopeTree(n.Right, tree, parent)

	case *ir.Equivalence:
		buildScopeTree(n.Left, tree, parent)
		buildScopeTree(n.Right, tree, parent)

	case *ir.TypeCheckOp:
		buildScopeTree(n.Left, tree, parent)

	case *ir.TypeCast:
		buildScopeTree(n.Inner, tree, parent)

	case *ir.Array:
		for _, e := range n.Elements {
			buildScopeTree(e, tree, parent)
		}

	case *ir.Tuple:
		for _, el := range n.Elements {
			buildScopeTree(el.Value, tree, parent)
		}

	case *ir.TupleIndirection:
		buildScopeTree(n.Tuple, tree, parent)

	case *ir.IndexIndirection:
		buildScopeTree(n.Operand, tree, parent)
		buildScopeTree(n.Index, tree, parent)

	case *ir.SliceIndirection:
		buildScopeTree(n.Operand, tree, parent)
		buildScopeTree(n.Lower, tree, parent)
		buildScopeTree(n.Upper, tree, parent)

	default:
		// Constant, Parameter, EmptySet: leaves, nothing to recurse into.
	}
}
