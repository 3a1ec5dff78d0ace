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
	"github.com/relql/relql/ir"
	"github.com/relql/relql/rel"
	"github.com/relql/relql/scopetree"
)

// frame is one scoped context level (spec §5/§9): the relation currently
// being built, the ScopeTree node it corresponds to, the RelCtx/PathCtx
// pair managing it, and whether the current position is "expr_exposed"
// (directly usable as a scalar rather than needing a further subquery
// wrap). Compiler.PushStmt and the pop function it returns restore the
// previous frame on exit regardless
// of how the call returns, the RAII-style guard discipline §9 calls for.
type frame struct {
	stmt        *rel.SelectStmt
	scope       *scopetree.Node
	paths       *PathCtx
	rels        *RelCtx
	exprExposed bool
}

// Compiler holds the Environment plus the push/pop context stack the
// set-lowering dispatcher (relgen.go) and expression/shape compilers
// (expr.go/shape.go) thread through recursive lowering calls. This is the
// Go shape of spec §5's "scoped context (current rel, scope stmt, pending
// query, expr_exposed, volatility ref)" stack, mirroring the teacher's
// Analyzer's scope-threaded rule application (sql/analyzer, mined for
// idiom only; see DESIGN.md).
type Compiler struct {
	Env *Environment

	// rvarCache memoizes, per ScopeTree node UniqueID, the rel.Relation
	// already produced for it, so a repeated reference to the same Set
	// reuses the rvar instead of re-lowering it (spec §4.7 step 1).
	rvarCache map[string]rel.Relation

	stack []*frame
}

// NewCompiler creates a Compiler over env with an empty context stack.
func NewCompiler(env *Environment) *Compiler {
	return &Compiler{Env: env, rvarCache: make(map[string]rel.Relation)}
}

// top returns the innermost active frame, or nil if the stack is empty.
func (c *Compiler) top() *frame {
	if len(c.stack) == 0 {
		return nil
	}
	return c.stack[len(c.stack)-1]
}

// Stmt returns the SelectStmt currently under construction.
func (c *Compiler) Stmt() *rel.SelectStmt {
	if f := c.top(); f != nil {
		return f.stmt
	}
	return nil
}

// Scope returns the ScopeTree node the current frame corresponds to.
func (c *Compiler) Scope() *scopetree.Node {
	if f := c.top(); f != nil {
		return f.scope
	}
	return nil
}

// Paths returns the PathCtx for the current frame.
func (c *Compiler) Paths() *PathCtx {
	if f := c.top(); f != nil {
		return f.paths
	}
	return nil
}

// Rels returns the RelCtx for the current frame.
func (c *Compiler) Rels() *RelCtx {
	if f := c.top(); f != nil {
		return f.rels
	}
	return nil
}

// ExprExposed reports whether the current frame is directly usable as a
// scalar expression context.
func (c *Compiler) ExprExposed() bool {
	if f := c.top(); f != nil {
		return f.exprExposed
	}
	return false
}

// PushStmt enters a new relation scope: a fresh statement, its PathCtx and
// RelCtx, and the ScopeTree node it corresponds to (may be nil for a
// context-free scope). Callers must invoke the returned pop function
// (typically via defer) to restore the previous frame exactly once,
// regardless of how the call returns (spec §5's "on exit, the previous
// context MUST be restored" rule).
func (c *Compiler) PushStmt(stmt *rel.SelectStmt, scope *scopetree.Node) (pop func()) {
	paths := NewPathCtx(c.Env)
	f := &frame{
		stmt:  stmt,
		scope: scope,
		paths: paths,
		rels:  NewRelCtx(c.Env, stmt, paths),
	}
	c.stack = append(c.stack, f)
	return func() {
		if len(c.stack) == 0 {
			return
		}
		c.stack = c.stack[:len(c.stack)-1]
	}
}

// WithExprExposed temporarily sets the current frame's exprExposed flag
// for the duration of fn, restoring the previous value afterward.
func (c *Compiler) WithExprExposed(exposed bool, fn func() error) error {
	f := c.top()
	if f == nil {
		return fn()
	}
	prev := f.exprExposed
	f.exprExposed = exposed
	defer func() { f.exprExposed = prev }()
	return fn()
}

// CachedRVar returns the rvar already produced for a Set carrying
// scopeUniqueID, if any (spec §4.7 step 1).
func (c *Compiler) CachedRVar(scopeUniqueID string) (rel.Relation, bool) {
	if scopeUniqueID == "" {
		return nil, false
	}
	rv, ok := c.rvarCache[scopeUniqueID]
	return rv, ok
}

// CacheRVar records rv as the rvar produced for scopeUniqueID.
func (c *Compiler) CacheRVar(scopeUniqueID string, rv rel.Relation) {
	if scopeUniqueID == "" {
		return
	}
	c.rvarCache[scopeUniqueID] = rv
}

// scopeFor resolves the ScopeTree node a Set's ScopeID names, falling back
// to the current frame's scope when the Set does not open one of its own.
func (c *Compiler) scopeFor(s *ir.Set) *scopetree.Node {
	if s.ScopeID != "" {
		if n := c.Env.Scopes.FindByUniqueID(s.ScopeID); n != nil {
			return n
		}
	}
	return c.Scope()
}
