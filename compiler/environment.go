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

// Package compiler lowers source IR (package ir) onto the relational IR
// (package rel), per spec §4.5-§4.9: path context, relation context, the
// set-lowering dispatcher, and the expression/shape compilers all live
// here, operating on a shared *Environment and *Compiler context stack.
package compiler

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"

	"github.com/relql/relql/cardinality"
	"github.com/relql/relql/pathid"
	"github.com/relql/relql/rel"
	"github.com/relql/relql/schema"
	"github.com/relql/relql/scopetree"
)

// OutputFormat selects how the compiled statement's final row shape is
// packaged (spec §6).
type OutputFormat int

const (
	NativeOutput OutputFormat = iota
	JSONOutput
)

// Options configures a single compilation (spec §6's CompileOptions,
// mirroring the teacher's engine.Config: a plain struct of knobs rather
// than positional bools).
type Options struct {
	OutputFormat   OutputFormat
	IgnoreShapes   bool
	SingletonMode  bool
	UseNamedParams bool
	Logger         *logrus.Entry
	Tracer         opentracing.Tracer
}

// aliasCounters tracks the next free suffix per alias hint ("t", "q", "v",
// ...), giving deterministic, human-readable range-variable names the way
// the teacher's query planner numbers its derived-table aliases.
type aliasCounters struct {
	next map[string]int
}

func newAliasCounters() *aliasCounters {
	return &aliasCounters{next: make(map[string]int)}
}

// Next returns the next unused alias for hint, e.g. "t0", "t1", "t2".
func (a *aliasCounters) Next(hint string) string {
	n := a.next[hint]
	a.next[hint] = n + 1
	return fmt.Sprintf("%s%d", hint, n)
}

// volatilityRef is one entry on the volatility-reference stack: the
// enclosing source range variable a volatile function call must be
// correlated against (spec §4.7.3, supplementing the original's
// ensure_source_rvar handling).
type volatilityRef struct {
	SourceAlias string
	IdentityCol rel.Expr
}

// Environment is the compilation-wide state threaded through every
// lowering call: the alias generator, the cardinality memo, the schema
// collaborator, the scope tree, logging/tracing, and the argument-name
// map the top-level Compile call needs to build rel.Tree.ArgMap.
type Environment struct {
	Options Options
	Schema  schema.Schema
	Scopes  *scopetree.Tree
	Card    *cardinality.Inferrer

	aliases *aliasCounters

	// relHierarchy records, for each produced rel.Relation, the parent
	// relation it was joined beneath (spec §4.6). RelCtx fills it and
	// ParentRelation reads it back; no lowering decision consults it.
	relHierarchy map[rel.Relation]rel.Relation

	volatilityStack []volatilityRef

	// ArgNames preserves first-seen order of named parameters so
	// top-level Compile can build a stable ArgMap.
	ArgNames []string
	argSeen  map[string]int

	Logger *logrus.Entry
	Span   opentracing.Span

	QueryID string
}

// NewEnvironment creates a fresh compilation Environment.
func NewEnvironment(sch schema.Schema, opts Options) *Environment {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	queryID := uuid.New().String()
	logger = logger.WithField("query_id", queryID)

	tree := scopetree.New()
	tree.Logger = logger

	env := &Environment{
		Options:      opts,
		Schema:       sch,
		Scopes:       tree,
		Card:         cardinality.NewInferrer(sch, tree),
		aliases:      newAliasCounters(),
		relHierarchy: make(map[rel.Relation]rel.Relation),
		argSeen:      make(map[string]int),
		Logger:       logger,
		QueryID:      queryID,
	}

	if opts.Tracer != nil {
		env.Span = opts.Tracer.StartSpan("relql.compile")
		env.Span.SetTag("query_id", queryID)
	}

	return env
}

// Finish ends the compilation's tracing span, if one was started.
func (e *Environment) Finish() {
	if e.Span != nil {
		e.Span.Finish()
	}
}

// NextAlias mints the next range-variable alias for hint.
func (e *Environment) NextAlias(hint string) string {
	return e.aliases.Next(hint)
}

// RecordParentRelation records that child was joined beneath parent;
// ParentRelation reads the record back.
func (e *Environment) RecordParentRelation(child, parent rel.Relation) {
	e.relHierarchy[child] = parent
}

// ParentRelation returns the relation r was joined beneath, if recorded.
func (e *Environment) ParentRelation(r rel.Relation) (rel.Relation, bool) {
	p, ok := e.relHierarchy[r]
	return p, ok
}

// Ordinal returns the 1-based bind-parameter ordinal for name, assigning a
// fresh one on first use, and recording it in ArgNames in first-seen
// order so top-level Compile can build rel.Tree.ArgMap.
func (e *Environment) Ordinal(name string) int {
	if n, ok := e.argSeen[name]; ok {
		return n
	}
	n := len(e.ArgNames) + 1
	e.argSeen[name] = n
	e.ArgNames = append(e.ArgNames, name)
	return n
}

// ArgMap builds the name->ordinal map spec §6 calls for.
func (e *Environment) ArgMap() map[string]int {
	out := make(map[string]int, len(e.argSeen))
	for k, v := range e.argSeen {
		out[k] = v
	}
	return out
}

// PushVolatilityRef pushes the current source correlation frame (spec
// §4.7.3); lowering a volatile function call consults TopVolatilityRef to
// decide whether it needs a VALUES-rvar correlation injected.
func (e *Environment) PushVolatilityRef(alias string, identity rel.Expr) {
	e.volatilityStack = append(e.volatilityStack, volatilityRef{SourceAlias: alias, IdentityCol: identity})
}

// PopVolatilityRef undoes the most recent PushVolatilityRef.
func (e *Environment) PopVolatilityRef() {
	if len(e.volatilityStack) == 0 {
		return
	}
	e.volatilityStack = e.volatilityStack[:len(e.volatilityStack)-1]
}

// TopVolatilityRef returns the innermost enclosing volatility reference, if
// any.
func (e *Environment) TopVolatilityRef() (alias string, identity rel.Expr, ok bool) {
	if len(e.volatilityStack) == 0 {
		return "", nil, false
	}
	top := e.volatilityStack[len(e.volatilityStack)-1]
	return top.SourceAlias, top.IdentityCol, true
}

// pathIDHint derives a short, human-legible alias hint from a PathID's
// trailing step (or root type), e.g. "owner" or "Issue".
func pathIDHint(id pathid.PathID) string {
	if id.NumSteps() == 0 {
		return shortName(id.Root().QualName)
	}
	last := id.Steps()[len(id.Steps())-1]
	return shortName(last.Link.QualName)
}

func shortName(qualName string) string {
	for i := len(qualName) - 1; i >= 0; i-- {
		if qualName[i] == ':' || qualName[i] == '.' {
			return qualName[i+1:]
		}
	}
	return qualName
}
