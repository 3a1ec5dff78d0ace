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
	"github.com/relql/relql/relqlerrors"
)

// Aspect names the facet of a path a relational output column provides
// (spec §3.5): a path's identity (for joining/grouping), its scalar value,
// its JSON-serialized form, or its source-row correlation.
type Aspect string

const (
	IdentityAspect   Aspect = "identity"
	ValueAspect      Aspect = "value"
	SerializedAspect Aspect = "serialized"
	SourceAspect     Aspect = "source"
)

// PathCtx resolves and records, within a single relation's scope,
// PathId -> (aspect -> output expression) bindings, and PathId -> range
// variable bonds. It is the Go shape of spec §4.5's path context: every
// method it exposes mirrors one of GetPathVar/GetPathOutput/PutPathVar/
// PutPathBond/JoinCondition plus their Maybe* variants.
type PathCtx struct {
	env *Environment

	// outputs maps a PathId's hash to its per-aspect output
	// expressions within the relation currently being built.
	outputs map[string]map[Aspect]rel.Expr

	// bonds maps a PathId's hash to the Bond recording the namespace it
	// was bound under. The range variable's alias is not stored.
	bonds map[string]*rel.Bond
}

// NewPathCtx creates an empty path context for a fresh relation scope.
func NewPathCtx(env *Environment) *PathCtx {
	return &PathCtx{
		env:     env,
		outputs: make(map[string]map[Aspect]rel.Expr),
		bonds:   make(map[string]*rel.Bond),
	}
}

// PutPathVar records expr as id's output for aspect.
func (p *PathCtx) PutPathVar(id pathid.PathID, aspect Aspect, expr rel.Expr) {
	key := id.Hash()
	m, ok := p.outputs[key]
	if !ok {
		m = make(map[Aspect]rel.Expr)
		p.outputs[key] = m
	}
	m[aspect] = expr
	p.env.Logger.WithField("path", id.String()).WithField("aspect", string(aspect)).Trace("compiler: bound path output")
}

// PutPathBond records a Bond for id within namespace ns. The rvar alias is
// accepted but not stored in the Bond.
func (p *PathCtx) PutPathBond(id pathid.PathID, rvar string, ns pathid.Namespace) {
	p.bonds[id.Hash()] = &rel.Bond{PathID: id, Namespace: ns, Outputs: make(map[string]rel.Expr)}
	_ = rvar
}

// MaybeGetPathOutput returns id's recorded output for aspect, if any,
// without raising (spec §7's maybe_* propagation policy).
func (p *PathCtx) MaybeGetPathOutput(id pathid.PathID, aspect Aspect) (rel.Expr, bool) {
	m, ok := p.outputs[id.Hash()]
	if !ok {
		return nil, false
	}
	e, ok := m[aspect]
	return e, ok
}

// GetPathOutput is MaybeGetPathOutput but raises ErrInternalLookupFailure
// on miss, for call sites where a missing binding is a compiler bug
// rather than a legitimate "not yet bound" query (spec §7).
func (p *PathCtx) GetPathOutput(id pathid.PathID, aspect Aspect) (rel.Expr, error) {
	if e, ok := p.MaybeGetPathOutput(id, aspect); ok {
		return e, nil
	}
	return nil, relqlerrors.ErrInternalLookupFailure.New(id.String(), string(aspect))
}

// MaybeGetPathVar is GetPathOutput's ValueAspect-defaulting convenience
// form: most call sites just want "the" scalar value of a path.
func (p *PathCtx) MaybeGetPathVar(id pathid.PathID) (rel.Expr, bool) {
	return p.MaybeGetPathOutput(id, ValueAspect)
}

// GetPathVar is MaybeGetPathVar but raising on miss.
func (p *PathCtx) GetPathVar(id pathid.PathID) (rel.Expr, error) {
	return p.GetPathOutput(id, ValueAspect)
}

// MaybeGetPathBond returns id's recorded range-variable bond, if any.
func (p *PathCtx) MaybeGetPathBond(id pathid.PathID) (*rel.Bond, bool) {
	b, ok := p.bonds[id.Hash()]
	return b, ok
}

// JoinCondition builds the equality predicate joining left's identity
// aspect to right's identity aspect — the common shape every pointer
// traversal's join condition takes (spec §4.5).
func (p *PathCtx) JoinCondition(left, right pathid.PathID) (rel.Expr, error) {
	l, err := p.GetPathOutput(left, IdentityAspect)
	if err != nil {
		return nil, err
	}
	r, err := p.GetPathOutput(right, IdentityAspect)
	if err != nil {
		return nil, err
	}
	return &rel.OpExpr{Op: "=", Left: l, Right: r}, nil
}
