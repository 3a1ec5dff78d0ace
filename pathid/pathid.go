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

// Package pathid implements PathID, the immutable identifier of a logical
// set traversal through the object graph. See spec §3.1/§4.1.
package pathid

import (
	"fmt"
	"strings"

	"github.com/relql/relql/relqlerrors"
)

// PointerDirection is the direction a pointer step is navigated in.
type PointerDirection int

const (
	Outbound PointerDirection = iota
	Inbound
)

func (d PointerDirection) String() string {
	if d == Inbound {
		return "<"
	}
	return ">"
}

// TypeRef identifies an object or scalar type by qualified name. It is a
// plain comparable value; the real schema.ObjectType it denotes is resolved
// externally via schema.Schema.
type TypeRef struct {
	QualName string
}

func (t TypeRef) String() string { return t.QualName }

// PointerRef identifies a pointer (link or property) by qualified name.
type PointerRef struct {
	QualName string
}

func (p PointerRef) String() string { return p.QualName }

// Step is one (pointer, direction, is_linkprop) hop plus the type it lands
// on. NormLink is the type-erased link name used for norm_path; Link is the
// display name (may differ if dealiasing applies upstream).
type Step struct {
	Link           PointerRef
	NormLink       string
	Direction      PointerDirection
	IsLinkProp     bool
	Target         TypeRef // display type, possibly a view
	MaterialTarget TypeRef // material (non-view) target type
}

func (s Step) normKey() string {
	lp := ""
	if s.IsLinkProp {
		lp = "@"
	}
	return fmt.Sprintf("%s%s%s->%s", lp, s.NormLink, s.Direction, s.MaterialTarget.QualName)
}

// PathID is an immutable identifier of a traversal through the object
// graph: root type, then zero or more (pointer, direction) hops, optionally
// trailing on the pointer itself rather than its target (IsPtr).
type PathID struct {
	root      TypeRef
	steps     []Step
	isPtr     bool
	namespace Namespace
	prefix    *PathID
}

// New constructs a root PathID designating a bare type, i.e. `(type)`.
func New(root TypeRef) PathID {
	return PathID{root: root}
}

// NewWithNamespace is New with a namespace already attached.
func NewWithNamespace(root TypeRef, ns Namespace) PathID {
	return PathID{root: root, namespace: ns}
}

// WithNamespace returns a copy of p carrying ns merged into its existing
// namespace.
func (p PathID) WithNamespace(ns Namespace) PathID {
	p.namespace = p.namespace.Union(ns)
	return p
}

// Namespace returns the namespace tags attached to p.
func (p PathID) Namespace() Namespace { return p.namespace }

// IsPtr reports whether p designates the link itself (link-property access)
// rather than its target.
func (p PathID) IsPtr() bool { return p.isPtr }

// NumSteps returns the number of pointer hops in p (0 for a bare root).
func (p PathID) NumSteps() int { return len(p.steps) }

// Root returns the root type of the path.
func (p PathID) Root() TypeRef { return p.root }

// Steps returns the hop sequence. The returned slice must not be mutated.
func (p PathID) Steps() []Step { return p.steps }

// Target returns the type the path currently designates: the target of the
// last step, or the root if there are no steps. If IsPtr is set, this is
// the type the underlying pointer targets (the link property's host type
// is obtained via Prefix(NumSteps()-1).Target()).
func (p PathID) Target() TypeRef {
	if len(p.steps) == 0 {
		return p.root
	}
	return p.steps[len(p.steps)-1].Target
}

// Extend returns a new PathID obtained by navigating one more hop. If the
// hard (non-weak) portion of p's namespace differs from the hard portion of
// the resulting namespace, p becomes the new PathID's prefix, recording
// that a hard-namespace boundary was crossed at extension time.
func Extend(p PathID, link PointerRef, normLink string, dir PointerDirection, isLinkProp bool, target, materialTarget TypeRef, ns Namespace) PathID {
	newNS := p.namespace.Union(ns)

	step := Step{
		Link:           link,
		NormLink:       normLink,
		Direction:      dir,
		IsLinkProp:     isLinkProp,
		Target:         target,
		MaterialTarget: materialTarget,
	}

	steps := make([]Step, len(p.steps)+1)
	copy(steps, p.steps)
	steps[len(p.steps)] = step

	out := PathID{
		root:      p.root,
		steps:     steps,
		namespace: newNS,
		prefix:    p.prefix,
	}

	if !hardTagsEqual(p.namespace, newNS) {
		pp := p
		out.prefix = &pp
	}

	return out
}

// AsPointer returns a copy of p whose trailing element designates the link
// itself (for link-property access) rather than its target. p must have at
// least one step.
func (p PathID) AsPointer() PathID {
	p.isPtr = true
	return p
}

// AsTarget returns a copy of p whose trailing element designates the step's
// target rather than the link (the inverse of AsPointer).
func (p PathID) AsTarget() PathID {
	p.isPtr = false
	return p
}

func hardTagsEqual(a, b Namespace) bool {
	ah, bh := a.HardTags(), b.HardTags()
	if len(ah) != len(bh) {
		return false
	}
	for i := range ah {
		if ah[i] != bh[i] {
			return false
		}
	}
	return true
}

// normKey is the canonical string used for equality/hashing, covering
// (norm_path, namespace, prefix, is_ptr) per the §3.1 invariant.
func (p PathID) normKey() string {
	var sb strings.Builder
	sb.WriteString(p.root.QualName)
	for _, s := range p.steps {
		sb.WriteByte('.')
		sb.WriteString(s.normKey())
	}
	if p.isPtr {
		sb.WriteString("@ptr")
	}
	sb.WriteString("#ns:")
	sb.WriteString(p.namespace.key())
	sb.WriteString("#pfx:")
	if p.prefix != nil {
		sb.WriteString(p.prefix.normKey())
	}
	return sb.String()
}

// Hash returns a stable hash key suitable for use as a map key.
func (p PathID) Hash() string { return p.normKey() }

// Equals implements the §3.1 equality invariant:
// (norm_path, namespace, prefix, is_ptr).
func (p PathID) Equals(other PathID) bool {
	return p.normKey() == other.normKey()
}

// EqualsAfterStrip reports whether p and other are equal once ns has been
// stripped from both namespaces. This is the relation ScopeTree visibility
// is defined over (§3.2).
func (p PathID) EqualsAfterStrip(other PathID, ns Namespace) bool {
	return p.StripNamespace(ns).Equals(other.StripNamespace(ns))
}

// StripNamespace returns a PathID equal on norm_path with the given
// namespace tags removed.
func (p PathID) StripNamespace(ns Namespace) PathID {
	p.namespace = p.namespace.Strip(ns)
	return p
}

// StripWeakNamespaces drops every weak namespace tag, realizing the
// pull-up rule: weak namespaces don't survive leaving the scope that
// introduced them.
func (p PathID) StripWeakNamespaces() PathID {
	p.namespace = p.namespace.StripWeak()
	return p
}

// Prefix returns the PathID truncated to its first n hops (0 <= n <=
// NumSteps()); n=0 yields the bare root. This always lands on a type
// boundary, reusing the stored prefix when it matches exactly.
func (p PathID) Prefix(n int) (PathID, error) {
	if n < 0 || n > len(p.steps) {
		return PathID{}, relqlerrors.ErrBadPathSlice.New()
	}
	if p.prefix != nil && p.prefix.NumSteps() == n {
		return *p.prefix, nil
	}
	out := PathID{
		root:      p.root,
		steps:     append([]Step(nil), p.steps[:n]...),
		namespace: p.namespace,
	}
	return out, nil
}

// PointerPrefix returns the PathID truncated to its first n hops but with
// the trailing element designating the pointer itself rather than its
// target (the IsPtr variant). n must be in [1, NumSteps()]; n == 0 has no
// pointer to land on and is an error (§4.1's "truncation that ends on a
// pointer step" case, here requested explicitly).
func (p PathID) PointerPrefix(n int) (PathID, error) {
	if n < 1 || n > len(p.steps) {
		return PathID{}, relqlerrors.ErrBadPathSlice.New()
	}
	pfx, err := p.Prefix(n)
	if err != nil {
		return PathID{}, err
	}
	return pfx.AsPointer(), nil
}

// IterPrefixes yields every proper prefix of p (p itself is not included).
// With includePtr, pointer prefixes are interleaved between consecutive
// type prefixes.
func (p PathID) IterPrefixes(includePtr bool) []PathID {
	out := make([]PathID, 0, len(p.steps)+1)
	for n := 0; n < len(p.steps); n++ {
		pfx, _ := p.Prefix(n)
		if includePtr && n > 0 {
			ptrPfx, _ := p.PointerPrefix(n)
			out = append(out, ptrPfx)
		}
		out = append(out, pfx)
	}
	return out
}

// HasPrefix reports whether old is a structural (norm_path) prefix of p.
func (p PathID) HasPrefix(old PathID) bool {
	if old.NumSteps() > p.NumSteps() {
		return false
	}
	pfx, err := p.Prefix(old.NumSteps())
	if err != nil {
		return false
	}
	return pfx.Equals(old)
}

// ReplacePrefix substitutes old with new wherever it forms p's leading
// structural prefix, and recursively rewrites p's stored prefix pointer.
// ReplacePrefix(old, new).ReplacePrefix(new, old) is the identity on any
// PathID starting with old (§8 invariant 10).
func (p PathID) ReplacePrefix(old, new PathID) PathID {
	out := p
	if p.HasPrefix(old) {
		remainder := p.steps[old.NumSteps():]
		acc := new
		for _, s := range remainder {
			acc = Extend(acc, s.Link, s.NormLink, s.Direction, s.IsLinkProp, s.Target, s.MaterialTarget, Namespace{})
		}
		acc.isPtr = p.isPtr
		out = acc
	}
	out.prefix = replacePrefixChain(p.prefix, old, new)
	return out
}

func replacePrefixChain(chain *PathID, old, new PathID) *PathID {
	if chain == nil {
		return nil
	}
	if chain.Equals(old) {
		n := new
		return &n
	}
	rewritten := chain.ReplacePrefix(old, new)
	return &rewritten
}

// --- domain predicates (§4.1) ---

// IsObjectTypePath reports whether the trailing element's target is an
// object type rather than a scalar. The core treats this as externally
// supplied information (via isObject) since it cannot see the schema.
func (p PathID) IsObjectTypePath(isObject func(TypeRef) bool) bool {
	return !p.isPtr && isObject(p.Target())
}

// IsScalarPath is the negation of IsObjectTypePath (for a non-pointer
// path).
func (p PathID) IsScalarPath(isObject func(TypeRef) bool) bool {
	return !p.isPtr && !isObject(p.Target())
}

// IsPtrPath reports whether p designates a pointer itself.
func (p PathID) IsPtrPath() bool { return p.isPtr }

// IsLinkPropPath reports whether the trailing step is a link property.
func (p PathID) IsLinkPropPath() bool {
	return len(p.steps) > 0 && p.steps[len(p.steps)-1].IsLinkProp
}

// String renders p for diagnostics/user messages, using display names.
func (p PathID) String() string {
	var sb strings.Builder
	sb.WriteString(p.root.QualName)
	for _, s := range p.steps {
		sb.WriteByte('.')
		if s.IsLinkProp {
			sb.WriteByte('@')
		} else if s.Direction == Inbound {
			sb.WriteString("<")
		}
		sb.WriteString(s.Link.QualName)
		if s.Direction == Inbound {
			sb.WriteString("[IS ")
			sb.WriteString(s.Target.QualName)
			sb.WriteString("]")
		}
	}
	if p.isPtr {
		sb.WriteString("@@ptr")
	}
	return sb.String()
}
