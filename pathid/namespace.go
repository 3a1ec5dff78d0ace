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

package pathid

import (
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Namespace is the set of scoping tags attached to a PathID inside a WITH
// block or polymorphic subtree. Some tags are "weak": they propagate with
// extension but are stripped automatically whenever the PathID is pulled up
// out of the scope that introduced them.
//
// Namespace is an immutable value; every mutating-looking method returns a
// new Namespace.
type Namespace struct {
	// tags maps tag -> weak. A nil map is the empty namespace.
	tags map[string]bool
}

// NewNamespace builds a namespace out of hard tags.
func NewNamespace(tags ...string) Namespace {
	if len(tags) == 0 {
		return Namespace{}
	}
	m := make(map[string]bool, len(tags))
	for _, t := range tags {
		m[t] = false
	}
	return Namespace{tags: m}
}

// NewWeakNamespace builds a namespace out of weak tags.
func NewWeakNamespace(tags ...string) Namespace {
	if len(tags) == 0 {
		return Namespace{}
	}
	m := make(map[string]bool, len(tags))
	for _, t := range tags {
		m[t] = true
	}
	return Namespace{tags: m}
}

// Empty reports whether the namespace carries no tags at all.
func (n Namespace) Empty() bool {
	return len(n.tags) == 0
}

// Has reports whether tag is present, weak or not.
func (n Namespace) Has(tag string) bool {
	_, ok := n.tags[tag]
	return ok
}

// IsWeak reports whether tag is present and marked weak. Absent tags report
// false.
func (n Namespace) IsWeak(tag string) bool {
	weak, ok := n.tags[tag]
	return ok && weak
}

// Union merges two namespaces. Where a tag appears in both, it is weak in
// the result only if weak in both (a hard declaration anywhere wins).
func (n Namespace) Union(other Namespace) Namespace {
	if n.Empty() {
		return other
	}
	if other.Empty() {
		return n
	}
	m := make(map[string]bool, len(n.tags)+len(other.tags))
	for t, w := range n.tags {
		m[t] = w
	}
	for t, w := range other.tags {
		if existingWeak, ok := m[t]; ok {
			m[t] = existingWeak && w
		} else {
			m[t] = w
		}
	}
	return Namespace{tags: m}
}

// Strip removes every tag in victim from n, regardless of weakness.
func (n Namespace) Strip(victim Namespace) Namespace {
	if n.Empty() || victim.Empty() {
		return n
	}
	m := make(map[string]bool, len(n.tags))
	for t, w := range n.tags {
		if !victim.Has(t) {
			m[t] = w
		}
	}
	if len(m) == 0 {
		return Namespace{}
	}
	return Namespace{tags: m}
}

// StripWeak drops every weak tag, keeping hard ones. This realizes the
// "weak namespaces are stripped on pull-up" rule.
func (n Namespace) StripWeak() Namespace {
	if n.Empty() {
		return n
	}
	m := make(map[string]bool, len(n.tags))
	for t, w := range n.tags {
		if !w {
			m[t] = w
		}
	}
	if len(m) == 0 {
		return Namespace{}
	}
	return Namespace{tags: m}
}

// HardTags returns the sorted set of non-weak tags. Equality over norm_path
// is defined in terms of this subset for the purposes of scope visibility,
// but full PathID equality (see PathID.Equals) considers the whole tag set.
func (n Namespace) HardTags() []string {
	var out []string
	for t, w := range n.tags {
		if !w {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return out
}

// key returns a canonical, order-independent string used in PathID's hash
// key.
func (n Namespace) key() string {
	if n.Empty() {
		return ""
	}
	tags := maps.Keys(n.tags)
	slices.Sort(tags)
	var sb strings.Builder
	for i, t := range tags {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(t)
		if n.tags[t] {
			sb.WriteString("~weak")
		}
	}
	return sb.String()
}

// Equal reports whether two namespaces carry exactly the same tags with the
// same weakness.
func (n Namespace) Equal(other Namespace) bool {
	return n.key() == other.key()
}
