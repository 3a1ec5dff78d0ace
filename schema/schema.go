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

// Package schema declares the narrow, opaque interface the compiler core
// consumes for schema information (spec §6). A full schema representation
// is explicitly out of scope (spec §1); this package only names the shape a
// real catalog must present.
package schema

import "github.com/relql/relql/pathid"

// TableType distinguishes how a pointer's data is stored.
type TableType int

const (
	// ObjectTypeTable means the pointer's value is stored inline on the
	// object type's own table.
	ObjectTypeTable TableType = iota
	// LinkTable means the pointer is stored in a separate mapping table
	// (source, target[, link properties]).
	LinkTable
)

// PointerDirection mirrors pathid.PointerDirection to keep this package
// import-light; schema implementations convert freely between the two.
type PointerDirection = pathid.PointerDirection

// Object is the common supertype of everything Schema.Get can return.
type Object interface {
	QualName() string
}

// ObjectType is an object type (possibly a view or abstract/virtual type).
type ObjectType interface {
	Object
	Ref() pathid.TypeRef
}

// Pointer is a link or property.
type Pointer interface {
	Object
	Ref() pathid.PointerRef
}

// Constraint names a schema constraint attached to a pointer (e.g.
// exclusive).
type Constraint interface {
	Name() string
}

// Cardinality is the schema-declared cardinality of a pointer (distinct
// from the IR-level cardinality.Cardinality computed by the inference
// pass, though the two enumerations correspond 1:1).
type Cardinality int

const (
	CardinalityOne Cardinality = iota
	CardinalityMany
)

// Schema is the opaque collaborator the compiler core consults. A real
// implementation wraps an actual schema catalog; the core never constructs
// one itself.
type Schema interface {
	// Get resolves a qualified name to a schema object.
	Get(qualname string) (Object, bool)

	// MaterialType returns the material (non-view) type underlying t.
	MaterialType(t ObjectType) ObjectType
	// Descendants returns every type transitively inheriting from t.
	Descendants(t ObjectType) []ObjectType
	// Children returns the types directly inheriting from t.
	Children(t ObjectType) []ObjectType
	// IsView reports whether t is a view.
	IsView(t ObjectType) bool
	// PeelView returns the type a view t is defined over.
	PeelView(t ObjectType) ObjectType
	// IsVirtual reports whether t is an abstract/virtual type with no
	// concrete storage of its own.
	IsVirtual(t ObjectType) bool
	// GetPointer resolves a pointer by short name on t.
	GetPointer(t ObjectType, name string) (Pointer, bool)

	// Source returns the object type a pointer is declared on.
	Source(p Pointer) ObjectType
	// Target returns the type a pointer points to.
	Target(p Pointer) ObjectType
	// PointerCardinality returns the pointer's own declared cardinality.
	PointerCardinality(p Pointer) Cardinality
	// Singular reports whether p is singular when navigated in dir:
	// outbound uses the pointer's own cardinality; inbound asks whether p
	// is exclusive (spec §3.3).
	Singular(p Pointer, dir PointerDirection) bool
	// IsLinkProperty reports whether p is a property on a link rather than
	// a pointer off an object type.
	IsLinkProperty(p Pointer) bool
	// IsIDPointer reports whether p is the implicit `id` pointer.
	IsIDPointer(p Pointer) bool
	// ShortName returns p's unqualified name.
	ShortName(p Pointer) string
	// Constraints returns the constraints declared on p.
	Constraints(p Pointer) []Constraint
	// IsExclusive reports whether p carries an exclusive constraint.
	IsExclusive(p Pointer) bool
	// Generic reports whether p is declared on an abstract type only.
	Generic(p Pointer) bool

	// Storage resolves where p's value physically lives.
	Storage(p Pointer) (table string, tableType TableType, column string, columnType string, ok bool)
}
