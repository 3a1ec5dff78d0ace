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

// Package relqlerrors declares the error-kind taxonomy shared by every
// compiler subsystem (pathid, scopetree, cardinality, compiler).
package relqlerrors

import "gopkg.in/src-d/go-errors.v1"

var (
	// ErrScopeConflict is raised by scopetree.Tree.AttachSubtree when
	// merging a subtree would change the interpretation of an outer path.
	// It is surfaced verbatim to the user; the engine cannot recover.
	ErrScopeConflict = errors.NewKind("scope conflict: %s conflicts with existing binding %s")

	// ErrAmbiguousCardinality is raised when cardinality inference meets
	// an IR node kind it has no rule for.
	ErrAmbiguousCardinality = errors.NewKind("could not determine cardinality")

	// ErrBadPathSlice is raised by PathID.Prefix and PathID.PointerPrefix
	// when the requested number of steps is out of range.
	ErrBadPathSlice = errors.NewKind("invalid PathId slice")

	// ErrInvalidPathID names a malformed PathId initializer. pathid's
	// constructors take typed arguments and do not raise it; no code in
	// this module raises it.
	ErrInvalidPathID = errors.NewKind("invalid PathId")

	// ErrUnknownReference is raised when a pointer cannot be resolved on
	// the current source.
	ErrUnknownReference = errors.NewKind("unknown reference: %s")

	// ErrPolymorphicRedefinition is raised when a UNION would force two
	// different definitions of the same computed property on one path.
	ErrPolymorphicRedefinition = errors.NewKind("polymorphic redefinition of %s")

	// ErrInternalLookupFailure is raised when GetPathOutput/GetPathVar
	// find no binding (recoverable via the Maybe* variants; fatal
	// otherwise), and when lowering meets an IR node, constant or pointer
	// storage it cannot resolve.
	ErrInternalLookupFailure = errors.NewKind("could not resolve path %s aspect %s")

	// ErrQuery is the summary error compiler.AsInternalError returns for
	// any error that is not one of the kinds above; it carries only the
	// first line of the original message.
	ErrQuery = errors.NewKind("query error: %s")
)
