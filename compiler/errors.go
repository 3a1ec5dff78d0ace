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
	"fmt"

	"github.com/pkg/errors"

	"github.com/relql/relql/ir"
	"github.com/relql/relql/relqlerrors"
)

// QueryError is a lookup or lowering failure re-wrapped at the boundary
// where it becomes user-visible (spec §7): it carries the offending IR
// node's identity alongside the underlying error, and preserves the
// underlying error's stack trace via github.com/pkg/errors.Wrap, the same
// wrapping idiom the teacher uses at its own transaction-recovery boundary
// in engine.go's QueryWithBindings.
type QueryError struct {
	Node  ir.Node
	cause error
}

func (e *QueryError) Error() string {
	if e.Node != nil {
		return fmt.Sprintf("query error at node %d: %s", e.Node.ID(), e.cause)
	}
	return fmt.Sprintf("query error: %s", e.cause)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *QueryError) Unwrap() error { return e.cause }

// WrapQueryError wraps err, annotated with node's source context, the way
// §7 requires once a Path Context miss (or any other internal lookup
// failure) escapes into a user-visible error. A nil err returns nil.
func WrapQueryError(err error, node ir.Node) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrap(err, "compiling query")
	return &QueryError{Node: node, cause: wrapped}
}

// AsInternalError re-wraps any error escaping the compiler that is not
// already one of the typed relqlerrors kinds as an internal-server error
// annotated with only the stringified first argument, per §7's "any other
// exception" propagation rule (avoids leaking internals beyond a single
// summary line).
func AsInternalError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case relqlerrors.ErrScopeConflict.Is(err):
		// ScopeConflict is surfaced verbatim; the engine cannot recover.
		return err
	case relqlerrors.ErrAmbiguousCardinality.Is(err),
		relqlerrors.ErrBadPathSlice.Is(err),
		relqlerrors.ErrInvalidPathID.Is(err),
		relqlerrors.ErrUnknownReference.Is(err),
		relqlerrors.ErrPolymorphicRedefinition.Is(err),
		relqlerrors.ErrInternalLookupFailure.Is(err):
		return err
	default:
		return relqlerrors.ErrQuery.New(firstLine(err))
	}
}

// firstLine returns err's message up to (but not including) its first
// newline, so a wrapped multi-line cause does not leak internal detail
// into the user-visible summary.
func firstLine(err error) string {
	s := err.Error()
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
