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
	"github.com/relql/relql/cardinality"
	"github.com/relql/relql/ir"
	"github.com/relql/relql/rel"
)

// CompileShape implements spec §4.8's shape compiler: given a Set carrying
// a Shape, it lowers each shape element through the set-lowering
// dispatcher, assembles a TupleVar out of their value aspects, and
// separately assembles the serialized form the enclosing Set exposes
// under aspect `serialized`. A Set with no Shape (a plain scalar or path
// read) is a no-op; IgnoreShapes (spec §6's CompileOptions) skips only the
// serialized projection, since a host that ignores shapes for its result
// format still needs the value tuple for nested references.
func (c *Compiler) CompileShape(s *ir.Set) error {
	if s.Shape == nil || len(s.Shape.Elements) == 0 {
		return nil
	}

	valueElems := make([]rel.TupleVarElement, len(s.Shape.Elements))
	serializedElems := make([]rel.TupleVarElement, len(s.Shape.Elements))
	for i, el := range s.Shape.Elements {
		value, serialized, err := c.compileShapeElement(el.Value)
		if err != nil {
			return WrapQueryError(err, el.Value)
		}
		valueElems[i] = rel.TupleVarElement{Name: el.Name, Value: value}
		serializedElems[i] = rel.TupleVarElement{Name: el.Name, Value: serialized}
	}

	c.Paths().PutPathVar(s.PathID, ValueAspect, &rel.TupleVar{Elements: valueElems})

	if c.Env.Options.IgnoreShapes {
		return nil
	}
	tuple := c.serializeTuple(serializedElems)
	c.Paths().PutPathVar(s.PathID, SerializedAspect, tuple)
	return nil
}

// compileShapeElement lowers one shape element's Set and returns both its
// value aspect (collapsed to an array via `set_to_array` when the
// element's cardinality is not a singleton, per §4.8) and its serialized
// aspect (read back if the lowering already produced one — e.g. a nested
// shape did — or lazily produced here from the value).
func (c *Compiler) compileShapeElement(val *ir.Set) (value rel.Expr, serialized rel.Expr, err error) {
	if _, err = c.GetSetRVar(val); err != nil {
		return nil, nil, err
	}

	card, err := c.Env.Card.Infer(val, c.scopeFor(val))
	if err != nil {
		return nil, nil, err
	}

	value, err = c.Paths().GetPathVar(val.PathID)
	if err != nil {
		return nil, nil, err
	}
	if card != cardinality.ONE {
		value = setNullable(&rel.FuncCall{Name: "set_to_array", Args: []rel.Expr{value}, IsAggregate: true}, false)
	}

	if existing, ok := c.Paths().MaybeGetPathOutput(val.PathID, SerializedAspect); ok {
		serialized = existing
	} else {
		serialized = c.serializeValue(value)
	}
	return value, serialized, nil
}

// serializeValue produces a single element's serialized-aspect output: in
// JSON output mode, wrapped in `to_jsonb`; in native mode, the value
// itself (spec §4.8's "either already present or lazily produced... using
// the environment's output format").
func (c *Compiler) serializeValue(value rel.Expr) rel.Expr {
	if c.Env.Options.OutputFormat == JSONOutput {
		return setNullable(&rel.FuncCall{Name: "to_jsonb", Args: []rel.Expr{value}}, value.IsNullable())
	}
	return value
}

// serializeTuple produces the whole tuple's serialized form (spec §4.8:
// "the whole tuple is then serialized at the parent PathId"): a
// `jsonb_build_object` call of alternating name/value pairs in JSON mode,
// or a plain TupleVar of the already-serialized elements in native mode.
func (c *Compiler) serializeTuple(elems []rel.TupleVarElement) rel.Expr {
	if c.Env.Options.OutputFormat != JSONOutput {
		return &rel.TupleVar{Elements: elems}
	}
	args := make([]rel.Expr, 0, len(elems)*2)
	for _, el := range elems {
		args = append(args, &rel.StringConstant{Value: el.Name}, el.Value)
	}
	return &rel.FuncCall{Name: "jsonb_build_object", Args: args}
}
