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

package rel

// Inspect walks expr and its descendants top-down, calling f on each node.
// Inspect stops descending into a subtree the moment f returns false for
// its root, mirroring the teacher's plan.Inspect (seen in
// sql/plan/transform_test.go's TestInspect).
func Inspect(expr Expr, f func(Expr) bool) {
	if expr == nil || !f(expr) {
		return
	}
	for _, c := range children(expr) {
		Inspect(c, f)
	}
}

// TransformUp rebuilds expr bottom-up: every child is transformed first,
// then f is applied to the node with its (possibly replaced) children,
// the same post-order contract as the teacher's plan.TransformUp.
func TransformUp(expr Expr, f func(Expr) (Expr, error)) (Expr, error) {
	if expr == nil {
		return nil, nil
	}
	kids := children(expr)
	if len(kids) == 0 {
		return f(expr)
	}
	newKids := make([]Expr, len(kids))
	for i, c := range kids {
		nc, err := TransformUp(c, f)
		if err != nil {
			return nil, err
		}
		newKids[i] = nc
	}
	rebuilt := withChildren(expr, newKids)
	return f(rebuilt)
}

// children returns expr's direct operand expressions, in a stable order
// matching withChildren's expectations.
func children(expr Expr) []Expr {
	switch e := expr.(type) {
	case *OpExpr:
		if e.Left == nil {
			return []Expr{e.Right}
		}
		return []Expr{e.Left, e.Right}
	case *FuncCall:
		out := append([]Expr(nil), e.Args...)
		if e.FilterClause != nil {
			out = append(out, e.FilterClause)
		}
		return out
	case *CaseExpr:
		var out []Expr
		for _, w := range e.Whens {
			out = append(out, w.Cond, w.Then)
		}
		if e.Else != nil {
			out = append(out, e.Else)
		}
		return out
	case *CoalesceExpr:
		return append([]Expr(nil), e.Args...)
	case *NullTest:
		return []Expr{e.Arg}
	case *RowExpr:
		return append([]Expr(nil), e.Args...)
	case *ImplicitRowExpr:
		return append([]Expr(nil), e.Args...)
	case *ArrayExpr:
		return append([]Expr(nil), e.Args...)
	case *TypeCast:
		return []Expr{e.Arg}
	case *Indirection:
		if e.Index != nil {
			return []Expr{e.Arg, e.Index}
		}
		return []Expr{e.Arg}
	case *Indices:
		out := []Expr{e.Arg}
		if e.Lower != nil {
			out = append(out, e.Lower)
		}
		if e.Upper != nil {
			out = append(out, e.Upper)
		}
		return out
	case *TupleVar:
		out := make([]Expr, len(e.Elements))
		for i, el := range e.Elements {
			out[i] = el.Value
		}
		return out
	case *SubLink:
		if e.TestExpr != nil {
			return []Expr{e.TestExpr}
		}
		return nil
	default:
		// ColumnRef, ParamRef, StringConstant, NumericConstant,
		// BooleanConstant, NullConstant: leaves.
		return nil
	}
}

// withChildren returns a shallow copy of expr with its direct operands
// replaced by newKids, in the same order children(expr) produced them.
func withChildren(expr Expr, newKids []Expr) Expr {
	switch e := expr.(type) {
	case *OpExpr:
		cp := *e
		if e.Left == nil {
			cp.Right = newKids[0]
		} else {
			cp.Left, cp.Right = newKids[0], newKids[1]
		}
		return &cp
	case *FuncCall:
		cp := *e
		n := len(e.Args)
		cp.Args = append([]Expr(nil), newKids[:n]...)
		if e.FilterClause != nil {
			cp.FilterClause = newKids[n]
		}
		return &cp
	case *CaseExpr:
		cp := *e
		whens := make([]CaseWhen, len(e.Whens))
		idx := 0
		for i := range e.Whens {
			whens[i] = CaseWhen{Cond: newKids[idx], Then: newKids[idx+1]}
			idx += 2
		}
		cp.Whens = whens
		if e.Else != nil {
			cp.Else = newKids[idx]
		}
		return &cp
	case *CoalesceExpr:
		cp := *e
		cp.Args = append([]Expr(nil), newKids...)
		return &cp
	case *NullTest:
		cp := *e
		cp.Arg = newKids[0]
		return &cp
	case *RowExpr:
		cp := *e
		cp.Args = append([]Expr(nil), newKids...)
		return &cp
	case *ImplicitRowExpr:
		cp := *e
		cp.Args = append([]Expr(nil), newKids...)
		return &cp
	case *ArrayExpr:
		cp := *e
		cp.Args = append([]Expr(nil), newKids...)
		return &cp
	case *TypeCast:
		cp := *e
		cp.Arg = newKids[0]
		return &cp
	case *Indirection:
		cp := *e
		cp.Arg = newKids[0]
		if e.Index != nil {
			cp.Index = newKids[1]
		}
		return &cp
	case *Indices:
		cp := *e
		idx := 1
		cp.Arg = newKids[0]
		if e.Lower != nil {
			cp.Lower = newKids[idx]
			idx++
		}
		if e.Upper != nil {
			cp.Upper = newKids[idx]
		}
		return &cp
	case *TupleVar:
		cp := *e
		elems := make([]TupleVarElement, len(e.Elements))
		for i, el := range e.Elements {
			elems[i] = TupleVarElement{Name: el.Name, Value: newKids[i]}
		}
		cp.Elements = elems
		return &cp
	case *SubLink:
		cp := *e
		if e.TestExpr != nil {
			cp.TestExpr = newKids[0]
		}
		return &cp
	default:
		return expr
	}
}
