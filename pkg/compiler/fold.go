package compiler

import (
	"math/big"

	"whitfield/pkg/fieldmath"
)

// Fold evaluates every compile-time computable part of expr.
//
// A BinaryOp whose folded operands are both literals becomes one literal,
// computed modulo modulus (or with unbounded integers when modulus is nil).
// An identifier bound in known becomes that literal. Everything else is
// rebuilt with folded children. expr itself is never modified.
func Fold(expr Expr, modulus *big.Int, known map[string]*big.Int) (Expr, error) {
	switch n := expr.(type) {
	case *Literal:
		return n, nil

	case *Identifier:
		if v, ok := known[n.Name]; ok {
			return &Literal{Value: v}, nil
		}
		return n, nil

	case *BinaryOp:
		left, err := Fold(n.Left, modulus, known)
		if err != nil {
			return nil, err
		}
		right, err := Fold(n.Right, modulus, known)
		if err != nil {
			return nil, err
		}

		l, lok := left.(*Literal)
		r, rok := right.(*Literal)
		if !lok || !rok {
			return &BinaryOp{Op: n.Op, Left: left, Right: right}, nil
		}

		v, err := fieldmath.Apply(n.Op.Symbol(), l.Value, r.Value, modulus)
		if err != nil {
			return nil, &Error{Kind: KindSemantic, Msg: "cannot fold " + n.String(), Err: err}
		}
		return &Literal{Value: v}, nil
	}

	return nil, internalErrorf("fold: unexpected expression %T", expr)
}

// Walk calls fn for every node of expr, parents before children.
func Walk(expr Expr, fn func(Expr)) {
	fn(expr)
	if b, ok := expr.(*BinaryOp); ok {
		Walk(b.Left, fn)
		Walk(b.Right, fn)
	}
}
