// Package fieldmath is the exact big-integer arithmetic used to fold
// whitfield expressions at compile time and to size the registers of the
// generated code.
package fieldmath

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrDivideByZero   = errors.New("division by zero")
	ErrNotInvertible  = errors.New("divisor has no inverse modulo the field")
	ErrNegativeResult = errors.New("result is negative")
	ErrUnknownOp      = errors.New("unknown operator")
)

var one = big.NewInt(1)

// Apply returns a op b. With a non-nil modulus the result is reduced into
// [0, modulus); otherwise plain non-negative integer arithmetic is used.
//
//	+ - *   ring operations
//	@       exponentiation (modular when a modulus is given)
//	/       a * b^-1 mod modulus, or truncating division without one
func Apply(op byte, a, b, modulus *big.Int) (*big.Int, error) {
	if modulus == nil {
		return unbounded(op, a, b)
	}

	r := new(big.Int)
	switch op {
	case '+':
		r.Add(a, b)
	case '-':
		r.Sub(a, b)
	case '*':
		r.Mul(a, b)
	case '@':
		if b.Sign() < 0 {
			return nil, fmt.Errorf("%w: negative exponent", ErrNegativeResult)
		}
		return r.Exp(a, b, modulus), nil
	case '/':
		d := new(big.Int).Mod(b, modulus)
		if d.Sign() == 0 {
			return nil, ErrDivideByZero
		}
		inv := new(big.Int).ModInverse(d, modulus)
		if inv == nil {
			return nil, ErrNotInvertible
		}
		r.Mul(a, inv)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownOp, op)
	}
	return r.Mod(r, modulus), nil
}

func unbounded(op byte, a, b *big.Int) (*big.Int, error) {
	r := new(big.Int)
	switch op {
	case '+':
		r.Add(a, b)
	case '-':
		r.Sub(a, b)
	case '*':
		r.Mul(a, b)
	case '@':
		if b.Sign() < 0 {
			return nil, fmt.Errorf("%w: negative exponent", ErrNegativeResult)
		}
		r.Exp(a, b, nil)
	case '/':
		if b.Sign() == 0 {
			return nil, ErrDivideByZero
		}
		r.Quo(a, b)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownOp, op)
	}
	if r.Sign() < 0 {
		return nil, ErrNegativeResult
	}
	return r, nil
}

// Bits returns the smallest multiple of 8 wide enough to hold every value
// in [0, limit). It never returns less than 8.
func Bits(limit *big.Int) int {
	n := new(big.Int).Sub(limit, one).BitLen()
	if n == 0 {
		return 8
	}
	return (n + 7) / 8 * 8
}

// Bytes is Bits(limit) / 8: the storage size of one field element.
func Bytes(limit *big.Int) int {
	return Bits(limit) / 8
}

// WorkBits is the register width of the generated arithmetic. The wrapped
// sum of two reduced operands must not overflow, so 2*limit-1 has to fit;
// when Bits(limit) leaves no headroom another byte is added.
func WorkBits(limit *big.Int) int {
	bits := Bits(limit)
	top := new(big.Int).Lsh(limit, 1)
	top.Sub(top, one)
	if top.BitLen() > bits {
		bits += 8
	}
	return bits
}

// Reduce returns v mod limit.
func Reduce(v, limit *big.Int) *big.Int {
	return new(big.Int).Mod(v, limit)
}
