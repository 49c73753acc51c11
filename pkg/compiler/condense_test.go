package compiler

import (
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"whitfield/pkg/fieldmath"
)

// condense parses body under the curve25519 field and runs the three
// condensers over it.
func condense(t *testing.T, body string) (*Program, error) {
	t.Helper()
	prog, err := ParseProgram("t.wht", "field 2 @ 255 - 19;\n"+body)
	require.NoError(t, err)
	for _, p := range []Pass{LimitCondenser{}, ConstantCondenser{}, FunctionCondenser{}} {
		if err := p.Run(prog); err != nil {
			return prog, err
		}
	}
	return prog, nil
}

func itemsString(prog *Program) string {
	parts := make([]string, len(prog.Items))
	for i, it := range prog.Items {
		parts[i] = it.String()
	}
	return strings.Join(parts, " ")
}

func TestLimitCondenser(t *testing.T) {
	prog, err := ParseProgram("t.wht", "field 2 @ 255 - 19;")
	require.NoError(t, err)
	require.NoError(t, LimitCondenser{}.Run(prog))
	require.Zero(t, curve25519.Cmp(prog.Modulus()))

	tests := []struct {
		name  string
		field string
		msg   string
	}{
		{"Symbolic", "field p;", "must be a compile-time constant"},
		{"Too small", "field 2 - 1;", "must be at least 2"},
		{"Zero", "field 0;", "must be at least 2"},
		{"Negative", "field 3 - 5;", "cannot fold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := ParseProgram("t.wht", tt.field)
			require.NoError(t, err)
			err = LimitCondenser{}.Run(prog)
			require.Equal(t, KindSemantic, KindOf(err))
			require.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestConstantCondenser(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"a = 5;", "a = 5;"},
		{"a = 5 + 5;", "a = 10;"},
		{"a = 5; b = a + 5;", "a = 5; b = 10;"},
		{fmt.Sprintf("c = %s + 3;", new(big.Int).Sub(curve25519, big.NewInt(1))), "c = 2;"},
		{"h = 1 / 2; d = h * 2;", fmt.Sprintf("h = %s; d = 1;",
			new(big.Int).ModInverse(big.NewInt(2), curve25519))},
		{"a = 3; f(x)(y) { y = x; } b = a @ 2;", "a = 3; f(x)(y) { y = x; } b = 9;"},
		{fmt.Sprintf("a = %s;", new(big.Int).Add(curve25519, big.NewInt(2))), "a = 2;"},
		{fmt.Sprintf("a = %s; b = a + 1;", curve25519), "a = 0; b = 1;"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			prog, err := condense(t, tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.expected, itemsString(prog))
		})
	}
}

func TestConstantCondenserReducesLiterals(t *testing.T) {
	prog, err := ParseProgram("t.wht", "field 7; a = 100; b = a; f(x)(y) { y = x + b; }")
	require.NoError(t, err)
	for _, p := range []Pass{LimitCondenser{}, ConstantCondenser{}, FunctionCondenser{}} {
		require.NoError(t, p.Run(prog))
	}
	require.Equal(t, "a = 2; b = 2; f(x)(y) { y = (x + 2); }", itemsString(prog))
}

func TestConstantCondenserErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		symbol string
		msg    string
	}{
		{"Unknown name", "a = b;", "a", "not a compile-time value"},
		{"Forward reference", "b = a + 5; a = 5;", "b", "not a compile-time value"},
		{"Duplicate constant", "a = 1; a = 2;", "a", "declared more than once"},
		{"Function shares name", "f(x)(y) { y = x; } f = 1;", "f", "declared more than once"},
		{"Division by zero", "a = 1 / 0;", "a", "division by zero"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := condense(t, tt.input)
			var e *Error
			require.ErrorAs(t, err, &e)
			require.Equal(t, KindSemantic, e.Kind)
			require.Equal(t, tt.symbol, e.Symbol)
			require.Contains(t, e.Error(), tt.msg)
		})
	}
}

func TestConstantCondenserRequiresExpandedProgram(t *testing.T) {
	prog, err := ParseProgram("t.wht", "field 7; import x;")
	require.NoError(t, err)
	require.Equal(t, KindInternal, KindOf(ConstantCondenser{}.Run(prog)))

	prog, err = ParseProgram("t.wht", "field 3 + 4; a = 1;")
	require.NoError(t, err)
	require.Equal(t, KindInternal, KindOf(ConstantCondenser{}.Run(prog)))
}

func TestFunctionCondenser(t *testing.T) {
	half := new(big.Int).ModInverse(big.NewInt(2), curve25519)
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			"Nothing to fold",
			"a = 5; foo(x, y)(z) { z = x + y; }",
			"a = 5; foo(x, y)(z) { z = (x + y); }",
		},
		{
			"Constant operand",
			"a = 5; foo(x, y)(z) { z = x + a; }",
			"a = 5; foo(x, y)(z) { z = (x + 5); }",
		},
		{
			"Return folds to literal",
			"a = 5; foo(x, y)(z) { z = 6 + a; }",
			"a = 5; foo(x, y)(z) { z = 11; }",
		},
		{
			"Single use temporary is forwarded",
			"a = 5; foo(x, y)(z) { t = x + a; z = t + y; }",
			"a = 5; foo(x, y)(z) { z = ((x + 5) + y); }",
		},
		{
			"Literal temporary is propagated",
			"a = 5; foo(x, y)(z) { t = 6 + a; z = t + y; }",
			"a = 5; foo(x, y)(z) { z = (11 + y); }",
		},
		{
			"Two returns",
			"A = 5; foo(a, b)(x, y) { x = a + A; y = b + A; }",
			"A = 5; foo(a, b)(x, y) { x = (a + 5); y = (b + 5); }",
		},
		{
			"Shared temporary is kept",
			"f(x)(z) { t = x * x; z = t + t; }",
			"f(x)(z) { t = (x * x); z = (t + t); }",
		},
		{
			"Unused temporary is dropped",
			"f(x)(z) { t = x + 1; z = x; }",
			"f(x)(z) { z = x; }",
		},
		{
			"Forwarding through a kept temporary",
			"f(x)(z) { t = x + 1; u = t * t; z = u + 1; }",
			"f(x)(z) { t = (x + 1); z = ((t * t) + 1); }",
		},
		{
			"Several forwarded temporaries",
			"f(x, y)(z) { t = x + 1; u = y * 2; z = u - t; }",
			"f(x, y)(z) { z = ((y * 2) - (x + 1)); }",
		},
		{
			"Return read by a later return",
			"f(x)(y, z) { y = x + 1; z = y * 2; }",
			"f(x)(y, z) { y = (x + 1); z = (y * 2); }",
		},
		{
			"Division folds away",
			"f(x)(z) { t = 1 / 2; z = x * t; }",
			fmt.Sprintf("f(x)(z) { z = (x * %s); }", half),
		},
		{
			"Constants in exponents",
			"e = 3; f(x)(z) { z = x @ (e - 1); }",
			"e = 3; f(x)(z) { z = (x @ 2); }",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := condense(t, tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.expected, itemsString(prog))
		})
	}
}

func TestFunctionCondenserErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		symbol string
		msg    string
	}{
		{"Duplicate argument", "f(a, a)(b) { b = a; }", "a", "listed twice"},
		{"Argument shadows constant", "k = 1; f(k)(b) { b = k; }", "k", "shadows a constant"},
		{"Duplicate return", "f(a)(b, b) { b = a; }", "b", "listed twice"},
		{"Argument is a return", "f(a)(a) { a = 1; }", "a", "both an argument and a return"},
		{"Assign to constant", "k = 1; f(a)(b) { k = a; b = a; }", "k", "cannot assign to constant"},
		{"Assign to argument", "f(a)(b) { a = 1; b = a; }", "a", "cannot assign to argument"},
		{"Assigned twice", "f(a)(b) { b = a; b = a + 1; }", "b", "assigned more than once"},
		{"Undeclared symbol", "f(a)(b) { b = c; }", "c", "undeclared symbol"},
		{"Read before assignment", "f(a)(b) { b = t; t = a; }", "t", "undeclared symbol"},
		{"Return never assigned", "f(a)(b, c) { b = a; }", "c", "never assigned"},
		{"Run-time division", "f(a)(b) { b = 1 / a; }", "b", "division"},
		{"Other function's argument", "f(a)(b) { b = a; } g(x)(y) { y = a; }", "a", "undeclared symbol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := condense(t, tt.input)
			var e *Error
			require.ErrorAs(t, err, &e)
			require.Equal(t, KindSemantic, e.Kind)
			require.Equal(t, tt.symbol, e.Symbol)
			require.Contains(t, e.Error(), tt.msg)
		})
	}

	_, err := condense(t, "f(a)(b) { t = 1 / 0; b = a; }")
	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, "t", e.Symbol)
	require.ErrorIs(t, err, fieldmath.ErrDivideByZero)
}
