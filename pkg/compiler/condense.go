package compiler

import (
	"math/big"

	"whitfield/pkg/fieldmath"
)

// LimitCondenser folds the field declaration into a single literal using
// unbounded integer arithmetic.
type LimitCondenser struct{}

func (LimitCondenser) Name() string         { return "LimitCondenser" }
func (LimitCondenser) RunsAfter() []string  { return []string{"Importer"} }
func (LimitCondenser) RunsBefore() []string { return nil }

func (LimitCondenser) Run(prog *Program) error {
	folded, err := Fold(prog.Limit, nil, nil)
	if err != nil {
		return err
	}
	lit, ok := folded.(*Literal)
	if !ok {
		return semanticErrorf("field", "modulus must be a compile-time constant, got %s", folded)
	}
	if lit.Value.Cmp(big.NewInt(2)) < 0 {
		return semanticErrorf("field", "modulus must be at least 2, got %s", lit.Value)
	}
	prog.Limit = lit
	return nil
}

// ConstantCondenser folds every constant in document order. A constant may
// only refer to constants declared before it.
type ConstantCondenser struct{}

func (ConstantCondenser) Name() string         { return "ConstantCondenser" }
func (ConstantCondenser) RunsAfter() []string  { return []string{"LimitCondenser"} }
func (ConstantCondenser) RunsBefore() []string { return nil }

func (ConstantCondenser) Run(prog *Program) error {
	mod := prog.Modulus()
	if mod == nil {
		return internalErrorf("constants folded before the modulus")
	}

	names := make(map[string]bool)
	known := make(map[string]*big.Int)
	for _, it := range prog.Items {
		var name string
		switch n := it.(type) {
		case *Constant:
			name = n.Name
		case *Function:
			name = n.Name
		default:
			return internalErrorf("unexpanded item %s", it)
		}
		if names[name] {
			return semanticErrorf(name, "%q declared more than once", name)
		}
		names[name] = true

		c, ok := it.(*Constant)
		if !ok {
			continue
		}
		folded, err := Fold(c.Value, mod, known)
		if err != nil {
			return withSymbol(c.Name, err)
		}
		lit, ok := folded.(*Literal)
		if !ok {
			return semanticErrorf(c.Name, "constant %q is not a compile-time value: %s", c.Name, folded)
		}
		v := fieldmath.Reduce(lit.Value, mod)
		c.Value = &Literal{Value: v}
		known[c.Name] = v
	}
	return nil
}

// FunctionCondenser folds function bodies against the constants and
// removes assignments that no longer need to exist at run time:
//
//   - a temporary that folds to a literal is propagated into later
//     assignments and dropped;
//   - a temporary read exactly once is substituted into its reader;
//   - a temporary never read is dropped.
//
// Assignments to return symbols are always kept. Each target is assigned
// once per function.
type FunctionCondenser struct{}

func (FunctionCondenser) Name() string { return "FunctionCondenser" }
func (FunctionCondenser) RunsAfter() []string {
	return []string{"LimitCondenser", "ConstantCondenser"}
}
func (FunctionCondenser) RunsBefore() []string { return nil }

func (FunctionCondenser) Run(prog *Program) error {
	mod := prog.Modulus()
	if mod == nil {
		return internalErrorf("functions folded before the modulus")
	}
	consts := make(map[string]*big.Int)
	for _, c := range prog.Constants() {
		lit, ok := c.Value.(*Literal)
		if !ok {
			return internalErrorf("constant %q not folded", c.Name)
		}
		consts[c.Name] = lit.Value
	}

	for _, fn := range prog.Functions() {
		if err := condenseFunction(fn, mod, consts); err != nil {
			return err
		}
	}
	return nil
}

func condenseFunction(fn *Function, mod *big.Int, consts map[string]*big.Int) error {
	args := make(map[string]bool, len(fn.Args))
	for _, a := range fn.Args {
		if args[a] {
			return semanticErrorf(a, "%s: argument %q listed twice", fn.Name, a)
		}
		if _, ok := consts[a]; ok {
			return semanticErrorf(a, "%s: argument %q shadows a constant", fn.Name, a)
		}
		args[a] = true
	}
	rets := make(map[string]bool, len(fn.Rets))
	for _, r := range fn.Rets {
		if rets[r] {
			return semanticErrorf(r, "%s: return %q listed twice", fn.Name, r)
		}
		if args[r] {
			return semanticErrorf(r, "%s: %q is both an argument and a return", fn.Name, r)
		}
		rets[r] = true
	}

	known := make(map[string]*big.Int, len(consts))
	for k, v := range consts {
		known[k] = v
	}
	assigned := make(map[string]bool)
	bound := make(map[string]bool, len(args))
	for a := range args {
		bound[a] = true
	}

	body := make([]*Assignment, 0, len(fn.Body))
	for _, a := range fn.Body {
		switch {
		case consts[a.Target] != nil:
			return semanticErrorf(a.Target, "%s: cannot assign to constant %q", fn.Name, a.Target)
		case args[a.Target]:
			return semanticErrorf(a.Target, "%s: cannot assign to argument %q", fn.Name, a.Target)
		case assigned[a.Target]:
			return semanticErrorf(a.Target, "%s: %q assigned more than once", fn.Name, a.Target)
		}
		assigned[a.Target] = true

		folded, err := Fold(a.Value, mod, known)
		if err != nil {
			return withSymbol(a.Target, err)
		}
		if lit, ok := folded.(*Literal); ok && !rets[a.Target] {
			known[a.Target] = lit.Value
			continue
		}
		if err := checkRuntimeExpr(fn.Name, a.Target, folded, bound); err != nil {
			return err
		}
		bound[a.Target] = true
		body = append(body, &Assignment{Target: a.Target, Value: folded})
	}

	for _, r := range fn.Rets {
		if !assigned[r] {
			return semanticErrorf(r, "%s: return %q is never assigned", fn.Name, r)
		}
	}

	fn.Body = forwardTemporaries(body, rets)
	return nil
}

// checkRuntimeExpr verifies that every name read by expr is bound and
// that expr only uses operators with a run-time implementation.
func checkRuntimeExpr(fn, target string, expr Expr, bound map[string]bool) error {
	var err error
	Walk(expr, func(e Expr) {
		if err != nil {
			return
		}
		switch n := e.(type) {
		case *Identifier:
			if !bound[n.Name] {
				err = semanticErrorf(n.Name, "%s: undeclared symbol %q in assignment to %q", fn, n.Name, target)
			}
		case *BinaryOp:
			if n.Op == OpDiv {
				err = semanticErrorf(target, "%s: division %s needs compile-time operands", fn, n)
			}
		}
	})
	return err
}

// forwardTemporaries substitutes temporaries read exactly once into their
// reader and drops temporaries that are never read.
func forwardTemporaries(body []*Assignment, rets map[string]bool) []*Assignment {
	uses := make(map[string]int)
	for _, a := range body {
		Walk(a.Value, func(e Expr) {
			if id, ok := e.(*Identifier); ok {
				uses[id.Name]++
			}
		})
	}

	pending := make(map[string]Expr)
	out := make([]*Assignment, 0, len(body))
	for _, a := range body {
		value := substitute(a.Value, pending)
		if !rets[a.Target] && uses[a.Target] <= 1 {
			if uses[a.Target] == 1 {
				pending[a.Target] = value
			}
			continue
		}
		out = append(out, &Assignment{Target: a.Target, Value: value})
	}
	return out
}

func substitute(expr Expr, pending map[string]Expr) Expr {
	switch n := expr.(type) {
	case *Identifier:
		if v, ok := pending[n.Name]; ok {
			delete(pending, n.Name)
			return v
		}
		return n
	case *BinaryOp:
		return &BinaryOp{Op: n.Op, Left: substitute(n.Left, pending), Right: substitute(n.Right, pending)}
	}
	return expr
}

// withSymbol attaches symbol to a compiler error that names none.
func withSymbol(symbol string, err error) error {
	if e, ok := err.(*Error); ok && e.Symbol == "" {
		e.Symbol = symbol
	}
	return err
}
