package compiler

import (
	"fmt"
	"iter"
	"math/big"
	"path/filepath"
	"sort"
	"strings"
)

// Generator turns a fully folded program into lines of target text. The
// program is validated before the sequence is returned; iterating the
// sequence does no I/O and never fails.
type Generator interface {
	Generate(prog *Program) (iter.Seq[string], error)
}

// Backends maps target names, which double as output file extensions, to
// their generators.
var Backends = map[string]Generator{
	"ll": LLVMGenerator{},
	"h":  HeaderGenerator{},
}

// Targets returns the registered target names in sorted order.
func Targets() []string {
	names := make([]string, 0, len(Backends))
	for k := range Backends {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// BackendFor returns the generator registered for target.
func BackendFor(target string) (Generator, error) {
	g, ok := Backends[target]
	if !ok {
		return nil, fmt.Errorf("unknown target %q (available: %s)", target, strings.Join(Targets(), ", "))
	}
	return g, nil
}

// BackendForPath picks the generator from the extension of an output path.
func BackendForPath(path string) (string, Generator, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", nil, fmt.Errorf("output %q has no extension to select a target", path)
	}
	g, err := BackendFor(ext)
	if err != nil {
		return "", nil, err
	}
	return ext, g, nil
}

// checkFolded verifies what every backend assumes: a named program with a
// literal modulus, literal constants, no imports left, and function bodies
// that only read bound names, use run-time operators and assign every
// return. It returns the modulus.
func checkFolded(prog *Program) (*big.Int, error) {
	if !IsIdentifier(prog.Name) {
		return nil, internalErrorf("program name %q is not an identifier", prog.Name)
	}
	limit := prog.Modulus()
	if limit == nil || limit.Cmp(big.NewInt(2)) < 0 {
		return nil, internalErrorf("modulus %s is not folded", prog.Limit)
	}

	consts := make(map[string]bool)
	for _, it := range prog.Items {
		switch n := it.(type) {
		case *Constant:
			lit, ok := n.Value.(*Literal)
			if !ok {
				return nil, internalErrorf("constant %q is not folded: %s", n.Name, n.Value)
			}
			if lit.Value.Sign() < 0 || lit.Value.Cmp(limit) >= 0 {
				return nil, internalErrorf("constant %q = %s outside the field", n.Name, lit.Value)
			}
			consts[n.Name] = true
		case *Function:
		default:
			return nil, internalErrorf("unexpected item %s", it)
		}
	}

	for _, fn := range prog.Functions() {
		bound := make(map[string]bool)
		for _, a := range fn.Args {
			bound[a] = true
		}
		for _, a := range fn.Body {
			var bad error
			Walk(a.Value, func(e Expr) {
				if bad != nil {
					return
				}
				switch n := e.(type) {
				case *Identifier:
					if !bound[n.Name] && !consts[n.Name] {
						bad = internalErrorf("%s: unresolved symbol %q", fn.Name, n.Name)
					}
				case *BinaryOp:
					if _, ok := primitives[n.Op]; !ok {
						bad = internalErrorf("%s: no run-time primitive for %q", fn.Name, n.Op)
					}
				}
			})
			if bad != nil {
				return nil, bad
			}
			bound[a.Target] = true
		}
		for _, r := range fn.Rets {
			if !bound[r] {
				return nil, internalErrorf("%s: return %q is never assigned", fn.Name, r)
			}
		}
	}
	return limit, nil
}
