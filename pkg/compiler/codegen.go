package compiler

import (
	"fmt"
	"iter"
	"math/big"
	"strings"

	"whitfield/pkg/fieldmath"
)

// LLVMGenerator emits a textual LLVM IR module. Every function of the
// program becomes an exported routine taking one pointer per argument and
// one per return value; the arithmetic is done by four internal primitives
// over fixed-width registers.
type LLVMGenerator struct{}

// primitives maps each run-time operator to the routine implementing it.
// Division has no run-time primitive.
var primitives = map[Op]string{
	OpAdd: "add",
	OpSub: "sub",
	OpMul: "mul",
	OpExp: "exp",
}

// operand is an LLVM value usable as an instruction argument: a register
// such as "%4" or an integer literal.
type operand string

// regAlloc hands out numbered registers inside one routine.
type regAlloc struct {
	next int
}

func (ra *regAlloc) alloc() operand {
	r := operand(fmt.Sprintf("%%%d", ra.next))
	ra.next++
	return r
}

// llvmModule carries the per-program state of one generation.
type llvmModule struct {
	prog    *Program
	limit   *big.Int
	store   int // bits per stored value
	work    int // bits per register
	globals map[string]string
}

func (LLVMGenerator) Generate(prog *Program) (iter.Seq[string], error) {
	limit, err := checkFolded(prog)
	if err != nil {
		return nil, err
	}
	m := &llvmModule{
		prog:    prog,
		limit:   limit,
		store:   fieldmath.Bits(limit),
		work:    fieldmath.WorkBits(limit),
		globals: make(map[string]string),
	}
	for _, c := range prog.Constants() {
		m.globals[c.Name] = fmt.Sprintf("@wht_%s_%s", prog.Name, c.Name)
	}

	return func(yield func(string) bool) {
		emit := func(lines []string) bool {
			for _, l := range lines {
				if !yield(l) {
					return false
				}
			}
			return true
		}

		if !emit(m.addSub("add", "add", "sub")) ||
			!emit(m.addSub("sub", "sub", "add")) ||
			!emit(m.ladder("mul", "add", 0)) ||
			!emit(m.ladder("exp", "mul", 1)) {
			return
		}
		for _, c := range prog.Constants() {
			v := c.Value.(*Literal).Value
			if !yield(fmt.Sprintf("%s = constant i%d %s", m.globals[c.Name], m.store, v)) {
				return
			}
		}
		for _, fn := range prog.Functions() {
			if !emit(m.function(fn)) {
				return
			}
		}
	}, nil
}

func (m *llvmModule) ty() string { return fmt.Sprintf("i%d", m.work) }

// header opens an internal primitive. Its parameters are %0 and %1, the
// entry block takes %2, so the body starts numbering at %3.
func (m *llvmModule) header(name string) string {
	t := m.ty()
	return fmt.Sprintf("define internal %s @%s(%s, %s) {", t, name, t, t)
}

// addSub builds @add or @sub: compute the raw result, compute its
// correction by the modulus, and keep whichever lies in [0, L).
func (m *llvmModule) addSub(name, op, fix string) []string {
	t := m.ty()
	return []string{
		"",
		m.header(name),
		fmt.Sprintf("    %%3 = %s %s %%0, %%1", op, t),
		fmt.Sprintf("    %%4 = %s %s %%3, %s", fix, t, m.limit),
		fmt.Sprintf("    %%5 = icmp ult %s %%3, %s", t, m.limit),
		fmt.Sprintf("    %%6 = select i1 %%5, %s %%3, %s %%4", t, t),
		fmt.Sprintf("    ret %s %%6", t),
		"}",
	}
}

// ladder builds @mul or @exp as a Montgomery ladder unrolled over every
// bit of the second operand, most significant first. step is the primitive
// combining the two ladder values (add for mul, mul for exp) and identity
// its neutral element.
func (m *llvmModule) ladder(name, step string, identity int) []string {
	t := m.ty()
	lines := []string{
		"",
		m.header(name),
		fmt.Sprintf("    %%3 = add %s %%0, 0", t),
		fmt.Sprintf("    %%4 = add %s %d, 0", t, identity),
	}

	r := 4
	one := big.NewInt(1)
	for o := m.work - 1; o >= 0; o-- {
		mask := new(big.Int).Lsh(one, uint(o))
		lines = append(lines,
			fmt.Sprintf("    %%%d = and %s %%1, %s", r+1, t, mask),
			fmt.Sprintf("    %%%d = icmp ne %s %%%d, 0", r+2, t, r+1),
			fmt.Sprintf("    %%%d = select i1 %%%d, %s %%%d, %s %%%d", r+3, r+2, t, r-1, t, r),
			fmt.Sprintf("    %%%d = call %s @%s(%s %%%d, %s %%%d)", r+4, t, step, t, r-1, t, r),
			fmt.Sprintf("    %%%d = call %s @%s(%s %%%d, %s %%%d)", r+5, t, step, t, r+3, t, r+3),
			fmt.Sprintf("    %%%d = select i1 %%%d, %s %%%d, %s %%%d", r+6, r+2, t, r+5, t, r+4),
			fmt.Sprintf("    %%%d = select i1 %%%d, %s %%%d, %s %%%d", r+7, r+2, t, r+4, t, r+5),
		)
		r += 7
	}
	return append(lines, fmt.Sprintf("    ret %s %%%d", t, r), "}")
}

// function emits one exported routine.
func (m *llvmModule) function(fn *Function) []string {
	params := make([]string, 0, len(fn.Args)+len(fn.Rets))
	for _, n := range append(append([]string(nil), fn.Args...), fn.Rets...) {
		params = append(params, "ptr %"+n)
	}
	lines := []string{
		"",
		fmt.Sprintf("define void @wht_%s_%s(%s) {", m.prog.Name, fn.Name, strings.Join(params, ", ")),
	}

	// The entry block is %0.
	ra := &regAlloc{next: 1}
	env := make(map[string]operand, len(fn.Args)+len(fn.Body))
	for _, n := range fn.Args {
		v, ll := m.load("%"+n, ra)
		lines = append(lines, ll...)
		env[n] = v
	}

	for _, a := range fn.Body {
		v, ll := m.emitExpr(a.Value, env, ra)
		lines = append(lines, ll...)
		env[a.Target] = v
	}

	for _, n := range fn.Rets {
		v := env[n]
		if m.work != m.store && isRegister(v) {
			r := ra.alloc()
			lines = append(lines, fmt.Sprintf("    %s = trunc %s %s to i%d", r, m.ty(), v, m.store))
			v = r
		}
		lines = append(lines, fmt.Sprintf("    store i%d %s, ptr %%%s", m.store, v, n))
	}
	return append(lines, "    ret void", "}")
}

// load reads one stored value from ptr and widens it to register width.
func (m *llvmModule) load(ptr string, ra *regAlloc) (operand, []string) {
	r := ra.alloc()
	lines := []string{fmt.Sprintf("    %s = load i%d, ptr %s", r, m.store, ptr)}
	if m.work != m.store {
		w := ra.alloc()
		lines = append(lines, fmt.Sprintf("    %s = zext i%d %s to %s", w, m.store, r, m.ty()))
		r = w
	}
	return r, lines
}

// emitExpr returns the operand holding the value of expr together with the
// instructions computing it. Registers are numbered in emission order.
func (m *llvmModule) emitExpr(expr Expr, env map[string]operand, ra *regAlloc) (operand, []string) {
	switch n := expr.(type) {
	case *Literal:
		return operand(new(big.Int).Mod(n.Value, m.limit).String()), nil

	case *Identifier:
		if v, ok := env[n.Name]; ok {
			return v, nil
		}
		return m.load(m.globals[n.Name], ra)

	case *BinaryOp:
		l, lines := m.emitExpr(n.Left, env, ra)
		r, rl := m.emitExpr(n.Right, env, ra)
		lines = append(lines, rl...)
		res := ra.alloc()
		t := m.ty()
		lines = append(lines, fmt.Sprintf("    %s = call %s @%s(%s %s, %s %s)", res, t, primitives[n.Op], t, l, t, r))
		return res, lines
	}
	return "", nil
}

func isRegister(v operand) bool {
	return strings.HasPrefix(string(v), "%")
}
