// Package asm reads the LLVM IR subset emitted by the compiler into a
// Module that pkg/cpu can execute.
//
// Supported: integer globals ("@g = constant iN v"), function definitions
// with integer or ptr parameters, and the instructions add, sub, and,
// icmp ult/ne, select, call, load, store, zext, trunc and ret.
package asm

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

type Opcode int

const (
	OpAdd Opcode = iota
	OpSub
	OpAnd
	OpICmpULT
	OpICmpNE
	OpSelect
	OpCall
	OpLoad
	OpStore
	OpZext
	OpTrunc
	OpRet
	OpRetVoid
)

var binaryOps = map[string]Opcode{
	"add": OpAdd,
	"sub": OpSub,
	"and": OpAnd,
}

var castOps = map[string]Opcode{
	"zext":  OpZext,
	"trunc": OpTrunc,
}

var predicates = map[string]Opcode{
	"ult": OpICmpULT,
	"ne":  OpICmpNE,
}

type OperandKind int

const (
	OperandConst  OperandKind = iota
	OperandReg                // integer register, Slot indexes the frame
	OperandParam              // ptr parameter, Slot is the parameter index
	OperandGlobal             // ptr to a global, Name is the global
)

type Operand struct {
	Kind  OperandKind
	Slot  int
	Name  string
	Const *big.Int
}

// Instr is one resolved instruction. Width is the bit width of the
// result, or of the stored value for store. From is the source width of
// casts.
type Instr struct {
	Line   int
	Op     Opcode
	Dest   int // frame slot, -1 when the instruction defines nothing
	Width  int
	From   int
	Args   []Operand
	Callee string
}

type Param struct {
	Name  string
	Width int // 0 for ptr parameters
}

func (p Param) IsPtr() bool { return p.Width == 0 }

type Function struct {
	Name     string
	Internal bool
	RetWidth int // 0 for void
	Params   []Param
	Body     []Instr
	Slots    int // frame size: integer parameters plus defined registers
}

type Global struct {
	Name  string
	Width int
	Value *big.Int
}

type Module struct {
	Globals   map[string]*Global
	Functions map[string]*Function
	// Order lists function names in definition order.
	Order []string
}

// Exported returns the non-internal functions in definition order.
func (m *Module) Exported() []*Function {
	var out []*Function
	for _, n := range m.Order {
		if f := m.Functions[n]; !f.Internal {
			out = append(out, f)
		}
	}
	return out
}

type Assembler struct {
	mod *Module
}

type parsedLine struct {
	lineNo int
	tokens []string
}

func NewAssembler() *Assembler {
	return &Assembler{mod: &Module{
		Globals:   make(map[string]*Global),
		Functions: make(map[string]*Function),
	}}
}

func Assemble(code string) (*Module, error) {
	return NewAssembler().Assemble(code)
}

// Assemble reads globals and signatures in a first pass so calls and loads
// may refer forward, then resolves every function body.
func (a *Assembler) Assemble(code string) (*Module, error) {
	var lines []parsedLine
	for i, raw := range strings.Split(code, "\n") {
		p := parseLine(raw, i+1)
		if len(p.tokens) > 0 {
			lines = append(lines, p)
		}
	}

	if err := a.pass1(lines); err != nil {
		return nil, err
	}
	if err := a.pass2(lines); err != nil {
		return nil, err
	}
	return a.mod, nil
}

func (a *Assembler) pass1(lines []parsedLine) error {
	inBody := false
	for _, p := range lines {
		t := p.tokens
		switch {
		case inBody:
			if t[0] == "}" {
				inBody = false
			}

		case t[0] == "define":
			fn, err := parseSignature(p)
			if err != nil {
				return err
			}
			if _, dup := a.mod.Functions[fn.Name]; dup {
				return fmt.Errorf("duplicate function '%s' on line %d", fn.Name, p.lineNo)
			}
			a.mod.Functions[fn.Name] = fn
			a.mod.Order = append(a.mod.Order, fn.Name)
			inBody = true

		case strings.HasPrefix(t[0], "@"):
			g, err := parseGlobal(p)
			if err != nil {
				return err
			}
			if _, dup := a.mod.Globals[g.Name]; dup {
				return fmt.Errorf("duplicate global '%s' on line %d", g.Name, p.lineNo)
			}
			a.mod.Globals[g.Name] = g

		default:
			return fmt.Errorf("unexpected '%s' outside a function on line %d", t[0], p.lineNo)
		}
	}
	if inBody {
		return fmt.Errorf("unterminated function body")
	}
	return nil
}

func (a *Assembler) pass2(lines []parsedLine) error {
	var fn *Function
	var regs map[string]int
	var params map[string]int

	for _, p := range lines {
		t := p.tokens
		if fn == nil {
			if t[0] != "define" {
				continue
			}
			fn = a.mod.Functions[strings.TrimPrefix(t[signatureNameIndex(t)], "@")]
			regs = make(map[string]int)
			params = make(map[string]int)
			for i, prm := range fn.Params {
				if prm.IsPtr() {
					params[prm.Name] = i
				} else {
					regs[prm.Name] = fn.Slots
					fn.Slots++
				}
			}
			continue
		}

		if t[0] == "}" {
			if n := len(fn.Body); n == 0 || (fn.Body[n-1].Op != OpRet && fn.Body[n-1].Op != OpRetVoid) {
				return fmt.Errorf("function '%s' does not end in ret (line %d)", fn.Name, p.lineNo)
			}
			fn = nil
			continue
		}

		in, err := a.parseInstr(p, fn, regs, params)
		if err != nil {
			return err
		}
		fn.Body = append(fn.Body, in)
	}
	return nil
}

// parseInstr resolves one body line. Registers must be defined before use.
func (a *Assembler) parseInstr(p parsedLine, fn *Function, regs, params map[string]int) (Instr, error) {
	t := p.tokens
	in := Instr{Line: p.lineNo, Dest: -1}

	var dest string
	if len(t) >= 3 && t[1] == "=" {
		dest = t[0]
		t = t[2:]
	}
	fail := func(format string, args ...any) (Instr, error) {
		return Instr{}, fmt.Errorf("line %d: %s", p.lineNo, fmt.Sprintf(format, args...))
	}

	intOperand := func(tok string) (Operand, error) {
		if strings.HasPrefix(tok, "%") {
			slot, ok := regs[tok]
			if !ok {
				return Operand{}, fmt.Errorf("line %d: use of undefined register %s", p.lineNo, tok)
			}
			return Operand{Kind: OperandReg, Slot: slot}, nil
		}
		v, ok := new(big.Int).SetString(tok, 10)
		if !ok {
			return Operand{}, fmt.Errorf("line %d: invalid operand '%s'", p.lineNo, tok)
		}
		return Operand{Kind: OperandConst, Const: v}, nil
	}
	ptrOperand := func(tok string) (Operand, error) {
		if strings.HasPrefix(tok, "@") {
			name := tok[1:]
			if _, ok := a.mod.Globals[name]; !ok {
				return Operand{}, fmt.Errorf("line %d: unknown global %s", p.lineNo, tok)
			}
			return Operand{Kind: OperandGlobal, Name: name}, nil
		}
		idx, ok := params[tok]
		if !ok {
			return Operand{}, fmt.Errorf("line %d: %s is not a ptr parameter", p.lineNo, tok)
		}
		return Operand{Kind: OperandParam, Slot: idx}, nil
	}
	ints := func(toks ...string) error {
		for _, tok := range toks {
			op, err := intOperand(tok)
			if err != nil {
				return err
			}
			in.Args = append(in.Args, op)
		}
		return nil
	}

	var err error
	mnemonic := t[0]
	binOp, isBinary := binaryOps[mnemonic]
	castOp, isCast := castOps[mnemonic]
	switch {
	case isBinary:
		// add iN x, y
		if len(t) != 4 {
			return fail("%s expects a type and two operands", mnemonic)
		}
		in.Op = binOp
		if in.Width, err = parseWidth(t[1]); err != nil {
			return fail("%v", err)
		}
		err = ints(t[2], t[3])

	case mnemonic == "icmp":
		// icmp pred iN x, y
		if len(t) != 5 {
			return fail("icmp expects a predicate, a type and two operands")
		}
		op, ok := predicates[t[1]]
		if !ok {
			return fail("unsupported icmp predicate '%s'", t[1])
		}
		in.Op = op
		if in.From, err = parseWidth(t[2]); err != nil {
			return fail("%v", err)
		}
		in.Width = 1
		err = ints(t[3], t[4])

	case mnemonic == "select":
		// select i1 c, iN x, iN y
		if len(t) != 7 || t[1] != "i1" || t[3] != t[5] {
			return fail("malformed select")
		}
		in.Op = OpSelect
		if in.Width, err = parseWidth(t[3]); err != nil {
			return fail("%v", err)
		}
		err = ints(t[2], t[4], t[6])

	case mnemonic == "call":
		// call iN @f(iN x, iN y)
		if len(t) < 3 || !strings.HasPrefix(t[2], "@") || len(t)%2 != 1 {
			return fail("malformed call")
		}
		in.Op = OpCall
		in.Callee = t[2][1:]
		callee, ok := a.mod.Functions[in.Callee]
		if !ok {
			return fail("call to unknown function %s", t[2])
		}
		if in.Width, err = parseWidth(t[1]); err != nil {
			return fail("%v", err)
		}
		if callee.RetWidth != in.Width {
			return fail("call of %s expects i%d result", t[2], callee.RetWidth)
		}
		if nargs := (len(t) - 3) / 2; nargs != len(callee.Params) {
			return fail("%s takes %d arguments, got %d", t[2], len(callee.Params), nargs)
		}
		for i := 3; i < len(t); i += 2 {
			if err = ints(t[i+1]); err != nil {
				break
			}
		}

	case mnemonic == "load":
		// load iN, ptr p
		if len(t) != 4 || t[2] != "ptr" {
			return fail("malformed load")
		}
		in.Op = OpLoad
		if in.Width, err = parseWidth(t[1]); err != nil {
			return fail("%v", err)
		}
		var op Operand
		if op, err = ptrOperand(t[3]); err == nil {
			in.Args = append(in.Args, op)
		}

	case mnemonic == "store":
		// store iN v, ptr p
		if len(t) != 5 || t[3] != "ptr" {
			return fail("malformed store")
		}
		in.Op = OpStore
		if in.Width, err = parseWidth(t[1]); err != nil {
			return fail("%v", err)
		}
		if err = ints(t[2]); err == nil {
			var op Operand
			if op, err = ptrOperand(t[4]); err == nil {
				in.Args = append(in.Args, op)
			}
		}

	case isCast:
		// zext iM v to iN
		if len(t) != 5 || t[3] != "to" {
			return fail("malformed %s", mnemonic)
		}
		in.Op = castOp
		if in.From, err = parseWidth(t[1]); err != nil {
			return fail("%v", err)
		}
		if in.Width, err = parseWidth(t[4]); err != nil {
			return fail("%v", err)
		}
		err = ints(t[2])

	case mnemonic == "ret":
		if len(t) == 2 && t[1] == "void" {
			if fn.RetWidth != 0 {
				return fail("ret void in function returning i%d", fn.RetWidth)
			}
			in.Op = OpRetVoid
			break
		}
		if len(t) != 3 {
			return fail("malformed ret")
		}
		in.Op = OpRet
		if in.Width, err = parseWidth(t[1]); err != nil {
			return fail("%v", err)
		}
		if in.Width != fn.RetWidth {
			return fail("ret i%d in function returning i%d", in.Width, fn.RetWidth)
		}
		err = ints(t[2])

	default:
		return fail("unknown instruction '%s'", mnemonic)
	}
	if err != nil {
		return Instr{}, err
	}

	definesValue := in.Op != OpStore && in.Op != OpRet && in.Op != OpRetVoid
	switch {
	case definesValue && dest == "":
		return fail("result of %s is not assigned", mnemonic)
	case !definesValue && dest != "":
		return fail("%s produces no value", mnemonic)
	case definesValue:
		if _, dup := regs[dest]; dup {
			return fail("register %s defined twice", dest)
		}
		regs[dest] = fn.Slots
		in.Dest = fn.Slots
		fn.Slots++
	}
	return in, nil
}

// parseSignature reads "define [internal] (void|iN) @name(params) {".
// Unnamed integer parameters are numbered %0, %1, ... as LLVM does.
func parseSignature(p parsedLine) (*Function, error) {
	t := p.tokens
	if t[len(t)-1] != "{" {
		return nil, fmt.Errorf("expected '{' at end of define on line %d", p.lineNo)
	}
	fn := &Function{}
	i := 1
	if i < len(t) && t[i] == "internal" {
		fn.Internal = true
		i++
	}
	if i+1 >= len(t) {
		return nil, fmt.Errorf("malformed define on line %d", p.lineNo)
	}
	if t[i] != "void" {
		w, err := parseWidth(t[i])
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", p.lineNo, err)
		}
		fn.RetWidth = w
	}
	i++
	if !strings.HasPrefix(t[i], "@") || !isIdentifier(t[i][1:]) {
		return nil, fmt.Errorf("invalid function name '%s' on line %d", t[i], p.lineNo)
	}
	fn.Name = t[i][1:]
	i++

	rest := t[i : len(t)-1]
	for j := 0; j < len(rest); {
		ty := rest[j]
		name := ""
		if j+1 < len(rest) && strings.HasPrefix(rest[j+1], "%") {
			name = rest[j+1]
			j += 2
		} else {
			j++
		}
		if name == "" {
			name = "%" + strconv.Itoa(len(fn.Params))
		}
		if ty == "ptr" {
			fn.Params = append(fn.Params, Param{Name: name})
			continue
		}
		w, err := parseWidth(ty)
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", p.lineNo, err)
		}
		fn.Params = append(fn.Params, Param{Name: name, Width: w})
	}
	return fn, nil
}

// signatureNameIndex returns the index of the "@name" token of a define.
func signatureNameIndex(t []string) int {
	for i, tok := range t {
		if strings.HasPrefix(tok, "@") {
			return i
		}
	}
	return 0
}

// parseGlobal reads "@name = constant iN value".
func parseGlobal(p parsedLine) (*Global, error) {
	t := p.tokens
	if len(t) != 5 || t[1] != "=" || t[2] != "constant" {
		return nil, fmt.Errorf("malformed global on line %d", p.lineNo)
	}
	name := t[0][1:]
	if !isIdentifier(name) {
		return nil, fmt.Errorf("invalid global name '%s' on line %d", t[0], p.lineNo)
	}
	w, err := parseWidth(t[3])
	if err != nil {
		return nil, fmt.Errorf("line %d: %v", p.lineNo, err)
	}
	v, ok := new(big.Int).SetString(t[4], 10)
	if !ok || v.Sign() < 0 || v.BitLen() > w {
		return nil, fmt.Errorf("invalid i%d initializer '%s' on line %d", w, t[4], p.lineNo)
	}
	return &Global{Name: name, Width: w, Value: v}, nil
}

// parseLine strips comments and splits a line into tokens. Commas and
// parentheses only separate tokens.
func parseLine(raw string, lineNo int) parsedLine {
	line := stripComments(raw)
	line = strings.NewReplacer(",", " ", "(", " ", ")", " ").Replace(line)
	return parsedLine{lineNo: lineNo, tokens: strings.Fields(line)}
}

func stripComments(line string) string {
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		return line[:idx]
	}
	return line
}

func parseWidth(tok string) (int, error) {
	if !strings.HasPrefix(tok, "i") {
		return 0, fmt.Errorf("expected integer type, got '%s'", tok)
	}
	w, err := strconv.Atoi(tok[1:])
	if err != nil || w < 1 {
		return 0, fmt.Errorf("invalid integer type '%s'", tok)
	}
	return w, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || r == '.' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}
