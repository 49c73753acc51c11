package compiler

import (
	"fmt"
	"math/big"
	"strings"
)

//  Operators

// Op is one of the five binary operators of the language.
type Op int

const (
	OpExp Op = iota // @  modular exponentiation, right-associative
	OpMul           // *
	OpDiv           // /  multiplication by the modular inverse
	OpAdd           // +
	OpSub           // -
)

var opSymbols = [...]byte{
	OpExp: '@',
	OpMul: '*',
	OpDiv: '/',
	OpAdd: '+',
	OpSub: '-',
}

// Symbol returns the operator's source character.
func (o Op) Symbol() byte { return opSymbols[o] }

func (o Op) String() string { return string(o.Symbol()) }

// Precedence ranks operators; higher binds tighter.
func (o Op) Precedence() int {
	switch o {
	case OpExp:
		return 3
	case OpMul, OpDiv:
		return 2
	default:
		return 1
	}
}

// RightAssoc reports whether chains of o fold from the right.
func (o Op) RightAssoc() bool { return o == OpExp }

// tokenOps maps operator tokens to their Op.
var tokenOps = map[TokenType]Op{
	AT:    OpExp,
	STAR:  OpMul,
	SLASH: OpDiv,
	PLUS:  OpAdd,
	MINUS: OpSub,
}

//  Expression nodes

// Expr is implemented by every node that produces a value.
type Expr interface {
	exprNode()
	String() string
}

// Literal is a non-negative arbitrary-precision integer.
//
//	x = 0x1 234;
//	    ^^^^^^^  Literal{Value: 0x1234}
type Literal struct {
	Value *big.Int
}

func (*Literal) exprNode()        {}
func (l *Literal) String() string { return l.Value.String() }

// NewLiteral returns a Literal holding v.
func NewLiteral(v int64) *Literal { return &Literal{Value: big.NewInt(v)} }

// Identifier is a read of a constant, argument or earlier assignment.
type Identifier struct {
	Name string
}

func (*Identifier) exprNode()        {}
func (i *Identifier) String() string { return i.Name }

// BinaryOp represents Left Op Right. Nodes are strictly binary: chains are
// folded into nested BinaryOps by the parser.
//
//	a + b * c
//	  ^
//	  BinaryOp{Op: OpAdd, Left: a, Right: BinaryOp{Op: OpMul, Left: b, Right: c}}
type BinaryOp struct {
	Op    Op
	Left  Expr
	Right Expr
}

func (*BinaryOp) exprNode() {}
func (b *BinaryOp) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

//  Items

// Item is a top-level declaration.
type Item interface {
	itemNode()
	String() string
}

// Import is replaced by the items of another unit during optimization.
type Import struct {
	Path string
	Pos  Position
}

func (*Import) itemNode()        {}
func (i *Import) String() string { return fmt.Sprintf("import %s;", i.Path) }

// Constant binds a name to a compile-time value.
type Constant struct {
	Name  string
	Value Expr
}

func (*Constant) itemNode()        {}
func (c *Constant) String() string { return fmt.Sprintf("%s = %s;", c.Name, c.Value) }

// Assignment binds Target to the value of an expression inside a function.
type Assignment struct {
	Target string
	Value  Expr
}

func (a *Assignment) String() string { return fmt.Sprintf("%s = %s;", a.Target, a.Value) }

// Function maps argument values to return values through its body.
//
//	mac(a, b, c)(r) { r = a * b + c; }
type Function struct {
	Name string
	Args []string
	Rets []string
	Body []*Assignment
}

func (*Function) itemNode() {}
func (f *Function) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s)(%s) {", f.Name, strings.Join(f.Args, ", "), strings.Join(f.Rets, ", "))
	for _, a := range f.Body {
		b.WriteString(" ")
		b.WriteString(a.String())
	}
	b.WriteString(" }")
	return b.String()
}

// IsRet reports whether name is one of the function's return symbols.
func (f *Function) IsRet(name string) bool {
	for _, r := range f.Rets {
		if r == name {
			return true
		}
	}
	return false
}

// Program is the root of a compilation: the modulus and the ordered items.
type Program struct {
	// Name prefixes every emitted symbol (wht_<Name>_...).
	Name  string
	Limit Expr
	Items []Item
}

func (p *Program) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "field %s;", p.Limit)
	for _, it := range p.Items {
		b.WriteString("\n")
		b.WriteString(it.String())
	}
	return b.String()
}

// Modulus returns the folded modulus, or nil while it is still an expression.
func (p *Program) Modulus() *big.Int {
	if lit, ok := p.Limit.(*Literal); ok {
		return lit.Value
	}
	return nil
}

// Constants returns the program's constants in document order.
func (p *Program) Constants() []*Constant {
	var out []*Constant
	for _, it := range p.Items {
		if c, ok := it.(*Constant); ok {
			out = append(out, c)
		}
	}
	return out
}

// Functions returns the program's functions in document order.
func (p *Program) Functions() []*Function {
	var out []*Function
	for _, it := range p.Items {
		if f, ok := it.(*Function); ok {
			out = append(out, f)
		}
	}
	return out
}
