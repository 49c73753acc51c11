// Package cpu executes modules read by pkg/asm. Registers hold
// fixed-width unsigned integers; every result wraps modulo 2^width the
// way the hardware would.
package cpu

import (
	"errors"
	"fmt"
	"math/big"

	"whitfield/pkg/asm"
)

// MaxCallDepth bounds recursion through call instructions.
const MaxCallDepth = 64

var (
	ErrUnknownFunction = errors.New("unknown function")
	ErrStepLimit       = errors.New("step limit exceeded")
	ErrCallDepth       = errors.New("call depth exceeded")
)

// CPU runs functions of one module. It is not safe for concurrent use;
// create one CPU per goroutine.
type CPU struct {
	mod   *asm.Module
	masks map[int]*big.Int

	// Steps counts executed instructions across all calls.
	Steps uint64
	// MaxSteps stops execution once Steps exceeds it. Zero means no limit.
	MaxSteps uint64

	depth int
}

func NewCPU(mod *asm.Module) *CPU {
	return &CPU{mod: mod, masks: make(map[int]*big.Int)}
}

// Run calls an exported routine whose parameters are all pointers. The
// first len(args) pointers are loaded with args; the remaining ones are
// the return cells, which Run returns after the call.
func (c *CPU) Run(name string, args ...*big.Int) ([]*big.Int, error) {
	fn, ok := c.mod.Functions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	if len(args) > len(fn.Params) {
		return nil, fmt.Errorf("%s takes %d pointers, got %d arguments", name, len(fn.Params), len(args))
	}
	cells := make([]*big.Int, len(fn.Params))
	for i := range cells {
		cells[i] = new(big.Int)
		if i < len(args) {
			cells[i].Set(args[i])
		}
	}
	if err := c.Invoke(name, cells); err != nil {
		return nil, err
	}
	return cells[len(args):], nil
}

// Invoke calls a void routine with one memory cell per ptr parameter.
// Stores through a parameter update its cell in place.
func (c *CPU) Invoke(name string, cells []*big.Int) error {
	fn, ok := c.mod.Functions[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	if fn.RetWidth != 0 {
		return fmt.Errorf("%s returns i%d; use Call", name, fn.RetWidth)
	}
	if len(cells) != len(fn.Params) {
		return fmt.Errorf("%s takes %d pointers, got %d", name, len(fn.Params), len(cells))
	}
	for i, p := range fn.Params {
		if !p.IsPtr() {
			return fmt.Errorf("%s: parameter %d is i%d, not ptr", name, i, p.Width)
		}
	}
	_, err := c.exec(fn, nil, cells)
	return err
}

// Call calls a routine taking and returning integers.
func (c *CPU) Call(name string, args ...*big.Int) (*big.Int, error) {
	fn, ok := c.mod.Functions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	if fn.RetWidth == 0 {
		return nil, fmt.Errorf("%s returns void; use Invoke", name)
	}
	return c.call(fn, args)
}

func (c *CPU) call(fn *asm.Function, args []*big.Int) (*big.Int, error) {
	if len(args) != len(fn.Params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", fn.Name, len(fn.Params), len(args))
	}
	for i, p := range fn.Params {
		if p.IsPtr() {
			return nil, fmt.Errorf("%s: parameter %d is a pointer", fn.Name, i)
		}
	}
	return c.exec(fn, args, nil)
}

func (c *CPU) mask(width int) *big.Int {
	m, ok := c.masks[width]
	if !ok {
		m = new(big.Int).Lsh(big.NewInt(1), uint(width))
		m.Sub(m, big.NewInt(1))
		c.masks[width] = m
	}
	return m
}

// wrap reduces v modulo 2^width. Negative values wrap through their two's
// complement form.
func (c *CPU) wrap(v *big.Int, width int) *big.Int {
	return v.And(v, c.mask(width))
}

func (c *CPU) exec(fn *asm.Function, ints []*big.Int, cells []*big.Int) (*big.Int, error) {
	if c.depth >= MaxCallDepth {
		return nil, fmt.Errorf("%w in %s", ErrCallDepth, fn.Name)
	}
	c.depth++
	defer func() { c.depth-- }()

	frame := make([]big.Int, fn.Slots)
	slot := 0
	for i, p := range fn.Params {
		if p.IsPtr() {
			continue
		}
		c.wrap(frame[slot].Set(ints[i]), p.Width)
		slot++
	}

	value := func(op asm.Operand) *big.Int {
		if op.Kind == asm.OperandConst {
			return op.Const
		}
		return &frame[op.Slot]
	}
	cell := func(op asm.Operand) (*big.Int, error) {
		switch op.Kind {
		case asm.OperandParam:
			return cells[op.Slot], nil
		case asm.OperandGlobal:
			return c.mod.Globals[op.Name].Value, nil
		}
		return nil, fmt.Errorf("%s: operand is not a pointer", fn.Name)
	}

	for i := range fn.Body {
		in := &fn.Body[i]
		c.Steps++
		if c.MaxSteps > 0 && c.Steps > c.MaxSteps {
			return nil, fmt.Errorf("%w (%d) in %s at line %d", ErrStepLimit, c.MaxSteps, fn.Name, in.Line)
		}

		var dst *big.Int
		if in.Dest >= 0 {
			dst = &frame[in.Dest]
		}

		switch in.Op {
		case asm.OpAdd:
			c.wrap(dst.Add(value(in.Args[0]), value(in.Args[1])), in.Width)
		case asm.OpSub:
			c.wrap(dst.Sub(value(in.Args[0]), value(in.Args[1])), in.Width)
		case asm.OpAnd:
			c.wrap(dst.And(value(in.Args[0]), value(in.Args[1])), in.Width)

		case asm.OpICmpULT:
			a := c.wrap(new(big.Int).Set(value(in.Args[0])), in.From)
			b := c.wrap(new(big.Int).Set(value(in.Args[1])), in.From)
			dst.SetUint64(boolBit(a.Cmp(b) < 0))
		case asm.OpICmpNE:
			a := c.wrap(new(big.Int).Set(value(in.Args[0])), in.From)
			b := c.wrap(new(big.Int).Set(value(in.Args[1])), in.From)
			dst.SetUint64(boolBit(a.Cmp(b) != 0))

		case asm.OpSelect:
			if value(in.Args[0]).Sign() != 0 {
				dst.Set(value(in.Args[1]))
			} else {
				dst.Set(value(in.Args[2]))
			}

		case asm.OpCall:
			callee := c.mod.Functions[in.Callee]
			args := make([]*big.Int, len(in.Args))
			for j, a := range in.Args {
				args[j] = value(a)
			}
			r, err := c.call(callee, args)
			if err != nil {
				return nil, err
			}
			dst.Set(r)

		case asm.OpLoad:
			src, err := cell(in.Args[0])
			if err != nil {
				return nil, err
			}
			c.wrap(dst.Set(src), in.Width)

		case asm.OpStore:
			if in.Args[1].Kind == asm.OperandGlobal {
				return nil, fmt.Errorf("%s: store to constant @%s at line %d", fn.Name, in.Args[1].Name, in.Line)
			}
			target, err := cell(in.Args[1])
			if err != nil {
				return nil, err
			}
			c.wrap(target.Set(value(in.Args[0])), in.Width)

		case asm.OpZext:
			c.wrap(dst.Set(value(in.Args[0])), in.From)
		case asm.OpTrunc:
			c.wrap(dst.Set(value(in.Args[0])), in.Width)

		case asm.OpRet:
			return c.wrap(new(big.Int).Set(value(in.Args[0])), in.Width), nil
		case asm.OpRetVoid:
			return nil, nil

		default:
			return nil, fmt.Errorf("%s: unknown opcode %d at line %d", fn.Name, in.Op, in.Line)
		}
	}
	return nil, fmt.Errorf("%s: fell off the end of the function", fn.Name)
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
