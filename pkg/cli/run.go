package cli

import (
	"fmt"
	"math/big"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"whitfield/pkg/asm"
	"whitfield/pkg/compiler"
	"whitfield/pkg/cpu"
)

type runOptions struct {
	include  []string
	maxSteps int
}

func newRunCommand(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run [flags] <input.wht> <function> [arg]...",
		Short: "Compile a source and evaluate one function",
		Long: `Compile the input to LLVM IR, execute the named function on the
built-in interpreter and print each return value. Arguments are
expressions over literals and the program's constants, e.g. "2@255 - 20".`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(args[0], args[1], args[2:], opts)
		},
	}
	BindOptions(newViper(), cmd, []Opt{
		{DestP: &opts.include, Flag: "include", Short: "I", Default: a.cfg.Include, Desc: "additional import search directory"},
		{DestP: &opts.maxSteps, Flag: "max-steps", Default: 0, Desc: "abort after this many interpreted instructions (0 = no limit)"},
	})
	return cmd
}

func (a *app) run(input, name string, rawArgs []string, opts runOptions) error {
	prog, err := a.compile(input, opts.include)
	if err != nil {
		return err
	}

	var fn *compiler.Function
	for _, f := range prog.Functions() {
		if f.Name == name {
			fn = f
		}
	}
	if fn == nil {
		return errors.Errorf("%s has no function %q", input, name)
	}
	if len(rawArgs) != len(fn.Args) {
		return errors.Errorf("%s takes %d arguments (%v), got %d", name, len(fn.Args), fn.Args, len(rawArgs))
	}

	args, err := evalArgs(prog, rawArgs)
	if err != nil {
		return err
	}

	text, err := compiler.Render(compiler.LLVMGenerator{}, prog)
	if err != nil {
		return err
	}
	mod, err := asm.Assemble(text)
	if err != nil {
		return errors.Wrap(err, "assemble generated module")
	}

	c := cpu.NewCPU(mod)
	c.MaxSteps = uint64(opts.maxSteps)
	rets, err := c.Run(fmt.Sprintf("wht_%s_%s", prog.Name, name), args...)
	if err != nil {
		return err
	}
	a.log.Debug("Evaluated function", zap.String("function", name), zap.Uint64("steps", c.Steps))

	for i, r := range fn.Rets {
		fmt.Fprintf(a.stdout, "%s = %s\n", r, rets[i])
	}
	return nil
}

// evalArgs folds each argument expression against the program's modulus
// and constants.
func evalArgs(prog *compiler.Program, raw []string) ([]*big.Int, error) {
	known := make(map[string]*big.Int)
	for _, c := range prog.Constants() {
		if lit, ok := c.Value.(*compiler.Literal); ok {
			known[c.Name] = lit.Value
		}
	}

	out := make([]*big.Int, len(raw))
	for i, s := range raw {
		expr, err := compiler.ParseExpression(s)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", i+1)
		}
		folded, err := compiler.Fold(expr, prog.Modulus(), known)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", i+1)
		}
		lit, ok := folded.(*compiler.Literal)
		if !ok {
			return nil, errors.Errorf("argument %d: %s is not a compile-time value", i+1, folded)
		}
		out[i] = new(big.Int).Mod(lit.Value, prog.Modulus())
	}
	return out, nil
}
