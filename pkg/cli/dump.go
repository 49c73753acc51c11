package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"whitfield/pkg/compiler"
)

func newDumpCommand(a *app) *cobra.Command {
	var include []string
	cmd := &cobra.Command{
		Use:   "dump [flags] <input.wht>",
		Short: "Print the tokens, syntax tree, pass schedule and folded program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dump(args[0], include)
		},
	}
	BindOptions(newViper(), cmd, []Opt{
		{DestP: &include, Flag: "include", Short: "I", Default: a.cfg.Include, Desc: "additional import search directory"},
	})
	return cmd
}

func (a *app) dump(input string, include []string) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return errors.Wrap(err, "read input")
	}
	src := string(data)
	w := a.stdout

	tokens, err := compiler.Lex(src)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Tokens (%d)\n", len(tokens))
	for _, tok := range tokens {
		fmt.Fprintln(w, " ", tok)
	}
	fmt.Fprintln(w)

	c, err := a.newCompiler(input, include)
	if err != nil {
		return err
	}
	prog, err := c.Parse(input, src)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "AST")
	printIndented(w, prog.String())
	fmt.Fprintln(w)

	schedule, err := c.Registry.Schedule()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Passes")
	for i, p := range schedule {
		fmt.Fprintf(w, "  %d. %s\n", i+1, p.Name())
	}
	fmt.Fprintln(w)

	if err := c.Registry.Run(prog); err != nil {
		return err
	}
	fmt.Fprintln(w, "Folded")
	printIndented(w, prog.String())
	return nil
}

func printIndented(w io.Writer, text string) {
	start := 0
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == '\n' {
			fmt.Fprintln(w, " ", text[start:i])
			start = i + 1
		}
	}
}
