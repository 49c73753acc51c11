package compiler

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"whitfield/pkg/utils"
)

// Compiler runs the front end and the optimizer for one configuration.
// A Compiler may be shared by goroutines; every call works on its own
// Program.
type Compiler struct {
	Loader   Loader
	Log      *zap.Logger
	Registry *Registry
}

// New returns a Compiler using the default pass pipeline.
func New(loader Loader, log *zap.Logger) (*Compiler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	reg, err := DefaultRegistry(loader, log)
	if err != nil {
		return nil, err
	}
	return &Compiler{Loader: loader, Log: log, Registry: reg}, nil
}

// Parse builds the unoptimized program of the main unit at path. The
// program name is the file's base name up to the first '.'.
func (c *Compiler) Parse(path, src string) (*Program, error) {
	name := utils.UnitName(path)
	if !IsIdentifier(name) {
		return nil, &Error{Kind: KindSemantic, Unit: path, Symbol: name,
			Msg: fmt.Sprintf("unit name %q is not an identifier", name)}
	}
	prog, err := ParseProgram(path, src)
	if err != nil {
		return nil, err
	}
	prog.Name = name
	return prog, nil
}

// Compile parses the main unit and runs every pass over it. The result is
// ready for any backend.
func (c *Compiler) Compile(path, src string) (*Program, error) {
	prog, err := c.Parse(path, src)
	if err != nil {
		return nil, err
	}
	if err := c.Registry.Run(prog); err != nil {
		if e, ok := err.(*Error); ok && e.Unit == "" {
			e.Unit = path
		}
		return nil, err
	}
	c.Log.Debug("Compiled unit",
		zap.String("unit", path),
		zap.String("name", prog.Name),
		zap.Int("constants", len(prog.Constants())),
		zap.Int("functions", len(prog.Functions())))
	return prog, nil
}

// Render generates prog with g and joins the lines, each terminated by a
// newline.
func Render(g Generator, prog *Program) (string, error) {
	lines, err := g.Generate(prog)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String(), nil
}
