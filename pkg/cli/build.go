package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"whitfield/pkg/compiler"
	"whitfield/pkg/utils"
	"whitfield/pkg/vfs"
)

type buildOptions struct {
	output  string
	targets []string
	outDir  string
	include []string
}

func newBuildCommand(a *app) *cobra.Command {
	var opts buildOptions
	cmd := &cobra.Command{
		Use:   "build [flags] <input.wht>...",
		Short: "Compile sources into the selected targets",
		Long: `Compile each input concurrently. Outputs are written only when every
input compiles; on failure nothing is written.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.build(cmd.Context(), args, opts)
		},
	}

	BindOptions(newViper(), cmd, []Opt{
		{DestP: &opts.output, Flag: "output", Short: "o", Desc: "output file; its extension selects the target (single input only)"},
		{DestP: &opts.targets, Flag: "target", Default: a.cfg.Targets, Desc: fmt.Sprintf("targets to generate %v", compiler.Targets())},
		{DestP: &opts.outDir, Flag: "out-dir", Default: a.cfg.OutDir, Desc: "directory for outputs (default: next to each input)"},
		{DestP: &opts.include, Flag: "include", Short: "I", Default: a.cfg.Include, Desc: "additional import search directory"},
	})
	return cmd
}

// stage collects outputs per host directory until the whole build succeeds.
type stage struct {
	mu    sync.Mutex
	disks map[string]*vfs.VirtualDisk
}

func (s *stage) write(dir, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	disk, ok := s.disks[dir]
	if !ok {
		disk = vfs.NewVirtualDisk()
		s.disks[dir] = disk
	}

	if _, err := disk.Size(name); err == nil {
		return errors.Errorf("%s is produced by more than one input", filepath.Join(dir, name))
	}
	if err := disk.Write(name, data); err != nil {
		return errors.Wrapf(err, "stage %s", filepath.Join(dir, name))
	}
	return nil
}

func (s *stage) persist() ([]string, int, error) {
	dirs := make([]string, 0, len(s.disks))
	for d := range s.disks {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	var written []string
	n := 0
	for _, d := range dirs {
		disk := s.disks[d]
		if err := disk.PersistTo(d); err != nil {
			return written, n, errors.Wrapf(err, "write outputs to %s", d)
		}
		for _, name := range disk.List() {
			written = append(written, filepath.Join(d, filepath.FromSlash(name)))
		}
		n += disk.UsedBytes()
	}
	return written, n, nil
}

func (a *app) build(ctx context.Context, inputs []string, opts buildOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.output != "" && len(inputs) != 1 {
		return errors.New("--output requires exactly one input")
	}
	targets := opts.targets
	if opts.output != "" {
		ext, _, err := compiler.BackendForPath(opts.output)
		if err != nil {
			return err
		}
		targets = []string{ext}
	}
	for _, t := range targets {
		if _, err := compiler.BackendFor(t); err != nil {
			return err
		}
	}

	st := &stage{disks: make(map[string]*vfs.VirtualDisk)}
	g, ctx := errgroup.WithContext(ctx)
	for _, in := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return a.buildOne(in, targets, opts, st)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	written, n, err := st.persist()
	for _, w := range written {
		a.log.Info("Wrote output", zap.String("path", w))
	}
	if err != nil {
		return err
	}
	a.log.Debug("Build finished", zap.Int("files", len(written)), zap.Int("bytes", n))
	return nil
}

func (a *app) buildOne(input string, targets []string, opts buildOptions, st *stage) error {
	start := time.Now()
	prog, err := a.compile(input, opts.include)
	if err != nil {
		return err
	}

	_, inDir, err := utils.GetPathInfo(input)
	if err != nil {
		return err
	}
	for _, t := range targets {
		gen, err := compiler.BackendFor(t)
		if err != nil {
			return err
		}
		text, err := compiler.Render(gen, prog)
		if err != nil {
			return err
		}

		dir, name := inDir, prog.Name+"."+t
		switch {
		case opts.output != "":
			full, parent, err := utils.GetPathInfo(opts.output)
			if err != nil {
				return err
			}
			dir, name = parent, filepath.Base(full)
		case opts.outDir != "":
			if dir, err = filepath.Abs(opts.outDir); err != nil {
				return err
			}
		}
		if !vfs.ValidPath(name) {
			return errors.Errorf("invalid output file name %q", name)
		}
		if err := st.write(dir, name, []byte(text)); err != nil {
			return err
		}
	}

	a.log.Info("Built unit",
		zap.String("input", input),
		zap.String("name", prog.Name),
		zap.Strings("targets", targets),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// compile reads input and runs the front end and every pass over it.
func (a *app) compile(input string, include []string) (*compiler.Program, error) {
	src, err := os.ReadFile(input)
	if err != nil {
		return nil, errors.Wrap(err, "read input")
	}
	c, err := a.newCompiler(input, include)
	if err != nil {
		return nil, err
	}
	return c.Compile(input, string(src))
}
