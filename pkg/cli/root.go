// Package cli implements the whitfield command line: build, run and dump.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"whitfield/pkg/config"
	"whitfield/pkg/logger"
)

// app is the state shared by the subcommands of one invocation.
type app struct {
	cfg    config.Config
	stdout io.Writer
	stderr io.Writer
	level  zapcore.Level
	log    *zap.Logger
}

// NewRootCommand builds the command tree. cfg supplies the defaults that
// flags and WHITFIELD_* environment variables override.
func NewRootCommand(cfg config.Config, stdout, stderr io.Writer) *cobra.Command {
	a := &app{cfg: cfg, stdout: stdout, stderr: stderr, log: zap.NewNop()}

	cmd := &cobra.Command{
		Use:   "whitfield",
		Short: "Compile fixed-modulus arithmetic programs to LLVM IR and C headers",
		PersistentPreRun: func(*cobra.Command, []string) {
			a.log = logger.New(a.stderr, a.level)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	LevelVar(cmd.PersistentFlags(), &a.level, "log-level", cfg.LogLevel, "supported log levels are debug, info, warn and error")

	cmd.AddCommand(
		newBuildCommand(a),
		newRunCommand(a),
		newDumpCommand(a),
	)
	return cmd
}

// Execute runs the command line against the process arguments and returns
// the exit code.
func Execute() int {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	cfg, _, err := config.Load(wd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	cmd := NewRootCommand(cfg, os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
