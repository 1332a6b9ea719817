// Package cli implements the stackgen command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lhaig/stackgen/internal/compiler"
	"github.com/lhaig/stackgen/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	ConfigDir string // directory holding stackgen.toml
}

// NewRootCommand creates the root command for the stackgen CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "stackgen",
		Short: "stackgen - WebAssembly code generation for named-value IR",
		Long: `stackgen lowers a small named-value IR (YAML) to a WebAssembly module.

Values stay on the operand stack whenever the order of use allows it and
are moved into locals only when they are needed out of order or more
than once.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging on stderr")
	cmd.PersistentFlags().StringVarP(&opts.ConfigDir, "config", "c", ".", "directory containing "+config.FileName)

	cmd.AddCommand(NewBuildCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}

// setup loads the configuration and builds a logger writing to stderr.
func (o *RootOptions) setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	dir := o.ConfigDir
	if dir == "" {
		dir = "."
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, nil, err
	}
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	logger := newLogger(cmd.ErrOrStderr(), level)
	logger.Debug("configuration loaded", "dir", cfg.Dir, "memory_pages", cfg.Module.MemoryPages)
	return cfg, logger, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) compiler(cmd *cobra.Command) (*compiler.Compiler, *config.Config, error) {
	cfg, logger, err := o.setup(cmd)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration: %w", err)
	}
	return compiler.New(cfg, logger), cfg, nil
}
