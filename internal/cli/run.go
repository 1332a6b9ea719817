package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lhaig/stackgen/internal/compiler"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <module.yaml> <function> [args...]",
		Short: "Compile a module and call one of its exported functions",
		Long: `Compile the module in memory, instantiate it with the wazero runtime
and call the named export. Arguments are parsed according to the
function's parameter types; each result is printed on its own line.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(rootOpts, args[0], args[1], args[2:], cmd)
		},
	}
	return cmd
}

func runRun(opts *RootOptions, path, fn string, args []string, cmd *cobra.Command) error {
	c, _, err := opts.compiler(cmd)
	if err != nil {
		return err
	}
	res, err := c.CompileFile(path)
	if err != nil {
		return err
	}
	if res.Diagnostics.HasErrors() {
		fmt.Fprintln(cmd.ErrOrStderr(), res.Diagnostics.Format(path))
		return res.Diagnostics.Err(path)
	}

	results, err := compiler.Run(cmd.Context(), res.Output.Binary, fn, args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, r := range results {
		fmt.Fprintln(out, r)
	}
	return nil
}
