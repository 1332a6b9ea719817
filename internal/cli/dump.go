package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	Function string // only this function
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump <module.yaml>",
		Short: "Print the generated instructions of each function",
		Long: `Compile the module in memory and print, for every function, its
signature, the locals the generator had to declare and the final
instruction sequence with all local.set/local.tee insertions in place.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Function, "function", "f", "", "only print this function")

	return cmd
}

func runDump(opts *DumpOptions, path string, cmd *cobra.Command) error {
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

	out := cmd.OutOrStdout()
	if opts.Function == "" {
		fmt.Fprint(out, res.Output.Listing())
		return nil
	}
	for _, fn := range res.Output.Functions {
		if fn.Name == opts.Function {
			fmt.Fprint(out, fn.String())
			return nil
		}
	}
	return fmt.Errorf("%s: no function %q", path, opts.Function)
}
