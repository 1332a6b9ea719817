package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "check <module.yaml>",
		Short:         "Validate an IR module without generating code",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runCheck(opts *RootOptions, path string, cmd *cobra.Command) error {
	c, _, err := opts.compiler(cmd)
	if err != nil {
		return err
	}
	diags, err := c.Check(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if diags.Count() > 0 {
		fmt.Fprintln(out, diags.Format(path))
	}
	if diags.HasErrors() {
		return fmt.Errorf("%s: %d error(s), %d warning(s)", path, diags.ErrorCount(), diags.WarningCount())
	}
	fmt.Fprintf(out, "%s: ok (%d warning(s))\n", path, diags.WarningCount())
	return nil
}
