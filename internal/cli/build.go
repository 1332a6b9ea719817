package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	Output  string // output directory, overrides [output] dir
	Listing bool   // also write the .lst listing
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build <module.yaml>",
		Short: "Compile an IR module to a .wasm file",
		Long: `Validate the IR module, lower every function and write <name>.wasm
to the output directory. The binary is checked with the wazero runtime
before it is written.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output directory")
	cmd.Flags().BoolVar(&opts.Listing, "listing", false, "also write a text listing")

	return cmd
}

func runBuild(opts *BuildOptions, path string, cmd *cobra.Command) error {
	c, cfg, err := opts.compiler(cmd)
	if err != nil {
		return err
	}
	if opts.Output != "" {
		cfg.Output.Dir = opts.Output
	}
	if opts.Listing {
		cfg.Output.Listing = true
	}

	res, art, err := c.Build(cmd.Context(), path)
	if res != nil && res.Diagnostics.Count() > 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), res.Diagnostics.Format(path))
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "wrote %s (%d bytes, %d functions)\n",
		art.WasmPath, len(res.Output.Binary), len(res.Output.Functions))
	if art.ListingPath != "" {
		fmt.Fprintf(out, "wrote %s\n", art.ListingPath)
	}
	return nil
}
