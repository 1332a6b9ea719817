// Command stackgen compiles named-value IR modules to WebAssembly.
package main

import (
	"fmt"
	"os"

	"github.com/lhaig/stackgen/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
