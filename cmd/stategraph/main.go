// Command stategraph is the command-line front end of the governed
// knowledge graph.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/stategraph/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
