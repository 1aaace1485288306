// Command gigrank ingests marketplace exports and serves ranked opportunities.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/gigrank/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
