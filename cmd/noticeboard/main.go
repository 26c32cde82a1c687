// Command noticeboard manages notifications and turns recurring ones
// into TODO tasks.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/noticeboard/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
