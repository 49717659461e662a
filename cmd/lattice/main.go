// Command lattice manages a versioned entity and graph store.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/lattice/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		// Commands report their own failures; anything else (flag parsing,
		// argument counts) is printed here.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
