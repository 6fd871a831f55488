// Command fragmenter is the torsion fragmenter command line.
package main

import (
	"os"

	"github.com/turtacn/torsion-fragmenter/internal/interfaces/cli"
)

// Set with -ldflags "-X main.version=...".
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
