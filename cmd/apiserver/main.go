// Command apiserver serves the fragmenter HTTP and gRPC APIs.  Flags are
// those of "fragmenter serve".
package main

import (
	"os"

	"github.com/turtacn/torsion-fragmenter/internal/interfaces/cli"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
	if err := cli.ExecuteWith("serve"); err != nil {
		os.Exit(1)
	}
}
