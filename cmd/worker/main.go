// Command worker consumes fragmentation jobs from Kafka.  Flags are those of
// "fragmenter worker".
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
	if err := cli.ExecuteWith("worker"); err != nil {
		os.Exit(1)
	}
}
