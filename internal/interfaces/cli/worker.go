package cli

import (
	"github.com/spf13/cobra"

	"github.com/turtacn/torsion-fragmenter/internal/bootstrap"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume fragmentation jobs from Kafka",
		Long: "Worker reads job messages from the configured Kafka topic, fragments them\n" +
			"and publishes the reports.  Failed jobs go to the dead letter topic.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := container(cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			return bootstrap.RunWorker(cmd.Context(), c)
		},
	}
}
