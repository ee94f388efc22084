package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var stopRetriesCmd = &cobra.Command{
	Use:   "stop-retries <job-id>",
	Short: "Stop retrying a job",
	Long:  `Disables further retries of a job. A job waiting for its next retry is failed immediately; a job that is running fails if its current attempt fails.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStopRetries,
}

func init() {
	rootCmd.AddCommand(stopRetriesCmd)
}

func runStopRetries(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	application, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer application.Close()

	record, err := application.Coordinator.StopRetries(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Retries stopped for %s (%s)\n", record.ID, record.Status)
	return nil
}
