package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/inkwell/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the state of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var (
	statusJSON     bool
	statusChildren bool
)

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the full job record as JSON")
	statusCmd.Flags().BoolVar(&statusChildren, "children", false, "Also list jobs derived from this one")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	application, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer application.Close()

	record, err := application.Coordinator.Status(ctx, args[0])
	if err != nil {
		return err
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	}

	printRecord(record)

	if statusChildren {
		children, err := application.StorageManager.JobStore().ListBySource(ctx, record.ID)
		if err != nil {
			return err
		}
		for _, child := range children {
			fmt.Printf("  -> %s %s: %s\n", child.Type.Stage(), child.ID, child.Status)
		}
	}
	return nil
}

func printRecord(record *models.JobRecord) {
	fmt.Printf("Job:      %s\n", record.ID)
	fmt.Printf("Stage:    %s\n", record.Type.Stage())
	fmt.Printf("Status:   %s\n", record.Status)
	fmt.Printf("Attempts: %d\n", record.Attempts)
	if record.SourceJobID != "" {
		fmt.Printf("Source:   %s\n", record.SourceJobID)
	}
	if record.RetriesDisabled {
		fmt.Println("Retries:  stopped")
	}
	if record.LastAttemptError != "" && !record.Status.IsTerminal() {
		fmt.Printf("Last err: %s\n", record.LastAttemptError)
	}
	if !record.NextAttemptAt.IsZero() && record.Status == models.JobStatusPending {
		fmt.Printf("Retry at: %s\n", record.NextAttemptAt.Format(time.RFC3339))
	}
	if record.Error != "" {
		fmt.Printf("Error:    %s\n", record.Error)
	}
	fmt.Printf("Created:  %s\n", record.CreatedAt.Format(time.RFC3339))
	if !record.CompletedAt.IsZero() {
		fmt.Printf("Finished: %s\n", record.CompletedAt.Format(time.RFC3339))
	}

	if record.Status == models.JobStatusCompleted && record.Type == models.JobTypeTitleGeneration {
		var titles models.TitleResult
		if err := record.DecodeResult(&titles); err == nil {
			for i, title := range titles.Titles {
				fmt.Printf("  %d. %s\n", i+1, title)
			}
		}
	}
}
