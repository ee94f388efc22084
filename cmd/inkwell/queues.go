package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ternarybob/inkwell/internal/models"
)

var queuesCmd = &cobra.Command{
	Use:   "queues [stage...]",
	Short: "Show how many messages each stage queue holds",
	Long:  `Prints the depth of the title, outline and blog queues. Stages can be named by short name (title, outline, blog) or job type (title_generation, ...).`,
	RunE:  runQueues,
}

func init() {
	rootCmd.AddCommand(queuesCmd)
}

func runQueues(cmd *cobra.Command, args []string) error {
	stages, err := parseStages(args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	application, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer application.Close()

	for _, jobType := range stages {
		n, err := application.Coordinator.QueueDepth(ctx, jobType)
		if err != nil {
			return err
		}
		fmt.Printf("%-8s %d\n", jobType.Stage(), n)
	}
	return nil
}

// parseStages resolves stage arguments in order, defaulting to every stage
func parseStages(args []string) ([]models.JobType, error) {
	if len(args) == 0 {
		return models.AllJobTypes, nil
	}

	stages := make([]models.JobType, 0, len(args))
	for _, arg := range args {
		jobType, err := models.ParseJobType(arg)
		if err != nil {
			return nil, err
		}
		stages = append(stages, jobType)
	}
	return stages, nil
}
