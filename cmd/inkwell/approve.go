package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var approveCmd = &cobra.Command{
	Use:   "approve <title-job-id>",
	Short: "Approve titles of a completed title job",
	Long:  `Creates one outline job per approved title. Titles that already have an outline job are skipped. The jobs run on the next serve.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runApprove,
}

var approveTitles []string

func init() {
	approveCmd.Flags().StringArrayVar(&approveTitles, "title", nil, "Exact title to approve (repeatable)")
	_ = approveCmd.MarkFlagRequired("title")

	rootCmd.AddCommand(approveCmd)
}

func runApprove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	application, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer application.Close()

	ids, err := application.Coordinator.ApproveTitles(ctx, args[0], approveTitles)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		fmt.Println("All titles already approved")
		return nil
	}
	for _, id := range ids {
		fmt.Printf("Created outline job %s\n", id)
	}
	return nil
}
