package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ternarybob/inkwell/internal/common"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the stage workers until interrupted",
	Long:  `Starts one worker pool per stage, requeues pending jobs, recovers jobs left in processing by a previous run and sweeps for stale jobs on the configured schedule.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.Start(ctx); err != nil {
		return err
	}

	logger.Info().
		Str("provider", config.LLM.DefaultProvider).
		Msg("Workers ready - Press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info().
		Int64("background_goroutines", common.GetGoroutineCount()).
		Msg("Interrupt signal received, shutting down")

	return nil
}
