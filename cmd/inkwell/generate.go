package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ternarybob/inkwell/internal/app"
	"github.com/ternarybob/inkwell/internal/interfaces"
	"github.com/ternarybob/inkwell/internal/models"
	"github.com/ternarybob/inkwell/internal/pipeline"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate titles, and optionally outlines and blog posts, in-process",
	Long: `Submits a title generation job and runs the stage workers in-process until it finishes.

With --approve the selected titles are approved and the command continues
through the outline and blog stages. Titles are selected by their 1-based
position in the suggestion list or with "all".`,
	RunE: runGenerate,
}

var (
	genKeywords []string
	genTone     string
	genAudience string
	genCount    int
	genApprove  []string
	genOutDir   string
)

func init() {
	generateCmd.Flags().StringSliceVarP(&genKeywords, "keywords", "k", nil, "Keywords for the post (comma separated or repeated)")
	generateCmd.Flags().StringVarP(&genTone, "tone", "t", "informative", "Writing tone")
	generateCmd.Flags().StringVarP(&genAudience, "audience", "a", "general readers", "Target audience")
	generateCmd.Flags().IntVarP(&genCount, "count", "n", 5, "Number of titles to suggest")
	generateCmd.Flags().StringSliceVar(&genApprove, "approve", nil, "Titles to approve by position (1,3) or \"all\"")
	generateCmd.Flags().StringVarP(&genOutDir, "out", "o", "", "Directory to write finished posts to (markdown and HTML)")
	_ = generateCmd.MarkFlagRequired("keywords")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer application.Close()

	titleID, err := application.Coordinator.Submit(ctx, models.JobTypeTitleGeneration, models.TitlePayload{
		Keywords:       genKeywords,
		Tone:           genTone,
		TargetAudience: genAudience,
		Count:          genCount,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Submitted title job %s\n", titleID)

	if err := application.EventService.Subscribe(interfaces.EventJobRetryScheduled, printRetry); err != nil {
		return err
	}
	if err := application.Start(ctx); err != nil {
		return err
	}

	record, err := wait(ctx, application, titleID)
	if err != nil {
		return err
	}

	var titles models.TitleResult
	if err := record.DecodeResult(&titles); err != nil {
		return err
	}
	fmt.Println("\nSuggested titles:")
	for i, title := range titles.Titles {
		fmt.Printf("  %d. %s\n", i+1, title)
	}

	if len(genApprove) == 0 {
		fmt.Printf("\nApprove titles with: inkwell generate ... --approve 1,2  or  inkwell approve %s --title \"...\"\n", titleID)
		return nil
	}

	selected, err := selectTitles(titles.Titles, genApprove)
	if err != nil {
		return err
	}

	outlineIDs, err := application.Coordinator.ApproveTitles(ctx, titleID, selected)
	if err != nil {
		return err
	}

	var errs []error
	for _, outlineID := range outlineIDs {
		if err := finishPost(ctx, application, outlineID); err != nil {
			fmt.Printf("Outline job %s: %v\n", outlineID, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// finishPost waits for an outline and its blog job, then writes the post
func finishPost(ctx context.Context, application *app.App, outlineID string) error {
	if _, err := wait(ctx, application, outlineID); err != nil {
		return err
	}

	// With auto-advance the outline worker created the blog job before the
	// outline completed; this returns it rather than creating another
	blogID, err := application.Coordinator.AdvanceOutline(ctx, outlineID)
	if err != nil {
		return err
	}

	record, err := wait(ctx, application, blogID)
	if err != nil {
		return err
	}

	var blog models.Blog
	if err := record.DecodeResult(&blog); err != nil {
		return err
	}
	fmt.Printf("\n%s (%d words)\n", blog.Title, blog.WordCount)

	if genOutDir == "" {
		fmt.Printf("\n%s\n", blog.Content)
		return nil
	}
	return writePost(genOutDir, blogID, &blog)
}

func wait(ctx context.Context, application *app.App, id string) (*models.JobRecord, error) {
	return application.Poller().WaitFunc(ctx, id, func(record *models.JobRecord) {
		fmt.Printf("  %s %s: %s (attempt %d)\n", record.Type.Stage(), record.ID, record.Status, record.Attempts)
	})
}

func printRetry(ctx context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		return nil
	}
	fmt.Printf("  retrying %v in %v: %v\n", payload["job_id"], payload["delay"], payload["error"])
	return nil
}

func selectTitles(titles []string, picks []string) ([]string, error) {
	if len(picks) == 1 && strings.EqualFold(picks[0], "all") {
		return titles, nil
	}

	var selected []string
	for _, pick := range picks {
		n, err := strconv.Atoi(strings.TrimSpace(pick))
		if err != nil || n < 1 || n > len(titles) {
			return nil, fmt.Errorf("%w: no title at position %q", pipeline.ErrUnknownTitle, pick)
		}
		selected = append(selected, titles[n-1])
	}
	return selected, nil
}

func writePost(dir, id string, blog *models.Blog) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	base := filepath.Join(dir, id)
	if err := os.WriteFile(base+".md", []byte("# "+blog.Title+"\n\n"+blog.Content+"\n"), 0644); err != nil {
		return err
	}
	if err := os.WriteFile(base+".html", []byte(blog.HTML), 0644); err != nil {
		return err
	}

	fmt.Printf("Wrote %s.md and %s.html\n", base, base)
	return nil
}
