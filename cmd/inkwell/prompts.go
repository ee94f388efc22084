package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ternarybob/inkwell/internal/templates"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts [name]",
	Short: "List or print the built-in prompt templates",
	Long: `Without arguments lists the built-in prompt templates. With a name prints that template.

With --out every built-in template is written to the directory, ready to be
edited and used as llm.prompts_dir. Existing files are left alone.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPrompts,
}

var promptsOutDir string

func init() {
	promptsCmd.Flags().StringVarP(&promptsOutDir, "out", "o", "", "Directory to write the built-in templates to")

	rootCmd.AddCommand(promptsCmd)
}

func runPrompts(cmd *cobra.Command, args []string) error {
	if promptsOutDir != "" {
		return exportPrompts(promptsOutDir)
	}

	if len(args) == 1 {
		data, err := templates.GetEmbeddedTemplate(args[0])
		if err != nil {
			return fmt.Errorf("no built-in template named %q", args[0])
		}
		fmt.Print(string(data))
		return nil
	}

	names, err := templates.ListEmbeddedTemplates()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

// exportPrompts copies the built-in templates into dir without overwriting
func exportPrompts(dir string) error {
	names, err := templates.ListEmbeddedTemplates()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create prompts directory: %w", err)
	}

	for _, name := range names {
		path := filepath.Join(dir, name+".toml")
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("Kept existing %s\n", path)
			continue
		}

		data, err := templates.GetEmbeddedTemplate(name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
	}
	return nil
}
