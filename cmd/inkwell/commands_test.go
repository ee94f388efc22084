package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/inkwell/internal/models"
	"github.com/ternarybob/inkwell/internal/templates"
)

func TestParseStages(t *testing.T) {
	stages, err := parseStages(nil)
	require.NoError(t, err)
	assert.Equal(t, models.AllJobTypes, stages)

	stages, err = parseStages([]string{"blog", "title_generation"})
	require.NoError(t, err)
	assert.Equal(t, []models.JobType{models.JobTypeBlogGeneration, models.JobTypeTitleGeneration}, stages)

	_, err = parseStages([]string{"poem"})
	assert.Error(t, err)
}

func TestExportPrompts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "prompts")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "title.toml"), []byte(`prompt = "mine"`), 0644))

	require.NoError(t, exportPrompts(dir))

	kept, err := os.ReadFile(filepath.Join(dir, "title.toml"))
	require.NoError(t, err)
	assert.Equal(t, `prompt = "mine"`, string(kept), "existing overrides are not replaced")

	for _, name := range []string{"outline", "blog"} {
		written, err := os.ReadFile(filepath.Join(dir, name+".toml"))
		require.NoError(t, err)
		embedded, err := templates.GetEmbeddedTemplate(name)
		require.NoError(t, err)
		assert.Equal(t, embedded, written)

		// Exported files load as overrides
		_, err = templates.GetTemplate(name, dir)
		assert.NoError(t, err)
	}
}
