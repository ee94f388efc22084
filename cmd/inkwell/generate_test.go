package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/inkwell/internal/models"
	"github.com/ternarybob/inkwell/internal/pipeline"
)

func TestSelectTitles(t *testing.T) {
	titles := []string{"One", "Two", "Three"}

	selected, err := selectTitles(titles, []string{"all"})
	require.NoError(t, err)
	assert.Equal(t, titles, selected)

	selected, err = selectTitles(titles, []string{"3", " 1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Three", "One"}, selected)

	_, err = selectTitles(titles, []string{"4"})
	assert.ErrorIs(t, err, pipeline.ErrUnknownTitle)

	_, err = selectTitles(titles, []string{"first"})
	assert.ErrorIs(t, err, pipeline.ErrUnknownTitle)
}

func TestWritePost(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "posts")

	err := writePost(dir, "job-1", &models.Blog{
		Title:   "Wellness at Work",
		Content: "Walk every hour.",
		HTML:    "<p>Walk every hour.</p>",
	})
	require.NoError(t, err)

	md, err := os.ReadFile(filepath.Join(dir, "job-1.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Wellness at Work\n\nWalk every hour.\n", string(md))

	html, err := os.ReadFile(filepath.Join(dir, "job-1.html"))
	require.NoError(t, err)
	assert.Equal(t, "<p>Walk every hour.</p>", string(html))
}
