package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/inkwell/internal/models"
)

func TestLooksLikeHTML(t *testing.T) {
	assert.True(t, LooksLikeHTML("<p>Hello</p>"))
	assert.True(t, LooksLikeHTML("intro <H2 id=\"x\">Heading</H2>"))
	assert.False(t, LooksLikeHTML("# Heading\n\nPlain markdown with a < sign"))
	assert.False(t, LooksLikeHTML("Use <T> generics"))
}

func TestService_FinalizeMarkdown(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	blog := &models.Blog{
		Title:   "Sleep Better",
		Content: "  # Sleep Better\n\nRest is **essential** for recovery.\n\n- Keep a routine\n- Dim the lights\n",
	}

	require.NoError(t, svc.Finalize(blog))

	assert.Equal(t, "# Sleep Better\n\nRest is **essential** for recovery.\n\n- Keep a routine\n- Dim the lights", blog.Content)
	assert.Contains(t, blog.HTML, "<h1")
	assert.Contains(t, blog.HTML, "<strong>essential</strong>")
	assert.Contains(t, blog.HTML, "<li>Keep a routine</li>")
	// Sleep Better / Rest is essential for recovery. / Keep a routine / Dim the lights
	assert.Equal(t, 13, blog.WordCount)
}

func TestService_FinalizeConvertsHTML(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	blog := &models.Blog{
		Content: "<h2>Morning</h2><p>Start with <strong>water</strong>.</p><ul><li>Stretch</li><li>Walk</li></ul>",
	}

	require.NoError(t, svc.Finalize(blog))

	assert.Contains(t, blog.Content, "## Morning")
	assert.Contains(t, blog.Content, "**water**")
	assert.NotContains(t, blog.Content, "<p>")
	assert.Contains(t, blog.HTML, "<h2")
	assert.Equal(t, 6, blog.WordCount)
}

func TestService_FinalizeNil(t *testing.T) {
	assert.Error(t, NewService(arbor.NewLogger()).Finalize(nil))
}

func TestWordCount(t *testing.T) {
	n, err := WordCount("<h1>One</h1><p>two three</p><ul><li>four</li><li>five</li></ul>")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = WordCount("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
