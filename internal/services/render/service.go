// Package render turns a parsed blog body into its stored forms: markdown
// content, rendered HTML and a word count.
package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/ternarybob/inkwell/internal/models"
)

var htmlTagRe = regexp.MustCompile(`(?i)<(?:p|h[1-6]|ul|ol|li|div|article|section|br|strong|em|blockquote)\b[^>]*>`)

// Service renders blog bodies
type Service struct {
	markdown  goldmark.Markdown
	converter *md.Converter
	logger    arbor.ILogger
}

// NewService creates a new render service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
		converter: md.NewConverter("", true, nil),
		logger:    logger,
	}
}

// Finalize normalizes blog.Content to markdown and fills HTML and WordCount
func (s *Service) Finalize(blog *models.Blog) error {
	if blog == nil {
		return fmt.Errorf("blog is nil")
	}

	content, err := s.NormalizeBody(blog.Content)
	if err != nil {
		return err
	}

	html, err := s.RenderHTML(content)
	if err != nil {
		return err
	}

	words, err := WordCount(html)
	if err != nil {
		return err
	}

	blog.Content = content
	blog.HTML = html
	blog.WordCount = words

	s.logger.Debug().
		Int("markdown_length", len(content)).
		Int("html_length", len(html)).
		Int("word_count", words).
		Msg("Blog rendered")

	return nil
}

// LooksLikeHTML reports whether a body contains block-level HTML markup
func LooksLikeHTML(body string) bool {
	return htmlTagRe.MatchString(body)
}

// NormalizeBody converts HTML bodies to markdown and trims the result.
// Markdown bodies pass through unchanged apart from trimming.
func (s *Service) NormalizeBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if !LooksLikeHTML(body) {
		return body, nil
	}

	converted, err := s.converter.ConvertString(body)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML body to markdown: %w", err)
	}

	converted = strings.TrimSpace(converted)
	if converted == "" {
		s.logger.Warn().
			Int("html_length", len(body)).
			Msg("HTML to markdown conversion produced empty output, keeping original body")
		return body, nil
	}
	return converted, nil
}

// RenderHTML renders markdown to HTML
func (s *Service) RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}

// WordCount counts whitespace-separated words in the text of an HTML fragment
func WordCount(html string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, fmt.Errorf("failed to parse rendered HTML: %w", err)
	}

	// Block elements are adjacent in the text stream; pad them so words do not merge
	doc.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote, td, th, br").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})

	return len(strings.Fields(doc.Text())), nil
}
