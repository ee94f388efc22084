// Package templates provides the embedded stage prompt templates with user override support.
// Templates are loaded with resolution order:
// 1. User override: templatesDir/{name}.toml
// 2. Embedded default: internal/templates/{name}.toml
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/pelletier/go-toml/v2"
)

//go:embed *.toml
var fs embed.FS

// Template is a stage prompt. System and Prompt are text/template sources
// executed against the stage payload.
type Template struct {
	Name        string  `toml:"-"`
	System      string  `toml:"system"`
	Prompt      string  `toml:"prompt"`
	Temperature float32 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"` // 0 defers to the provider's max_tokens

	prompt *template.Template
	system *template.Template
}

var funcs = template.FuncMap{
	"join": strings.Join,
	"inc":  func(i int) int { return i + 1 },
}

// GetTemplate loads a template by name with resolution order:
// 1. User override: templatesDir/{name}.toml
// 2. Embedded default: internal/templates/{name}.toml
func GetTemplate(name string, templatesDir string) (*Template, error) {
	if templatesDir != "" {
		userPath := filepath.Join(templatesDir, name+".toml")
		if data, err := os.ReadFile(userPath); err == nil {
			return parseTemplate(name, data)
		}
	}

	data, err := fs.ReadFile(name + ".toml")
	if err != nil {
		return nil, fmt.Errorf("template '%s' not found (checked user override and embedded)", name)
	}
	return parseTemplate(name, data)
}

// GetEmbeddedTemplate loads raw content from embedded templates (for testing)
func GetEmbeddedTemplate(name string) ([]byte, error) {
	return fs.ReadFile(name + ".toml")
}

// ListEmbeddedTemplates returns names of all embedded templates
func ListEmbeddedTemplates() ([]string, error) {
	entries, err := fs.ReadDir(".")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if name, ok := strings.CutSuffix(entry.Name(), ".toml"); ok && !entry.IsDir() {
			names = append(names, name)
		}
	}
	return names, nil
}

// Render executes the prompt against data
func (t *Template) Render(data interface{}) (string, error) {
	return execute(t.prompt, data)
}

// RenderSystem executes the system instruction against data
func (t *Template) RenderSystem(data interface{}) (string, error) {
	return execute(t.system, data)
}

func execute(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func parseTemplate(name string, data []byte) (*Template, error) {
	t := Template{Name: name}
	if err := toml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if strings.TrimSpace(t.Prompt) == "" {
		return nil, fmt.Errorf("template '%s' has no prompt", name)
	}

	var err error
	if t.prompt, err = template.New(name).Funcs(funcs).Parse(t.Prompt); err != nil {
		return nil, fmt.Errorf("failed to parse template %s prompt: %w", name, err)
	}
	if t.system, err = template.New(name + ".system").Funcs(funcs).Parse(t.System); err != nil {
		return nil, fmt.Errorf("failed to parse template %s system: %w", name, err)
	}
	return &t, nil
}
