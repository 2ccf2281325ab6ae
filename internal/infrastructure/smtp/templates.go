package smtp

import (
	"context"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var embedded embed.FS

// TemplateSource resolves a template ID to a parsed HTML template.
type TemplateSource interface {
	Template(ctx context.Context, id string) (*template.Template, error)
}

// EmbeddedTemplates serves the templates compiled into the binary.
type EmbeddedTemplates struct {
	set *template.Template
}

func NewEmbeddedTemplates() (*EmbeddedTemplates, error) {
	set, err := template.ParseFS(embedded, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse embedded templates: %w", err)
	}
	return &EmbeddedTemplates{set: set}, nil
}

func (e *EmbeddedTemplates) Template(_ context.Context, id string) (*template.Template, error) {
	t := e.set.Lookup(id + ".html")
	if t == nil {
		return nil, fmt.Errorf("unknown template %q", id)
	}
	return t, nil
}
