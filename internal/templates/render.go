// Package templates renders HTML fragments for Datastar SSE patches.
package templates

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"sync"
)

//go:embed fragments/*.html
var fragments embed.FS

var funcMap = template.FuncMap{
	// dict creates a map from key-value pairs for nested templates
	"dict": func(values ...any) map[string]any {
		if len(values)%2 != 0 {
			return nil
		}
		m := make(map[string]any, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				continue
			}
			m[key] = values[i+1]
		}
		return m
	},
	"join": strings.Join,
}

// Renderer executes the embedded fragment templates.
type Renderer struct {
	templates *template.Template
	mu        sync.RWMutex
}

// New parses the embedded fragments.
func New() (*Renderer, error) {
	tmpl, err := template.New("").Funcs(funcMap).ParseFS(fragments, "fragments/*.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MustRender renders a template and panics on error.
// Use only when you're certain the template exists.
func (r *Renderer) MustRender(name string, data any) string {
	s, err := r.Render(name, data)
	if err != nil {
		panic(err)
	}
	return s
}
