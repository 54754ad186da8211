// Package render renders the embedded configuration file templates.
package render

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templates embed.FS

// Template renders the named embedded template with the given context.
func Template(name string, context map[string]any) (string, error) {
	tmpl, err := template.ParseFS(templates, "templates/"+name)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, context); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return out.String(), nil
}
