// Package template renders notification messages from tenant data.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

// Render executes a text/template against data. Missing keys render as their
// zero value, so `{{ or .orderId "N/A" }}` falls back when orderId is absent.
func Render(templateStr string, data map[string]any) (string, error) {
	tmpl, err := template.
		New("message").
		Funcs(funcs).
		Option("missingkey=zero").
		Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}
