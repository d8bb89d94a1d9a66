package util

import (
	"bytes"
	"strings"
	"text/template"
)

// RenderProcedure expands template variables in a skill procedure before it
// is handed to a worker, e.g. "run {{.Specialization}} checks on
// {{lower .Description}}". This lives in internal to avoid committing to
// public API stability prematurely.
func RenderProcedure(text string, vars map[string]any) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	tmpl, err := template.New("procedure").Funcs(template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"trim":  strings.TrimSpace,
	}).Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}
