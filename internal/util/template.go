package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

// placeholder matches single brace prompt variables such as {content}.
var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

var promptFuncs = template.FuncMap{
	"default": func(fallback, val any) any {
		if val == nil || val == "" {
			return fallback
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
	"join": func(sep string, items any) (string, error) {
		switch v := items.(type) {
		case []string:
			return strings.Join(v, sep), nil
		case []any:
			parts := make([]string, len(v))
			for i, item := range v {
				parts[i] = fmt.Sprint(item)
			}
			return strings.Join(parts, sep), nil
		default:
			return "", fmt.Errorf("join: unsupported type %T", items)
		}
	},
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}

// IsGoTemplate reports whether text uses {{ }} actions instead of single
// brace placeholders.
func IsGoTemplate(text string) bool { return strings.Contains(text, "{{") }

// Placeholders lists the single brace variables in text in first-seen order.
// Go templates report none.
func Placeholders(text string) []string {
	if IsGoTemplate(text) {
		return nil
	}
	seen := map[string]bool{}
	var names []string
	for _, m := range placeholder.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// RenderTemplate fills a prompt template with vars. Text containing {{ }} is
// executed as a text/template; otherwise {name} placeholders are substituted.
// A variable missing from vars is an error in both syntaxes.
func RenderTemplate(text string, vars map[string]any) (string, error) {
	if IsGoTemplate(text) {
		return executeTemplate(text, vars)
	}

	var missing string
	out := placeholder.ReplaceAllStringFunc(text, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := vars[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return fmt.Sprint(v)
	})
	if missing != "" {
		return "", fmt.Errorf("missing input variable %q", missing)
	}

	return out, nil
}

func executeTemplate(text string, vars map[string]any) (string, error) {
	tmpl, err := template.New("prompt").Option("missingkey=error").Funcs(promptFuncs).Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", err
	}

	return buf.String(), nil
}
