// Package template renders action configuration strings against event and workflow data.
package template

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
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
	"default": func(fallback, value any) any {
		if value == nil {
			return fallback
		}

		if s, ok := value.(string); ok && s == "" {
			return fallback
		}

		return value
	},
	"env": os.Getenv,
}

// NeedsTemplating reports whether input contains a template action.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

// RenderString executes templateStr against data and returns the raw text.
// Missing keys render as empty strings.
func RenderString(templateStr string, data any) (string, error) {
	if !NeedsTemplating(templateStr) {
		return templateStr, nil
	}

	tmpl, err := template.New("config").Funcs(funcs).Option("missingkey=zero").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

// Render executes templateStr and coerces the output into JSON, a number or a bool when it
// looks like one, falling back to the rendered string.
func Render(templateStr string, data any) (any, error) {
	rendered, err := RenderString(templateStr, data)
	if err != nil {
		return nil, err
	}

	result := strings.TrimSpace(rendered)

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderMap renders every string value of config, recursing into nested maps.
func RenderMap(config map[string]any, data any) (map[string]any, error) {
	out := make(map[string]any, len(config))

	for key, value := range config {
		switch v := value.(type) {
		case string:
			rendered, err := RenderString(v, data)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", key, err)
			}

			out[key] = rendered
		case map[string]any:
			nested, err := RenderMap(v, data)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", key, err)
			}

			out[key] = nested
		default:
			out[key] = value
		}
	}

	return out, nil
}
