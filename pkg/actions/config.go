// Package actions holds the native action implementations and helpers shared by them.
package actions

import (
	"errors"
	"fmt"
)

// ErrMissingTaskID is returned by task-scoped actions when no task id can be resolved.
var ErrMissingTaskID = errors.New("no task id in action input")

// String returns config[key] as a string, or fallback when absent or not a string.
func String(config map[string]any, key, fallback string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}

	return fallback
}

// RequiredString returns config[key] or an error naming actionType when it is missing.
func RequiredString(actionType string, config map[string]any, key string) (string, error) {
	v := String(config, key, "")
	if v == "" {
		return "", fmt.Errorf("%s: %s is required", actionType, key)
	}

	return v, nil
}

// Map returns config[key] as a map, or an empty map.
func Map(config map[string]any, key string) map[string]any {
	if v, ok := config[key].(map[string]any); ok {
		return v
	}

	return map[string]any{}
}

// Strings returns config[key] as a string slice, accepting []string and []any.
func Strings(config map[string]any, key string) []string {
	switch v := config[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}

		return out
	case string:
		if v != "" {
			return []string{v}
		}
	}

	return nil
}
