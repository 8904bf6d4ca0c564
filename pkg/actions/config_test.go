package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigHelpers(t *testing.T) {
	config := map[string]any{
		"name":       "value",
		"empty":      "",
		"number":     3,
		"nested":     map[string]any{"a": 1},
		"recipients": []any{"a@example.com", 7, "b@example.com"},
		"single":     "c@example.com",
	}

	assert.Equal(t, "value", String(config, "name", "x"))
	assert.Equal(t, "x", String(config, "empty", "x"))
	assert.Equal(t, "x", String(config, "number", "x"))

	_, err := RequiredString("demo", config, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "demo: missing is required")

	assert.Equal(t, map[string]any{"a": 1}, Map(config, "nested"))
	assert.Empty(t, Map(config, "missing"))

	assert.Equal(t, []string{"a@example.com", "b@example.com"}, Strings(config, "recipients"))
	assert.Equal(t, []string{"c@example.com"}, Strings(config, "single"))
	assert.Nil(t, Strings(config, "missing"))
}
