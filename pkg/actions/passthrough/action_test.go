package passthrough

import (
	"testing"

	"github.com/dukex/operion-automation/pkg/log"
	"github.com/dukex/operion-automation/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAction_EchoesConfig(t *testing.T) {
	factory := NewActionFactory()
	assert.Equal(t, "passthrough", factory.ID())

	action, err := factory.Create(map[string]any{"custom": 1})
	require.NoError(t, err)

	out, err := action.Execute(t.Context(), protocol.ActionInput{}, log.Discard())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"custom": 1, "passthrough": true}, out)
}
