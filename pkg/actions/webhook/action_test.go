package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/dukex/operion-automation/pkg/log"
	"github.com/dukex/operion-automation/pkg/models"
	"github.com/dukex/operion-automation/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionFactory_Create(t *testing.T) {
	factory := NewActionFactory(nil)
	assert.Equal(t, "webhook", factory.ID())

	_, err := factory.Create(map[string]any{})
	require.Error(t, err)

	action, err := factory.Create(map[string]any{"url": "http://localhost", "method": "put"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, action.(*Action).method)
}

func TestAction_PostsEventData(t *testing.T) {
	var (
		received map[string]any
		header   string
		path     string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		header = r.Header.Get("X-Rule")

		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	action, err := NewActionFactory(server.Client()).Create(map[string]any{
		"url":     server.URL + "/tasks/{{ .task_id }}",
		"headers": map[string]any{"X-Rule": "{{ .rule_id }}"},
	})
	require.NoError(t, err)

	event := models.NewAutomationEvent(models.EventTaskUpdated, models.SourceTaskManager, map[string]any{"status": "blocked"}, "t9")

	out, err := action.Execute(t.Context(), protocol.ActionInput{Event: &event, RuleID: "r7"}, log.Discard())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, out["status_code"])
	assert.Equal(t, map[string]any{"ok": true}, out["body"])
	assert.Equal(t, "/tasks/t9", path)
	assert.Equal(t, "r7", header)
	assert.Equal(t, "t9", received["task_id"])
	assert.Equal(t, "blocked", received["data"].(map[string]any)["status"])
}

func TestAction_StatusErrors(t *testing.T) {
	var status atomic.Int32

	status.Store(http.StatusBadGateway)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	action, err := NewActionFactory(server.Client()).Create(map[string]any{"url": server.URL, "body": "{}"})
	require.NoError(t, err)

	_, err = action.Execute(t.Context(), protocol.ActionInput{}, log.Discard())
	assert.ErrorIs(t, err, ErrServerError)

	status.Store(http.StatusNotFound)

	_, err = action.Execute(t.Context(), protocol.ActionInput{}, log.Discard())
	assert.ErrorIs(t, err, ErrClientError)
}
