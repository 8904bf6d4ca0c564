// Package webhook implements the webhook action, which posts execution data to an HTTP
// endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/operion-automation/pkg/actions"
	"github.com/dukex/operion-automation/pkg/protocol"
	"github.com/dukex/operion-automation/pkg/template"
)

var (
	// ErrServerError is returned for 5xx responses; the invoker retries these.
	ErrServerError = errors.New("webhook server error")
	// ErrClientError is returned for 4xx responses and is never retried.
	ErrClientError = errors.New("webhook rejected request")
)

type ActionFactory struct {
	client *http.Client
}

// NewActionFactory creates a webhook factory. A nil client uses http.DefaultClient;
// timeouts come from the invocation context.
func NewActionFactory(client *http.Client) *ActionFactory {
	if client == nil {
		client = http.DefaultClient
	}

	return &ActionFactory{client: client}
}

func (*ActionFactory) ID() string {
	return "webhook"
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	url, err := actions.RequiredString(f.ID(), config, "url")
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string)
	for k, v := range actions.Map(config, "headers") {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}

	return &Action{
		client:  f.client,
		method:  strings.ToUpper(actions.String(config, "method", http.MethodPost)),
		url:     url,
		headers: headers,
		body:    actions.String(config, "body", ""),
	}, nil
}

type Action struct {
	client  *http.Client
	method  string
	url     string
	headers map[string]string
	body    string
}

func (a *Action) Execute(ctx context.Context, input protocol.ActionInput, logger *slog.Logger) (map[string]any, error) {
	data := input.TemplateData()

	req, err := a.buildRequest(ctx, data)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	logger.DebugContext(ctx, "Calling webhook", "method", a.method, "url", req.URL.String())

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d", ErrServerError, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d", ErrClientError, resp.StatusCode))
	}

	var body any
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		body = string(bodyBytes)
	}

	logger.InfoContext(ctx, "Webhook delivered", "status_code", resp.StatusCode)

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
	}, nil
}

func (a *Action) buildRequest(ctx context.Context, data map[string]any) (*http.Request, error) {
	url, err := template.RenderString(a.url, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render url template: %w", err)
	}

	var payload []byte

	if a.body == "" {
		payload, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
	} else {
		rendered, err := template.RenderString(a.body, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render body template: %w", err)
		}

		payload = []byte(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, a.method, url, strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for key, value := range a.headers {
		rendered, err := template.RenderString(value, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render header '%s' template: %w", key, err)
		}

		req.Header.Set(key, rendered)
	}

	return req, nil
}
