// Package httprequest provides the HTTP request action.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hookflow/hookflow/pkg/models"
)

const defaultTimeout = 30 * time.Second

var (
	ErrURLRequired  = errors.New("http_request requires a url")
	ErrServerStatus = errors.New("server returned error status")
)

// Action performs one HTTP request. Placeholders in url, headers and body
// are substituted by the engine before Execute runs; server 5xx responses
// are returned as errors so the step's retry policy applies.
type Action struct {
	client *http.Client
}

func NewAction() *Action {
	return &Action{client: &http.Client{Timeout: defaultTimeout}}
}

func (a *Action) ValidateConfig(config map[string]any) error {
	url, _ := config["url"].(string)
	if url == "" {
		return ErrURLRequired
	}

	return nil
}

func (a *Action) Execute(ctx context.Context, _ models.ExecutionContext, config map[string]any, logger *slog.Logger) (any, error) {
	url, _ := config["url"].(string)
	if url == "" {
		return nil, ErrURLRequired
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	var bodyReader io.Reader

	switch body := config["body"].(type) {
	case nil:
	case string:
		bodyReader = strings.NewReader(body)
	default:
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}

		bodyReader = strings.NewReader(string(raw))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for name, value := range headers {
			if v, ok := value.(string); ok {
				req.Header.Set(name, v)
			}
		}
	}

	logger.InfoContext(ctx, "Executing HTTP request", "method", method, "url", url)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: %d", ErrServerStatus, resp.StatusCode)
	}

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		body = string(raw)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     resp.Header,
	}, nil
}
