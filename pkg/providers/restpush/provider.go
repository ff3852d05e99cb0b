// Package restpush implements the push provider contract over a REST
// gateway, the deployment shape where a separate connector service fronts
// the actual mail or chat provider API.
package restpush

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hookflow/hookflow/pkg/protocol"
)

const requestTimeout = 30 * time.Second

// Provider talks to a connector gateway exposing /topics, /watch, /stop and
// /items endpoints. Bearer auth with the user's provider token.
type Provider struct {
	baseURL string
	client  *http.Client
}

func NewProvider(baseURL string) *Provider {
	return &Provider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
	}
}

func (p *Provider) EnsureTopic(ctx context.Context, token protocol.Token, userID string) (string, error) {
	var out struct {
		Topic string `json:"topic"`
	}

	err := p.post(ctx, token, "/topics", map[string]any{"user_id": userID}, &out)
	if err != nil {
		return "", fmt.Errorf("failed to ensure topic for user %s: %w", userID, err)
	}

	return out.Topic, nil
}

func (p *Provider) Watch(ctx context.Context, token protocol.Token, userID, topic string) (*protocol.WatchResult, error) {
	var out struct {
		HistoryID  string    `json:"history_id"`
		Expiration time.Time `json:"expiration"`
	}

	err := p.post(ctx, token, "/watch", map[string]any{
		"user_id": userID,
		"topic":   topic,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to start watch for user %s: %w", userID, err)
	}

	return &protocol.WatchResult{HistoryID: out.HistoryID, Expiration: out.Expiration}, nil
}

func (p *Provider) StopWatch(ctx context.Context, token protocol.Token, userID string) error {
	err := p.post(ctx, token, "/stop", map[string]any{"user_id": userID}, nil)
	if err != nil {
		return fmt.Errorf("failed to stop watch for user %s: %w", userID, err)
	}

	return nil
}

func (p *Provider) ItemsSince(ctx context.Context, token protocol.Token, userID, cursor string) ([]protocol.PushItem, string, error) {
	var out struct {
		Items []struct {
			ID   string         `json:"id"`
			Data map[string]any `json:"data"`
		} `json:"items"`
		Cursor string `json:"cursor"`
	}

	err := p.post(ctx, token, "/items", map[string]any{
		"user_id": userID,
		"cursor":  cursor,
	}, &out)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list items for user %s: %w", userID, err)
	}

	items := make([]protocol.PushItem, 0, len(out.Items))
	for _, item := range out.Items {
		items = append(items, protocol.PushItem{ID: item.ID, Data: item.Data})
	}

	return items, out.Cursor, nil
}

// RefreshToken exchanges the current token at the gateway's /token endpoint.
// Usable as the refresh function of a credentials store.
func (p *Provider) RefreshToken(ctx context.Context, userID string, current protocol.Token) (protocol.Token, error) {
	var out struct {
		AccessToken string    `json:"access_token"`
		ExpiresAt   time.Time `json:"expires_at"`
	}

	err := p.post(ctx, current, "/token", map[string]any{"user_id": userID}, &out)
	if err != nil {
		return protocol.Token{}, fmt.Errorf("failed to refresh token for user %s: %w", userID, err)
	}

	return protocol.Token{AccessToken: out.AccessToken, ExpiresAt: out.ExpiresAt}, nil
}

func (p *Provider) post(ctx context.Context, token protocol.Token, path string, body map[string]any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("gateway returned status %d for %s", resp.StatusCode, path)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
