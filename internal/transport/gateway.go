package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"mailroom.app/engine/internal/model"
)

// GatewayConfig points the engine at the gateway sidecar that owns the
// raw transport connection.
type GatewayConfig struct {
	BaseURL  string
	Token    string
	Identity string // author id the gateway posts under
	Timeout  time.Duration
}

// Gateway is the HTTP adapter for the gateway sidecar. The sidecar holds
// the actual transport connection; the engine only speaks this API.
type Gateway struct {
	baseURL  string
	token    string
	identity model.UserID
	client   *http.Client
}

var _ Transport = (*Gateway)(nil)

func NewGateway(cfg GatewayConfig) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Gateway{
		baseURL:  cfg.BaseURL,
		token:    cfg.Token,
		identity: model.UserID(cfg.Identity),
		client:   &http.Client{Timeout: timeout},
	}
}

func (g *Gateway) Identity() model.UserID {
	return g.identity
}

func (g *Gateway) CreateChannel(ctx context.Context, name, category string) (model.ChannelID, error) {
	var out struct {
		ChannelID string `json:"channel_id"`
	}
	err := g.do(ctx, http.MethodPost, "/v1/channels", map[string]string{
		"name":     name,
		"category": category,
	}, &out)
	if err != nil {
		return "", err
	}
	return model.ChannelID(out.ChannelID), nil
}

func (g *Gateway) DirectChannel(ctx context.Context, recipient model.UserID) (model.ChannelID, error) {
	var out struct {
		ChannelID string `json:"channel_id"`
	}
	path := "/v1/users/" + url.PathEscape(string(recipient)) + "/channel"
	if err := g.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return "", err
	}
	return model.ChannelID(out.ChannelID), nil
}

func (g *Gateway) PostMessage(ctx context.Context, ch model.ChannelID, msg Rendered) (model.MessageID, error) {
	var out struct {
		MessageID string `json:"message_id"`
	}
	path := "/v1/channels/" + url.PathEscape(string(ch)) + "/messages"
	if err := g.do(ctx, http.MethodPost, path, msg, &out); err != nil {
		return "", err
	}
	return model.MessageID(out.MessageID), nil
}

func (g *Gateway) EditMessage(ctx context.Context, ch model.ChannelID, id model.MessageID, msg Rendered) error {
	path := "/v1/channels/" + url.PathEscape(string(ch)) + "/messages/" + url.PathEscape(string(id))
	return g.do(ctx, http.MethodPatch, path, msg, nil)
}

func (g *Gateway) DeleteMessage(ctx context.Context, ch model.ChannelID, id model.MessageID) error {
	path := "/v1/channels/" + url.PathEscape(string(ch)) + "/messages/" + url.PathEscape(string(id))
	return g.do(ctx, http.MethodDelete, path, nil, nil)
}

func (g *Gateway) ScanHistory(ctx context.Context, ch model.ChannelID, limit int) ([]HistoryMessage, error) {
	var out struct {
		Messages []HistoryMessage `json:"messages"`
	}
	path := fmt.Sprintf("/v1/channels/%s/history?limit=%d", url.PathEscape(string(ch)), limit)
	if err := g.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (g *Gateway) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding gateway request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrTransient, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s: status %d", ErrTransient, method, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("gateway rejected %s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding gateway response: %w", err)
		}
	}
	return nil
}
