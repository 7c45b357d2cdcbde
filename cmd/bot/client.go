package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wricardo/knights-trail/game/engine"
	"github.com/wricardo/knights-trail/game/service"
)

// APIError is a non-2xx answer from the game server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// Client talks to one session of the REST API.
type Client struct {
	baseURL   string
	sessionID string
	client    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			// a submit waits for the round, including computer think time
			Timeout: 30 * time.Second,
		},
	}
}

// SessionID returns the session the client plays in.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Join makes the client play in an existing session.
func (c *Client) Join(sessionID string) {
	c.sessionID = sessionID
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

func (c *Client) sessionPath(suffix string) string {
	return "/api/sessions/" + url.PathEscape(c.sessionID) + suffix
}

// CreateSession starts a new session from preset configName and joins it.
func (c *Client) CreateSession(ctx context.Context, configName string, seed *int64) (*service.SessionInfo, error) {
	req := map[string]any{}
	if configName != "" {
		req["config_id"] = configName
	}
	if seed != nil {
		req["seed"] = *seed
	}

	var info service.SessionInfo
	if err := c.do(ctx, http.MethodPost, "/api/sessions", req, &info); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	c.sessionID = info.ID
	return &info, nil
}

// GetSession returns the current session, including its snapshot and the
// humans the round waits for.
func (c *Client) GetSession(ctx context.Context) (*service.SessionInfo, error) {
	var info service.SessionInfo
	if err := c.do(ctx, http.MethodGet, c.sessionPath(""), nil, &info); err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &info, nil
}

// SubmitMove sends the intent of playerID.
func (c *Client) SubmitMove(ctx context.Context, playerID int, to engine.Position) (*service.MoveResult, error) {
	req := map[string]any{"player_id": playerID, "to": to}
	var result service.MoveResult
	if err := c.do(ctx, http.MethodPost, c.sessionPath("/moves"), req, &result); err != nil {
		return nil, fmt.Errorf("submit move: %w", err)
	}
	return &result, nil
}

// Autoplay asks the server to play computer rounds until it needs a human.
func (c *Client) Autoplay(ctx context.Context) (*service.RoundsResult, error) {
	var result service.RoundsResult
	if err := c.do(ctx, http.MethodPost, c.sessionPath("/autoplay"), nil, &result); err != nil {
		return nil, fmt.Errorf("autoplay: %w", err)
	}
	return &result, nil
}

// Reset restarts the session with the same ruleset and seed.
func (c *Client) Reset(ctx context.Context) (*service.SessionInfo, error) {
	var resp struct {
		Message string               `json:"message"`
		Session *service.SessionInfo `json:"session"`
	}
	if err := c.do(ctx, http.MethodPost, c.sessionPath("/reset"), nil, &resp); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	return resp.Session, nil
}
