// Package gateway holds the thin chat-channel bridges (Discord, Slack,
// Telegram) that translate platform messages into Control API calls. Each
// bridge owns no session-runtime state of its own: it maps a platform
// conversation to a session id, posts messages through Client, and relays
// the run's reply back to the platform once the run finishes.
package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/forgewright/agentcore/internal/eventbus"
)

// Client is a minimal Control API client: just enough surface for a chat
// bridge to create a session, send a message, and tail the resulting
// run's events for a reply.
type Client struct {
	BaseURL    string
	AuthToken  string
	HTTPClient *http.Client
}

// NewClient builds a Client against a running agentcored Control API.
func NewClient(baseURL, authToken string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AuthToken:  authToken,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("control api %s %s: %d %s: %s", method, path, resp.StatusCode, apiErr.Code, apiErr.Message)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreateSession creates a new session titled for the given platform
// conversation and returns its id.
func (c *Client) CreateSession(ctx context.Context, title string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", map[string]string{"title": title}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// SendMessage posts a user message to a session, starting a new run, and
// returns the run id.
func (c *Client) SendMessage(ctx context.Context, sessionID, text string) (string, error) {
	var resp struct {
		RunID string `json:"run_id"`
	}
	body := map[string]string{"message": text, "type": "message"}
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID+"/messages", body, &resp); err != nil {
		return "", err
	}
	return resp.RunID, nil
}

// AwaitReply tails a session's event stream until the given run finishes
// (or ctx is cancelled), concatenating every model.delta chunk's text into
// the assistant's reply.
func (c *Client) AwaitReply(ctx context.Context, sessionID, runID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/sessions/"+sessionID+"/events", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var reply strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev eventbus.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}
		if ev.RunID == nil || ev.RunID.String() != runID {
			continue
		}
		switch ev.Kind {
		case eventbus.KindModelDelta:
			if text, ok := ev.Data["text"].(string); ok {
				reply.WriteString(text)
			}
		case eventbus.KindRunFinished, eventbus.KindRunError, eventbus.KindRunCancelled:
			return reply.String(), nil
		}
	}
	return reply.String(), scanner.Err()
}

// ListSessions returns a page of sessions.
func (c *Client) ListSessions(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	var resp struct {
		Sessions []map[string]any `json:"sessions"`
	}
	path := fmt.Sprintf("/v1/sessions?limit=%d&offset=%d", limit, offset)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// GetSession returns a single session's state.
func (c *Client) GetSession(ctx context.Context, sessionID string) (map[string]any, error) {
	var resp map[string]any
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+sessionID, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// DeleteSession soft-deletes a session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/sessions/"+sessionID, nil, nil)
}

// CancelRun cancels a session's active run.
func (c *Client) CancelRun(ctx context.Context, sessionID, runID string) error {
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID+"/cancel", map[string]string{"run_id": runID}, nil)
}

// PendingTools returns the tool calls awaiting a decision on a session's
// active run.
func (c *Client) PendingTools(ctx context.Context, sessionID string) (map[string]any, error) {
	var resp map[string]any
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+sessionID+"/tools/pending", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ResolveTool resolves one pending tool call with the given action
// ("accept", "reject", or "custom_result").
func (c *Client) ResolveTool(ctx context.Context, sessionID, toolCallID, action, result string) error {
	body := map[string]any{
		"decisions": map[string]any{
			toolCallID: map[string]string{"action": action, "result": result},
		},
	}
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID+"/tools/decisions", body, nil)
}

// TailWS opens a WebSocket connection to a session's event stream — lower
// latency than AwaitReply's SSE polling loop — and invokes onEvent for
// every event until ctx is cancelled or the connection drops.
func (c *Client) TailWS(ctx context.Context, sessionID string, onEvent func(eventbus.Event)) error {
	wsURL := strings.Replace(c.BaseURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL += "/v1/sessions/" + sessionID + "/events/ws"

	header := http.Header{}
	if c.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return fmt.Errorf("gateway: dial events websocket: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var ev eventbus.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		onEvent(ev)
	}
}
