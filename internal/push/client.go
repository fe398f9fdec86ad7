package push

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

	"github.com/gorilla/websocket"
)

// Message is a completion notification for a live connection.
type Message struct {
	Type     string            `json:"type"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Client delivers completion notifications to a session's push address.
// ws:// and wss:// addresses get a single JSON frame over a short-lived
// websocket connection; http(s) addresses get a JSON POST.
type Client struct {
	dialer     *websocket.Dialer
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// PushMessage delivers msg to wsURL. An empty address is an error; the
// caller decides whether an address is resolvable at all.
func (c *Client) PushMessage(ctx context.Context, wsURL string, msg Message) error {
	wsURL = strings.TrimSpace(wsURL)
	if wsURL == "" {
		return fmt.Errorf("push address is empty")
	}
	u, err := url.Parse(wsURL)
	if err != nil {
		return fmt.Errorf("parse push address: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
		return c.pushWebsocket(ctx, wsURL, msg)
	case "http", "https":
		return c.pushHTTP(ctx, wsURL, msg)
	default:
		return fmt.Errorf("unsupported push scheme %q", u.Scheme)
	}
}

func (c *Client) pushWebsocket(ctx context.Context, wsURL string, msg Message) error {
	conn, res, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if res != nil {
			return fmt.Errorf("dial push address (status %d): %w", res.StatusCode, err)
		}
		return fmt.Errorf("dial push address: %w", err)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write push message: %w", err)
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}

func (c *Client) pushHTTP(ctx context.Context, target string, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal push message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send push request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("push endpoint status %d: %s", res.StatusCode, string(body))
	}
	return nil
}
