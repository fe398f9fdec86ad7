package convo

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
)

// Message is one entry in a conversation history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Client talks to the external conversation-history service and to the
// voice platform's signed-URL endpoint. Conversations are created and
// appended to, never deleted; their lifecycle belongs to the service.
type Client struct {
	baseURL          string
	apiKey           string
	signedURLTimeout time.Duration
	client           *http.Client
}

type Config struct {
	BaseURL          string
	APIKey           string
	SignedURLTimeout time.Duration
}

func NewClient(cfg Config) *Client {
	timeout := cfg.SignedURLTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:          strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:           strings.TrimSpace(cfg.APIKey),
		signedURLTimeout: timeout,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// CreateConversation opens a new conversation and returns its id.
func (c *Client) CreateConversation(ctx context.Context, agentID string) (string, error) {
	body := map[string]string{}
	if agentID != "" {
		body["agent_id"] = agentID
	}
	var out struct {
		ConversationID string `json:"conversationId"`
	}
	if err := c.postJSON(ctx, c.baseURL+"/api/conversations", body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ConversationID) == "" {
		return "", fmt.Errorf("conversation service returned no conversation id")
	}
	return out.ConversationID, nil
}

// AddMessage appends one message to the conversation history.
func (c *Client) AddMessage(ctx context.Context, conversationID string, msg Message) error {
	if strings.TrimSpace(conversationID) == "" {
		return fmt.Errorf("conversation id is required")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	target := c.baseURL + "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	return c.postJSON(ctx, target, msg, nil)
}

// GetSignedURL fetches a signed live-connection URL for the agent from the
// voice platform. The fetch is bounded by an explicit timeout because it
// sits on the inbound tool-call path.
func (c *Client) GetSignedURL(ctx context.Context, agentID string) (string, error) {
	if strings.TrimSpace(agentID) == "" {
		return "", fmt.Errorf("agent id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, c.signedURLTimeout)
	defer cancel()

	target := c.baseURL + "/v1/convai/conversation/get-signed-url?agent_id=" + url.QueryEscape(agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("xi-api-key", c.apiKey)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch signed url: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("signed url status %d: %s", res.StatusCode, string(body))
	}

	var out struct {
		SignedURL string `json:"signed_url"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode signed url response: %w", err)
	}
	if strings.TrimSpace(out.SignedURL) == "" {
		return "", fmt.Errorf("signed url response was empty")
	}
	return out.SignedURL, nil
}

func (c *Client) postJSON(ctx context.Context, target string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("xi-api-key", c.apiKey)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("conversation service status %d: %s", res.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
