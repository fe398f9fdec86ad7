package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Request describes one asynchronous execution submission.
type Request struct {
	Prompt         string `json:"prompt"`
	ConversationID string `json:"conversationId,omitempty"`
	QueueType      string `json:"queueType,omitempty"`
	CallbackURL    string `json:"callbackUrl"`
}

// Response acknowledges an accepted submission. The actual execution
// completes out of band via the callback endpoint.
type Response struct {
	Success   bool      `json:"success"`
	RequestID string    `json:"requestId"`
	Timestamp time.Time `json:"timestamp"`
}

// Client submits execution requests to the async job runner.
type Client struct {
	url    string
	client *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// ExecuteAsync submits the prompt and returns the runner's request id.
// The runner reports completion later by POSTing to callbackURL.
func (c *Client) ExecuteAsync(ctx context.Context, req Request, callbackURL string) (Response, error) {
	req.CallbackURL = callbackURL
	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Response{}, fmt.Errorf("runner status %d: %s", res.StatusCode, string(body))
	}

	var out Response
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if !out.Success || strings.TrimSpace(out.RequestID) == "" {
		return Response{}, fmt.Errorf("runner rejected submission (success=%v, requestId=%q)", out.Success, out.RequestID)
	}
	return out, nil
}
