package bridge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ent0n29/toolbridge/internal/convo"
	"github.com/ent0n29/toolbridge/internal/runner"
	"github.com/ent0n29/toolbridge/internal/session"
	"github.com/ent0n29/toolbridge/internal/task"
)

// ToolCallRequest is an inbound tool-invocation webhook.
type ToolCallRequest struct {
	AgentID        string         `json:"agent_id"`
	SessionID      string         `json:"session_id"`
	ToolName       string         `json:"tool_name"`
	ToolArgs       map[string]any `json:"tool_args,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
}

// ToolCallResponse acknowledges an accepted tool call. The execution
// itself completes out of band via the callback endpoint.
type ToolCallResponse struct {
	Success   bool      `json:"success"`
	SessionID string    `json:"sessionId"`
	RequestID string    `json:"requestId"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleToolCall resolves or synthesizes the session, submits the prompt
// to the execution backend and registers the pending task. Session and
// conversation housekeeping is best-effort; only a failed submission is
// surfaced to the caller.
func (b *Bridge) HandleToolCall(ctx context.Context, req ToolCallRequest, secretHeader string) (ToolCallResponse, error) {
	switch {
	case strings.TrimSpace(req.AgentID) == "":
		return ToolCallResponse{}, &ValidationError{Field: "agent_id"}
	case strings.TrimSpace(req.SessionID) == "":
		return ToolCallResponse{}, &ValidationError{Field: "session_id"}
	case strings.TrimSpace(req.ToolName) == "":
		return ToolCallResponse{}, &ValidationError{Field: "tool_name"}
	}

	// Soft-auth: the secret is only checked when both sides are present.
	// An omitted header passes even with a configured secret.
	secretHeader = strings.TrimSpace(secretHeader)
	if b.cfg.WebhookSecret != "" && secretHeader != "" && secretHeader != b.cfg.WebhookSecret {
		return ToolCallResponse{}, ErrUnauthorized
	}

	sess := b.sessions.Get(ctx, req.SessionID)
	if sess == nil {
		sess = b.newSession(ctx, req)
	} else {
		b.refreshSession(ctx, req, sess)
	}

	attempt("append tool request message", func() error {
		if sess.ConversationID == "" {
			return nil
		}
		return b.convs.AddMessage(ctx, sess.ConversationID, convo.Message{
			Role:    "user",
			Content: fmt.Sprintf("Tool request: %s", buildPrompt(req.ToolName, req.ToolArgs)),
			Source:  "agent-tools",
		})
	})

	start := time.Now()
	res, err := b.exec.ExecuteAsync(ctx, runner.Request{
		Prompt:         buildPrompt(req.ToolName, req.ToolArgs),
		ConversationID: sess.ConversationID,
		QueueType:      b.cfg.QueueType,
	}, b.cfg.CallbackURL)
	b.metrics.ObserveSubmitLatency(time.Since(start))
	if err != nil {
		return ToolCallResponse{}, &UpstreamError{Err: err}
	}

	attempt("register task", func() error {
		return b.tasks.Create(ctx, task.Task{
			TaskID:         res.RequestID,
			ConversationID: sess.ConversationID,
			SessionPayload: sess.Metadata[session.MetaSessionPayload],
			WSURL:          sess.WSURL(),
			ToolName:       req.ToolName,
			ToolArgs:       req.ToolArgs,
		})
	})

	return ToolCallResponse{
		Success:   true,
		SessionID: sess.SessionID,
		RequestID: res.RequestID,
		Timestamp: time.Now().UTC(),
	}, nil
}

// newSession synthesizes a session for an unseen session id. Conversation
// creation and push-address backfill are best-effort; the tool call
// proceeds without them.
func (b *Bridge) newSession(ctx context.Context, req ToolCallRequest) *session.Session {
	sess := session.New(req.SessionID, req.AgentID)
	if req.ConversationID != "" {
		sess.ConversationID = req.ConversationID
		sess.AgentConversationID = req.ConversationID
	} else {
		attempt("create conversation", func() error {
			id, err := b.convs.CreateConversation(ctx, req.AgentID)
			if err != nil {
				return err
			}
			sess.ConversationID = id
			sess.AgentConversationID = id
			return nil
		})
	}
	if sess.WSURL() == "" {
		attempt("backfill push address", func() error {
			signed, err := b.convs.GetSignedURL(ctx, req.AgentID)
			if err != nil {
				return err
			}
			sess.SetMeta(session.MetaWSURL, signed)
			return nil
		})
	}
	b.sessions.CreateOrUpdate(ctx, sess)
	return sess
}

// refreshSession applies the inbound payload to an existing session and
// persists the touch.
func (b *Bridge) refreshSession(ctx context.Context, req ToolCallRequest, sess *session.Session) {
	if req.ConversationID != "" {
		sess.ConversationID = req.ConversationID
	}
	if sess.AgentConversationID == "" {
		attempt("create agent conversation", func() error {
			id, err := b.convs.CreateConversation(ctx, req.AgentID)
			if err != nil {
				return err
			}
			sess.AgentConversationID = id
			if sess.ConversationID == "" {
				sess.ConversationID = id
			}
			return nil
		})
	}
	b.sessions.CreateOrUpdate(ctx, sess)
}

// buildPrompt renders the tool invocation as a natural-language prompt:
// the tool name followed by "key: value" pairs, comma-joined. Keys are
// sorted so the same call always yields the same prompt.
func buildPrompt(toolName string, args map[string]any) string {
	if len(args) == 0 {
		return toolName
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s: %v", k, args[k]))
	}
	return toolName + " " + strings.Join(pairs, ", ")
}
