package bridge

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/toolbridge/internal/session"
)

// RegisterSessionRequest records or refreshes a session's live push
// address directly, independent of the tool-call path.
type RegisterSessionRequest struct {
	SessionURL     string            `json:"sessionUrl"`
	SessionID      string            `json:"sessionId,omitempty"`
	SessionPayload string            `json:"sessionPayload,omitempty"`
	ExpiresAt      *time.Time        `json:"expiresAt,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// RegisterSessionResponse acknowledges a recorded push address.
type RegisterSessionResponse struct {
	Success   bool      `json:"success"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
}

// RegisterSession binds conversationID to a push address. An existing
// session (matched by conversation id, then by session id) is refreshed;
// otherwise one is synthesized with a generated id.
func (b *Bridge) RegisterSession(ctx context.Context, conversationID string, req RegisterSessionRequest) (RegisterSessionResponse, error) {
	if strings.TrimSpace(conversationID) == "" {
		return RegisterSessionResponse{}, &ValidationError{Field: "conversationId"}
	}
	if strings.TrimSpace(req.SessionURL) == "" {
		return RegisterSessionResponse{}, &ValidationError{Field: "sessionUrl"}
	}

	sess := b.sessions.FindByConversationID(ctx, conversationID)
	if sess == nil && strings.TrimSpace(req.SessionID) != "" {
		sess = b.sessions.Get(ctx, req.SessionID)
	}
	if sess == nil {
		sessionID := strings.TrimSpace(req.SessionID)
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		sess = session.New(sessionID, "")
	}

	sess.AgentConversationID = conversationID
	if sess.ConversationID == "" {
		sess.ConversationID = conversationID
	}
	sess.SetMeta(session.MetaWSURL, req.SessionURL)
	if req.SessionPayload != "" {
		sess.SetMeta(session.MetaSessionPayload, req.SessionPayload)
	}
	if req.ExpiresAt != nil {
		sess.SetMeta("expiresAt", req.ExpiresAt.UTC().Format(time.RFC3339))
	}
	for k, v := range req.Metadata {
		sess.SetMeta(k, v)
	}

	b.sessions.CreateOrUpdate(ctx, sess)

	return RegisterSessionResponse{
		Success:   true,
		SessionID: sess.SessionID,
		Timestamp: time.Now().UTC(),
	}, nil
}
