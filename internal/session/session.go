package session

import "time"

// Metadata keys used by the correlation flow.
const (
	MetaWSURL          = "wsUrl"
	MetaSessionPayload = "sessionPayload"
	MetaLastCallback   = "lastCallback"
)

// Session ties a client-visible session identifier to a conversation and a
// live push address. Records are stored as flat JSON under a session-prefixed
// key with a sliding TTL.
type Session struct {
	SessionID           string            `json:"sessionId"`
	AgentID             string            `json:"agentId"`
	ConversationID      string            `json:"conversationId,omitempty"`
	AgentConversationID string            `json:"agentConversationId,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	LastAccessedAt      time.Time         `json:"lastAccessedAt"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// New returns a fresh session with createdAt == lastAccessedAt.
func New(sessionID, agentID string) *Session {
	now := time.Now().UTC()
	return &Session{
		SessionID:      sessionID,
		AgentID:        agentID,
		CreatedAt:      now,
		LastAccessedAt: now,
		Metadata:       make(map[string]string),
	}
}

// WSURL returns the live push address recorded for this session, if any.
func (s *Session) WSURL() string {
	if s == nil || s.Metadata == nil {
		return ""
	}
	return s.Metadata[MetaWSURL]
}

// SetMeta records a metadata entry, allocating the bag on first use.
func (s *Session) SetMeta(key, value string) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]string)
	}
	s.Metadata[key] = value
}
