package session

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/ent0n29/toolbridge/internal/kv"
	"github.com/ent0n29/toolbridge/internal/observability"
)

const keyPrefix = "session:"

// DefaultTTL is the sliding inactivity window for session records.
const DefaultTTL = time.Hour

// Store persists sessions in the shared key-value store under a session:
// key prefix. Every operation fails soft: a storage error is logged and
// reported as "session absent", never raised, so callers must always be
// prepared to synthesize fresh state.
type Store struct {
	kv      kv.Store
	ttl     time.Duration
	metrics *observability.Metrics
}

func NewStore(store kv.Store, ttl time.Duration, metrics *observability.Metrics) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: store, ttl: ttl, metrics: metrics}
}

// Get returns the session for sessionID, or nil if absent or unreadable.
func (s *Store) Get(ctx context.Context, sessionID string) *Session {
	data, err := s.kv.Get(ctx, keyPrefix+sessionID)
	s.metrics.ObserveStoreOp("session_get", ignoreAbsent(err))
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			log.Printf("session: get %q failed: %v", sessionID, err)
		}
		return nil
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		log.Printf("session: decode %q failed: %v", sessionID, err)
		return nil
	}
	return &sess
}

// CreateOrUpdate refreshes lastAccessedAt and writes the session with the
// TTL reset to the full sliding window. Storage failures are logged and
// swallowed.
func (s *Store) CreateOrUpdate(ctx context.Context, sess *Session) {
	sess.LastAccessedAt = time.Now().UTC()
	data, err := json.Marshal(sess)
	if err != nil {
		log.Printf("session: encode %q failed: %v", sess.SessionID, err)
		return
	}
	err = s.kv.Set(ctx, keyPrefix+sess.SessionID, data, s.ttl)
	s.metrics.ObserveStoreOp("session_set", err)
	if err != nil {
		log.Printf("session: write %q skipped: %v", sess.SessionID, err)
	}
}

func (s *Store) Delete(ctx context.Context, sessionID string) {
	err := s.kv.Delete(ctx, keyPrefix+sessionID)
	s.metrics.ObserveStoreOp("session_delete", err)
	if err != nil {
		log.Printf("session: delete %q failed: %v", sessionID, err)
	}
}

// FindByConversationID scans all live sessions and returns the first whose
// conversation id (either handle) matches. O(n) over live sessions, which
// are TTL-bounded and low cardinality.
func (s *Store) FindByConversationID(ctx context.Context, conversationID string) *Session {
	if conversationID == "" {
		return nil
	}
	for _, sess := range s.scan(ctx, "session_find_by_conversation") {
		if sess.ConversationID == conversationID || sess.AgentConversationID == conversationID {
			return sess
		}
	}
	return nil
}

// ListByAgent returns all live sessions owned by the given agent.
func (s *Store) ListByAgent(ctx context.Context, agentID string) []*Session {
	var out []*Session
	for _, sess := range s.scan(ctx, "session_list_by_agent") {
		if sess.AgentID == agentID {
			out = append(out, sess)
		}
	}
	return out
}

func (s *Store) scan(ctx context.Context, op string) []*Session {
	keys, err := s.kv.Keys(ctx, keyPrefix)
	s.metrics.ObserveStoreOp(op, err)
	if err != nil {
		log.Printf("session: key scan failed: %v", err)
		return nil
	}
	out := make([]*Session, 0, len(keys))
	for _, key := range keys {
		data, err := s.kv.Get(ctx, key)
		if err != nil {
			// Expired between scan and read, or store went away mid-scan.
			continue
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			log.Printf("session: decode %q failed during scan: %v", key, err)
			continue
		}
		out = append(out, &sess)
	}
	return out
}

func ignoreAbsent(err error) error {
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	return err
}
