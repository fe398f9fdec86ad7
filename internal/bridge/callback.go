package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ent0n29/toolbridge/internal/convo"
	"github.com/ent0n29/toolbridge/internal/push"
	"github.com/ent0n29/toolbridge/internal/session"
)

// CallbackRequest is a completion report from the execution backend.
// The runner may retry deliveries; a duplicate request id is re-applied
// last-write-wins rather than rejected.
type CallbackRequest struct {
	Success        bool      `json:"success"`
	RequestID      string    `json:"requestId"`
	ConversationID string    `json:"conversationId,omitempty"`
	Output         string    `json:"output,omitempty"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// addressResolver is one step of the push-address fallback chain. The
// chain is tried in order and the first non-empty address wins.
type addressResolver struct {
	name    string
	resolve func() string
}

// HandleCallback routes a completion back to the originating connection:
// task lookup first, session lookup by conversation id as fallback and
// enrichment. Push delivery and all bookkeeping are best-effort; once the
// request id is present the callback always succeeds.
func (b *Bridge) HandleCallback(ctx context.Context, req CallbackRequest) error {
	if strings.TrimSpace(req.RequestID) == "" {
		return &ValidationError{Field: "requestId"}
	}

	t := b.tasks.Get(ctx, req.RequestID)
	// The session lookup is always attempted, not only when the task is
	// missing: the session record is refreshed with the callback summary
	// below even when the task resolves the push address.
	sess := b.sessions.FindByConversationID(ctx, req.ConversationID)

	chain := []addressResolver{
		{name: "task", resolve: func() string {
			if t == nil {
				return ""
			}
			return t.WSURL
		}},
		{name: "session", resolve: func() string {
			return sess.WSURL()
		}},
	}

	if addr, source := firstAddress(chain); addr != "" {
		outcome := "delivered"
		attempt("push completion", func() error {
			err := b.pusher.PushMessage(ctx, addr, push.Message{
				Type: "task_result",
				Text: completionText(req),
				Metadata: map[string]string{
					"requestId": req.RequestID,
					"source":    source,
					"success":   strconv.FormatBool(req.Success),
				},
			})
			if err != nil {
				outcome = "failed"
			}
			return err
		})
		b.metrics.PushDeliveries.WithLabelValues(outcome).Inc()
	} else {
		b.metrics.PushDeliveries.WithLabelValues("no_address").Inc()
	}

	if t != nil {
		b.tasks.MarkCompleted(ctx, req.RequestID, req.Output, req.Error)
	}

	if sess != nil {
		summary, _ := json.Marshal(map[string]any{
			"requestId": req.RequestID,
			"success":   req.Success,
			"timestamp": time.Now().UTC(),
		})
		sess.SetMeta(session.MetaLastCallback, string(summary))
		b.sessions.CreateOrUpdate(ctx, sess)

		attempt("append result message", func() error {
			if sess.ConversationID == "" {
				return nil
			}
			return b.convs.AddMessage(ctx, sess.ConversationID, convo.Message{
				Role:    "assistant",
				Content: completionText(req),
				Source:  "callback",
			})
		})
	}

	return nil
}

// firstAddress walks the fallback chain and returns the first non-empty
// push address along with the name of the resolver that produced it.
func firstAddress(chain []addressResolver) (string, string) {
	for _, r := range chain {
		if addr := strings.TrimSpace(r.resolve()); addr != "" {
			return addr, r.name
		}
	}
	return "", ""
}

// completionText renders the fixed-format notification for a callback.
func completionText(req CallbackRequest) string {
	if req.Success {
		if strings.TrimSpace(req.Output) == "" {
			return "Task complete."
		}
		return fmt.Sprintf("Task complete: %s", req.Output)
	}
	if strings.TrimSpace(req.Error) == "" {
		return "Task failed."
	}
	return fmt.Sprintf("Task failed: %s", req.Error)
}
