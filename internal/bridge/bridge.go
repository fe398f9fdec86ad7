package bridge

import (
	"context"
	"log"
	"strings"

	"github.com/ent0n29/toolbridge/internal/convo"
	"github.com/ent0n29/toolbridge/internal/observability"
	"github.com/ent0n29/toolbridge/internal/push"
	"github.com/ent0n29/toolbridge/internal/runner"
	"github.com/ent0n29/toolbridge/internal/session"
	"github.com/ent0n29/toolbridge/internal/task"
)

// ConversationClient forwards conversation writes to the external
// conversation-history service.
type ConversationClient interface {
	CreateConversation(ctx context.Context, agentID string) (string, error)
	AddMessage(ctx context.Context, conversationID string, msg convo.Message) error
	GetSignedURL(ctx context.Context, agentID string) (string, error)
}

// ExecutionClient submits prompts to the external async job runner.
type ExecutionClient interface {
	ExecuteAsync(ctx context.Context, req runner.Request, callbackURL string) (runner.Response, error)
}

// PushClient delivers a completion notification to a live connection.
type PushClient interface {
	PushMessage(ctx context.Context, wsURL string, msg push.Message) error
}

// Config carries the orchestration knobs.
type Config struct {
	// WebhookSecret, when set, is compared against the x-webhook-secret
	// header of inbound tool calls.
	WebhookSecret string
	// CallbackURL is the public address the runner reports completions to.
	CallbackURL string
	// QueueType is forwarded verbatim on every execution submission.
	QueueType string
}

// Bridge coordinates sessions, tasks and the three external clients. It
// holds no persistent state of its own.
type Bridge struct {
	cfg      Config
	sessions *session.Store
	tasks    *task.Registry
	convs    ConversationClient
	exec     ExecutionClient
	pusher   PushClient
	metrics  *observability.Metrics
}

func New(cfg Config, sessions *session.Store, tasks *task.Registry, convs ConversationClient, exec ExecutionClient, pusher PushClient, metrics *observability.Metrics) *Bridge {
	cfg.WebhookSecret = strings.TrimSpace(cfg.WebhookSecret)
	return &Bridge{
		cfg:      cfg,
		sessions: sessions,
		tasks:    tasks,
		convs:    convs,
		exec:     exec,
		pusher:   pusher,
		metrics:  metrics,
	}
}

// attempt runs one best-effort housekeeping step. A failure is logged with
// its step name and never propagates past this call.
func attempt(step string, fn func() error) {
	if err := fn(); err != nil {
		log.Printf("bridge: %s failed: %v", step, err)
	}
}
