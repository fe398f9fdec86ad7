package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ent0n29/toolbridge/internal/convo"
	"github.com/ent0n29/toolbridge/internal/kv"
	"github.com/ent0n29/toolbridge/internal/observability"
	"github.com/ent0n29/toolbridge/internal/push"
	"github.com/ent0n29/toolbridge/internal/runner"
	"github.com/ent0n29/toolbridge/internal/session"
	"github.com/ent0n29/toolbridge/internal/task"
)

var metricsSeq atomic.Uint64

// newTestMetrics returns metrics under a unique namespace so repeated
// registrations within one test binary do not collide.
func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("test_bridge_%d", metricsSeq.Add(1)))
}

type harness struct {
	bridge   *Bridge
	sessions *session.Store
	tasks    *task.Registry
	convs    *fakeConvo
	exec     *fakeExec
	pusher   *fakePush
}

func newHarness(cfg Config) *harness {
	store := kv.NewMemory()
	sessions := session.NewStore(store, time.Hour, nil)
	tasks := task.NewRegistry(store, 24*time.Hour, nil)
	convs := &fakeConvo{nextConvID: "conv-1"}
	exec := &fakeExec{}
	pusher := &fakePush{}
	return &harness{
		bridge:   New(cfg, sessions, tasks, convs, exec, pusher, newTestMetrics()),
		sessions: sessions,
		tasks:    tasks,
		convs:    convs,
		exec:     exec,
		pusher:   pusher,
	}
}

type appendedMessage struct {
	conversationID string
	msg            convo.Message
}

type fakeConvo struct {
	mu         sync.Mutex
	nextConvID string
	createErr  error
	created    int
	addErr     error
	messages   []appendedMessage
	signedURL  string
	signedErr  error
}

func (f *fakeConvo) CreateConversation(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created++
	return f.nextConvID, nil
}

func (f *fakeConvo) AddMessage(_ context.Context, conversationID string, msg convo.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.messages = append(f.messages, appendedMessage{conversationID: conversationID, msg: msg})
	return nil
}

func (f *fakeConvo) GetSignedURL(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signedErr != nil {
		return "", f.signedErr
	}
	if f.signedURL == "" {
		return "", fmt.Errorf("no signed url configured")
	}
	return f.signedURL, nil
}

type fakeExec struct {
	mu          sync.Mutex
	err         error
	requests    []runner.Request
	callbackURL string
	seq         int
}

func (f *fakeExec) ExecuteAsync(_ context.Context, req runner.Request, callbackURL string) (runner.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return runner.Response{}, f.err
	}
	f.requests = append(f.requests, req)
	f.callbackURL = callbackURL
	f.seq++
	return runner.Response{
		Success:   true,
		RequestID: fmt.Sprintf("r%d", f.seq),
		Timestamp: time.Now().UTC(),
	}, nil
}

type pushedMessage struct {
	wsURL string
	msg   push.Message
}

type fakePush struct {
	mu     sync.Mutex
	err    error
	pushes []pushedMessage
}

func (f *fakePush) PushMessage(_ context.Context, wsURL string, msg push.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.pushes = append(f.pushes, pushedMessage{wsURL: wsURL, msg: msg})
	return nil
}
