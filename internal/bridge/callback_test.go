package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ent0n29/toolbridge/internal/session"
	"github.com/ent0n29/toolbridge/internal/task"
)

func TestCallbackMissingRequestID(t *testing.T) {
	h := newHarness(Config{})
	err := h.bridge.HandleCallback(context.Background(), CallbackRequest{Success: true})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("HandleCallback() error = %v, want ValidationError", err)
	}
}

func TestCallbackPrefersTaskAddress(t *testing.T) {
	h := newHarness(Config{})
	ctx := context.Background()

	sess := session.New("sess-1", "agent-1")
	sess.ConversationID = "conv-1"
	sess.SetMeta(session.MetaWSURL, "wss://session.test")
	h.sessions.CreateOrUpdate(ctx, sess)

	if err := h.tasks.Create(ctx, task.Task{
		TaskID:         "r1",
		ConversationID: "conv-1",
		WSURL:          "wss://task.test",
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err := h.bridge.HandleCallback(ctx, CallbackRequest{
		Success:        true,
		RequestID:      "r1",
		ConversationID: "conv-1",
		Output:         "all done",
	})
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	if len(h.pusher.pushes) != 1 {
		t.Fatalf("pushes = %d, want 1", len(h.pusher.pushes))
	}
	got := h.pusher.pushes[0]
	if got.wsURL != "wss://task.test" {
		t.Fatalf("pushed to %q, want task address", got.wsURL)
	}
	if got.msg.Text != "Task complete: all done" {
		t.Fatalf("push text = %q", got.msg.Text)
	}
	if got.msg.Metadata["source"] != "task" {
		t.Fatalf("push source = %q, want task", got.msg.Metadata["source"])
	}
}

func TestCallbackFallsBackToSessionAddress(t *testing.T) {
	h := newHarness(Config{})
	ctx := context.Background()

	sess := session.New("sess-1", "agent-1")
	sess.ConversationID = "conv-1"
	sess.SetMeta(session.MetaWSURL, "wss://session.test")
	h.sessions.CreateOrUpdate(ctx, sess)

	// Task exists but carries no push address.
	if err := h.tasks.Create(ctx, task.Task{TaskID: "r1", ConversationID: "conv-1"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err := h.bridge.HandleCallback(ctx, CallbackRequest{
		Success:        false,
		RequestID:      "r1",
		ConversationID: "conv-1",
		Error:          "compile error",
	})
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	if len(h.pusher.pushes) != 1 {
		t.Fatalf("pushes = %d, want 1", len(h.pusher.pushes))
	}
	got := h.pusher.pushes[0]
	if got.wsURL != "wss://session.test" {
		t.Fatalf("pushed to %q, want session address", got.wsURL)
	}
	if got.msg.Text != "Task failed: compile error" {
		t.Fatalf("push text = %q", got.msg.Text)
	}
	if got.msg.Metadata["source"] != "session" {
		t.Fatalf("push source = %q, want session", got.msg.Metadata["source"])
	}
}

func TestCallbackNoAddressStillCompletes(t *testing.T) {
	h := newHarness(Config{})
	ctx := context.Background()

	if err := h.tasks.Create(ctx, task.Task{TaskID: "r1"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err := h.bridge.HandleCallback(ctx, CallbackRequest{
		Success:   true,
		RequestID: "r1",
		Output:    "quiet success",
	})
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if len(h.pusher.pushes) != 0 {
		t.Fatalf("pushes = %d, want 0 with no resolvable address", len(h.pusher.pushes))
	}

	tk := h.tasks.Get(ctx, "r1")
	if tk.Pending {
		t.Fatalf("task still pending after callback")
	}
	if tk.Result != "quiet success" {
		t.Fatalf("task result = %q", tk.Result)
	}
}

func TestCallbackPushFailureIsSwallowed(t *testing.T) {
	h := newHarness(Config{})
	ctx := context.Background()

	if err := h.tasks.Create(ctx, task.Task{TaskID: "r1", WSURL: "wss://task.test"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	h.pusher.err = errors.New("connection refused")

	if err := h.bridge.HandleCallback(ctx, CallbackRequest{Success: true, RequestID: "r1"}); err != nil {
		t.Fatalf("HandleCallback() error = %v, want nil despite push failure", err)
	}
	if h.tasks.Get(ctx, "r1").Pending {
		t.Fatalf("task still pending after callback with failed push")
	}
}

func TestCallbackUnknownTaskStillSucceeds(t *testing.T) {
	h := newHarness(Config{})
	err := h.bridge.HandleCallback(context.Background(), CallbackRequest{
		Success:   true,
		RequestID: "never-seen",
	})
	if err != nil {
		t.Fatalf("HandleCallback() error = %v, want nil for unknown request id", err)
	}
}

func TestCallbackSessionBookkeeping(t *testing.T) {
	h := newHarness(Config{})
	ctx := context.Background()

	sess := session.New("sess-1", "agent-1")
	sess.ConversationID = "conv-1"
	h.sessions.CreateOrUpdate(ctx, sess)
	before := h.sessions.Get(ctx, "sess-1").LastAccessedAt

	if err := h.tasks.Create(ctx, task.Task{TaskID: "r1", ConversationID: "conv-1"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err := h.bridge.HandleCallback(ctx, CallbackRequest{
		Success:        true,
		RequestID:      "r1",
		ConversationID: "conv-1",
		Output:         "done",
	})
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	got := h.sessions.Get(ctx, "sess-1")
	summary := got.Metadata[session.MetaLastCallback]
	if !strings.Contains(summary, `"requestId":"r1"`) || !strings.Contains(summary, `"success":true`) {
		t.Fatalf("lastCallback summary = %q", summary)
	}
	if got.LastAccessedAt.Before(before) {
		t.Fatalf("LastAccessedAt not refreshed: %v -> %v", before, got.LastAccessedAt)
	}

	if len(h.convs.messages) != 1 {
		t.Fatalf("appended messages = %d, want 1 result message", len(h.convs.messages))
	}
	appended := h.convs.messages[0]
	if appended.conversationID != "conv-1" || appended.msg.Role != "assistant" {
		t.Fatalf("result message = %+v", appended)
	}
}

func TestCallbackDuplicateReappliesLastWriteWins(t *testing.T) {
	h := newHarness(Config{})
	ctx := context.Background()

	if err := h.tasks.Create(ctx, task.Task{TaskID: "r1", WSURL: "wss://task.test"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := h.bridge.HandleCallback(ctx, CallbackRequest{Success: true, RequestID: "r1", Output: "first"}); err != nil {
		t.Fatalf("first HandleCallback() error = %v", err)
	}
	if err := h.bridge.HandleCallback(ctx, CallbackRequest{Success: true, RequestID: "r1", Output: "second"}); err != nil {
		t.Fatalf("second HandleCallback() error = %v", err)
	}

	// No duplicate detection: the push repeats and the record takes the
	// last writer's result.
	if len(h.pusher.pushes) != 2 {
		t.Fatalf("pushes = %d, want 2", len(h.pusher.pushes))
	}
	if got := h.tasks.Get(ctx, "r1"); got.Result != "second" {
		t.Fatalf("task result = %q, want second", got.Result)
	}
}

func TestOutOfOrderCallbacksResolveIndependently(t *testing.T) {
	h := newHarness(Config{})
	ctx := context.Background()

	reqA := validToolCall()
	reqA.ToolName = "tool_a"
	resA, err := h.bridge.HandleToolCall(ctx, reqA, "")
	if err != nil {
		t.Fatalf("HandleToolCall(a) error = %v", err)
	}

	reqB := validToolCall()
	reqB.ToolName = "tool_b"
	resB, err := h.bridge.HandleToolCall(ctx, reqB, "")
	if err != nil {
		t.Fatalf("HandleToolCall(b) error = %v", err)
	}

	// Complete B then A.
	if err := h.bridge.HandleCallback(ctx, CallbackRequest{Success: true, RequestID: resB.RequestID, Output: "b done"}); err != nil {
		t.Fatalf("HandleCallback(b) error = %v", err)
	}
	if err := h.bridge.HandleCallback(ctx, CallbackRequest{Success: false, RequestID: resA.RequestID, Error: "a failed"}); err != nil {
		t.Fatalf("HandleCallback(a) error = %v", err)
	}

	a := h.tasks.Get(ctx, resA.RequestID)
	b := h.tasks.Get(ctx, resB.RequestID)
	if a.Pending || b.Pending {
		t.Fatalf("pending after callbacks: a=%v b=%v", a.Pending, b.Pending)
	}
	if a.Error != "a failed" || a.Result != "" {
		t.Fatalf("task a outcome = (%q, %q)", a.Result, a.Error)
	}
	if b.Result != "b done" || b.Error != "" {
		t.Fatalf("task b outcome = (%q, %q)", b.Result, b.Error)
	}
}

func TestCompletionText(t *testing.T) {
	cases := []struct {
		name string
		req  CallbackRequest
		want string
	}{
		{"success with output", CallbackRequest{Success: true, Output: "built it"}, "Task complete: built it"},
		{"success without output", CallbackRequest{Success: true}, "Task complete."},
		{"failure with error", CallbackRequest{Success: false, Error: "oom"}, "Task failed: oom"},
		{"failure without error", CallbackRequest{Success: false}, "Task failed."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := completionText(tc.req); got != tc.want {
				t.Fatalf("completionText() = %q, want %q", got, tc.want)
			}
		})
	}
}
