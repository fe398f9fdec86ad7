package task

import "time"

// Task ties an asynchronous execution request id to its originating
// session/conversation and completion state. Records live 24 hours
// regardless of completion state.
type Task struct {
	TaskID         string         `json:"taskId"`
	ConversationID string         `json:"conversationId,omitempty"`
	SessionPayload string         `json:"sessionPayload,omitempty"`
	WSURL          string         `json:"wsUrl,omitempty"`
	ToolName       string         `json:"toolName"`
	ToolArgs       map[string]any `json:"toolArgs,omitempty"`
	Pending        bool           `json:"pending"`
	CreatedAt      time.Time      `json:"createdAt"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
	Result         string         `json:"result,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// Patch carries partial fields merged into an existing task by Update.
// Nil pointers leave the stored value untouched.
type Patch struct {
	Pending     *bool
	CompletedAt *time.Time
	Result      *string
	Error       *string
	WSURL       *string
}
