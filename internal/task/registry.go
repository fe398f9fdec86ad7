package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ent0n29/toolbridge/internal/kv"
	"github.com/ent0n29/toolbridge/internal/observability"
)

const keyPrefix = "task:"

// DefaultTTL bounds the lifetime of a task record regardless of
// completion state.
const DefaultTTL = 24 * time.Hour

// Registry persists pending-execution records in the shared key-value
// store under a task: key prefix. Each task is an independent record, so
// completions racing for different task ids never interfere.
type Registry struct {
	kv      kv.Store
	ttl     time.Duration
	metrics *observability.Metrics
}

func NewRegistry(store kv.Store, ttl time.Duration, metrics *observability.Metrics) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{kv: store, ttl: ttl, metrics: metrics}
}

// Create registers a new pending task. Unlike session writes this fails
// hard: a lost task record means a completion callback that can never be
// routed, so the caller decides what to do about it.
func (r *Registry) Create(ctx context.Context, t Task) error {
	if t.TaskID == "" {
		return errors.New("task id is required")
	}
	t.Pending = true
	t.CreatedAt = time.Now().UTC()
	t.CompletedAt = nil
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task %q: %w", t.TaskID, err)
	}
	err = r.kv.Set(ctx, keyPrefix+t.TaskID, data, r.ttl)
	r.metrics.ObserveStoreOp("task_create", err)
	if err != nil {
		return fmt.Errorf("write task %q: %w", t.TaskID, err)
	}
	return nil
}

// Get returns the task for taskID, or nil if absent or unreadable.
func (r *Registry) Get(ctx context.Context, taskID string) *Task {
	data, err := r.kv.Get(ctx, keyPrefix+taskID)
	r.metrics.ObserveStoreOp("task_get", ignoreAbsent(err))
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			log.Printf("task: get %q failed: %v", taskID, err)
		}
		return nil
	}
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		log.Printf("task: decode %q failed: %v", taskID, err)
		return nil
	}
	return &t
}

// Update merges patch into the stored record, preserving its remaining
// TTL. A missing record is logged and left alone; Update never creates.
func (r *Registry) Update(ctx context.Context, taskID string, patch Patch) {
	current := r.Get(ctx, taskID)
	if current == nil {
		log.Printf("task: update %q skipped, no such record", taskID)
		return
	}
	if patch.Pending != nil {
		current.Pending = *patch.Pending
	}
	if patch.CompletedAt != nil {
		current.CompletedAt = patch.CompletedAt
	}
	if patch.Result != nil {
		current.Result = *patch.Result
	}
	if patch.Error != nil {
		current.Error = *patch.Error
	}
	if patch.WSURL != nil {
		current.WSURL = *patch.WSURL
	}

	data, err := json.Marshal(current)
	if err != nil {
		log.Printf("task: encode %q failed: %v", taskID, err)
		return
	}
	// SetKeepTTL preserves the remaining window; falling back to the full
	// 24h only when the stored TTL is unknown or non-positive. A plain
	// reset here would extend a task's lifetime on every update.
	err = r.kv.SetKeepTTL(ctx, keyPrefix+taskID, data, r.ttl)
	r.metrics.ObserveStoreOp("task_update", err)
	if err != nil {
		log.Printf("task: update %q failed: %v", taskID, err)
	}
}

// MarkCompleted flips the task out of pending and records the outcome.
// Re-applying the same completion leaves the record in the same final
// state apart from the completion timestamp.
func (r *Registry) MarkCompleted(ctx context.Context, taskID, result, errMsg string) {
	pending := false
	now := time.Now().UTC()
	r.Update(ctx, taskID, Patch{
		Pending:     &pending,
		CompletedAt: &now,
		Result:      &result,
		Error:       &errMsg,
	})
}

func ignoreAbsent(err error) error {
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	return err
}
