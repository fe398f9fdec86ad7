package kv

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound reports that no live record exists for the key.
	ErrNotFound = errors.New("key not found")
	// ErrUnavailable reports that the backing store is unreachable.
	ErrUnavailable = errors.New("store unavailable")
)

// ConnState tracks reachability of the backing store.
type ConnState string

const (
	StateConnected ConnState = "connected"
	StateDegraded  ConnState = "degraded"
)

// Store is a namespaced key-value store with per-key TTL expiry.
type Store interface {
	// Get returns the value for key, or ErrNotFound if absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value under key and resets the TTL to the given window.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetKeepTTL writes value under key preserving the remaining TTL of the
	// existing record. If the record is absent or its remaining TTL is not
	// positive, the fallback window is used instead.
	SetKeepTTL(ctx context.Context, key string, value []byte, fallback time.Duration) error
	// TTL returns the remaining lifetime of key, or ErrNotFound.
	TTL(ctx context.Context, key string) (time.Duration, error)
	Delete(ctx context.Context, key string) error
	// Keys lists all live keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	State() ConnState
	Close() error
}

// New creates a postgres-backed store when configured, otherwise in-memory.
func New(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemory(), nil
	}
	return NewPostgres(ctx, databaseURL)
}
