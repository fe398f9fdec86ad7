package kv

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryRecord struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a simple in-process store for local/dev use and tests.
type Memory struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]memoryRecord),
		now:     time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Memory) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Memory) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok || !rec.expiresAt.After(s.now()) {
		return nil, ErrNotFound
	}
	out := make([]byte, len(rec.value))
	copy(out, rec.value)
	return out, nil
}

func (s *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = memoryRecord{
		value:     append([]byte(nil), value...),
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *Memory) SetKeepTTL(_ context.Context, key string, value []byte, fallback time.Duration) error {
	if fallback <= 0 {
		fallback = time.Second
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	expiresAt := now.Add(fallback)
	if rec, ok := s.records[key]; ok && rec.expiresAt.After(now) {
		expiresAt = rec.expiresAt
	}
	s.records[key] = memoryRecord{
		value:     append([]byte(nil), value...),
		expiresAt: expiresAt,
	}
	return nil
}

func (s *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return 0, ErrNotFound
	}
	remaining := rec.expiresAt.Sub(s.now())
	if remaining <= 0 {
		return 0, ErrNotFound
	}
	return remaining, nil
}

func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	keys := make([]string, 0, len(s.records))
	for key, rec := range s.records {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if !rec.expiresAt.After(now) {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *Memory) State() ConnState {
	return StateConnected
}

func (s *Memory) Close() error {
	return nil
}
