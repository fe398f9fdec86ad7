package kv

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores records in a single kv_records table with an expires_at
// column enforced on every read, so a stale row is indistinguishable from an
// absent one even before the janitor removes it.
type Postgres struct {
	pool *pgxpool.Pool

	mu        sync.RWMutex
	state     ConnState
	stateHook func(ConnState)
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool, state: StateConnected}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv_records (
			key TEXT PRIMARY KEY,
			value JSONB NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_kv_records_expires ON kv_records (expires_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init kv schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// SetStateHook registers a callback invoked whenever reachability changes.
func (s *Postgres) SetStateHook(hook func(ConnState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateHook = hook
}

func (s *Postgres) State() ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Postgres) setState(next ConnState) {
	s.mu.Lock()
	changed := s.state != next
	s.state = next
	hook := s.stateHook
	s.mu.Unlock()

	if changed {
		log.Printf("kv: store %s", next)
		if hook != nil {
			hook(next)
		}
	}
}

// StartPing watches store reachability. The connection-state enum is updated
// only here; every operation consults it before attempting I/O so a dead
// store degrades to no-ops instead of a retry storm.
func (s *Postgres) StartPing(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(ctx, interval)
				err := s.pool.Ping(pingCtx)
				cancel()
				if err != nil {
					s.setState(StateDegraded)
				} else {
					s.setState(StateConnected)
				}
			}
		}
	}()
}

// StartJanitor periodically removes expired rows. Reads already filter on
// expires_at, so this is storage hygiene rather than correctness.
func (s *Postgres) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.State() != StateConnected {
					continue
				}
				if _, err := s.pool.Exec(ctx, `DELETE FROM kv_records WHERE expires_at <= now()`); err != nil {
					log.Printf("kv: janitor sweep failed: %v", err)
				}
			}
		}
	}()
}

func (s *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	if s.State() != StateConnected {
		return nil, ErrUnavailable
	}
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM kv_records WHERE key=$1 AND expires_at > now()`,
		key,
	).Scan(&value)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

func (s *Postgres) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.State() != StateConnected {
		return ErrUnavailable
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv_records (key, value, expires_at)
		 VALUES ($1, $2, now() + $3::interval)
		 ON CONFLICT (key) DO UPDATE SET
			value=EXCLUDED.value,
			expires_at=EXCLUDED.expires_at`,
		key, value, intervalArg(ttl),
	)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *Postgres) SetKeepTTL(ctx context.Context, key string, value []byte, fallback time.Duration) error {
	if s.State() != StateConnected {
		return ErrUnavailable
	}
	// Preserve the remaining lifetime of the existing row; a plain upsert
	// with a fresh window would extend the record on every update.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv_records (key, value, expires_at)
		 VALUES ($1, $2, now() + $3::interval)
		 ON CONFLICT (key) DO UPDATE SET
			value=EXCLUDED.value,
			expires_at=CASE
				WHEN kv_records.expires_at > now() THEN kv_records.expires_at
				ELSE EXCLUDED.expires_at
			END`,
		key, value, intervalArg(fallback),
	)
	if err != nil {
		return fmt.Errorf("set keep-ttl %q: %w", key, err)
	}
	return nil
}

func (s *Postgres) TTL(ctx context.Context, key string) (time.Duration, error) {
	if s.State() != StateConnected {
		return 0, ErrUnavailable
	}
	var remainingSeconds float64
	err := s.pool.QueryRow(ctx,
		`SELECT EXTRACT(EPOCH FROM (expires_at - now())) FROM kv_records WHERE key=$1 AND expires_at > now()`,
		key,
	).Scan(&remainingSeconds)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("ttl %q: %w", key, err)
	}
	return time.Duration(remainingSeconds * float64(time.Second)), nil
}

func (s *Postgres) Delete(ctx context.Context, key string) error {
	if s.State() != StateConnected {
		return ErrUnavailable
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv_records WHERE key=$1`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *Postgres) Keys(ctx context.Context, prefix string) ([]string, error) {
	if s.State() != StateConnected {
		return nil, ErrUnavailable
	}
	rows, err := s.pool.Query(ctx,
		`SELECT key FROM kv_records WHERE key LIKE $1 AND expires_at > now()`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("keys %q: %w", prefix, err)
	}
	defer rows.Close()

	keys := make([]string, 0, 16)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func intervalArg(d time.Duration) string {
	if d <= 0 {
		d = time.Second
	}
	return fmt.Sprintf("%d milliseconds", d.Milliseconds())
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
