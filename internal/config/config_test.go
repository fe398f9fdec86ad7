package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.SessionTTL != time.Hour {
		t.Fatalf("SessionTTL = %v, want 1h", cfg.SessionTTL)
	}
	if cfg.TaskTTL != 24*time.Hour {
		t.Fatalf("TaskTTL = %v, want 24h", cfg.TaskTTL)
	}
	if cfg.SignedURLTimeout != 30*time.Second {
		t.Fatalf("SignedURLTimeout = %v, want 30s", cfg.SignedURLTimeout)
	}
	if cfg.CallbackURL == "" {
		t.Fatalf("CallbackURL not defaulted")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_BIND_ADDR", ":9090")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("TASK_TTL", "48h")
	t.Setenv("WEBHOOK_SECRET", "  hunter2  ")
	t.Setenv("CALLBACK_URL", "https://bridge.example.com/callback")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("SessionTTL = %v", cfg.SessionTTL)
	}
	if cfg.TaskTTL != 48*time.Hour {
		t.Fatalf("TaskTTL = %v", cfg.TaskTTL)
	}
	if cfg.WebhookSecret != "hunter2" {
		t.Fatalf("WebhookSecret = %q, want trimmed", cfg.WebhookSecret)
	}
	if cfg.CallbackURL != "https://bridge.example.com/callback" {
		t.Fatalf("CallbackURL = %q", cfg.CallbackURL)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"unparseable duration", "SESSION_TTL", "soon"},
		{"session ttl too short", "SESSION_TTL", "1s"},
		{"task ttl too short", "TASK_TTL", "10s"},
		{"zero signed url timeout", "SIGNED_URL_TIMEOUT", "0s"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() error = nil, want error for %s=%s", tc.key, tc.value)
			}
		})
	}
}
