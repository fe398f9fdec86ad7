package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config contains all runtime settings for the webhook bridge.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	DatabaseURL       string
	StorePingInterval time.Duration
	JanitorInterval   time.Duration

	WebhookSecret string

	RunnerURL   string
	CallbackURL string
	QueueType   string

	ConversationServiceURL string
	ElevenLabsAPIKey       string
	SignedURLTimeout       time.Duration

	SessionTTL time.Duration
	TaskTTL    time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:               envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:       envOrDefault("APP_METRICS_NAMESPACE", "toolbridge"),
		DatabaseURL:            envTrimmed("DATABASE_URL"),
		WebhookSecret:          envTrimmed("WEBHOOK_SECRET"),
		RunnerURL:              envOrDefault("RUNNER_URL", "http://localhost:3001/execute"),
		CallbackURL:            envTrimmed("CALLBACK_URL"),
		QueueType:              envOrDefault("RUNNER_QUEUE_TYPE", "default"),
		ConversationServiceURL: envOrDefault("CONVERSATION_SERVICE_URL", "https://api.elevenlabs.io"),
		ElevenLabsAPIKey:       envTrimmed("ELEVENLABS_API_KEY"),
		ShutdownTimeout:        15 * time.Second,
		StorePingInterval:      10 * time.Second,
		JanitorInterval:        time.Minute,
		SignedURLTimeout:       30 * time.Second,
		SessionTTL:             time.Hour,
		TaskTTL:                24 * time.Hour,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.StorePingInterval, err = durationFromEnv("STORE_PING_INTERVAL", cfg.StorePingInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.JanitorInterval, err = durationFromEnv("STORE_JANITOR_INTERVAL", cfg.JanitorInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.SignedURLTimeout, err = durationFromEnv("SIGNED_URL_TIMEOUT", cfg.SignedURLTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionTTL, err = durationFromEnv("SESSION_TTL", cfg.SessionTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.TaskTTL, err = durationFromEnv("TASK_TTL", cfg.TaskTTL)
	if err != nil {
		return Config{}, err
	}

	if cfg.CallbackURL == "" {
		// The runner needs a public address to report completions to.
		cfg.CallbackURL = "http://localhost" + defaultPort(cfg.BindAddr) + "/callback"
	}

	if cfg.SessionTTL < 5*time.Second {
		return Config{}, fmt.Errorf("SESSION_TTL must be at least 5s")
	}
	if cfg.TaskTTL < time.Minute {
		return Config{}, fmt.Errorf("TASK_TTL must be at least 1m")
	}
	if cfg.SignedURLTimeout <= 0 {
		return Config{}, fmt.Errorf("SIGNED_URL_TIMEOUT must be positive")
	}
	if cfg.StorePingInterval <= 0 {
		return Config{}, fmt.Errorf("STORE_PING_INTERVAL must be positive")
	}

	return cfg, nil
}

func defaultPort(bindAddr string) string {
	if i := strings.LastIndex(bindAddr, ":"); i >= 0 {
		return bindAddr[i:]
	}
	return ":8080"
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}
