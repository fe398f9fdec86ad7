package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ent0n29/toolbridge/internal/bridge"
	"github.com/ent0n29/toolbridge/internal/config"
	"github.com/ent0n29/toolbridge/internal/convo"
	"github.com/ent0n29/toolbridge/internal/httpapi"
	"github.com/ent0n29/toolbridge/internal/kv"
	"github.com/ent0n29/toolbridge/internal/observability"
	"github.com/ent0n29/toolbridge/internal/push"
	"github.com/ent0n29/toolbridge/internal/runner"
	"github.com/ent0n29/toolbridge/internal/session"
	"github.com/ent0n29/toolbridge/internal/task"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := kv.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("kv store init failed: %v", err)
	}
	defer store.Close()

	storeMode := "in-memory"
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	if pg, ok := store.(*kv.Postgres); ok {
		storeMode = "postgres"
		pg.SetStateHook(func(state kv.ConnState) {
			if state == kv.StateConnected {
				metrics.StoreConnected.Set(1)
			} else {
				metrics.StoreConnected.Set(0)
			}
		})
		pg.StartPing(runCtx, cfg.StorePingInterval)
		pg.StartJanitor(runCtx, cfg.JanitorInterval)
	}
	metrics.StoreConnected.Set(1)
	log.Printf("kv store: %s", storeMode)

	sessions := session.NewStore(store, cfg.SessionTTL, metrics)
	tasks := task.NewRegistry(store, cfg.TaskTTL, metrics)

	conversations := convo.NewClient(convo.Config{
		BaseURL:          cfg.ConversationServiceURL,
		APIKey:           cfg.ElevenLabsAPIKey,
		SignedURLTimeout: cfg.SignedURLTimeout,
	})
	executor := runner.NewClient(cfg.RunnerURL)
	pusher := push.NewClient()

	b := bridge.New(bridge.Config{
		WebhookSecret: cfg.WebhookSecret,
		CallbackURL:   cfg.CallbackURL,
		QueueType:     cfg.QueueType,
	}, sessions, tasks, conversations, executor, pusher, metrics)

	api := httpapi.New(b, store, storeMode, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
