package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/koopa0/durak/internal/auth"
	"github.com/koopa0/durak/internal/events"
	"github.com/koopa0/durak/internal/handler"
	"github.com/koopa0/durak/internal/lobby"
	"github.com/koopa0/durak/internal/server"
	"github.com/koopa0/durak/internal/stats"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

// runServe 初始化順序：配置 → 戰績後端 → 事件 → 對局表 → 連線層 → HTTP
func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := stats.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open stats store: %w", err)
	}
	defer store.Close()

	var publisher events.Publisher = events.Nop{}
	if cfg.NATS.URL != "" {
		p, err := events.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, log)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		publisher = p
	}
	defer publisher.Close()

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	hub := server.NewHub(verifier, server.HubConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowGuests:    cfg.Auth.AllowGuests,
		MessageBurst:   cfg.Server.MessageBurst,
		MessageRate:    cfg.Server.MessageRate,
	}, log)

	var dispatcher *server.Dispatcher
	registry := lobby.NewRegistry(lobby.Config{
		DisconnectGrace: cfg.Game.DisconnectGrace,
		IdleTimeout:     cfg.Game.IdleTimeout,
		CleanupInterval: cfg.Game.CleanupInterval,
		DrawPolicy:      cfg.DrawPolicy(),
	}, log, lobby.WithExpiredHandler(func(out lobby.Outcome) {
		dispatcher.HandleExpired(out)
	}))
	defer registry.Stop()

	dispatcher = server.NewDispatcher(registry, store, publisher, hub, log)
	hub.Attach(dispatcher)

	h := handler.New(store, registry, hub, verifier, http.HandlerFunc(hub.ServeWS), log)
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      h.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("伺服器啟動",
			"addr", srv.Addr,
			"stats_backend", cfg.Stats.Backend,
			"auth", verifier.Enabled(),
			"guests", cfg.Auth.AllowGuests)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("收到關閉信號")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP 伺服器關閉失敗", "error", err)
	}
	hub.Stop()

	log.Info("伺服器已優雅關閉")
	return nil
}
