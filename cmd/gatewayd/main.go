package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lattice/internal/api"
	"lattice/internal/auth"
	"lattice/internal/config"
	"lattice/internal/gateway"
	"lattice/internal/sanitize"
	"lattice/internal/sfumedia"
	"lattice/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("loading config", "error", err)
		os.Exit(1)
	}

	log.Info("starting", "server", cfg.Server.Name)

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Error("opening store", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("store opened", "path", cfg.Store.Path)

	users := store.NewUserRepository(db)
	channels := store.NewChannelRepository(db)
	messages := store.NewMessageRepository(db)
	settings := store.NewSettingsRepository(db)

	tokens := auth.NewVerifier(cfg.Auth.JWTSecret)
	sanitizer := sanitize.NewHTMLSanitizer()

	sfuEngine, err := sfumedia.New(cfg.SFU, false, log.With("component", "sfumedia"))
	if err != nil {
		log.Error("initializing sfu engine", "error", err)
		os.Exit(1)
	}

	gw := gateway.New(gateway.Config{
		Users:            users,
		Channels:         channels,
		Messages:         messages,
		Settings:         settings,
		Tokens:           tokens,
		Sanitize:         sanitizer,
		SFU:              sfuEngine,
		SignalRateWindow: cfg.Gateway.SignalRateWindow,
		SignalRateBudget: cfg.Gateway.SignalRateBudget,
		Log:              log.With("component", "gateway"),
	})

	runCtx, cancelRun := context.WithCancel(context.Background())
	go gw.Run(runCtx)

	server, err := api.NewServer(cfg, db, gw, log.With("component", "api"))
	if err != nil {
		log.Error("creating server", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: server,
	}

	go func() {
		log.Info("listening", "addr", cfg.Addr(), "base_url", cfg.Server.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")

	gw.Stop()
	cancelRun()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("http server shutdown", "error", err)
	}

	log.Info("stopped")
}
