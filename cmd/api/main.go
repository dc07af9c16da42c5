package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-capture/internal/api"
	"github.com/dvloznov/finance-capture/internal/api/handlers"
	"github.com/dvloznov/finance-capture/internal/app"
	"github.com/dvloznov/finance-capture/internal/capture"
	"github.com/dvloznov/finance-capture/internal/config"
	"github.com/dvloznov/finance-capture/internal/linking"
	"github.com/dvloznov/finance-capture/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}

	port := flag.String("port", cfg.Port, "HTTP server port")
	flag.Parse()
	cfg.Port = *port

	log := logger.WithFields(logger.NewWithLevel(cfg.LogLevel, cfg.LogFormat), map[string]interface{}{
		"service": "api",
	})

	if err := cfg.ValidateAPI(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.APIToken == "" {
		log.Warn().Msg("API_TOKEN not set - link-code and transaction endpoints are unauthenticated")
	}

	ctx := context.Background()

	st, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()

	var mirror capture.Mirror
	if m := app.NewMirror(cfg); m != nil {
		mirror = m
	}

	routes := api.Routes{
		Shortcut:     handlers.NewShortcutHandler(st, mirror, cfg.ShortcutSecret, log),
		LinkCodes:    handlers.NewLinkCodesHandler(linking.NewService(st, log), log),
		Transactions: handlers.NewTransactionsHandler(st, log),
		APIToken:     cfg.APIToken,
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(routes, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.StoreBackend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
