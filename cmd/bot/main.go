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
	"github.com/dvloznov/finance-capture/internal/archive"
	"github.com/dvloznov/finance-capture/internal/bot"
	"github.com/dvloznov/finance-capture/internal/config"
	"github.com/dvloznov/finance-capture/internal/jobs/inmemory"
	"github.com/dvloznov/finance-capture/internal/linking"
	"github.com/dvloznov/finance-capture/internal/llm"
	"github.com/dvloznov/finance-capture/internal/logger"
	"github.com/dvloznov/finance-capture/internal/usage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}

	port := flag.String("port", cfg.Port, "Port for the health and jobs endpoints (empty disables)")
	workers := flag.Int("workers", cfg.WorkerCount, "Number of message workers")
	flag.Parse()
	cfg.Port = *port
	cfg.WorkerCount = *workers

	log := logger.WithFields(logger.NewWithLevel(cfg.LogLevel, cfg.LogFormat), map[string]interface{}{
		"service": "bot",
	})

	if err := cfg.ValidateBot(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()

	captureSvc, err := app.NewCaptureService(ctx, cfg, st, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create capture service")
	}

	tg, err := bot.NewTelegram(cfg.TelegramBotToken, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Telegram")
	}

	opts := []bot.Option{
		bot.WithMaxVoiceSeconds(cfg.MaxVoiceSeconds),
		bot.WithTimeouts(cfg.DownloadTimeout, cfg.TranscriptionTimeout),
	}

	transcriber, err := llm.NewTranscriber(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transcriber")
	}
	if transcriber != nil {
		limiter := usage.NewLimiter(st, cfg.MaxVoicePerDay, log, usage.WithLocation(cfg.UsageLocation()))
		opts = append(opts, bot.WithVoice(transcriber, tg, limiter))
	} else {
		log.Warn().Msg("No speech-to-text provider configured; voice notes are disabled")
	}

	if cfg.VoiceArchiveBucket != "" {
		uploader, err := archive.NewGCSUploader(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS client")
		}
		defer uploader.Close()
		opts = append(opts, bot.WithArchive(archive.NewVoiceArchive(uploader, cfg.VoiceArchiveBucket)))
	}

	handler := bot.NewHandler(st, captureSvc, linking.NewService(st, log), tg, log, opts...)

	jobStore := inmemory.NewStore(0)
	jobQueue := inmemory.NewQueue(cfg.QueueSize, cfg.WorkerCount, jobStore, log)

	if err := jobQueue.Start(ctx, handler.HandleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	var server *http.Server
	if cfg.Port != "" {
		server = &http.Server{
			Addr: ":" + cfg.Port,
			Handler: api.NewRouter(api.Routes{
				Jobs:     handlers.NewJobsHandler(jobStore, log),
				APIToken: cfg.APIToken,
			}, log),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Info().Str("port", cfg.Port).Msg("Starting health server")
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("Failed to start health server")
			}
		}()
	}

	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()

	go func() {
		log.Info().Int("workers", cfg.WorkerCount).Msg("Bot started, polling for updates")
		if err := tg.Poll(pollCtx, jobQueue); err != nil && pollCtx.Err() == nil {
			log.Error().Err(err).Msg("Polling stopped")
			stopPolling()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-pollCtx.Done():
	}

	log.Info().Msg("Shutting down bot...")

	// Polling stops before the workers so no new jobs arrive while they drain.
	stopPolling()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Health server forced to shutdown")
		}
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Bot exited")
}
