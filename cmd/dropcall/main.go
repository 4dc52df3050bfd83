package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brunoxcamillo/drop-call-app/internal/config"
	"github.com/brunoxcamillo/drop-call-app/internal/httpapi"
	"github.com/brunoxcamillo/drop-call-app/internal/intake"
	"github.com/brunoxcamillo/drop-call-app/internal/messaging"
	"github.com/brunoxcamillo/drop-call-app/internal/queue"
	"github.com/brunoxcamillo/drop-call-app/internal/store"
	"github.com/brunoxcamillo/drop-call-app/internal/tagsync"
	"github.com/brunoxcamillo/drop-call-app/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.FromFileAndEnv()
	if err != nil {
		fatal(logger, "load config", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal(logger, "invalid config", err)
	}

	st, err := store.NewGormStore(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		fatal(logger, "initialize store", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("store close error", slog.Any("error", err))
		}
	}()

	rootCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()

	queueClient, err := queue.NewClient(rootCtx, queue.Config{
		URL:         cfg.QueueURL,
		Prefix:      cfg.QueuePrefix,
		Concurrency: cfg.Concurrency,
		MaxAttempts: cfg.JobMaxAttempts,
		BackoffBase: cfg.JobBackoffBase,
	}, logger.With(slog.String("component", "queue")))
	if err != nil {
		fatal(logger, "initialize queue client", err)
	}
	defer queueClient.Close()

	gateway := messaging.NewClient(messaging.Config{
		BaseURL:      cfg.GatewayBaseURL,
		Instance:     cfg.GatewayInstance,
		Token:        cfg.GatewayToken,
		AccountToken: cfg.GatewayAccountToken,
	}, logger.With(slog.String("component", "gateway")))

	tags := tagsync.New(
		logger.With(slog.String("component", "tagsync")),
		tagsync.WithAPIVersion(cfg.AdminAPIVersion),
	)

	commerce := intake.NewCommerceService(logger.With(slog.String("component", "commerce")), st, queueClient)
	replies := intake.NewConversationService(logger.With(slog.String("component", "conversation")), st, queueClient)
	processor := worker.NewProcessor(logger.With(slog.String("component", "worker")), st, gateway, tags)

	go func() {
		if err := queueClient.Run(rootCtx, processor.Handle); err != nil && !errors.Is(err, context.Canceled) {
			fatal(logger, "queue consumer crashed", err)
		}
	}()

	srv := httpapi.NewServer(logger.With(slog.String("component", "http")), cfg.HTTPAddr, st, commerce, replies)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "http server crashed", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", slog.Any("error", err))
	}
	stopConsumers()
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.Any("error", err))
	os.Exit(1)
}
