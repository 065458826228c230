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

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"receiptscribe/internal/amqp"
	"receiptscribe/internal/config"
	"receiptscribe/internal/extraction"
	apphttp "receiptscribe/internal/http"
	applog "receiptscribe/internal/log"
	"receiptscribe/internal/services"
	"receiptscribe/internal/storage"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := applog.Setup(slog.LevelInfo).With(applog.FieldComponent, applog.ComponentApp)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize storage", applog.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("SQLite database is ready", "path", cfg.SQLiteDBPath)

	extractor, err := extraction.NewClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		logger.Error("Failed to initialize extraction client", applog.FieldError, err)
		os.Exit(1)
	}

	var events services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to connect to AMQP broker", applog.FieldError, err, "url", cfg.AMQPURL)
			os.Exit(1)
		}
		defer client.Close()
		events = client
		logger.Info("AMQP event publishing enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP not configured, expense events disabled")
	}

	svc := services.NewExpenseService(store, extractor, events, cfg.MaxUploadBytes, cfg.AllowedFileTypes)
	srv := apphttp.NewServer(":"+cfg.Port, svc, cfg.AllowedOrigins, cfg.MaxUploadBytes)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server",
			"service", config.ServiceName,
			"version", config.ServiceVersion,
			"port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
