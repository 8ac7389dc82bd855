package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/commercekit/payments/internal/config"
	"github.com/commercekit/payments/internal/eventbus"
	"github.com/commercekit/payments/internal/eventstore"
	"github.com/commercekit/payments/internal/handler"
	"github.com/commercekit/payments/internal/logging"
	"github.com/commercekit/payments/internal/middleware"
	"github.com/commercekit/payments/internal/notification"
	"github.com/commercekit/payments/internal/payment"
	"github.com/commercekit/payments/internal/provider"
	"github.com/commercekit/payments/internal/provider/cardrail"
	"github.com/commercekit/payments/internal/provider/wallet"
	"github.com/commercekit/payments/internal/repository"
	"github.com/commercekit/payments/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("payments-api", cfg.LogLevel, cfg.AppEnv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := connectDB(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	retry := provider.RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		Jitter:      cfg.RetryJitter,
	}

	registry := provider.NewRegistry(
		cardrail.New(cardrail.Config{
			BaseURL:       cfg.CardrailBaseURL,
			APIKey:        cfg.CardrailAPIKey,
			WebhookSecret: cfg.CardrailWebhookSecret,
			Timeout:       cfg.ProviderTimeout,
			Retry:         retry,
		}),
		wallet.New(wallet.Config{
			BaseURL:       cfg.WalletBaseURL,
			ClientID:      cfg.WalletClientID,
			ClientSecret:  cfg.WalletClientSecret,
			WebhookSecret: cfg.WalletWebhookSecret,
			Timeout:       cfg.ProviderTimeout,
			Retry:         retry,
		}),
	)

	store := eventstore.NewPostgresStore(db)
	bus := eventbus.New(slog.Default())

	paymentRepo := repository.NewPaymentRepository(db)
	processedRepo := repository.NewProcessedWebhookRepository(db)
	outboxRepo := repository.NewNotificationOutboxRepository(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)

	notification.NewConsumer(outboxRepo).Subscribe(bus)

	paymentService := payment.NewService(paymentRepo, store, bus, registry, db)
	reconciler := webhook.NewReconciler(registry, paymentService, processedRepo, db)

	dispatcher := notification.NewDispatcher(
		outboxRepo,
		notification.NewLogSender(slog.Default()),
		slog.Default(),
		cfg.NotificationPollInterval,
	)
	go dispatcher.Start(ctx)
	go cleanIdempotencyCache(ctx, idempotencyRepo)

	paymentHandler := handler.NewPaymentHandler(paymentService)
	webhookHandler := handler.NewWebhookHandler(reconciler)
	healthHandler := handler.NewHealthHandler(db)

	idempotent := middleware.Idempotency(idempotencyRepo)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)

	mux.Handle("POST /api/v1/payments/intent", idempotent(http.HandlerFunc(paymentHandler.CreateIntent)))
	mux.Handle("POST /api/v1/payments/{id}/confirm", idempotent(http.HandlerFunc(paymentHandler.Confirm)))
	mux.Handle("POST /api/v1/payments/{id}/refund", idempotent(http.HandlerFunc(paymentHandler.Refund)))
	mux.HandleFunc("GET /api/v1/payments", paymentHandler.List)
	mux.HandleFunc("GET /api/v1/payments/{id}", paymentHandler.Get)
	mux.HandleFunc("GET /api/v1/payments/{id}/status", paymentHandler.Status)

	// Webhooks are authenticated by signature, not idempotency keys; the
	// reconciler does its own dedup on the provider's event id.
	mux.HandleFunc("POST /api/v1/webhooks/{provider}", webhookHandler.Receive)

	root := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func cleanIdempotencyCache(ctx context.Context, repo *repository.IdempotencyRepository) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.CleanExpired(ctx)
			if err != nil {
				slog.Error("idempotency cache cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired idempotency entries removed", "count", n)
			}
		}
	}
}

func connectDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	var lastErr error
	for i := range 30 {
		db, err := repository.NewPostgresDB(ctx, cfg)
		if err == nil {
			return db, nil
		}
		lastErr = err
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", lastErr)
}
