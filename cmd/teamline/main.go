package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	tlhttp "github.com/teamline/teamline/internal/adapter/http"
	tlnats "github.com/teamline/teamline/internal/adapter/nats"
	"github.com/teamline/teamline/internal/adapter/otel"
	"github.com/teamline/teamline/internal/adapter/postgres"
	"github.com/teamline/teamline/internal/adapter/ristretto"
	tlstripe "github.com/teamline/teamline/internal/adapter/stripe"
	"github.com/teamline/teamline/internal/config"
	"github.com/teamline/teamline/internal/logger"
	"github.com/teamline/teamline/internal/middleware"
	"github.com/teamline/teamline/internal/port/messagequeue"
	"github.com/teamline/teamline/internal/resilience"
	"github.com/teamline/teamline/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	otelShutdown, err := otel.Init(ctx, cfg.Logging.Service, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	log.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations applied")

	queue, err := tlnats.Connect(ctx, cfg.NATS.URL, cfg.Billing.SyncMaxAttempts)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()
	log.Info("nats connected")

	idemKV, err := queue.KeyValue(ctx, cfg.NATS.IdempotencyBucket, cfg.NATS.IdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency bucket: %w", err)
	}

	principalCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer principalCache.Close()

	provider := tlstripe.New(cfg.Billing.StripeKey, cfg.Billing.WebhookSecret)
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	notify := tlnats.NewNotifier(queue, log)

	// --- Services ---
	store := postgres.NewStore(pool)
	authSvc := service.NewAuthService(store, principalCache, &cfg.Auth)
	seatSvc := service.NewSeatService(store, queue, notify, authSvc, metrics, log)
	tenantSvc := service.NewTenantService(store, authSvc, seatSvc, log)
	reconcilerSvc := service.NewReconcilerService(store, provider, queue, notify, metrics, breaker, &cfg.Billing, log)
	webhookSvc := service.NewWebhookService(store, provider, reconcilerSvc, metrics, log)

	stopSync, err := queue.Subscribe(ctx, messagequeue.SubjectSyncTenant, reconcilerSvc.HandleSyncMessage)
	if err != nil {
		return fmt.Errorf("sync subscriber: %w", err)
	}
	defer stopSync()

	// --- HTTP ---
	handlers := tlhttp.NewHandlers(authSvc, tenantSvc, seatSvc, reconcilerSvc, webhookSvc, pool, log)

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopLimiter := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopLimiter()

	router := tlhttp.NewRouter(handlers, cfg, limiter, idemKV)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		runJanitor(gctx, store, reconcilerSvc, log)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
