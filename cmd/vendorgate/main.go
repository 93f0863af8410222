// Command vendorgate runs the vendor governance portal API server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/vendorgate/vendorgate/pkg/api"
	"github.com/vendorgate/vendorgate/pkg/audit"
	"github.com/vendorgate/vendorgate/pkg/config"
	"github.com/vendorgate/vendorgate/pkg/identity"
	"github.com/vendorgate/vendorgate/pkg/middleware"
	"github.com/vendorgate/vendorgate/pkg/observability"
	"github.com/vendorgate/vendorgate/pkg/orgs"
	"github.com/vendorgate/vendorgate/pkg/resources"
	"github.com/vendorgate/vendorgate/pkg/storage/postgres"
	"github.com/vendorgate/vendorgate/pkg/tenants"
	"github.com/vendorgate/vendorgate/pkg/webhooks"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "vendorgate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithFields(map[string]interface{}{
		"addr":        cfg.Server.Host + ":" + cfg.Server.Port,
		"health_addr": cfg.Server.Host + ":" + cfg.Server.HealthPort,
	}).Info("starting vendorgate")

	taskLogger := logrus.New()
	taskLogger.SetFormatter(&logrus.JSONFormatter{})

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	ctx := context.Background()

	db, err := postgres.Connect(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	postgres.ReportPoolStats(db, metrics)

	var client *redis.Client
	if cfg.Storage.RedisURL != "" {
		client, err = postgres.NewRedisClient(cfg.Storage)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	} else {
		logger.Warn("Redis not configured, cache invalidation disabled")
	}
	cache := postgres.NewTagCache(client, cfg.Storage, metrics, logger)

	files, err := postgres.NewFileStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}

	var otelProviders *observability.OTelProviders
	if cfg.Observability.OTelEnabled {
		otelProviders, err = observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, logger)
		if err != nil {
			return fmt.Errorf("otel: %w", err)
		}
	}

	sessions := identity.NewPostgresStore(db)
	resolverOpts := []identity.Option{
		identity.WithCache(cfg.Auth.ResolverCacheSize, cfg.Auth.ResolverCacheTTL),
	}
	if cfg.Auth.OIDCIssuerURL != "" {
		provider, err := oidc.NewProvider(ctx, cfg.Auth.OIDCIssuerURL)
		if err != nil {
			return fmt.Errorf("oidc provider: %w", err)
		}
		verifier := provider.Verifier(&oidc.Config{ClientID: cfg.Auth.OIDCClientID})
		resolverOpts = append(resolverOpts, identity.WithOIDCVerifier(verifier))
		logger.WithField("issuer", cfg.Auth.OIDCIssuerURL).Info("OIDC credential path enabled")
	}
	resolver := identity.NewService(sessions, resolverOpts...)

	recorder, auditCleanup, err := buildRecorder(cfg, db, logger)
	if err != nil {
		return err
	}

	webhookStore := webhooks.NewPostgresStore(db)
	retryCfg := webhooks.DefaultRetryConfig()
	retryCfg.MaxAttempts = cfg.Webhooks.MaxAttempts
	dispatcher := webhooks.NewDispatcher(
		webhookStore,
		cfg.Webhooks.DeliveryTimeout,
		webhooks.NewRetryPolicy(retryCfg),
		metrics,
		logger,
	)
	sweeper := webhooks.NewRetrySweeper(webhookStore, dispatcher, metrics, logger)
	if err := sweeper.Start(cfg.Webhooks.RetrySchedule); err != nil {
		return fmt.Errorf("retry sweeper: %w", err)
	}

	var rateLimit mux.MiddlewareFunc
	var stopLimiterCleanup context.CancelFunc
	if cfg.RateLimit.Enabled {
		if client != nil {
			rateLimit = middleware.NewDistributedRateLimitMiddleware(client, metrics, logger).Handler
		} else {
			// Per-process limits only; still better than unlimited.
			logger.Warn("rate limiting enabled without Redis, falling back to in-memory limits")
			limiter := middleware.NewRateLimitMiddleware()
			var cleanupCtx context.Context
			cleanupCtx, stopLimiterCleanup = context.WithCancel(ctx)
			limiter.StartCleanup(cleanupCtx)
			rateLimit = limiter.Handler
		}
	}

	server := api.NewServer(api.Deps{
		Resolver:   resolver,
		Sessions:   sessions,
		Recorder:   recorder,
		Metrics:    metrics,
		Logger:     logger,
		TaskLogger: taskLogger,

		Tenants:    tenants.NewPostgresService(db),
		Orgs:       orgs.NewPostgresService(db),
		Documents:  resources.NewDocumentService(db, files, cache, logger),
		Payments:   resources.NewPaymentService(db, cache),
		Statements: resources.NewStatementService(db, cache),
		Messages:   resources.NewMessageService(db),
		Dashboard:  resources.NewDashboardService(db),
		Webhooks:   webhookStore,
		Dispatcher: dispatcher,

		RateLimit:      rateLimit,
		MaxUploadBytes: cfg.Storage.MaxObjectBytes,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthServer := startHealthServer(cfg, db, client, registry, logger)

	sm := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		sweeper.Stop()
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	if otelProviders != nil {
		sm.RegisterShutdownFunc(otelProviders.Shutdown)
	}
	if auditCleanup != nil {
		sm.RegisterShutdownFunc(auditCleanup)
	}
	if stopLimiterCleanup != nil {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			stopLimiterCleanup()
			return nil
		})
	}
	if client != nil {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			return client.Close()
		})
	}
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return db.Close()
	})

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", httpServer.Addr).Info("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	shutdownCh := make(chan error, 1)
	go func() {
		shutdownCh <- sm.WaitForShutdown()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case err := <-shutdownCh:
		return err
	}
}

// buildRecorder picks the audit backend. Single-node deployments can keep
// the trail in an embedded SQLite file instead of the shared Postgres.
func buildRecorder(cfg *config.Config, db *sql.DB, logger *observability.Logger) (audit.Recorder, observability.ShutdownFunc, error) {
	if cfg.Audit.SQLitePath != "" {
		store, err := audit.NewSQLiteStore(cfg.Audit.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("audit store: %w", err)
		}
		logger.WithField("path", cfg.Audit.SQLitePath).Info("audit trail backed by SQLite")
		return store, func(ctx context.Context) error { return store.Close() }, nil
	}
	return audit.NewPostgresStore(db), nil, nil
}

// startHealthServer serves liveness, readiness and metrics on a separate
// port so probes and scrapes bypass the authenticated router.
func startHealthServer(cfg *config.Config, db *sql.DB, client *redis.Client, registry *prometheus.Registry, logger *observability.Logger) *http.Server {
	checker := observability.NewHealthChecker(db, client)

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", checker.Liveness)
	healthMux.HandleFunc("/readyz", checker.Readiness)
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.Handler(registry))
	}

	srv := &http.Server{
		Addr:        cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:     healthMux,
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server exited")
		}
	}()
	return srv
}
