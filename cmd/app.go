package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mstgnz/paykit/handler"
	"github.com/mstgnz/paykit/infra/config"
	"github.com/mstgnz/paykit/infra/idempotency"
	"github.com/mstgnz/paykit/infra/logger"
	"github.com/mstgnz/paykit/infra/metrics"
	"github.com/mstgnz/paykit/infra/opensearch"
	"github.com/mstgnz/paykit/infra/storage"
	"github.com/mstgnz/paykit/provider"
	"github.com/mstgnz/paykit/provider/builtin"
)

// app holds the long-lived dependencies shared by the subcommands
type app struct {
	cfg     *config.AppConfig
	store   *storage.SQLStore
	manager *provider.PaymentManager

	search *opensearch.Logger      // nil unless OpenSearch logging is enabled
	osc    *opensearch.Client      // nil unless OpenSearch logging is enabled
	redis  *idempotency.RedisStore // nil without REDIS_URL

	closers []func() error
}

// loadConfig reads the dotenv files and validates the application config
func loadConfig() (*config.AppConfig, error) {
	if err := config.LoadEnv(envFiles...); err != nil {
		return nil, err
	}
	config.ResetAppConfig()
	cfg := config.GetAppConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp opens storage, the optional Redis and OpenSearch backends, and
// builds the payment manager on top of them
func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	a := &app{cfg: cfg}
	if err := a.open(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context) error {
	cfg := a.cfg

	if cfg.EnableOpenSearch {
		osc, err := opensearch.NewClient(cfg)
		if err != nil {
			return err
		}
		a.osc = osc
		a.search = opensearch.NewLogger(osc)
	}

	logConfig := logger.SystemLoggerConfig{
		Output:      os.Stdout,
		Console:     cfg.IsDevelopment(),
		MinLevel:    logger.ParseLevel(cfg.LoggingLevel),
		Service:     "paykit",
		Version:     version,
		Environment: cfg.Environment,
	}
	if a.search != nil {
		logConfig.Sink = a.search
	}
	logger.InitGlobalLogger(logConfig)

	store, err := storage.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	if err := store.SeedPlans(ctx, storage.DefaultPlans()); err != nil {
		return fmt.Errorf("seeding plans: %w", err)
	}

	var deduper provider.WebhookDeduper = idempotency.NewMemoryStore(cfg.WebhookDedupeTTL)
	if cfg.RedisURL != "" {
		cli, err := idempotency.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		a.redis = idempotency.NewRedisStore(cli, cfg.WebhookDedupeTTL)
		a.closers = append(a.closers, a.redis.Close)
		deduper = a.redis
	}

	registry, err := builtin.NewRegistry(builtin.Deps{Store: store})
	if err != nil {
		return err
	}

	opts := []provider.ManagerOption{
		provider.WithDefaultProvider(cfg.DefaultProvider),
		provider.WithStore(store),
		provider.WithObserver(metrics.NewObserver()),
		provider.WithAuditSink(store),
		provider.WithWebhookDeduper(deduper),
	}
	if a.search != nil {
		opts = append(opts, provider.WithAuditSink(a.search))
	}

	a.manager = provider.NewPaymentManager(registry, config.NewProviderConfig(), opts...)
	return nil
}

// healthChecks returns a probe for every backend the app is connected to
func (a *app) healthChecks() map[string]handler.Pinger {
	checks := map[string]handler.Pinger{
		"database": a.store,
	}
	if a.redis != nil {
		checks["redis"] = a.redis
	}
	if a.osc != nil {
		checks["opensearch"] = a.osc
	}
	return checks
}

// webhookSearch returns the OpenSearch logger as a handler.WebhookSearch,
// or a nil interface when OpenSearch is off
func (a *app) webhookSearch() handler.WebhookSearch {
	if a.search == nil {
		return nil
	}
	return a.search
}

// Close releases the app's connections in reverse order
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
