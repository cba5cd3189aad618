package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mstgnz/paykit/infra/logger"
	"github.com/mstgnz/paykit/infra/middle"
	"github.com/mstgnz/paykit/infra/validate"
	"github.com/mstgnz/paykit/router"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  "Start the HTTP API serving payments, subscriptions, webhooks, health and metrics.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var limiter *middle.RateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = middle.NewRateLimiter(cfg.RateLimitPerMinute)
		go limiter.Run(ctx)
	}

	server := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           newHandler(a, limiter),
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return serve(ctx, server)
}

func newHandler(a *app, limiter *middle.RateLimiter) http.Handler {
	return router.New(router.Deps{
		Service:      a.manager,
		Validate:     validate.New(),
		History:      a.store,
		Search:       a.webhookSearch(),
		HealthChecks: a.healthChecks(),
		RateLimiter:  limiter,
		APIKey:       a.cfg.APIKey,
		IPWhitelist:  a.cfg.IPWhitelist,
		CORSOrigins:  a.cfg.CORSOrigins,
		Environment:  a.cfg.Environment,
		Version:      version,
	})
}

// serve runs server until ctx is done, then drains open connections
func serve(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("API is running", logger.LogContext{
			Fields: map[string]any{"addr": server.Addr},
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
