package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dejobratic/storefront/internal/database"
	httpadapter "github.com/dejobratic/storefront/internal/orders/adapters/http"
	"github.com/dejobratic/storefront/internal/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	var noSweep bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with background payment reconciliation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), noSweep)
		},
	}
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "do not run the periodic pending sweep in this process")
	return cmd
}

func runServe(parent context.Context, noSweep bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg, logger := c.cfg, c.logger

	if cfg.Database.AutoMigrate {
		logger.Info("running database migrations", "path", cfg.Database.MigrationsPath)
		if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("migrations completed successfully")
	}

	httpMetrics, err := httpadapter.NewMetrics(telemetry.Meter(meterName))
	if err != nil {
		return fmt.Errorf("create http metrics: %w", err)
	}

	router := httpadapter.NewRouter(
		httpadapter.NewHandler(c.service, logger),
		httpMetrics,
		func(ctx context.Context) error { return database.CheckHealth(ctx, c.pool) },
		logger,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           otelhttp.NewHandler(router, cfg.Service.Name),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return c.scheduler.Run(gctx, c.service.Poll)
	})

	if !noSweep && cfg.Checkout.SweepInterval > 0 {
		sweeper := c.sweeper()
		g.Go(func() error {
			return sweeper.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownGrace)*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			return err
		}
		logger.Info("http server stopped")
		return nil
	})

	return g.Wait()
}
