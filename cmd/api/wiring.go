package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dejobratic/storefront/internal/config"
	"github.com/dejobratic/storefront/internal/database"
	"github.com/dejobratic/storefront/internal/events"
	idempostgres "github.com/dejobratic/storefront/internal/idempotency/postgres"
	"github.com/dejobratic/storefront/internal/momo"
	"github.com/dejobratic/storefront/internal/orders/adapters"
	orderspostgres "github.com/dejobratic/storefront/internal/orders/adapters/postgres"
	ordersapp "github.com/dejobratic/storefront/internal/orders/app"
	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/reconcile"
	"github.com/dejobratic/storefront/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
)

const meterName = "github.com/dejobratic/storefront"

// components is everything a command needs once config, telemetry and the
// database are up.
type components struct {
	cfg       *config.Config
	logger    *slog.Logger
	pool      *pgxpool.Pool
	repo      ports.OrderRepository
	idem      ports.IdempotencyStore
	scheduler *reconcile.Scheduler
	service   *ordersapp.Service
}

// bootstrap loads configuration and wires the order service. The returned
// cleanup flushes telemetry and closes the pool.
func bootstrap(ctx context.Context) (*components, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger := telemetry.NewLogger(telemetry.ParseLevel(cfg.Telemetry.LogLevel))
	slog.SetDefault(logger)

	tel, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTelEndpoint,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initialize telemetry: %w", err)
	}
	shutdownTelemetry := func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}

	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		shutdownTelemetry()
		return nil, nil, fmt.Errorf("create database pool: %w", err)
	}
	cleanup := func() {
		pool.Close()
		shutdownTelemetry()
	}

	c, err := wire(cfg, logger, pool)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return c, cleanup, nil
}

func wire(cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool) (*components, error) {
	meter := telemetry.Meter(meterName)

	dbMetrics, err := database.NewMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("create database metrics: %w", err)
	}
	orderMetrics, err := metrics.NewMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("create order metrics: %w", err)
	}
	eventMetrics, err := events.NewMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("create event metrics: %w", err)
	}
	momoMetrics, err := momo.NewMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("create momo metrics: %w", err)
	}

	momoCfg := momo.Config{
		BaseURL:           cfg.Momo.BaseURL,
		SubscriptionKey:   cfg.Momo.SubscriptionKey,
		APIUser:           cfg.Momo.APIUser,
		APIKey:            cfg.Momo.APIKey,
		TargetEnvironment: cfg.Momo.TargetEnvironment,
		RequestTimeout:    cfg.Momo.RequestTimeout,
		PollTimeout:       cfg.Momo.PollTimeout,
		TokenTTL:          momo.DefaultTokenTTL,
		RateLimit:         cfg.Momo.RateLimit,
		RateBurst:         cfg.Momo.RateBurst,
	}
	if err := momoCfg.Validate(); err != nil {
		return nil, err
	}

	repo := adapters.NewObservableRepository(orderspostgres.NewRepository(pool), dbMetrics)
	idem := idempostgres.NewStore(pool, cfg.Checkout.IdempotencyTTL)
	bus := adapters.NewObservableEventBus(events.NewLogPublisher(logger), eventMetrics)
	gateway := momo.NewClient(momoCfg, logger, momoMetrics)

	scheduler := reconcile.NewScheduler(reconcile.SchedulerConfig{
		Delay:     cfg.Checkout.RecheckDelay,
		Workers:   cfg.Checkout.RecheckWorkers,
		QueueSize: cfg.Checkout.RecheckQueueSize,
	}, logger)

	policy := domain.DefaultCheckoutPolicy()
	policy.PayerPrefixes = cfg.Checkout.PayerPrefixes
	policy.CashOnDeliveryDistricts = cfg.Checkout.CashOnDeliveryDistricts

	service := ordersapp.NewService(ordersapp.Dependencies{
		Repo:    repo,
		Events:  bus,
		Gateway: gateway,
		Recheck: scheduler,
		Idem:    idem,
		Policy:  policy,
		Settings: commands.PaymentSettings{
			Currency:    cfg.Momo.Currency,
			CallbackURL: cfg.Momo.CallbackURL,
		},
		Logger:  logger,
		Metrics: orderMetrics,
	})

	return &components{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		repo:      repo,
		idem:      idem,
		scheduler: scheduler,
		service:   service,
	}, nil
}

func (c *components) sweeper() *reconcile.Sweeper {
	return reconcile.NewSweeper(c.repo, c.service.Poll, reconcile.SweeperConfig{
		Interval:    c.cfg.Checkout.SweepInterval,
		MinAge:      c.cfg.Checkout.SweepMinAge,
		BatchSize:   c.cfg.Checkout.SweepBatchSize,
		Concurrency: c.cfg.Checkout.RecheckWorkers,
	}, c.logger)
}
