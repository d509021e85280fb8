package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration for the API service.
type Config struct {
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Telemetry TelemetryConfig
	Service   ServiceConfig
	Momo      MomoConfig
	Checkout  CheckoutConfig
}

type HTTPConfig struct {
	Port          int
	ShutdownGrace int
}

type DatabaseConfig struct {
	URL            string
	AutoMigrate    bool
	MigrationsPath string
}

type TelemetryConfig struct {
	LogLevel      string
	OTelEndpoint  string
	EnableTracing bool
	EnableMetrics bool
	SampleRate    float64
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

// MomoConfig holds the collection API credentials and the values sent with
// every request to pay.
type MomoConfig struct {
	BaseURL           string
	SubscriptionKey   string
	APIUser           string
	APIKey            string
	TargetEnvironment string
	Currency          string
	CallbackURL       string
	RequestTimeout    time.Duration
	PollTimeout       time.Duration
	RateLimit         float64
	RateBurst         int
}

// CheckoutConfig holds storefront rules and the reconciliation schedule.
type CheckoutConfig struct {
	PayerPrefixes           []string
	CashOnDeliveryDistricts []string
	IdempotencyTTL          time.Duration
	RecheckDelay            time.Duration
	RecheckWorkers          int
	RecheckQueueSize        int
	SweepInterval           time.Duration
	SweepMinAge             time.Duration
	SweepBatchSize          int
}

const (
	defaultHTTPPort       = 8080
	defaultShutdownGrace  = 15
	defaultMigrationsPath = "migrations"
	defaultAutoMigrate    = true
	defaultServiceName    = "storefront-api"
	defaultServiceVersion = "0.1.0"
	defaultEnvironment    = "development"
	defaultLogLevel       = "info"
	defaultOTelSampleRate = 1.0

	defaultMomoBaseURL        = "https://sandbox.momodeveloper.mtn.com"
	defaultMomoTargetEnv      = "sandbox"
	defaultMomoCurrency       = "UGX"
	defaultMomoCallbackURL    = "http://localhost:8080/payment-callback"
	defaultMomoRequestTimeout = 15 * time.Second
	defaultMomoPollTimeout    = 5 * time.Second
	defaultMomoRateBurst      = 5

	defaultPayerPrefixes    = "077,078,076"
	defaultCODDistricts     = "Kampala,Wakiso"
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultRecheckDelay     = 30 * time.Second
	defaultRecheckWorkers   = 4
	defaultRecheckQueueSize = 1024
	defaultSweepInterval    = 5 * time.Minute
	defaultSweepMinAge      = 2 * time.Minute
	defaultSweepBatchSize   = 100
)

// Load reads configuration from environment variables, applying defaults when needed.
func Load() (*Config, error) {
	httpCfg, err := loadHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("loading HTTP config: %w", err)
	}

	dbCfg := loadDatabaseConfig()
	telCfg, err := loadTelemetryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading telemetry config: %w", err)
	}

	serviceCfg := loadServiceConfig()

	momoCfg, err := loadMomoConfig()
	if err != nil {
		return nil, fmt.Errorf("loading momo config: %w", err)
	}

	checkoutCfg, err := loadCheckoutConfig()
	if err != nil {
		return nil, fmt.Errorf("loading checkout config: %w", err)
	}

	return &Config{
		HTTP:      httpCfg,
		Database:  dbCfg,
		Telemetry: telCfg,
		Service:   serviceCfg,
		Momo:      momoCfg,
		Checkout:  checkoutCfg,
	}, nil
}

func loadHTTPConfig() (HTTPConfig, error) {
	port, err := getIntEnv("API_HTTP_PORT", defaultHTTPPort)
	if err != nil {
		return HTTPConfig{}, err
	}

	shutdownGrace, err := getIntEnv("API_SHUTDOWN_GRACE_SECONDS", defaultShutdownGrace)
	if err != nil {
		return HTTPConfig{}, err
	}

	return HTTPConfig{
		Port:          port,
		ShutdownGrace: shutdownGrace,
	}, nil
}

func loadDatabaseConfig() DatabaseConfig {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL()
	}

	return DatabaseConfig{
		URL:            databaseURL,
		AutoMigrate:    getBoolEnv("AUTO_MIGRATE", defaultAutoMigrate),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", defaultMigrationsPath),
	}
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	logLevel := getEnvOrDefault("LOG_LEVEL", defaultLogLevel)
	otelEndpoint := getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	enableTracing := getBoolEnv("OTEL_ENABLE_TRACING", true)
	enableMetrics := getBoolEnv("OTEL_ENABLE_METRICS", true)

	sampleRate, err := getFloatEnv("OTEL_SAMPLE_RATE", defaultOTelSampleRate)
	if err != nil {
		return TelemetryConfig{}, err
	}

	return TelemetryConfig{
		LogLevel:      logLevel,
		OTelEndpoint:  otelEndpoint,
		EnableTracing: enableTracing,
		EnableMetrics: enableMetrics,
		SampleRate:    sampleRate,
	}, nil
}

func loadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:        getEnvOrDefault("API_SERVICE_NAME", defaultServiceName),
		Version:     getEnvOrDefault("SERVICE_VERSION", defaultServiceVersion),
		Environment: getEnvOrDefault("ENVIRONMENT", defaultEnvironment),
	}
}

func loadMomoConfig() (MomoConfig, error) {
	cfg := MomoConfig{
		BaseURL:           getEnvOrDefault("MOMO_BASE_URL", defaultMomoBaseURL),
		SubscriptionKey:   os.Getenv("MOMO_SUBSCRIPTION_KEY"),
		APIUser:           os.Getenv("MOMO_API_USER"),
		APIKey:            os.Getenv("MOMO_API_KEY"),
		TargetEnvironment: getEnvOrDefault("MOMO_TARGET_ENVIRONMENT", defaultMomoTargetEnv),
		Currency:          getEnvOrDefault("MOMO_CURRENCY", defaultMomoCurrency),
		CallbackURL:       getEnvOrDefault("MOMO_CALLBACK_URL", defaultMomoCallbackURL),
	}

	var err error
	if cfg.RequestTimeout, err = getDurationEnv("MOMO_REQUEST_TIMEOUT", defaultMomoRequestTimeout); err != nil {
		return MomoConfig{}, err
	}
	if cfg.PollTimeout, err = getDurationEnv("MOMO_POLL_TIMEOUT", defaultMomoPollTimeout); err != nil {
		return MomoConfig{}, err
	}
	if cfg.RateLimit, err = getFloatEnv("MOMO_RATE_LIMIT_RPS", 0); err != nil {
		return MomoConfig{}, err
	}
	if cfg.RateBurst, err = getIntEnv("MOMO_RATE_BURST", defaultMomoRateBurst); err != nil {
		return MomoConfig{}, err
	}
	return cfg, nil
}

func loadCheckoutConfig() (CheckoutConfig, error) {
	cfg := CheckoutConfig{
		PayerPrefixes:           getListEnv("CHECKOUT_PAYER_PREFIXES", defaultPayerPrefixes),
		CashOnDeliveryDistricts: getListEnv("CHECKOUT_COD_DISTRICTS", defaultCODDistricts),
	}

	var err error
	if cfg.IdempotencyTTL, err = getDurationEnv("CHECKOUT_IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return CheckoutConfig{}, err
	}
	if cfg.RecheckDelay, err = getDurationEnv("CHECKOUT_RECHECK_DELAY", defaultRecheckDelay); err != nil {
		return CheckoutConfig{}, err
	}
	if cfg.RecheckWorkers, err = getIntEnv("CHECKOUT_RECHECK_WORKERS", defaultRecheckWorkers); err != nil {
		return CheckoutConfig{}, err
	}
	if cfg.RecheckQueueSize, err = getIntEnv("CHECKOUT_RECHECK_QUEUE_SIZE", defaultRecheckQueueSize); err != nil {
		return CheckoutConfig{}, err
	}
	if cfg.SweepInterval, err = getDurationEnv("CHECKOUT_SWEEP_INTERVAL", defaultSweepInterval); err != nil {
		return CheckoutConfig{}, err
	}
	if cfg.SweepMinAge, err = getDurationEnv("CHECKOUT_SWEEP_MIN_AGE", defaultSweepMinAge); err != nil {
		return CheckoutConfig{}, err
	}
	if cfg.SweepBatchSize, err = getIntEnv("CHECKOUT_SWEEP_BATCH_SIZE", defaultSweepBatchSize); err != nil {
		return CheckoutConfig{}, err
	}
	return cfg, nil
}

func buildDatabaseURL() string {
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "postgres")
	dbName := getEnvOrDefault("DB_NAME", "storefront")
	sslMode := getEnvOrDefault("DB_SSLMODE", "disable")

	maxConns := getEnvOrDefault("DB_MAX_CONNS", "25")
	minConns := getEnvOrDefault("DB_MIN_CONNS", "5")
	maxLifetime := getEnvOrDefault("DB_MAX_CONN_LIFETIME", "5m")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%s&pool_min_conns=%s&pool_max_conn_lifetime=%s",
		user, password, host, port, dbName, sslMode, maxConns, minConns, maxLifetime,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return value == "true"
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getFloatEnv(key string, defaultValue float64) (float64, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

// getListEnv splits a comma separated value, dropping empty entries.
func getListEnv(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnvOrDefault(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
