package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config captures runtime configuration for the marketplace API.
type Config struct {
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Events      EventsConfig
	Idempotency IdempotencyConfig
	Auth        AuthConfig
	Marketplace MarketplaceConfig
	Telemetry   TelemetryConfig
	Service     ServiceConfig
}

type HTTPConfig struct {
	Port          int
	ShutdownGrace time.Duration
}

// DatabaseConfig selects the store. An empty URL runs on the in-memory store.
type DatabaseConfig struct {
	URL             string
	AutoMigrate     bool
	MigrationsPath  string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

type EventsConfig struct {
	Backend       string
	NATSURL       string
	SubjectPrefix string
}

type IdempotencyConfig struct {
	Backend       string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type AuthConfig struct {
	JWTSecret string
}

type MarketplaceConfig struct {
	OfferTTL          time.Duration
	SweepInterval     time.Duration
	// ModerationEnabled seeds listings without a status as pending_review.
	// Nothing in this service approves them, so it is off by default.
	ModerationEnabled bool
	// SeedFile optionally preloads users and listings into the in-memory store.
	SeedFile string
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

const (
	BackendNoop     = "noop"
	BackendNATS     = "nats"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

const (
	defaultEnvFile            = ".env"
	defaultHTTPPort           = 8080
	defaultShutdownGrace      = 15
	defaultMigrationsPath     = "migrations"
	defaultMaxConns           = 25
	defaultMinConns           = 5
	defaultMaxConnLifetime    = 5 * time.Minute
	defaultMaxConnIdleTime    = time.Minute
	defaultSubjectPrefix      = "marketplace"
	defaultIdempotencyTTLHrs  = 24
	defaultOfferTTLHours      = 168
	defaultSweepIntervalSecs  = 60
	defaultServiceName        = "marketplace-api"
	defaultServiceVersion     = "0.1.0"
	defaultEnvironment        = "development"
	defaultLogLevel           = "info"
	defaultOTelSampleRate     = 1.0
	developmentJWTSecretValue = "dev-secret-change-me"
)

// Load reads configuration from environment variables, applying defaults when
// needed. Variables from an optional .env file (ENV_FILE) are loaded first and
// never override the real environment.
func Load() (*Config, error) {
	if err := loadEnvFile(getEnvOrDefault("ENV_FILE", defaultEnvFile)); err != nil {
		return nil, err
	}

	httpCfg, err := loadHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("loading HTTP config: %w", err)
	}

	dbCfg, err := loadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("loading database config: %w", err)
	}

	eventsCfg, err := loadEventsConfig()
	if err != nil {
		return nil, fmt.Errorf("loading events config: %w", err)
	}

	idemCfg, err := loadIdempotencyConfig(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("loading idempotency config: %w", err)
	}

	marketCfg, err := loadMarketplaceConfig()
	if err != nil {
		return nil, fmt.Errorf("loading marketplace config: %w", err)
	}

	telCfg, err := loadTelemetryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading telemetry config: %w", err)
	}

	serviceCfg := loadServiceConfig()

	authCfg, err := loadAuthConfig(serviceCfg)
	if err != nil {
		return nil, fmt.Errorf("loading auth config: %w", err)
	}

	return &Config{
		HTTP:        httpCfg,
		Database:    dbCfg,
		Events:      eventsCfg,
		Idempotency: idemCfg,
		Auth:        authCfg,
		Marketplace: marketCfg,
		Telemetry:   telCfg,
		Service:     serviceCfg,
	}, nil
}

func loadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
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
		ShutdownGrace: time.Duration(shutdownGrace) * time.Second,
	}, nil
}

func loadDatabaseConfig() (DatabaseConfig, error) {
	maxConns, err := getIntEnv("DB_MAX_CONNS", defaultMaxConns)
	if err != nil {
		return DatabaseConfig{}, err
	}
	minConns, err := getIntEnv("DB_MIN_CONNS", defaultMinConns)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if minConns > maxConns {
		return DatabaseConfig{}, fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", minConns, maxConns)
	}
	lifetime, err := getDurationEnv("DB_MAX_CONN_LIFETIME", defaultMaxConnLifetime)
	if err != nil {
		return DatabaseConfig{}, err
	}
	idle, err := getDurationEnv("DB_MAX_CONN_IDLE_TIME", defaultMaxConnIdleTime)
	if err != nil {
		return DatabaseConfig{}, err
	}

	return DatabaseConfig{
		URL:             os.Getenv("DATABASE_URL"),
		AutoMigrate:     getBoolEnv("AUTO_MIGRATE", true),
		MigrationsPath:  getEnvOrDefault("MIGRATIONS_PATH", defaultMigrationsPath),
		MaxConns:        int32(maxConns),
		MinConns:        int32(minConns),
		MaxConnLifetime: lifetime,
		MaxConnIdleTime: idle,
	}, nil
}

func loadEventsConfig() (EventsConfig, error) {
	cfg := EventsConfig{
		Backend:       getEnvOrDefault("EVENTS_BACKEND", BackendNoop),
		NATSURL:       getEnvOrDefault("NATS_URL", "nats://localhost:4222"),
		SubjectPrefix: getEnvOrDefault("NATS_SUBJECT_PREFIX", defaultSubjectPrefix),
	}
	switch cfg.Backend {
	case BackendNoop, BackendNATS:
		return cfg, nil
	default:
		return EventsConfig{}, fmt.Errorf("invalid EVENTS_BACKEND %q: must be %s or %s", cfg.Backend, BackendNoop, BackendNATS)
	}
}

// loadIdempotencyConfig defaults to postgres when a database is configured.
func loadIdempotencyConfig(db DatabaseConfig) (IdempotencyConfig, error) {
	backend := BackendMemory
	if db.URL != "" {
		backend = BackendPostgres
	}
	backend = getEnvOrDefault("IDEMPOTENCY_BACKEND", backend)

	ttlHours, err := getIntEnv("IDEMPOTENCY_TTL_HOURS", defaultIdempotencyTTLHrs)
	if err != nil {
		return IdempotencyConfig{}, err
	}
	redisDB, err := getIntEnv("REDIS_DB", 0)
	if err != nil {
		return IdempotencyConfig{}, err
	}

	cfg := IdempotencyConfig{
		Backend:       backend,
		TTL:           time.Duration(ttlHours) * time.Hour,
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
	}

	switch cfg.Backend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if db.URL == "" {
			return IdempotencyConfig{}, errors.New("IDEMPOTENCY_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return IdempotencyConfig{}, fmt.Errorf("invalid IDEMPOTENCY_BACKEND %q", cfg.Backend)
	}
	return cfg, nil
}

func loadAuthConfig(service ServiceConfig) (AuthConfig, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		if service.Environment != defaultEnvironment {
			return AuthConfig{}, errors.New("JWT_SECRET is required outside development")
		}
		secret = developmentJWTSecretValue
	}
	return AuthConfig{JWTSecret: secret}, nil
}

func loadMarketplaceConfig() (MarketplaceConfig, error) {
	offerTTL, err := getIntEnv("OFFER_TTL_HOURS", defaultOfferTTLHours)
	if err != nil {
		return MarketplaceConfig{}, err
	}
	if offerTTL <= 0 {
		return MarketplaceConfig{}, fmt.Errorf("OFFER_TTL_HOURS must be positive, got %d", offerTTL)
	}

	sweep, err := getIntEnv("SWEEP_INTERVAL_SECONDS", defaultSweepIntervalSecs)
	if err != nil {
		return MarketplaceConfig{}, err
	}

	return MarketplaceConfig{
		OfferTTL:          time.Duration(offerTTL) * time.Hour,
		SweepInterval:     time.Duration(sweep) * time.Second,
		ModerationEnabled: getBoolEnv("MODERATION_ENABLED", false),
		SeedFile:          os.Getenv("SEED_FILE"),
	}, nil
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	sampleRate := defaultOTelSampleRate
	if value, ok := os.LookupEnv("OTEL_SAMPLE_RATE"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return TelemetryConfig{}, fmt.Errorf("invalid OTEL_SAMPLE_RATE: %w", err)
		}
		sampleRate = parsed
	}

	return TelemetryConfig{
		LogLevel:      getEnvOrDefault("LOG_LEVEL", defaultLogLevel),
		OTelEndpoint:  getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		EnableTracing: getBoolEnv("OTEL_ENABLE_TRACING", true),
		EnableMetrics: getBoolEnv("OTEL_ENABLE_METRICS", true),
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
	if !ok || value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
