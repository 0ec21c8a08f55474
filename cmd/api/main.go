package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veloswap/market/internal/auth"
	"github.com/veloswap/market/internal/config"
	"github.com/veloswap/market/internal/database"
	"github.com/veloswap/market/internal/events"
	idemmemory "github.com/veloswap/market/internal/idempotency/memory"
	idempostgres "github.com/veloswap/market/internal/idempotency/postgres"
	idemredis "github.com/veloswap/market/internal/idempotency/redis"
	"github.com/veloswap/market/internal/marketplace/adapters"
	httpadapter "github.com/veloswap/market/internal/marketplace/adapters/http"
	"github.com/veloswap/market/internal/marketplace/adapters/memory"
	marketpostgres "github.com/veloswap/market/internal/marketplace/adapters/postgres"
	"github.com/veloswap/market/internal/marketplace/app"
	"github.com/veloswap/market/internal/marketplace/metrics"
	"github.com/veloswap/market/internal/marketplace/ports"
	"github.com/veloswap/market/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("marketplace api exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := telemetry.ParseLevel(cfg.Telemetry.LogLevel)
	if err != nil {
		return err
	}
	logger := telemetry.NewLogger(os.Stdout, level,
		slog.String("service", cfg.Service.Name),
		slog.String("version", cfg.Service.Version),
	)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, cfg.Service, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	meter := telemetry.Meter()
	dbMetrics, err := database.NewMetrics(meter)
	if err != nil {
		return err
	}
	eventMetrics, err := events.NewMetrics(meter)
	if err != nil {
		return err
	}
	marketMetrics, err := metrics.NewMetrics(meter)
	if err != nil {
		return err
	}
	httpMetrics, err := httpadapter.NewMetrics(meter)
	if err != nil {
		return err
	}

	var (
		uow  ports.UnitOfWork
		pool *pgxpool.Pool
	)
	if cfg.Database.URL != "" {
		pool, err = openDatabase(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		uow = marketpostgres.NewUnitOfWork(pool, dbMetrics)
	} else {
		store := memory.NewStore()
		if cfg.Marketplace.SeedFile != "" {
			seed, err := store.LoadSeed(cfg.Marketplace.SeedFile, cfg.Marketplace.ModerationEnabled, time.Now().UTC())
			if err != nil {
				return err
			}
			logger.Info("seeded in-memory store", "users", len(seed.Users), "listings", len(seed.Listings))
		}
		logger.Warn("DATABASE_URL not set, using in-memory store")
		uow = store
	}
	uow = adapters.NewObservableUnitOfWork(uow, dbMetrics)

	bus, closeBus, err := openEventBus(cfg.Events, logger)
	if err != nil {
		return err
	}
	defer closeBus()
	eventBus := adapters.NewObservableEventBus(bus, eventMetrics)

	idempotency, closeIdem, err := openIdempotencyStore(ctx, cfg.Idempotency, pool)
	if err != nil {
		return err
	}
	defer closeIdem()

	opts := []app.Option{app.WithOfferTTL(cfg.Marketplace.OfferTTL)}
	negotiation := app.NewObservableNegotiation(app.NewNegotiationService(uow, eventBus, logger, opts...), logger, marketMetrics)
	fulfillment := app.NewObservableFulfillment(app.NewFulfillmentService(uow, eventBus, logger, opts...), logger, marketMetrics)

	var pinger database.Pinger
	if pool != nil {
		pinger = pool
	}
	router := httpadapter.NewRouter(httpadapter.RouterConfig{
		Handler:  httpadapter.NewHandler(negotiation, fulfillment, idempotency, httpMetrics, logger),
		Verifier: auth.NewVerifier(cfg.Auth.JWTSecret),
		Metrics:  httpMetrics,
		DB:       pinger,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var wg sync.WaitGroup
	if cfg.Marketplace.SweepInterval > 0 {
		sweeper := app.NewSweeper(negotiation, fulfillment, cfg.Marketplace.SweepInterval, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper.Run(ctx)
		}()
	}

	go func() {
		logger.Info("http server starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	} else {
		logger.Info("http server stopped")
	}
	wg.Wait()
	return nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	if cfg.AutoMigrate {
		logger.Info("running database migrations", "path", cfg.MigrationsPath)
		version, err := database.RunMigrations(cfg.URL, cfg.MigrationsPath)
		if err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("migrations completed", "version", version)
	}

	pool, err := database.NewPool(ctx, database.PoolConfig{
		URL:             cfg.URL,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
		MaxConnIdleTime: cfg.MaxConnIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	return pool, nil
}

func openEventBus(cfg config.EventsConfig, logger *slog.Logger) (ports.EventBus, func(), error) {
	if cfg.Backend != config.BackendNATS {
		return events.NewNoopBus(logger), func() {}, nil
	}

	bus, err := events.NewNATSBus(cfg.NATSURL, cfg.SubjectPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	logger.Info("publishing events to nats", "url", cfg.NATSURL, "prefix", cfg.SubjectPrefix)
	return bus, bus.Close, nil
}

func openIdempotencyStore(ctx context.Context, cfg config.IdempotencyConfig, pool *pgxpool.Pool) (ports.IdempotencyStore, func(), error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		if pool == nil {
			return nil, nil, errors.New("postgres idempotency store needs a database")
		}
		return idempostgres.NewStore(pool, cfg.TTL), func() {}, nil
	case config.BackendRedis:
		client, err := idemredis.NewClient(ctx, idemredis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return idemredis.NewStore(client, cfg.TTL), func() { _ = client.Close() }, nil
	default:
		return idemmemory.NewStore(cfg.TTL), func() {}, nil
	}
}
