package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/authservice/internal/auth"
	"github.com/utafrali/authservice/internal/config"
	"github.com/utafrali/authservice/internal/event"
	"github.com/utafrali/authservice/internal/guard"
	handler "github.com/utafrali/authservice/internal/handler/http"
	"github.com/utafrali/authservice/internal/ratelimit"
	"github.com/utafrali/authservice/internal/repository/postgres"
	"github.com/utafrali/authservice/internal/service"
	"github.com/utafrali/authservice/migrations"
	"github.com/utafrali/authservice/pkg/database"
	"github.com/utafrali/authservice/pkg/health"
	pkgkafka "github.com/utafrali/authservice/pkg/kafka"
	"github.com/utafrali/authservice/pkg/middleware"
	"github.com/utafrali/authservice/pkg/tracing"
)

// App wires together all dependencies and runs the auth service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.closeBackends()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing())
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	pool, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	a.pool = pool

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		database.NewPoolStatsCollector(pool, cfg.ServiceName),
	)

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", pool.Ping)

	opts := []service.AuthOption{service.WithMetrics(service.NewMetrics(registry))}
	if cfg.RefreshTokenPolicy == config.PolicySingle {
		opts = append(opts, service.WithSingleSession())
	}

	if cfg.LoginThrottleEnabled {
		client, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
		if err != nil {
			// The throttle fails open, so a missing Redis only degrades it.
			logger.Warn("redis unavailable, login throttle degraded", slog.String("error", err.Error()))
		}
		if client != nil {
			a.redis = client
			opts = append(opts, service.WithLoginThrottle(ratelimit.New(client, cfg.LoginThrottle())))
			healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			})
		}
	}

	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(cfg.Kafka(), pkgkafka.NewProducerMetrics(registry), logger)
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	tokens := auth.NewTokenManager(cfg.JWT())
	users, err := service.NewUserService(postgres.NewUserRepository(pool), cfg.DefaultRole, cfg.BcryptCost, logger)
	if err != nil {
		return fmt.Errorf("init user service: %w", err)
	}
	authService := service.NewAuthService(
		users,
		postgres.NewRefreshTokenRepository(pool),
		tokens,
		event.NewProducer(a.producer, logger),
		logger,
		opts...,
	)

	router := handler.NewRouter(handler.RouterConfig{
		ServiceName:   cfg.ServiceName,
		Routes:        handler.Routes(handler.NewAuthHandler(authService, logger), handler.NewUserHandler(authService, logger)),
		Tokens:        tokens,
		Permissions:   guard.NewPermissionGuard(users, cfg.PermissionSource == config.PermissionSourceClaims, logger),
		RefreshCookie: cfg.RefreshCookieName,
		Health:        healthHandler,
		Metrics:       middleware.NewHTTPMetrics(registry, cfg.ServiceName),
		Gatherer:      registry,
		CORS:          cfg.CORS(),
		PprofCIDRs:    cfg.PprofAllowedCIDRs,
		Logger:        logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// openDatabase connects to PostgreSQL and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if cfg.RunMigrations {
		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")
	}

	if cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
	}
	return pool, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.closeBackends()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order: HTTP server, tracer,
// Kafka producer, Redis, PostgreSQL pool.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.closeBackends(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeBackends releases everything except the HTTP server. Flushing spans
// comes first so spans from drained requests are exported.
func (a *App) closeBackends() error {
	var errs []error

	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.producer = nil
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.redis = nil
	}

	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return errors.Join(errs...)
}

// CleanupExpiredTokens connects to the database, deletes expired refresh
// tokens once and returns how many were removed.
func CleanupExpiredTokens(ctx context.Context, cfg *config.Config, logger *slog.Logger) (int64, error) {
	pool, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return 0, err
	}
	defer pool.Close()

	users, err := service.NewUserService(postgres.NewUserRepository(pool), cfg.DefaultRole, cfg.BcryptCost, logger)
	if err != nil {
		return 0, err
	}
	svc := service.NewAuthService(
		users,
		postgres.NewRefreshTokenRepository(pool),
		auth.NewTokenManager(cfg.JWT()),
		event.NewProducer(nil, logger),
		logger,
	)
	return svc.CleanupExpiredTokens(ctx)
}
