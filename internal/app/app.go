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
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/siterank/internal/auth"
	"github.com/utafrali/siterank/internal/config"
	"github.com/utafrali/siterank/internal/event"
	handler "github.com/utafrali/siterank/internal/handler/http"
	"github.com/utafrali/siterank/internal/repository"
	"github.com/utafrali/siterank/internal/repository/postgres"
	"github.com/utafrali/siterank/internal/repository/remote"
	"github.com/utafrali/siterank/internal/service"
	"github.com/utafrali/siterank/migrations"
	"github.com/utafrali/siterank/pkg/database"
	"github.com/utafrali/siterank/pkg/health"
	"github.com/utafrali/siterank/pkg/httpclient"
	pkgkafka "github.com/utafrali/siterank/pkg/kafka"
	"github.com/utafrali/siterank/pkg/middleware"
	"github.com/utafrali/siterank/pkg/tracing"
)

// App wires together all dependencies and runs the siterank server.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	redis          *redis.Client
	localLimiter   *middleware.LocalLimiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
// Whatever was started before a failure is released again.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.release()
		}
	}()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    handler.ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}

	pool, err := database.Connect(ctx, pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, handler.ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})

	// Events are optional; without brokers the producer is a no-op.
	var publisher event.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = a.producer
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return a.producer.Ping(ctx)
		})
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	eventProducer := event.NewProducer(publisher, logger)

	limiter, err := a.newLimiter(ctx, healthHandler)
	if err != nil {
		return nil, err
	}

	users := a.newUserDirectory(healthHandler)

	siteRepo := postgres.NewSiteRepository(pool)
	reviewRepo := postgres.NewReviewRepository(pool)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessExpiry)

	origins := cfg.CORSAllowedOrigins
	if cfg.IsDevelopment() {
		origins = nil
	}
	corsCfg := middleware.DefaultCORSConfig(origins...)

	router := handler.NewRouter(handler.RouterDeps{
		Sites:             service.NewSiteService(siteRepo, reviewRepo, eventProducer, logger),
		Reviews:           service.NewReviewService(siteRepo, reviewRepo, eventProducer, logger),
		Stats:             service.NewStatsService(siteRepo, reviewRepo, users, logger),
		Tokens:            jwtManager.Validator(),
		Health:            healthHandler,
		Limiter:           limiter,
		CORS:              corsCfg,
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
		Logger:            logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// newLimiter picks the shared Redis limiter when Redis is enabled and the
// in-process token bucket otherwise.
func (a *App) newLimiter(ctx context.Context, healthHandler *health.Handler) (middleware.Limiter, error) {
	cfg := a.cfg
	if !cfg.RedisEnabled {
		a.localLimiter = middleware.NewLocalLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute)
		return a.localLimiter, nil
	}

	client, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = client
	healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	a.logger.Info("connected to Redis", slog.String("host", cfg.RedisHost), slog.Int("port", cfg.RedisPort))

	return middleware.NewRedisLimiter(client, "siterank:ratelimit", cfg.RateLimitLimit(), cfg.RateLimitWindow), nil
}

// newUserDirectory resolves review authors through the remote directory when
// one is configured and through the local users table otherwise.
func (a *App) newUserDirectory(healthHandler *health.Handler) repository.UserDirectory {
	cfg := a.cfg
	if cfg.UserDirectoryURL == "" {
		return postgres.NewUserRepository(a.pool)
	}

	cbCfg := httpclient.CircuitBreakerConfig{
		Name:         "user-directory",
		MaxRequests:  cfg.CBMaxRequests,
		Interval:     time.Duration(cfg.CBInterval) * time.Second,
		Timeout:      time.Duration(cfg.CBTimeout) * time.Second,
		FailureRatio: cfg.CBFailureRatio,
		MinRequests:  cfg.CBMinRequests,
	}
	client := httpclient.NewCircuitBreakerClient(httpclient.New(httpclient.DefaultConfig()), cbCfg, a.logger)
	healthHandler.RegisterNonCritical("user-directory", client.Check)
	a.logger.Info("using remote user directory", slog.String("url", cfg.UserDirectoryURL))

	return remote.NewUserDirectory(client, cfg.UserDirectoryURL, a.logger)
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order: HTTP server, tracer,
// Kafka producer, then the Redis client and PostgreSQL pool.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// Flush spans after the drain so in-flight request spans are captured.
	if err := a.release(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// release flushes the tracer and closes the producer and stores. Each is
// released at most once.
func (a *App) release() error {
	var errs []error

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
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

	if err := a.closeStores(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeStores() error {
	var err error
	if a.localLimiter != nil {
		a.localLimiter.Close()
	}
	if a.redis != nil {
		if cerr := a.redis.Close(); cerr != nil {
			a.logger.Error("redis close error", slog.String("error", cerr.Error()))
			err = cerr
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	a.localLimiter, a.redis, a.pool = nil, nil, nil
	return err
}
