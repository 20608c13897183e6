package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/shopbook/libs/auth"
	"github.com/md-rashed-zaman/shopbook/libs/config"
	"github.com/md-rashed-zaman/shopbook/libs/db"
	"github.com/md-rashed-zaman/shopbook/libs/httpx"
	"github.com/md-rashed-zaman/shopbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/shopbook/libs/otel"
	"github.com/md-rashed-zaman/shopbook/libs/runtime"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/catalog"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/settings"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotEnv(".env")

	service := config.String("SERVICE_NAME", "booking-service")
	logger := runtime.NewLoggerWithLevel(service, config.String("LOG_LEVEL", "info"))

	port, err := config.Port("PORT", "8083")
	if err != nil {
		fatal(logger, "invalid PORT", err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		fatal(logger, "invalid GRPC_PORT", err)
	}
	cfg, err := settings.FromEnv()
	if err != nil {
		fatal(logger, "invalid configuration", err)
	}

	ctx, stop := runtime.SignalContext(logger)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var (
		store    storage.Store
		cat      catalog.Catalog
		notifier booking.Notifier
		checks   []runtime.ReadyCheck
	)
	switch cfg.StorageDriver {
	case settings.DriverMemory:
		static, err := catalog.ParseStatic(cfg.Services)
		if err != nil {
			fatal(logger, "invalid SHOP_SERVICES", err)
		}
		store = storage.NewMemoryStore()
		cat = static
		notifier = outbox.NewLogNotifier(logger)
		logger.Warn("using in-memory storage; bookings are lost on restart")
	default:
		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal(logger, "db connection failed", err)
		}
		defer pool.Close()

		if cfg.MigrateOnStart {
			if err := db.Migrate(ctx, pool, migrations.FS, logger); err != nil {
				fatal(logger, "migrations failed", err)
			}
		}

		store = storage.NewPostgresStore(pool)
		if cfg.Services != "" {
			static, err := catalog.ParseStatic(cfg.Services)
			if err != nil {
				fatal(logger, "invalid SHOP_SERVICES", err)
			}
			cat = static
		} else {
			cat = catalog.NewRepository(pool)
		}

		outboxRepo := outbox.NewRepository()
		notifier = outbox.NewNotifier(pool, outboxRepo, clock.System{})
		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   cfg.KafkaBrokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go publisher.Run(ctx)

		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
		if cfg.KafkaBrokers != "" {
			checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
		}
	}

	svc := booking.NewService(store, conflict.NewChecker(cfg.Calendar), cat, notifier, clock.System{}, logger, booking.Config{
		SlotStep:       cfg.SlotStep,
		SweepBatchSize: cfg.SweepBatchSize,
	})

	worker := lifecycle.NewWorker(svc, logger, lifecycle.WorkerConfig{
		Interval:  cfg.SweepInterval,
		BatchSize: cfg.SweepBatchSize,
	})
	go worker.Run(ctx)

	if err := startGrpcServer(ctx, logger, grpcPort); err != nil {
		fatal(logger, "grpc server failed", err)
	}

	var jwksClient *auth.JWKSClient
	if cfg.JWKSURL != "" {
		jwksClient = auth.NewJWKSClient(cfg.JWKSURL, 5*time.Minute)
	}
	authn := handlers.NewAuthenticator(auth.NewVerifier(cfg.JWTSecret, jwksClient), cfg.TrustHeaders)

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewBookingHandler(svc, logger, cfg.Calendar.Location).Register(mux, authn.Middleware)

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(10*time.Second),
		rateLimit(logger, cfg),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "storage", cfg.StorageDriver, "timezone", cfg.Calendar.Location.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func rateLimit(logger *slog.Logger, cfg settings.Settings) httpx.Middleware {
	var limiter httpx.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: config.String("REDIS_PASSWORD", ""),
		})
		limiter = httpx.NewRedisLimiter(rdb, cfg.RateLimit, time.Minute, "booking-rl")
		logger.Info("rate limiting enabled (redis)", "per_minute", cfg.RateLimit, "redis_addr", cfg.RedisAddr)
	} else {
		limiter = httpx.NewMemoryLimiter(cfg.RateLimit, time.Minute)
		logger.Info("rate limiting enabled (in-memory)", "per_minute", cfg.RateLimit)
	}
	return httpx.RateLimit(limiter, logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
