package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/libs/auth"
	"github.com/md-rashed-zaman/slotkeeper/libs/config"
	"github.com/md-rashed-zaman/slotkeeper/libs/db"
	"github.com/md-rashed-zaman/slotkeeper/libs/httpx"
	"github.com/md-rashed-zaman/slotkeeper/libs/kafkax"
	"github.com/md-rashed-zaman/slotkeeper/libs/metrics"
	otelx "github.com/md-rashed-zaman/slotkeeper/libs/otel"
	"github.com/md-rashed-zaman/slotkeeper/libs/runtime"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/cache"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/consumer"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/handlers"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/horizon"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/inbox"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/outbox"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/providers"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/scheduling"
	"github.com/md-rashed-zaman/slotkeeper/services/availability-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service, logger := bootstrap()
	port, err := config.Port("PORT", "8087")
	if err != nil {
		panic(err)
	}

	ctx, stop := runtime.SignalContext()
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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.PositiveInt("DB_MAX_CONNS", 10))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("DB_AUTO_MIGRATE", false) {
		if err := storage.Migrate(ctx, pool); err != nil {
			logger.Error("schema migration failed", "err", err)
			panic(err)
		}
		logger.Info("schema migrated")
	}

	reg := metrics.New(strings.ReplaceAll(service, "-", "_"))
	brokers := config.String("KAFKA_BROKERS", "")

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: cache.ReadyCheck(rdb)})
	}

	svcCfg := scheduling.Config{
		HorizonDays:  config.PositiveInt("SLOT_HORIZON_DAYS", scheduling.DefaultHorizonDays),
		MaxRangeDays: config.PositiveInt("SLOT_MAX_RANGE_DAYS", scheduling.DefaultMaxRangeDays),
		Metrics:      scheduling.NewMetrics(reg.Factory, reg.Namespace),
	}
	if rdb != nil {
		ttl := time.Duration(config.PositiveInt("SLOT_CACHE_TTL_SECONDS", 60)) * time.Second
		svcCfg.Cache = cache.NewSlotCache(rdb, ttl, config.String("SLOT_CACHE_PREFIX", "slots"), logger)
	}
	svc := scheduling.NewService(storage.NewStore(pool), logger, svcCfg)

	registry := providers.NewRegistry(storage.NewProviderRepository(pool), logger)
	if brokers != "" {
		providerConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
			Brokers:     brokers,
			GroupID:     config.String("KAFKA_GROUP_ID", service),
			Topic:       config.String("KAFKA_PROVIDER_TOPIC", "business.staff.upserted.v1"),
			MaxAttempts: config.PositiveInt("KAFKA_MAX_ATTEMPTS", 5),
		}, registry.EventHandler())
		go providerConsumer.Run(ctx)
	}

	outboxRepo := outbox.NewRepository()
	factory := reg.Factory
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.PositiveInt("OUTBOX_BATCH_SIZE", 50),
		Factory:   &factory,
		Namespace: reg.Namespace,
	})
	go outboxPublisher.Run(ctx)

	scheduler, err := horizon.New(svc, outbox.NewCleaner(outboxRepo, pool), logger, horizon.Config{
		RefreshSpec:     config.String("HORIZON_REFRESH_CRON", "5 0 * * *"),
		PurgeSpec:       config.String("OUTBOX_PURGE_CRON", "30 3 * * *"),
		OutboxRetention: config.Duration("OUTBOX_RETENTION", 7*24*time.Hour),
	})
	if err != nil {
		logger.Error("horizon scheduler init failed", "err", err)
		panic(err)
	}
	go scheduler.Run(ctx)

	if err := startGrpcServer(ctx, logger, service, readyChecks); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	availabilityHandler := handlers.NewAvailabilityHandler(svc, logger)
	providerHandler := handlers.NewProviderHandler(registry, logger)

	window := time.Minute
	perMinute := config.PositiveInt("RATE_LIMIT_PER_MINUTE", 120)
	publicLimit := httpx.NewRateLimiter(perMinute, window).Middleware()
	if rdb != nil {
		publicLimit = httpx.NewRedisRateLimiter(rdb, perMinute, window, service+":ratelimit").
			Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	}

	requireProvider, requireService := authGuards(logger)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/metrics", reg.Handler())
	mux.Handle("/api/v1/availability", requireProvider(http.HandlerFunc(availabilityHandler.Availability)))
	mux.Handle("/api/v1/availability/regenerate", requireProvider(http.HandlerFunc(availabilityHandler.Regenerate)))
	mux.Handle("/api/v1/public/slots", publicLimit(http.HandlerFunc(availabilityHandler.Slots)))
	mux.Handle("/api/v1/internal/providers", requireService(http.HandlerFunc(providerHandler.Register)))
	mux.Handle("/api/v1/internal/slots/status", requireService(http.HandlerFunc(availabilityHandler.SlotStatus)))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		reg.Middleware(),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", handlers.ProviderHeader, httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(int64(config.PositiveInt("MAX_BODY_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("HTTP_HANDLER_TIMEOUT", 30*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "availability")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.ServeHTTP(ctx, logger, srv, 10*time.Second)
}

// bootstrap loads .env before anything reads the environment, so SERVICE_NAME
// and LOG_LEVEL may come from the file.
func bootstrap(envFiles ...string) (string, *slog.Logger) {
	dotenvErr := config.LoadDotEnv(envFiles...)
	service := config.String("SERVICE_NAME", "availability-service")
	logger := runtime.NewLogger(service)
	if dotenvErr != nil {
		logger.Warn("dotenv load failed", "err", dotenvErr)
	}
	return service, logger
}

// authGuards verifies bearer tokens when a secret or JWKS endpoint is
// configured. Without either the service trusts X-Provider-Id as set by the
// gateway.
func authGuards(logger *slog.Logger) (httpx.Middleware, httpx.Middleware) {
	secret := config.String("AUTH_JWT_SECRET", "")
	jwksURL := config.String("AUTH_JWKS_URL", "")
	if secret == "" && jwksURL == "" {
		logger.Warn("token verification disabled; trusting gateway headers")
		pass := func(next http.Handler) http.Handler { return next }
		return pass, pass
	}

	cfg := auth.VerifierConfig{Secret: secret, Issuer: config.String("AUTH_ISSUER", "")}
	if jwksURL != "" {
		cfg.Keys = auth.NewJWKSClient(jwksURL, config.Duration("AUTH_JWKS_TTL", 5*time.Minute))
	}
	verifier, err := auth.NewVerifier(cfg)
	if err != nil {
		panic(err)
	}
	return auth.RequireProvider(verifier, handlers.ProviderHeader, "owner", "admin"),
		auth.RequireRole(verifier, "service", "admin")
}
