package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lalithlochan/aquamon/internal/alert"
	"github.com/lalithlochan/aquamon/internal/api"
	"github.com/lalithlochan/aquamon/internal/circuitbreaker"
	"github.com/lalithlochan/aquamon/internal/config"
	"github.com/lalithlochan/aquamon/internal/db"
	"github.com/lalithlochan/aquamon/internal/metrics"
	"github.com/lalithlochan/aquamon/internal/observ"
	"github.com/lalithlochan/aquamon/internal/push"
	"github.com/lalithlochan/aquamon/internal/recipients"
	"github.com/lalithlochan/aquamon/internal/redis"
	"github.com/lalithlochan/aquamon/internal/store"
	"github.com/lalithlochan/aquamon/internal/threshold"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting aquamon gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("push_provider", cfg.PushProvider),
	)

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	directory := db.NewDirectory(database, logger)

	// Notification records live in Postgres unless explicitly kept in memory
	var repo store.Repository = db.NewRepository(database, logger)
	if cfg.UseMemoryStore {
		logger.Warn("notification store is in memory, records are lost on restart")
		repo = store.NewMemoryRepository()
	}
	notifications := store.New(repo, directory, logger)

	// Redis backs idempotency, rate limiting and alert cooldowns
	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient, err := redis.New(ctx, redisConfig, logger)
	if err != nil {
		logger.Warn("redis unavailable, idempotency, rate limiting and cooldowns disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var idempotencyService *redis.IdempotencyService
	var rateLimiter *redis.RateLimiter
	var cooldown alert.Cooldown
	if redisClient != nil {
		idempotencyService = redis.NewIdempotencyService(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.RateLimitPerMinute,
			Window: time.Minute,
		})
		if cfg.AlertCooldown > 0 {
			cooldown = redis.NewAlertCooldown(redisClient, logger, cfg.AlertCooldown)
		}
		defer redisClient.Close()
	}

	// Push transport. Init failures leave the client in mock mode.
	pushClient := push.NewClient(push.Config{
		Provider:          cfg.PushProvider,
		CredentialsFile:   cfg.FirebaseCredentialsFile,
		CredentialsJSON:   cfg.FirebaseCredentialsJSON,
		ProjectID:         cfg.FirebaseProjectID,
		SNSRegion:         cfg.SNSRegion,
		SNSTopicARNPrefix: cfg.SNSTopicARNPrefix,
	}, logger)
	if err := pushClient.Init(ctx); err != nil {
		logger.Warn("push transport init failed", zap.Error(err))
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:                "push",
		MaxFailures:         cfg.BreakerMaxFailures,
		RecoveryTimeout:     cfg.BreakerRecoveryTimeout,
		HalfOpenMaxRequests: 1,
	}, logger)
	metrics.SetBreakerState(breaker.Name(), int(breaker.GetState()))
	sender := circuitbreaker.NewProtectedSender(pushClient, breaker, logger)

	logger.Info("push transport ready",
		zap.String("provider", pushClient.Provider()),
		zap.Bool("mock_mode", pushClient.IsMockMode()),
	)

	// Alert pipeline
	deps := alert.Deps{
		Modules:     directory,
		Resolver:    recipients.NewResolver(directory, logger),
		Store:       notifications,
		Sender:      sender,
		Cooldown:    cooldown,
		Concurrency: cfg.DispatchConcurrency,
	}
	sensorAlerts := alert.NewSensorAlertHandler(deps, logger)
	powerAlerts := alert.NewPowerAlertHandler(deps, logger)
	ingestor := alert.NewIngestor(directory, threshold.NewEvaluator(directory, logger), sensorAlerts, logger)

	statsCtx, statsCancel := context.WithCancel(context.Background())
	defer statsCancel()
	go reportPoolStats(statsCtx, database, redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	handler := api.NewHandler(logger, api.Deps{
		Ingestor:      ingestor,
		Power:         powerAlerts,
		Notifications: notifications,
		Directory:     directory,
		Sender:        sender,
		Push:          pushClient,
		Breaker:       breaker,
		Idempotency:   idempotencyService,
		Health:        database.Health,
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.UserOrIPKeyFunc))

		// Device ingestion
		r.Post("/measurements", handler.IngestMeasurement)
		r.Post("/modules/{id}/power-events", handler.ReportPowerEvent)

		// Notifications
		r.Post("/notifications", handler.SendNotification)
		r.Get("/notifications", handler.ListNotifications)
		r.Get("/notifications/unread-count", handler.UnreadCount)
		r.Patch("/notifications/{id}/read", handler.MarkAsRead)
		r.Put("/notifications/{id}/read", handler.MarkAsRead)

		r.Put("/sensors/{id}/thresholds", handler.ReplaceThresholds)
		r.Get("/push/status", handler.PushStatus)
	})

	// Health check
	r.Get("/health", handler.Health)

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// In-flight dispatches get 10 seconds to finish
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}

// reportPoolStats publishes connection pool sizes until ctx is done
func reportPoolStats(ctx context.Context, database *db.DB, redisClient *redis.Client) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		metrics.SetDBConnections(database.TotalConns())
		if redisClient != nil {
			metrics.SetRedisConnections(redisClient.TotalConns())
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
