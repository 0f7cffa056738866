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

	"github.com/campushub/notify/internal/api"
	"github.com/campushub/notify/internal/circuitbreaker"
	"github.com/campushub/notify/internal/config"
	"github.com/campushub/notify/internal/db"
	"github.com/campushub/notify/internal/dispatch"
	"github.com/campushub/notify/internal/metrics"
	"github.com/campushub/notify/internal/observ"
	"github.com/campushub/notify/internal/redis"
	"github.com/campushub/notify/internal/sender"
	"github.com/campushub/notify/internal/template"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting notifyd",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("email_provider", cfg.EmailProvider),
	)

	ctx := context.Background()

	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	repo := db.NewNotificationRepository(database, logger)
	templates := db.NewTemplateStore(database, logger)
	directory := db.NewRecipientDirectory(database, logger)

	// Redis backs idempotency and rate limiting; the service runs without it.
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, idempotency and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var idempotencyService *redis.IdempotencyService
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		idempotencyService = redis.NewIdempotencyService(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.RateLimitPerMinute,
			Window: 1 * time.Minute,
		})
		defer redisClient.Close()
	}

	// Email transport: SMTP relay by default, SES when configured.
	var emailTransport sender.EmailTransport
	switch cfg.EmailProvider {
	case "ses":
		emailTransport, err = sender.NewSESTransport(ctx, sender.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create SES transport: %w", err)
		}
	default:
		emailTransport = sender.NewSMTPTransport(sender.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
			UseTLS:   cfg.SMTPUseTLS,
			Timeout:  cfg.SMTPTimeout,
		}, logger)
	}

	emailSender := sender.NewEmailSender(directory, emailTransport, logger)
	pushSender := sender.NewPushSender(directory, sender.PushConfig{
		Subject:         cfg.PushSubject,
		VAPIDPublicKey:  cfg.PushVAPIDPublicKey,
		VAPIDPrivateKey: cfg.PushVAPIDPrivateKey,
		TTL:             cfg.PushTTL,
		Timeout:         cfg.PushTimeout,
	}, logger)
	inAppSender := sender.NewInAppSender(logger)

	// The network transports sit behind circuit breakers; in-app delivery is
	// local and needs none.
	protectedEmail := circuitbreaker.NewProtectedSender(emailSender,
		circuitbreaker.New(circuitbreaker.DefaultConfig(cfg.EmailProvider), logger), logger)
	protectedPush := circuitbreaker.NewProtectedSender(pushSender,
		circuitbreaker.New(circuitbreaker.DefaultConfig("webpush"), logger), logger)

	retrier := dispatch.NewRetrier(dispatch.RetryConfig{
		MaxAttempts:    cfg.RetryMaxAttempts,
		AttemptTimeout: cfg.RetryAttemptTimeout,
		BaseDelay:      cfg.RetryBaseDelay,
	}, logger)

	engine := template.NewEngine(logger)
	events := dispatch.NewLogEventSink(logger)

	dispatcher := dispatch.New(repo, templates, engine, retrier, events, logger,
		protectedEmail, protectedPush, inAppSender)

	logger.Info("delivery engine initialized",
		zap.String("email_provider", cfg.EmailProvider),
		zap.Int("retry_max_attempts", cfg.RetryMaxAttempts),
	)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

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

	var handler *api.Handler
	if idempotencyService != nil {
		handler = api.NewHandlerWithIdempotency(logger, dispatcher, repo, idempotencyService)
	} else {
		handler = api.NewHandler(logger, dispatcher, repo)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.RecipientKeyFunc))

		r.Post("/notifications", handler.CreateNotification)
		r.Get("/notifications", handler.ListNotifications)
		r.Get("/notifications/unread-count", handler.UnreadCount)
		r.Post("/notifications/read-all", handler.MarkAllRead)
		r.Get("/notifications/{id}", handler.GetNotification)
		r.Post("/notifications/{id}/read", handler.MarkRead)
		r.Post("/notifications/{id}/dismiss", handler.Dismiss)
		r.Post("/notifications/{id}/retry", handler.Retry)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unreachable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

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
