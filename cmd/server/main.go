package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/trmquang93/planning-poker-sub001/internal/config"
	"github.com/trmquang93/planning-poker-sub001/internal/database"
	"github.com/trmquang93/planning-poker-sub001/internal/handler"
	"github.com/trmquang93/planning-poker-sub001/internal/jobs"
	"github.com/trmquang93/planning-poker-sub001/internal/middleware"
	"github.com/trmquang93/planning-poker-sub001/internal/redis"
	"github.com/trmquang93/planning-poker-sub001/internal/repository"
	"github.com/trmquang93/planning-poker-sub001/internal/service"
	"github.com/trmquang93/planning-poker-sub001/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := cfg.IsProduction()
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	healthChecks := map[string]handler.Pinger{"database": nil, "redis": nil}

	var db *database.DB
	if cfg.DatabaseURL != "" {
		db, err = database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		if err := db.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to prepare database schema")
		}
		cancel()
		healthChecks["database"] = db
		log.Info().Msg("database connected")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		healthChecks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
		log.Info().Msg("redis connected")
	}

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	registry := service.NewRegistry(service.RegistryConfig{
		SessionTTL:       cfg.SessionTTL(),
		EnforceVoteScale: cfg.EnforceVoteScale,
	}, broker)

	var (
		snapshots   *service.SnapshotService
		snapshotJob *jobs.SnapshotJob
		expiredSnap jobs.ExpiredDeleter
	)
	if db != nil {
		snapshots = service.NewSnapshotService(db, repository.NewSnapshotRepository(db.DB))
		expiredSnap = snapshots

		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		if _, err := snapshots.RestoreInto(ctx, registry); err != nil {
			log.Error().Err(err).Msg("failed to restore sessions from snapshot")
		}
		cancel()
	}

	var limiter middleware.Limiter = middleware.NewMemoryLimiter()
	if redisClient != nil {
		limiter = middleware.NewRedisLimiter(redisClient)
	}
	entryLimit := middleware.NewIPRateLimitMiddleware(limiter, cfg.RateLimitPerMin, time.Minute, "entry")
	adminKey := middleware.NewAdminKeyMiddleware(cfg.AdminKeyHash)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	sessionHandler := handler.NewSessionHandler(registry, handler.SessionRoutesOptions{
		EntryLimit:     entryLimit.Handler,
		RequestTimeout: config.ServerRequestTimeout,
		Events:         handler.NewEventsHandler(broker, registry),
		WebSocket:      handler.NewWSHandler(broker, registry),
	})
	adminHandler := handler.NewAdminHandler(registry, broker, adminKey.Handler)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Method(http.MethodGet, "/health", handler.NewHealthHandler(healthChecks))

	r.Mount("/api/sessions", sessionHandler.Routes())

	r.Route("/admin", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Mount("/", adminHandler.Routes())
	})

	cleanupJob := jobs.NewCleanupJob(registry, expiredSnap, cfg.SweepInterval())
	cleanupJob.Start()
	defer cleanupJob.Stop()

	if snapshots != nil {
		snapshotJob = jobs.NewSnapshotJob(registry, snapshots, cfg.SnapshotInterval())
		snapshotJob.Start()
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	// Streams only end when their clients go, so close them before draining.
	broker.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	cleanupJob.Stop()
	if snapshotJob != nil {
		snapshotJob.Stop()
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
