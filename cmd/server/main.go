package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mentorscore/session-api/internal/cache"
	"github.com/mentorscore/session-api/internal/config"
	"github.com/mentorscore/session-api/internal/database"
	"github.com/mentorscore/session-api/internal/gapfill"
	"github.com/mentorscore/session-api/internal/handler"
	"github.com/mentorscore/session-api/internal/jobs"
	"github.com/mentorscore/session-api/internal/llm"
	"github.com/mentorscore/session-api/internal/middleware"
	"github.com/mentorscore/session-api/internal/observability"
	"github.com/mentorscore/session-api/internal/projection"
	"github.com/mentorscore/session-api/internal/redis"
	"github.com/mentorscore/session-api/internal/repository"
	"github.com/mentorscore/session-api/internal/service"
	"github.com/mentorscore/session-api/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("APP_ENV") == "production"
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	observability.InitMetrics()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure database schema")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	generator := newGenerator(cfg)

	sessionRepo := repository.NewSessionRepository(db.DB)
	userRepo := repository.NewUserRepository(db.DB)
	mentorDirectory, err := repository.LoadMentorDirectory(cfg.MentorDirectoryPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load mentor directory")
	}

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	filler := gapfill.NewFiller(generator)
	projector := projection.NewProjector(filler, cfg.HealOnRead)
	viewCache := cache.NewViewCache(redisClient, cfg.ViewCacheTTL())

	sessionService := service.NewSessionService(sessionRepo, filler, projector, viewCache, broker)
	sessionService.SetFillBudget(cfg.GapFillBudget())
	mentorService := service.NewMentorService(mentorDirectory, sessionRepo)
	authService := service.NewAuthService(userRepo)
	rateLimiter := service.NewRateLimiter(redisClient.Client)

	ingestAuthMiddleware := middleware.NewIngestAuthMiddleware(cfg.IngestTokenHash)
	ingestRateLimitMiddleware := middleware.NewIPRateLimitMiddleware(
		rateLimiter, cfg.IngestRateLimitPerMin, config.IngestRateLimitWindow, "ingest",
	)
	publicRateLimitMiddleware := middleware.NewPublicRateLimitMiddleware(cfg.PublicRateLimitPerMin)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(cfg.MaxBodyBytes)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)
	loginLimiter := middleware.NewLoginRateLimiter()

	ingest := func(next http.Handler) http.Handler {
		return ingestRateLimitMiddleware.Handler(ingestAuthMiddleware.Handler(next))
	}

	eventsHandler := handler.NewEventsHandler(broker)
	sessionHandler := handler.NewSessionHandler(sessionService)
	mentorHandler := handler.NewMentorHandler(sessionService, mentorService, ingest)
	publicHandler := handler.NewPublicHandler(mentorService)
	authHandler := handler.NewAuthHandler(authService, loginLimiter.Handler)
	healthHandler := handler.NewHealthHandler(map[string]handler.Pinger{
		"database": db,
		"redis": handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
	})

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(bodyLimitMiddleware.Handler)
	r.Use(securityHeadersMiddleware.Handler)

	r.Handle("/metrics", observability.MetricsHandler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.ServeHTTP)

		r.Get("/mentor/{mentorId}/events", eventsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

			r.Route("/sessions", func(r chi.Router) {
				r.Use(ingest)
				r.Mount("/", sessionHandler.Routes())
			})

			r.Mount("/mentor", mentorHandler.Routes())
			r.Get("/users/{userId}/sessions", sessionHandler.ListByUser)

			r.Route("/public", func(r chi.Router) {
				r.Use(publicRateLimitMiddleware.Handler)
				r.Mount("/", publicHandler.Routes())
			})
			r.Route("/mentors", func(r chi.Router) {
				r.Use(publicRateLimitMiddleware.Handler)
				r.Mount("/", publicHandler.MentorsRoutes())
			})

			r.Mount("/auth", authHandler.Routes())
		})
	})

	if interval := cfg.BackfillInterval(); interval > 0 {
		backfillJob := jobs.NewBackfillJob(sessionService, cfg.BackfillBatchSize, interval)
		backfillJob.Start()
		defer backfillJob.Stop()
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

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// newGenerator falls back to llm.Disabled so that a missing key degrades
// gap filling instead of failing startup.
func newGenerator(cfg *config.Config) gapfill.Generator {
	gemini, err := llm.NewGemini(context.Background(), llm.Config{
		APIKey:            cfg.GeminiAPIKey,
		Model:             cfg.GeminiModel,
		Timeout:           cfg.GeneratorTimeout(),
		RequestsPerMinute: cfg.GeneratorRequestsPerMin,
		Temperature:       cfg.GeneratorTemperature,
	})
	if err != nil {
		log.Warn().Err(err).Msg("generator disabled")
		return llm.Disabled{}
	}
	log.Info().Str("model", cfg.GeminiModel).Msg("generator configured")
	return gemini
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
