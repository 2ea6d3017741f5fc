package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mentorscore/session-api/internal/cache"
	"github.com/mentorscore/session-api/internal/config"
	"github.com/mentorscore/session-api/internal/database"
	"github.com/mentorscore/session-api/internal/gapfill"
	"github.com/mentorscore/session-api/internal/llm"
	"github.com/mentorscore/session-api/internal/observability"
	"github.com/mentorscore/session-api/internal/projection"
	"github.com/mentorscore/session-api/internal/redis"
	"github.com/mentorscore/session-api/internal/repository"
	"github.com/mentorscore/session-api/internal/service"
	"github.com/mentorscore/session-api/internal/sse"
)

// withServices connects to the stores named by the environment and runs fn
// with a session service wired like the server's.
func withServices(ctx context.Context, fn func(svc *service.SessionService) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	observability.InitMetrics()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, config.DBPingTimeout)
	defer cancel()
	if err := db.EnsureSchema(pingCtx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	var generator gapfill.Generator = llm.Disabled{}
	gemini, err := llm.NewGemini(ctx, llm.Config{
		APIKey:            cfg.GeminiAPIKey,
		Model:             cfg.GeminiModel,
		Timeout:           cfg.GeneratorTimeout(),
		RequestsPerMinute: cfg.GeneratorRequestsPerMin,
		Temperature:       cfg.GeneratorTemperature,
	})
	if err != nil {
		log.Warn().Err(err).Msg("generator disabled, gaps are kept")
	} else {
		generator = gemini
	}

	filler := gapfill.NewFiller(generator)
	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	svc := service.NewSessionService(
		repository.NewSessionRepository(db.DB),
		filler,
		projection.NewProjector(filler, cfg.HealOnRead),
		cache.NewViewCache(redisClient, cfg.ViewCacheTTL()),
		broker,
	)
	svc.SetFillBudget(cfg.GapFillBudget())
	return fn(svc)
}

// withAuth runs fn with an account service backed by the configured database.
func withAuth(ctx context.Context, fn func(svc *service.AuthService) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, config.DBPingTimeout)
	defer cancel()
	if err := db.EnsureSchema(pingCtx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	return fn(service.NewAuthService(repository.NewUserRepository(db.DB)))
}
