// Package app собирает зависимости процессов из конфигурации.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Aryainguz/tldev-backend/internal/adapters/expo"
	"github.com/Aryainguz/tldev-backend/internal/adapters/generator"
	"github.com/Aryainguz/tldev-backend/internal/adapters/linksearch"
	"github.com/Aryainguz/tldev-backend/internal/adapters/repo"
	"github.com/Aryainguz/tldev-backend/internal/adapters/telegram"
	"github.com/Aryainguz/tldev-backend/internal/adapters/unsplash"
	"github.com/Aryainguz/tldev-backend/internal/domain"
	"github.com/Aryainguz/tldev-backend/internal/infra/cache"
	"github.com/Aryainguz/tldev-backend/internal/infra/config"
	"github.com/Aryainguz/tldev-backend/internal/infra/db"
	"github.com/Aryainguz/tldev-backend/internal/infra/openai"
	"github.com/Aryainguz/tldev-backend/internal/infra/queue"
	"github.com/Aryainguz/tldev-backend/internal/usecase/actions"
	"github.com/Aryainguz/tldev-backend/internal/usecase/dispatch"
	"github.com/Aryainguz/tldev-backend/internal/usecase/feed"
	"github.com/Aryainguz/tldev-backend/internal/usecase/pipeline"
	"github.com/Aryainguz/tldev-backend/internal/usecase/slot"
	"github.com/Aryainguz/tldev-backend/internal/usecase/users"
)

// Store объединяет все репозитории.
type Store interface {
	domain.TipRepo
	domain.UserRepo
	domain.ActionRepo
	domain.JobRepo
	domain.DailyPushRepo
	domain.BusinessMetricRepo
}

// App хранит собранные сервисы процесса.
type App struct {
	Config   config.AppConfig
	Slot     slot.Config
	Store    Store
	Pool     *pgxpool.Pool
	Cache    domain.Cache
	Queue    domain.EnrichQueue
	Consumer queue.Consumer

	Pipeline *pipeline.Service
	Dispatch *dispatch.Service
	Feed     *feed.Service
	Actions  *actions.Service
	Users    *users.Service

	closers []func() error
}

// New собирает приложение. Без PG_DSN используется хранилище в памяти, без REDIS_ADDR
// кэш в памяти, без брокера и Redis генерация не публикует задания в очередь.
func New(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg}
	slotCfg, err := cfg.SlotConfig()
	if err != nil {
		return nil, err
	}
	a.Slot = slotCfg

	if cfg.PGDSN != "" {
		pool, err := db.Connect(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.Pool = pool
		a.Store = repo.NewPostgres(pool)
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
	} else {
		logger.Warn().Msg("app: PG_DSN is empty, using in-memory store")
		a.Store = repo.NewMemory()
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, redisClient.Close)
		a.Cache = cache.NewRedis(redisClient, "tldev:")
	} else {
		a.Cache = cache.NewMemory()
	}

	switch {
	case cfg.RabbitMQURL != "":
		q, err := queue.NewRabbitEnrichQueue(cfg.RabbitMQURL, cfg.Queues.Enrich, logger.With().Str("component", "queue").Logger())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		a.Queue, a.Consumer = q, q
		a.closers = append(a.closers, q.Close)
	case redisClient != nil:
		q := queue.NewRedisEnrichQueue(redisClient, "tldev:queue:"+cfg.Queues.Enrich, logger.With().Str("component", "queue").Logger())
		a.Queue, a.Consumer = q, q
	}

	var alerts domain.Alerter
	alerter, err := telegram.NewAlerter(cfg.Alerts.BotToken, cfg.Alerts.ChatID, cfg.AppEnv, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("app: telegram alerts disabled")
	} else if alerter != nil {
		alerts = alerter
	}

	openaiClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
	a.Pipeline = pipeline.NewService(pipeline.Deps{
		Tips:      a.Store,
		Jobs:      a.Store,
		Generator: generator.NewOpenAI(openaiClient, cfg.OpenAI.Model),
		Images:    unsplash.NewClient(cfg.Unsplash.AccessKey, cfg.Unsplash.BaseURL, logger),
		Links:     linksearch.NewClient(cfg.Search.APIKey, cfg.Search.EngineID, cfg.Search.BaseURL),
		Queue:     a.Queue,
		Alerts:    alerts,
		Events:    a.Store,
	}, pipeline.Config{
		BatchSize:       cfg.Generation.BatchSize,
		Category:        cfg.Generation.Category,
		ExcludeRecent:   cfg.Generation.ExcludeRecent,
		GenerateTimeout: cfg.OpenAI.Timeout,
		EnrichLimit:     cfg.Enrichment.BatchLimit,
		GroupSize:       cfg.Enrichment.GroupSize,
		GroupPause:      cfg.Enrichment.GroupPause,
	}, logger)

	a.Dispatch = dispatch.NewService(dispatch.Deps{
		Tips:   a.Store,
		Users:  a.Store,
		Ledger: a.Store,
		Sender: expo.NewClient(cfg.Expo.AccessToken, cfg.Expo.BaseURL, cfg.Expo.ChunkSize),
		Alerts: alerts,
		Events: a.Store,
	}, dispatch.Config{Slot: slotCfg, StaleAfter: cfg.Push.StaleAfter}, logger)

	a.Feed = feed.NewService(a.Store, a.Store, a.Cache, feed.Config{PageSize: cfg.Feed.PageSize, CacheTTL: cfg.Feed.CacheTTL}, logger)
	a.Actions = actions.NewService(a.Store, a.Store, a.Store, logger)
	a.Users = users.NewService(a.Store, a.Store, logger)
	return a, nil
}

// Migrate применяет миграции, если подключён Postgres.
func (a *App) Migrate(logger zerolog.Logger) error {
	if a.Pool == nil {
		return nil
	}
	return db.Migrate(a.Pool, logger)
}

// Close освобождает подключения в обратном порядке.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
