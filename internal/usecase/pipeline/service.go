// Package pipeline ведёт совет по стадиям: генерация черновиков, обогащение и публикация.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aryainguz/tldev-backend/internal/domain"
	"github.com/Aryainguz/tldev-backend/internal/infra/metrics"
)

const (
	stageGenerate = "generate"
	stageEnrich   = "enrich"

	maxBatchSize = 20
)

// Config задаёт параметры стадий.
type Config struct {
	BatchSize     int
	Category      string
	ExcludeRecent int
	// GenerateTimeout ограничивает вызов модели. Истечение считается сбоем стадии.
	GenerateTimeout time.Duration
	EnrichLimit     int
	GroupSize       int
	GroupPause      time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = 45 * time.Second
	}
	if c.EnrichLimit <= 0 {
		c.EnrichLimit = 10
	}
	if c.GroupSize <= 0 {
		c.GroupSize = 3
	}
	if c.GroupPause < 0 {
		c.GroupPause = 0
	}
	return c
}

// Deps описывает внешние зависимости стадий. Queue, Alerts и Events необязательны.
type Deps struct {
	Tips      domain.TipRepo
	Jobs      domain.JobRepo
	Generator domain.TipGenerator
	Images    domain.ImageFinder
	Links     domain.LinkFinder
	Queue     domain.EnrichQueue
	Alerts    domain.Alerter
	Events    domain.BusinessMetricRepo
}

// Service реализует стадии конвейера контента.
type Service struct {
	deps  Deps
	cfg   Config
	log   zerolog.Logger
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService создаёт сервис конвейера.
func NewService(deps Deps, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		deps:  deps,
		cfg:   cfg.withDefaults(),
		log:   logger.With().Str("component", "pipeline").Logger(),
		now:   func() time.Time { return time.Now().UTC() },
		sleep: sleepCtx,
	}
}

// WithClock подменяет часы и паузы, используется в тестах.
func (s *Service) WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *Service {
	if now != nil {
		s.now = now
	}
	if sleep != nil {
		s.sleep = sleep
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Service) finish(stage string, info *domain.RunInfo, status domain.RunStatus, reason string, err error) {
	info.Finish(status, reason, err, s.now())
	metrics.ObserveStage(stage, string(status), time.Duration(info.DurationMS)*time.Millisecond)
}

func (s *Service) alert(ctx context.Context, text string) {
	if s.deps.Alerts == nil {
		return
	}
	if err := s.deps.Alerts.Alert(ctx, text); err != nil {
		s.log.Warn().Err(err).Msg("pipeline: alert failed")
	}
}

func (s *Service) record(ctx context.Context, metric domain.BusinessMetric) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.RecordBusinessMetric(ctx, metric); err != nil {
		s.log.Warn().Err(err).Str("event", metric.Event).Msg("pipeline: record business metric failed")
	}
}
