package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aryainguz/tldev-backend/internal/domain"
	"github.com/Aryainguz/tldev-backend/internal/usecase/pipeline"
)

// Scheduler запускает стадии по таймеру для окружений без внешнего cron.
// Рассылка вызывается на каждом тике: повторы внутри слота отсекает журнал.
type Scheduler struct {
	app           *App
	tick          time.Duration
	generateEvery time.Duration
	enrichEvery   time.Duration
	log           zerolog.Logger
	now           func() time.Time

	lastGenerate time.Time
	lastEnrich   time.Time
}

// NewScheduler создаёт планировщик. Нулевой интервал отключает стадию.
func NewScheduler(a *App, tick, generateEvery, enrichEvery time.Duration, logger zerolog.Logger) *Scheduler {
	if tick <= 0 {
		tick = time.Minute
	}
	return &Scheduler{
		app:           a,
		tick:          tick,
		generateEvery: generateEvery,
		enrichEvery:   enrichEvery,
		log:           logger.With().Str("component", "scheduler").Logger(),
		now:           time.Now,
	}
}

// Run выполняет тики до отмены контекста.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick выполняет один проход: генерация и обогащение по интервалам, затем рассылка.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()
	if due(s.lastGenerate, s.generateEvery, now) {
		s.lastGenerate = now
		res := s.app.Pipeline.RunGeneration(ctx, 0)
		s.logRun("generate", res.RunInfo)
	}
	if due(s.lastEnrich, s.enrichEvery, now) {
		s.lastEnrich = now
		res := s.app.Pipeline.RunEnrichment(ctx, pipeline.EnrichRequest{})
		s.logRun("enrich", res.RunInfo)
	}
	res := s.app.Dispatch.RunDispatchNow(ctx)
	s.logRun("dispatch", res.RunInfo)
}

func due(last time.Time, every time.Duration, now time.Time) bool {
	if every <= 0 {
		return false
	}
	return last.IsZero() || !now.Before(last.Add(every))
}

func (s *Scheduler) logRun(stage string, info domain.RunInfo) {
	ev := s.log.Debug()
	if info.Status == domain.RunStatusFailed {
		ev = s.log.Error()
	}
	ev.Str("stage", stage).Str("status", string(info.Status)).Str("reason", info.Reason).Str("error", info.Error).
		Int64("duration_ms", info.DurationMS).Msg("scheduler: stage finished")
}
