// Package dispatch рассылает совет слота всем получателям ровно один раз на (дату, слот).
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aryainguz/tldev-backend/internal/domain"
	"github.com/Aryainguz/tldev-backend/internal/infra/metrics"
	"github.com/Aryainguz/tldev-backend/internal/usecase/slot"
)

const stageDispatch = "dispatch"

// Стадии, на которых рассылка может упасть.
const (
	FailStageCandidates = "candidates"
	FailStageRecipients = "recipients"
	FailStageLedger     = "ledger"
)

// Config задаёт окно рассылки и срок, после которого попытка sending считается брошенной.
type Config struct {
	Slot       slot.Config
	StaleAfter time.Duration
}

// Deps описывает внешние зависимости рассылки. Alerts и Events необязательны.
type Deps struct {
	Tips   domain.TipRepo
	Users  domain.UserRepo
	Ledger domain.DailyPushRepo
	Sender domain.PushSender
	Alerts domain.Alerter
	Events domain.BusinessMetricRepo
}

// Service выполняет рассылку по слотам.
type Service struct {
	deps   Deps
	cfg    Config
	format Formatter
	log    zerolog.Logger
	now    func() time.Time
}

// NewService создаёт сервис рассылки.
func NewService(deps Deps, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		deps:   deps,
		cfg:    cfg,
		format: NewFormatter(),
		log:    logger.With().Str("component", "dispatch").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock подменяет часы.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// WithFormatter подменяет форматтер уведомлений.
func (s *Service) WithFormatter(f Formatter) *Service {
	s.format = f
	return s
}

// RunDispatchNow вычисляет слот по текущему времени и запускает рассылку.
// Вне окна возвращает пропуск out_of_window.
func (s *Service) RunDispatchNow(ctx context.Context) domain.DispatchResult {
	now := s.now()
	resolved, err := slot.Resolve(now, s.cfg.Slot)
	if err != nil {
		res := domain.DispatchResult{RunInfo: domain.StartRun(now)}
		if errors.Is(err, slot.ErrOutOfWindow) {
			s.log.Debug().Time("now", now).Msg("dispatch: instant is out of window")
			s.finish(&res, domain.RunStatusSkipped, domain.SkipOutOfWindow, nil)
			return res
		}
		s.finish(&res, domain.RunStatusFailed, "", err)
		return res
	}
	return s.RunDispatchForSlot(ctx, resolved.Date, resolved.Slot)
}

// RunDispatchForSlot рассылает совет для (date, slot). Повторный вызов после успешной
// рассылки ничего не отправляет и возвращает пропуск с прежней сводкой.
func (s *Service) RunDispatchForSlot(ctx context.Context, date string, slotIdx int) domain.DispatchResult {
	res := domain.DispatchResult{RunInfo: domain.StartRun(s.now()), Date: date, Slot: slotIdx}
	logger := s.log.With().Str("date", date).Int("slot", slotIdx).Logger()

	if err := slot.ParseDate(date); err != nil {
		s.finish(&res, domain.RunStatusFailed, "", err)
		return res
	}
	if slotIdx < 0 || (s.cfg.Slot.SlotCount > 0 && slotIdx >= s.cfg.Slot.SlotCount) {
		s.finish(&res, domain.RunStatusFailed, "", fmt.Errorf("slot %d is out of range", slotIdx))
		return res
	}

	existing, err := s.deps.Ledger.GetDailyPush(ctx, date, slotIdx)
	switch {
	case err == nil:
		if skipped, reason := s.shortCircuit(existing); skipped {
			res.TipID = existing.TipID
			res.CandidateCount = existing.CandidateCount
			res.SentCount = existing.SentCount
			res.ErrorCount = existing.ErrorCount
			res.Previous = existing.Summary
			logger.Info().Str("reason", reason).Msg("dispatch: slot skipped")
			s.finish(&res, domain.RunStatusSkipped, reason, nil)
			return res
		}
	case errors.Is(err, domain.ErrDailyPushNotFound):
	default:
		logger.Error().Err(err).Msg("dispatch: read ledger failed")
		s.finish(&res, domain.RunStatusFailed, "", fmt.Errorf("read ledger: %w", err))
		return res
	}

	candidates, err := s.deps.Tips.ListPushCandidates(ctx)
	if err != nil {
		err = fmt.Errorf("list candidates: %w", err)
		logger.Error().Err(err).Msg("dispatch: candidates unavailable")
		if row, acquired, aerr := s.acquire(ctx, date, slotIdx, "", 0); aerr == nil && acquired {
			s.fail(ctx, &res, row.Attempts, FailStageCandidates, err)
			return res
		}
		s.finish(&res, domain.RunStatusFailed, "", err)
		return res
	}
	res.CandidateCount = len(candidates)

	tip, _, err := slot.Select(slot.Seed(date, slotIdx), candidates)
	if errors.Is(err, slot.ErrEmptyCandidateSet) {
		logger.Info().Msg("dispatch: no published tips to send")
		s.finish(&res, domain.RunStatusSkipped, domain.SkipEmptyCandidates, nil)
		return res
	}
	if err != nil {
		s.finish(&res, domain.RunStatusFailed, "", err)
		return res
	}
	res.TipID = tip.ID
	logger = logger.With().Str("tip_id", tip.ID).Logger()

	row, acquired, err := s.acquire(ctx, date, slotIdx, tip.ID, len(candidates))
	if err != nil {
		logger.Error().Err(err).Msg("dispatch: acquire ledger failed")
		s.finish(&res, domain.RunStatusFailed, "", fmt.Errorf("acquire ledger: %w", err))
		return res
	}
	if !acquired {
		_, reason := s.shortCircuit(row)
		if reason == "" {
			reason = domain.SkipInFlight
		}
		res.Previous = row.Summary
		logger.Info().Str("reason", reason).Msg("dispatch: slot taken by another attempt")
		s.finish(&res, domain.RunStatusSkipped, reason, nil)
		return res
	}

	recipients, err := s.deps.Users.ListPushRecipients(ctx)
	if err != nil {
		err = fmt.Errorf("list recipients: %w", err)
		logger.Error().Err(err).Msg("dispatch: recipients unavailable")
		s.fail(ctx, &res, row.Attempts, FailStageRecipients, err)
		return res
	}

	title := s.format.Title(tip)
	out := s.send(ctx, tip, title, recipients)
	summary := domain.NewPushSuccess(domain.PushSuccess{
		TipID:          tip.ID,
		Headline:       tip.Headline,
		Title:          title,
		Recipients:     len(recipients),
		InvalidTokens:  out.invalid,
		Sent:           out.sent,
		Errors:         len(out.errors),
		ErrorSample:    out.errors,
		DurationMS:     s.now().Sub(res.StartedAt).Milliseconds(),
		CandidateCount: len(candidates),
	})
	res.SentCount = out.sent
	res.ErrorCount = len(out.errors)

	if err := s.deps.Ledger.CompleteDailyPush(ctx, date, slotIdx, row.Attempts, out.sent, len(out.errors), summary, s.now()); err != nil {
		if errors.Is(err, domain.ErrPushLeaseLost) {
			logger.Warn().Int("attempt", row.Attempts).Int("sent", out.sent).Msg("dispatch: slot taken over while sending")
		} else {
			logger.Error().Err(err).Msg("dispatch: complete ledger failed")
		}
		s.finish(&res, domain.RunStatusFailed, "", fmt.Errorf("complete ledger: %w", err))
		return res
	}
	metrics.AddPushTickets(out.sent, len(out.errors))
	s.record(ctx, domain.BusinessMetric{
		Event: domain.BusinessMetricEventPushDelivered,
		TipID: &tip.ID,
		Metadata: map[string]any{
			"date": date, "slot": slotIdx, "sent": out.sent, "errors": len(out.errors), "recipients": len(recipients),
		},
	})
	logger.Info().Int("recipients", len(recipients)).Int("sent", out.sent).Int("errors", len(out.errors)).
		Msg("dispatch: slot completed")
	s.finish(&res, domain.RunStatusSuccess, "", nil)
	return res
}

// shortCircuit решает, можно ли пропустить слот по существующей записи журнала.
func (s *Service) shortCircuit(row domain.DailyPush) (bool, string) {
	switch row.Status {
	case domain.PushStatusCompleted:
		return true, domain.SkipAlreadyCompleted
	case domain.PushStatusSending:
		if s.cfg.StaleAfter > 0 && row.StartedAt.Before(s.now().Add(-s.cfg.StaleAfter)) {
			return false, ""
		}
		return true, domain.SkipInFlight
	}
	return false, ""
}

func (s *Service) acquire(ctx context.Context, date string, slotIdx int, tipID string, candidates int) (domain.DailyPush, bool, error) {
	return s.deps.Ledger.AcquireDailyPush(ctx, domain.AcquirePushParams{
		Date:           date,
		Slot:           slotIdx,
		TipID:          tipID,
		CandidateCount: candidates,
		Now:            s.now(),
		StaleAfter:     s.cfg.StaleAfter,
	})
}

// fail переводит занятый слот в failed и оповещает операторов.
func (s *Service) fail(ctx context.Context, res *domain.DispatchResult, attempt int, stage string, cause error) {
	summary := domain.NewPushFailure(stage, cause, s.now().Sub(res.StartedAt))
	if err := s.deps.Ledger.FailDailyPush(ctx, res.Date, res.Slot, attempt, summary, s.now()); err != nil {
		s.log.Error().Err(err).Str("date", res.Date).Int("slot", res.Slot).Msg("dispatch: fail ledger write failed")
	}
	s.alert(ctx, fmt.Sprintf("dispatch %s slot %d failed at %s: %v", res.Date, res.Slot, stage, cause))
	s.finish(res, domain.RunStatusFailed, "", cause)
}

func (s *Service) finish(res *domain.DispatchResult, status domain.RunStatus, reason string, err error) {
	res.Finish(status, reason, err, s.now())
	metrics.ObserveStage(stageDispatch, string(status), time.Duration(res.DurationMS)*time.Millisecond)
}

func (s *Service) alert(ctx context.Context, text string) {
	if s.deps.Alerts == nil {
		return
	}
	if err := s.deps.Alerts.Alert(ctx, text); err != nil {
		s.log.Warn().Err(err).Msg("dispatch: alert failed")
	}
}

func (s *Service) record(ctx context.Context, metric domain.BusinessMetric) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.RecordBusinessMetric(ctx, metric); err != nil {
		s.log.Warn().Err(err).Str("event", metric.Event).Msg("dispatch: record business metric failed")
	}
}
