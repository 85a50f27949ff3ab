package pipeline

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Aryainguz/tldev-backend/internal/domain"
	"github.com/Aryainguz/tldev-backend/internal/infra/metrics"
)

// EnrichRequest выбирает режим обогащения: один совет по TipID или пакет черновиков до Limit.
type EnrichRequest struct {
	TipID string
	Limit int
}

// RunEnrichment выполняет обогащение одного совета или пакета черновиков.
func (s *Service) RunEnrichment(ctx context.Context, req EnrichRequest) domain.EnrichmentResult {
	if req.TipID != "" {
		return s.runSingle(ctx, req.TipID)
	}
	return s.runBatch(ctx, req.Limit)
}

func (s *Service) runSingle(ctx context.Context, tipID string) domain.EnrichmentResult {
	res := domain.EnrichmentResult{RunInfo: domain.StartRun(s.now())}
	item := s.EnrichTip(ctx, tipID)
	res.Add(item)
	switch item.Status {
	case domain.RunStatusSkipped:
		s.finish(stageEnrich, &res.RunInfo, domain.RunStatusSkipped, item.Reason, nil)
	case domain.RunStatusFailed:
		s.finish(stageEnrich, &res.RunInfo, domain.RunStatusFailed, "", errors.New(item.Error))
	default:
		s.finish(stageEnrich, &res.RunInfo, domain.RunStatusSuccess, "", nil)
	}
	return res
}

func (s *Service) runBatch(ctx context.Context, limit int) domain.EnrichmentResult {
	res := domain.EnrichmentResult{RunInfo: domain.StartRun(s.now()), Items: []domain.ItemResult{}}
	if limit <= 0 {
		limit = s.cfg.EnrichLimit
	}
	drafts, err := s.deps.Tips.ListDraftTips(ctx, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("pipeline: list drafts failed")
		s.finish(stageEnrich, &res.RunInfo, domain.RunStatusFailed, "", fmt.Errorf("list drafts: %w", err))
		return res
	}
	if len(drafts) == 0 {
		s.finish(stageEnrich, &res.RunInfo, domain.RunStatusSkipped, domain.SkipNoDrafts, nil)
		return res
	}

	size := s.cfg.GroupSize
	for start := 0; start < len(drafts); start += size {
		if start > 0 {
			if err := s.sleep(ctx, s.cfg.GroupPause); err != nil {
				for _, t := range drafts[start:] {
					res.Add(domain.ItemResult{TipID: t.ID, Status: domain.RunStatusFailed, Error: err.Error()})
				}
				break
			}
		}
		end := start + size
		if end > len(drafts) {
			end = len(drafts)
		}
		for _, item := range s.enrichGroup(ctx, drafts[start:end]) {
			res.Add(item)
		}
	}

	status := domain.RunStatusSuccess
	var runErr error
	if res.Failed == len(drafts) {
		status = domain.RunStatusFailed
		runErr = fmt.Errorf("all %d items failed", len(drafts))
	}
	s.log.Info().Int("processed", res.Processed).Int("published", res.Published).Int("failed", res.Failed).
		Msg("pipeline: batch enrichment finished")
	s.finish(stageEnrich, &res.RunInfo, status, "", runErr)
	return res
}

// enrichGroup обрабатывает группу параллельно. Ошибка одного совета не прерывает остальные.
func (s *Service) enrichGroup(ctx context.Context, group []domain.Tip) []domain.ItemResult {
	items := make([]domain.ItemResult, len(group))
	var g errgroup.Group
	for i, tip := range group {
		g.Go(func() error {
			items[i] = s.enrichLoaded(ctx, tip)
			return nil
		})
	}
	_ = g.Wait()
	return items
}

// EnrichTip обогащает один совет по идентификатору.
func (s *Service) EnrichTip(ctx context.Context, tipID string) domain.ItemResult {
	tip, err := s.deps.Tips.GetTip(ctx, tipID)
	if err != nil {
		s.log.Error().Err(err).Str("tip_id", tipID).Msg("pipeline: load tip failed")
		metrics.IncTipEnriched("failed")
		return domain.ItemResult{TipID: tipID, Status: domain.RunStatusFailed, Error: err.Error()}
	}
	return s.enrichLoaded(ctx, tip)
}

// enrichLoaded ищет изображение и ссылку параллельно и публикует совет.
// Неудачный поиск даёт пустое значение, совет всё равно публикуется.
func (s *Service) enrichLoaded(ctx context.Context, tip domain.Tip) domain.ItemResult {
	item := domain.ItemResult{TipID: tip.ID}
	logger := s.log.With().Str("tip_id", tip.ID).Logger()
	if tip.Published() && tip.Image != nil {
		item.Status = domain.RunStatusSkipped
		item.Reason = domain.SkipAlreadyEnriched
		item.HasImage = true
		item.HasLink = tip.Link != nil
		metrics.IncTipEnriched("skipped")
		return item
	}

	var (
		image *domain.TipImage
		link  *domain.TipLink
		g     errgroup.Group
	)
	if s.deps.Images != nil && tip.Image == nil {
		g.Go(func() error {
			img, err := s.deps.Images.FindImage(ctx, tip.Category)
			if err != nil {
				logger.Warn().Err(err).Msg("pipeline: image lookup failed")
				return nil
			}
			image = img
			return nil
		})
	}
	if s.deps.Links != nil && tip.Link == nil {
		g.Go(func() error {
			l, err := s.deps.Links.FindLink(ctx, tip.Headline, tip.Category)
			if err != nil {
				logger.Warn().Err(err).Msg("pipeline: link lookup failed")
				return nil
			}
			link = l
			return nil
		})
	}
	_ = g.Wait()

	saved, err := s.deps.Tips.PublishEnriched(ctx, tip.ID, image, link)
	if err != nil {
		logger.Error().Err(err).Msg("pipeline: publish failed")
		metrics.IncTipEnriched("failed")
		item.Status = domain.RunStatusFailed
		item.Error = err.Error()
		return item
	}
	item.Status = domain.RunStatusSuccess
	item.HasImage = saved.Image != nil
	item.HasLink = saved.Link != nil
	metrics.IncTipEnriched("published")
	s.record(ctx, domain.BusinessMetric{
		Event:    domain.BusinessMetricEventTipPublished,
		TipID:    &saved.ID,
		Metadata: map[string]any{"has_image": item.HasImage, "has_link": item.HasLink},
	})
	logger.Debug().Bool("has_image", item.HasImage).Bool("has_link", item.HasLink).Msg("pipeline: tip published")
	return item
}
