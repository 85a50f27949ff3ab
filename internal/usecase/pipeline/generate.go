package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/Aryainguz/tldev-backend/internal/domain"
	"github.com/Aryainguz/tldev-backend/internal/infra/metrics"
)

// ErrNoUsableTips возвращается, если ни один совет модели не прошёл проверки.
var ErrNoUsableTips = errors.New("no usable tips")

// RunGeneration запрашивает у модели count советов и сохраняет уникальные как черновики.
// Каждый вызов создаёт новую запись Job. Повторов внутри вызова нет.
func (s *Service) RunGeneration(ctx context.Context, count int) domain.JobResult {
	res := domain.JobResult{RunInfo: domain.StartRun(s.now())}
	if count <= 0 {
		count = s.cfg.BatchSize
	}
	if count > maxBatchSize {
		count = maxBatchSize
	}

	job, err := s.deps.Jobs.CreateJob(ctx, res.StartedAt)
	if err != nil {
		s.log.Error().Err(err).Msg("pipeline: create job failed")
		s.finish(stageGenerate, &res.RunInfo, domain.RunStatusFailed, "", fmt.Errorf("create job: %w", err))
		return res
	}
	res.JobID = job.ID
	logger := s.log.With().Str("job_id", job.ID).Logger()
	summary := domain.JobSummary{Requested: count, Category: s.cfg.Category}

	fail := func(err error) domain.JobResult {
		summary.DurationMS = s.now().Sub(res.StartedAt).Milliseconds()
		if ferr := s.deps.Jobs.FailJob(ctx, job.ID, []string{err.Error()}, summary); ferr != nil {
			logger.Error().Err(ferr).Msg("pipeline: fail job write failed")
		}
		logger.Error().Err(err).Msg("pipeline: generation failed")
		s.alert(ctx, fmt.Sprintf("generation job %s failed: %v", job.ID, err))
		s.finish(stageGenerate, &res.RunInfo, domain.RunStatusFailed, "", err)
		return res
	}

	var exclude []domain.TopicKey
	if s.cfg.ExcludeRecent > 0 {
		exclude, err = s.deps.Tips.RecentTopicKeys(ctx, s.cfg.ExcludeRecent)
		if err != nil {
			logger.Warn().Err(err).Msg("pipeline: recent topics unavailable, generating without exclusions")
			exclude = nil
		}
	}

	genCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerateTimeout)
	resp, err := s.deps.Generator.Generate(genCtx, domain.GenerateRequest{Count: count, Category: s.cfg.Category, Exclude: exclude})
	timedOut := errors.Is(genCtx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if timedOut {
			err = fmt.Errorf("generation timed out after %s: %w", s.cfg.GenerateTimeout, err)
		}
		return fail(err)
	}
	summary.Model = resp.Model
	summary.Returned = len(resp.Tips)

	kept, drops := Dedupe(resp.Tips, exclude)
	for _, d := range drops {
		logger.Info().Int("index", d.Index).Str("reason", d.Reason).Str("key", d.Key).Str("headline", d.Headline).
			Msg("pipeline: generated tip dropped")
	}
	summary.Dropped = len(drops)
	res.Dropped = len(drops)
	metrics.IncTipsGenerated(len(kept), len(drops))
	if len(kept) == 0 {
		return fail(ErrNoUsableTips)
	}

	drafts := make([]domain.Tip, 0, len(kept))
	for _, g := range kept {
		drafts = append(drafts, domain.Tip{
			Headline:        g.Headline,
			Summary:         g.Summary,
			Detail:          g.Detail,
			CodeSample:      g.CodeSample,
			Category:        g.Category,
			Tags:            g.Tags,
			TopicSlug:       g.TopicSlug,
			Technology:      g.Technology,
			HeadlinePattern: g.HeadlinePattern,
			Status:          domain.TipStatusDraft,
			Source:          domain.TipSourceAI,
			Model:           resp.Model,
			JobID:           job.ID,
		})
	}
	saved, err := s.deps.Tips.CreateDraftTips(ctx, drafts)
	if err != nil {
		return fail(fmt.Errorf("save drafts: %w", err))
	}

	ids := make([]string, 0, len(saved))
	for _, t := range saved {
		ids = append(ids, t.ID)
	}
	summary.Saved = len(saved)
	summary.TipIDs = ids
	summary.DurationMS = s.now().Sub(res.StartedAt).Milliseconds()
	res.TipsCount = len(saved)
	res.TipIDs = ids

	if err := s.deps.Jobs.CompleteJob(ctx, job.ID, len(saved), summary); err != nil {
		logger.Error().Err(err).Msg("pipeline: complete job write failed")
		s.finish(stageGenerate, &res.RunInfo, domain.RunStatusFailed, "", fmt.Errorf("complete job: %w", err))
		return res
	}

	if s.deps.Queue != nil {
		if err := s.deps.Queue.PublishDrafts(ctx, ids); err != nil {
			logger.Warn().Err(err).Msg("pipeline: enqueue drafts failed, batch enrichment will pick them up")
		}
	}
	s.record(ctx, domain.BusinessMetric{
		Event:    domain.BusinessMetricEventTipsGenerated,
		Metadata: map[string]any{"job_id": job.ID, "count": len(saved), "dropped": len(drops), "model": resp.Model},
	})
	logger.Info().Int("saved", len(saved)).Int("dropped", len(drops)).Msg("pipeline: generation completed")
	s.finish(stageGenerate, &res.RunInfo, domain.RunStatusSuccess, "", nil)
	return res
}
