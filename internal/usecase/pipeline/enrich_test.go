package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Aryainguz/tldev-backend/internal/domain"
)

func seedDrafts(t *testing.T, h *harness, n int) []string {
	t.Helper()
	drafts := make([]domain.Tip, 0, n)
	for i := 0; i < n; i++ {
		drafts = append(drafts, domain.Tip{
			Headline:  fmt.Sprintf("Tip number %d", i),
			Summary:   "s",
			Detail:    "d",
			Category:  "go",
			Tags:      []string{"go"},
			TopicSlug: fmt.Sprintf("topic-%d", i),
			Status:    domain.TipStatusDraft,
			Source:    domain.TipSourceAI,
		})
	}
	saved, err := h.store.CreateDraftTips(context.Background(), drafts)
	if err != nil {
		t.Fatalf("не удалось сохранить черновики: %v", err)
	}
	ids := make([]string, 0, len(saved))
	for _, s := range saved {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestGenerateThenEnrichPublishesWithImage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Config{})

	gen := h.svc.RunGeneration(ctx, 2)
	if gen.Status != domain.RunStatusSuccess {
		t.Fatalf("генерация не удалась: %+v", gen)
	}
	for _, id := range gen.TipIDs {
		res := h.svc.RunEnrichment(ctx, EnrichRequest{TipID: id})
		if res.Status != domain.RunStatusSuccess || res.Published != 1 {
			t.Fatalf("ожидали публикацию %s, получили %+v", id, res)
		}
		tip, _ := h.store.GetTip(ctx, id)
		if !tip.Published() || tip.Image == nil || tip.Link == nil || tip.PublishedAt == nil {
			t.Fatalf("совет должен быть опубликован с изображением и ссылкой: %+v", tip)
		}
	}
	if drafts, _ := h.store.ListDraftTips(ctx, 10); len(drafts) != 0 {
		t.Fatalf("черновиков остаться не должно, осталось %d", len(drafts))
	}
}

func TestEnrichPublishesWhenLookupsFail(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Config{})
	h.svc.deps.Images = fakeImages{err: errors.New("rate limited")}
	h.svc.deps.Links = fakeLinks{err: errors.New("quota exceeded")}
	ids := seedDrafts(t, h, 1)

	item := h.svc.EnrichTip(ctx, ids[0])
	if item.Status != domain.RunStatusSuccess || item.HasImage || item.HasLink {
		t.Fatalf("совет должен публиковаться без изображения: %+v", item)
	}
	tip, _ := h.store.GetTip(ctx, ids[0])
	if !tip.Published() || tip.Image != nil {
		t.Fatalf("ожидали published без изображения: %+v", tip)
	}

	// повторное обогащение не возвращает совет в черновики
	_ = h.svc.EnrichTip(ctx, ids[0])
	tip, _ = h.store.GetTip(ctx, ids[0])
	if tip.Status != domain.TipStatusPublished {
		t.Fatalf("статус не должен откатываться: %s", tip.Status)
	}
}

func TestEnrichSkipsAlreadyEnriched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Config{})
	ids := seedDrafts(t, h, 1)
	_ = h.svc.EnrichTip(ctx, ids[0])

	res := h.svc.RunEnrichment(ctx, EnrichRequest{TipID: ids[0]})
	if res.Status != domain.RunStatusSkipped || res.Reason != domain.SkipAlreadyEnriched {
		t.Fatalf("ожидали пропуск already_enriched, получили %+v", res)
	}
}

func TestEnrichUnknownTipFails(t *testing.T) {
	h := newHarness(Config{})
	res := h.svc.RunEnrichment(context.Background(), EnrichRequest{TipID: "missing"})
	if res.Status != domain.RunStatusFailed || res.Failed != 1 {
		t.Fatalf("ожидали сбой для неизвестного совета: %+v", res)
	}
}

func TestBatchEnrichmentNoDrafts(t *testing.T) {
	h := newHarness(Config{})
	res := h.svc.RunEnrichment(context.Background(), EnrichRequest{})
	if res.Status != domain.RunStatusSkipped || res.Reason != domain.SkipNoDrafts {
		t.Fatalf("ожидали пропуск no_drafts: %+v", res)
	}
}

func TestBatchEnrichmentGroupsWithPauses(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Config{GroupSize: 2})
	seedDrafts(t, h, 5)

	res := h.svc.RunEnrichment(ctx, EnrichRequest{Limit: 10})
	if res.Status != domain.RunStatusSuccess || res.Published != 5 || len(res.Items) != 5 {
		t.Fatalf("ожидали 5 опубликованных, получили %+v", res)
	}
	if h.pauses != 2 {
		t.Fatalf("между тремя группами ожидали 2 паузы, получили %d", h.pauses)
	}
}

func TestBatchEnrichmentIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Config{GroupSize: 2})
	ids := seedDrafts(t, h, 3)
	h.svc.deps.Tips = flakyTips{Memory: h.store, failIDs: map[string]bool{ids[1]: true}}

	res := h.svc.RunEnrichment(ctx, EnrichRequest{Limit: 10})
	if res.Status != domain.RunStatusSuccess {
		t.Fatalf("частичный сбой не должен валить пакет: %+v", res)
	}
	if res.Published != 2 || res.Failed != 1 || res.Processed != 3 {
		t.Fatalf("неверные счётчики: %+v", res)
	}
	tip, _ := h.store.GetTip(ctx, ids[1])
	if tip.Status != domain.TipStatusDraft {
		t.Fatalf("упавший совет должен остаться черновиком")
	}
}

func TestBatchEnrichmentAllFailed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Config{})
	ids := seedDrafts(t, h, 2)
	fail := map[string]bool{}
	for _, id := range ids {
		fail[id] = true
	}
	svc := NewService(Deps{Tips: flakyTips{Memory: h.store, failIDs: fail}, Jobs: h.store}, Config{}, zerolog.Nop())

	res := svc.RunEnrichment(ctx, EnrichRequest{})
	if res.Status != domain.RunStatusFailed || res.Failed != 2 {
		t.Fatalf("пакет без единой публикации должен быть failed: %+v", res)
	}
}
