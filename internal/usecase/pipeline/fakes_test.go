package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aryainguz/tldev-backend/internal/adapters/repo"
	"github.com/Aryainguz/tldev-backend/internal/domain"
)

type fakeGenerator struct {
	mu    sync.Mutex
	tips  []domain.GeneratedTip
	err   error
	block bool
	calls []domain.GenerateRequest
}

func (f *fakeGenerator) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return domain.GenerateResponse{}, ctx.Err()
	}
	if f.err != nil {
		return domain.GenerateResponse{}, f.err
	}
	return domain.GenerateResponse{Tips: f.tips, Model: "test-model"}, nil
}

type fakeImages struct {
	err error
}

func (f fakeImages) FindImage(context.Context, string) (*domain.TipImage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.TipImage{URL: "https://images.example/1.jpg", AuthorName: "Ann", Provider: "unsplash"}, nil
}

type fakeLinks struct {
	err error
}

func (f fakeLinks) FindLink(context.Context, string, string) (*domain.TipLink, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.TipLink{URL: "https://go.dev/doc", Title: "Go docs", Source: "go.dev"}, nil
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *fakeQueue) PublishDrafts(_ context.Context, ids []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, ids...)
	return nil
}

type fakeAlerts struct {
	mu    sync.Mutex
	texts []string
}

func (a *fakeAlerts) Alert(_ context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
	return nil
}

// flakyTips роняет публикацию указанных советов.
type flakyTips struct {
	*repo.Memory
	failIDs map[string]bool
}

func (f flakyTips) PublishEnriched(ctx context.Context, id string, image *domain.TipImage, link *domain.TipLink) (domain.Tip, error) {
	if f.failIDs[id] {
		return domain.Tip{}, errors.New("store unavailable")
	}
	return f.Memory.PublishEnriched(ctx, id, image, link)
}

func validTips() []domain.GeneratedTip {
	return []domain.GeneratedTip{
		{Headline: "Use errgroup for fan-out", Summary: "s", Detail: "d", Category: "go", Tags: []string{"go"}, TopicSlug: "errgroup", Technology: "go"},
		{Headline: "Cache npm installs in CI", Summary: "s", Detail: "d", Category: "ci", Tags: []string{"ci"}, TopicSlug: "npm-cache", Technology: "npm"},
		{Headline: "Use errgroup for bounded limits", Summary: "s", Detail: "d", Category: "go", Tags: []string{"go"}, TopicSlug: "errgroup-limit", Technology: "golang.org/x/sync"},
	}
}

type harness struct {
	store  *repo.Memory
	gen    *fakeGenerator
	queue  *fakeQueue
	alerts *fakeAlerts
	pauses int
	svc    *Service
}

func newHarness(cfg Config) *harness {
	h := &harness{
		store:  repo.NewMemory(),
		gen:    &fakeGenerator{tips: validTips()},
		queue:  &fakeQueue{},
		alerts: &fakeAlerts{},
	}
	h.svc = NewService(Deps{
		Tips:      h.store,
		Jobs:      h.store,
		Generator: h.gen,
		Images:    fakeImages{},
		Links:     fakeLinks{},
		Queue:     h.queue,
		Alerts:    h.alerts,
		Events:    h.store,
	}, cfg, zerolog.Nop())
	h.svc.WithClock(nil, func(ctx context.Context, d time.Duration) error {
		h.pauses++
		return ctx.Err()
	})
	return h
}
