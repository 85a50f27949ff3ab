package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Aryainguz/tldev-backend/internal/adapters/repo"
	"github.com/Aryainguz/tldev-backend/internal/domain"
)

func setup(t *testing.T) (*repo.Memory, *Service, string, string) {
	t.Helper()
	ctx := context.Background()
	store := repo.NewMemory()
	tips, err := store.CreateDraftTips(ctx, []domain.Tip{{Headline: "h", Category: "go", TopicSlug: "h", Status: domain.TipStatusDraft}})
	if err != nil {
		t.Fatalf("не удалось создать совет: %v", err)
	}
	if _, err := store.PublishEnriched(ctx, tips[0].ID, nil, nil); err != nil {
		t.Fatalf("не удалось опубликовать совет: %v", err)
	}
	user, _, err := store.EnsureUser(ctx, domain.UserProfile{Email: "u@example.com"})
	if err != nil {
		t.Fatalf("не удалось создать пользователя: %v", err)
	}
	return store, NewService(store, store, store, zerolog.Nop()), user.ID, tips[0].ID
}

func TestLikeCounterMatchesActions(t *testing.T) {
	ctx := context.Background()
	store, svc, userID, tipID := setup(t)

	wantOutcomes := []domain.ActionOutcome{domain.ActionAdded, domain.ActionRemoved, domain.ActionAdded, domain.ActionRemoved, domain.ActionAdded}
	for i, want := range wantOutcomes {
		res, err := svc.Apply(ctx, userID, tipID, "like")
		if err != nil {
			t.Fatalf("шаг %d: неожиданная ошибка: %v", i, err)
		}
		if res.Outcome != want {
			t.Fatalf("шаг %d: ожидали %s, получили %s", i, want, res.Outcome)
		}
		if res.Counters.Likes != store.CountActions(tipID, domain.ActionLike) {
			t.Fatalf("шаг %d: счётчик %d расходится с числом действий %d", i, res.Counters.Likes, store.CountActions(tipID, domain.ActionLike))
		}
	}
}

func TestShareIsAddOnly(t *testing.T) {
	ctx := context.Background()
	_, svc, userID, tipID := setup(t)

	for i := 0; i < 3; i++ {
		res, err := svc.Apply(ctx, userID, tipID, "share")
		if err != nil {
			t.Fatalf("неожиданная ошибка: %v", err)
		}
		if res.Outcome != domain.ActionAdded || res.Counters.Shares != 1 {
			t.Fatalf("share не снимается и не дублируется: %+v", res)
		}
	}
}

func TestApplyRejectsUnknownKindAndTargets(t *testing.T) {
	ctx := context.Background()
	store, svc, userID, tipID := setup(t)

	if _, err := svc.Apply(ctx, userID, tipID, "bookmark"); !errors.Is(err, domain.ErrInvalidActionKind) {
		t.Fatalf("ожидали ErrInvalidActionKind, получили %v", err)
	}
	if _, err := svc.Apply(ctx, userID, "missing", "like"); !errors.Is(err, domain.ErrTipNotFound) {
		t.Fatalf("ожидали ErrTipNotFound, получили %v", err)
	}
	if _, err := svc.Apply(ctx, "stranger", tipID, "save"); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("ожидали ErrInvalidUserID, получили %v", err)
	}
	if got := len(store.BusinessMetrics()); got != 0 {
		t.Fatalf("неудачные действия не должны попадать в бизнес-метрики, записано %d", got)
	}
}

func TestFirstActionCreatesUser(t *testing.T) {
	ctx := context.Background()
	store, svc, _, tipID := setup(t)
	newcomer := "11111111-2222-3333-4444-555555555555"

	res, err := svc.Apply(ctx, newcomer, tipID, "like")
	if err != nil {
		t.Fatalf("первое действие нового пользователя должно проходить: %v", err)
	}
	if res.Outcome != domain.ActionAdded || res.Counters.Likes != 1 {
		t.Fatalf("ожидали добавленный like: %+v", res)
	}
	user, err := store.GetUser(ctx, newcomer)
	if err != nil {
		t.Fatalf("пользователь должен создаться при первом действии: %v", err)
	}
	if user.ID != newcomer {
		t.Fatalf("ожидали id %s, получили %s", newcomer, user.ID)
	}

	// повторное действие не создаёт второго пользователя
	if _, err := svc.Apply(ctx, newcomer, tipID, "save"); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	registered := 0
	for _, m := range store.BusinessMetrics() {
		if m.Event == domain.BusinessMetricEventUserRegistered {
			registered++
		}
	}
	if registered != 1 {
		t.Fatalf("ожидали одну регистрацию, получили %d", registered)
	}
}
