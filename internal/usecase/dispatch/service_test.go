package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aryainguz/tldev-backend/internal/adapters/repo"
	"github.com/Aryainguz/tldev-backend/internal/domain"
	"github.com/Aryainguz/tldev-backend/internal/usecase/slot"
)

type fakeSender struct {
	mu        sync.Mutex
	chunk     int
	failChunk map[int]bool
	batches   [][]domain.PushMessage
	// onSend вызывается один раз перед первой отправкой.
	onSend func()
}

func (f *fakeSender) SendBatch(_ context.Context, messages []domain.PushMessage) ([]domain.PushTicket, error) {
	if hook := f.onSend; hook != nil {
		f.onSend = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.batches)
	f.batches = append(f.batches, messages)
	if f.failChunk[idx] {
		return nil, errors.New("provider unavailable")
	}
	tickets := make([]domain.PushTicket, len(messages))
	for i := range messages {
		tickets[i] = domain.PushTicket{Status: domain.PushTicketOK, ID: fmt.Sprintf("t-%d-%d", idx, i)}
	}
	return tickets, nil
}

func (f *fakeSender) ChunkSize() int { return f.chunk }

func (f *fakeSender) ValidToken(token string) bool {
	return strings.HasPrefix(token, "ExponentPushToken[") && strings.HasSuffix(token, "]")
}

func (f *fakeSender) sentTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, b := range f.batches {
		for _, m := range b {
			out = append(out, m.To)
		}
	}
	return out
}

type brokenCandidates struct {
	*repo.Memory
}

func (brokenCandidates) ListPushCandidates(context.Context) ([]domain.Tip, error) {
	return nil, errors.New("connection reset")
}

type recordingAlerts struct {
	texts []string
}

func (a *recordingAlerts) Alert(_ context.Context, text string) error {
	a.texts = append(a.texts, text)
	return nil
}

type fixture struct {
	store  *repo.Memory
	sender *fakeSender
	alerts *recordingAlerts
	clock  time.Time
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("не удалось загрузить часовой пояс: %v", err)
	}
	f := &fixture{
		store:  repo.NewMemory(),
		sender: &fakeSender{chunk: 100},
		alerts: &recordingAlerts{},
		clock:  time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(Deps{
		Tips:   f.store,
		Users:  f.store,
		Ledger: f.store,
		Sender: f.sender,
		Alerts: f.alerts,
		Events: f.store,
	}, Config{
		Slot:       slot.Config{Location: loc, StartHour: 8, EndHour: 1, SlotCount: 30},
		StaleAfter: 10 * time.Minute,
	}, zerolog.Nop())
	f.svc.WithClock(func() time.Time { return f.clock })
	f.svc.WithFormatter(Formatter{pick: func(int) int { return 0 }})
	return f
}

func (f *fixture) publishTips(t *testing.T, n int) {
	t.Helper()
	ctx := context.Background()
	drafts := make([]domain.Tip, 0, n)
	for i := 0; i < n; i++ {
		drafts = append(drafts, domain.Tip{
			Headline: fmt.Sprintf("Headline %d", i), Summary: "summary", Detail: "detail",
			Category: "go", Tags: []string{"go"}, TopicSlug: fmt.Sprintf("topic-%d", i), Status: domain.TipStatusDraft,
		})
	}
	saved, err := f.store.CreateDraftTips(ctx, drafts)
	if err != nil {
		t.Fatalf("не удалось сохранить советы: %v", err)
	}
	for _, tip := range saved {
		if _, err := f.store.PublishEnriched(ctx, tip.ID, nil, nil); err != nil {
			t.Fatalf("не удалось опубликовать совет: %v", err)
		}
	}
}

func (f *fixture) addUser(t *testing.T, name, token string) {
	t.Helper()
	ctx := context.Background()
	u, _, err := f.store.EnsureUser(ctx, domain.UserProfile{Email: name + "@example.com"})
	if err != nil {
		t.Fatalf("не удалось создать пользователя: %v", err)
	}
	if err := f.store.UpdatePushToken(ctx, u.ID, token, "ios"); err != nil {
		t.Fatalf("не удалось сохранить токен: %v", err)
	}
}

func TestDispatchNoRecipientsCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishTips(t, 5)

	res := f.svc.RunDispatchForSlot(ctx, "2026-01-31", 3)
	if res.Status != domain.RunStatusSuccess || res.SentCount != 0 || res.ErrorCount != 0 || res.Error != "" {
		t.Fatalf("ожидали completed без отправок, получили %+v", res)
	}
	row, err := f.store.GetDailyPush(ctx, "2026-01-31", 3)
	if err != nil || row.Status != domain.PushStatusCompleted || row.CandidateCount != 5 {
		t.Fatalf("неверная запись журнала: %+v, %v", row, err)
	}
}

func TestDispatchSkipsMalformedTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishTips(t, 5)
	f.addUser(t, "a", "ExponentPushToken[aaa]")
	f.addUser(t, "b", "ExponentPushToken[bbb]")
	f.addUser(t, "c", "ExponentPushToken[ccc]")
	f.addUser(t, "d", "not-a-token")

	res := f.svc.RunDispatchForSlot(ctx, "2026-01-31", 3)
	if res.Status != domain.RunStatusSuccess || res.SentCount != 3 || res.ErrorCount != 1 {
		t.Fatalf("ожидали 3 отправки и 1 ошибку, получили %+v", res)
	}
	for _, token := range f.sender.sentTokens() {
		if token == "not-a-token" {
			t.Fatalf("некорректный токен не должен попадать к провайдеру")
		}
	}
	row, _ := f.store.GetDailyPush(ctx, "2026-01-31", 3)
	if row.Summary == nil || row.Summary.Success == nil || row.Summary.Success.InvalidTokens != 1 {
		t.Fatalf("сводка должна учитывать некорректный токен: %+v", row.Summary)
	}
	if !strings.HasPrefix(row.Summary.Success.Title, decorations[0]) {
		t.Fatalf("заголовок должен начинаться с декоративного префикса: %q", row.Summary.Success.Title)
	}
}

func TestDispatchSelectsDeterministicTip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishTips(t, 5)

	candidates, _ := f.store.ListPushCandidates(ctx)
	want, _, err := slot.Select(slot.Seed("2026-01-31", 3), candidates)
	if err != nil {
		t.Fatalf("выбор не удался: %v", err)
	}
	res := f.svc.RunDispatchForSlot(ctx, "2026-01-31", 3)
	if res.TipID != want.ID {
		t.Fatalf("ожидали совет %s, получили %s", want.ID, res.TipID)
	}
}

func TestDispatchTwiceSendsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishTips(t, 3)
	f.addUser(t, "a", "ExponentPushToken[aaa]")

	first := f.svc.RunDispatchForSlot(ctx, "2026-01-31", 7)
	second := f.svc.RunDispatchForSlot(ctx, "2026-01-31", 7)
	if first.Status != domain.RunStatusSuccess {
		t.Fatalf("первый запуск должен пройти: %+v", first)
	}
	if second.Status != domain.RunStatusSkipped || second.Reason != domain.SkipAlreadyCompleted || second.Previous == nil {
		t.Fatalf("второй запуск должен вернуть пропуск с прежней сводкой: %+v", second)
	}
	if got := len(f.sender.sentTokens()); got != 1 {
		t.Fatalf("ожидали одну отправку, получили %d", got)
	}
}

func TestDispatchConcurrentInvocationsSendOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishTips(t, 3)
	f.addUser(t, "a", "ExponentPushToken[aaa]")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.svc.RunDispatchForSlot(ctx, "2026-01-31", 2)
		}()
	}
	wg.Wait()
	if got := len(f.sender.sentTokens()); got != 1 {
		t.Fatalf("параллельные запуски должны отправить один раз, отправлено %d", got)
	}
}

func TestDispatchInFlightSkips(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishTips(t, 2)
	if _, ok, _ := f.store.AcquireDailyPush(ctx, domain.AcquirePushParams{Date: "2026-01-31", Slot: 4, Now: f.clock}); !ok {
		t.Fatalf("не удалось занять слот")
	}

	res := f.svc.RunDispatchForSlot(ctx, "2026-01-31", 4)
	if res.Status != domain.RunStatusSkipped || res.Reason != domain.SkipInFlight {
		t.Fatalf("ожидали пропуск in_flight, получили %+v", res)
	}

	// брошенная попытка перехватывается после StaleAfter
	f.clock = f.clock.Add(11 * time.Minute)
	res = f.svc.RunDispatchForSlot(ctx, "2026-01-31", 4)
	if res.Status != domain.RunStatusSuccess {
		t.Fatalf("брошенная попытка должна перехватываться: %+v", res)
	}
	row, _ := f.store.GetDailyPush(ctx, "2026-01-31", 4)
	if row.Attempts != 2 {
		t.Fatalf("ожидали 2 попытки, получили %d", row.Attempts)
	}
}

func TestDispatchStaleAttemptCannotOverwriteTakeover(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishTips(t, 2)
	f.addUser(t, "a", "ExponentPushToken[aaa]")

	// первая попытка зависает на отправке, вторая перехватывает слот и завершает его
	var second domain.DispatchResult
	f.sender.onSend = func() {
		f.clock = f.clock.Add(11 * time.Minute)
		f.addUser(t, "b", "ExponentPushToken[bbb]")
		second = f.svc.RunDispatchForSlot(ctx, "2026-01-31", 6)
	}
	first := f.svc.RunDispatchForSlot(ctx, "2026-01-31", 6)

	if second.Status != domain.RunStatusSuccess || second.SentCount != 2 {
		t.Fatalf("перехватившая попытка должна завершиться успешно: %+v", second)
	}
	if first.Status != domain.RunStatusFailed || !strings.Contains(first.Error, domain.ErrPushLeaseLost.Error()) {
		t.Fatalf("зависшая попытка должна узнать о потере слота: %+v", first)
	}
	row, err := f.store.GetDailyPush(ctx, "2026-01-31", 6)
	if err != nil {
		t.Fatalf("запись журнала не найдена: %v", err)
	}
	if row.Status != domain.PushStatusCompleted || row.Attempts != 2 || row.SentCount != 2 {
		t.Fatalf("журнал должен хранить итог второй попытки: %+v", row)
	}
}

func TestDispatchEmptyCandidatesSkipsWithoutLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.svc.RunDispatchForSlot(ctx, "2026-01-31", 1)
	if res.Status != domain.RunStatusSkipped || res.Reason != domain.SkipEmptyCandidates {
		t.Fatalf("ожидали пропуск empty_candidate_set: %+v", res)
	}
	if _, err := f.store.GetDailyPush(ctx, "2026-01-31", 1); !errors.Is(err, domain.ErrDailyPushNotFound) {
		t.Fatalf("пустой набор кандидатов не должен писать в журнал: %v", err)
	}
}

func TestDispatchCandidateErrorMarksFailedAndRetries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishTips(t, 2)
	f.svc.deps.Tips = brokenCandidates{Memory: f.store}

	res := f.svc.RunDispatchForSlot(ctx, "2026-01-31", 5)
	if res.Status != domain.RunStatusFailed {
		t.Fatalf("ожидали failed: %+v", res)
	}
	row, _ := f.store.GetDailyPush(ctx, "2026-01-31", 5)
	if row.Status != domain.PushStatusFailed || row.Summary == nil || row.Summary.Failure.Stage != FailStageCandidates {
		t.Fatalf("журнал должен хранить сводку сбоя: %+v", row)
	}
	if len(f.alerts.texts) != 1 {
		t.Fatalf("ожидали оповещение о сбое")
	}

	f.svc.deps.Tips = f.store
	res = f.svc.RunDispatchForSlot(ctx, "2026-01-31", 5)
	if res.Status != domain.RunStatusSuccess {
		t.Fatalf("упавший слот должен повторяться: %+v", res)
	}
}

func TestDispatchChunkFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishTips(t, 1)
	f.sender.chunk = 2
	f.sender.failChunk = map[int]bool{0: true}
	for i := 0; i < 5; i++ {
		f.addUser(t, fmt.Sprintf("u%d", i), fmt.Sprintf("ExponentPushToken[%d]", i))
	}

	res := f.svc.RunDispatchForSlot(ctx, "2026-01-31", 0)
	if res.Status != domain.RunStatusSuccess || res.SentCount != 3 || res.ErrorCount != 2 {
		t.Fatalf("ожидали 3 отправки и 2 ошибки, получили %+v", res)
	}
	if len(f.sender.batches) != 3 {
		t.Fatalf("ожидали 3 пачки, получили %d", len(f.sender.batches))
	}
}

func TestDispatchErrorSampleIsCapped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publishTips(t, 1)
	for i := 0; i < 15; i++ {
		f.addUser(t, fmt.Sprintf("bad%d", i), "bad")
	}

	res := f.svc.RunDispatchForSlot(ctx, "2026-01-31", 0)
	if res.ErrorCount != 15 {
		t.Fatalf("ожидали 15 ошибок, получили %d", res.ErrorCount)
	}
	row, _ := f.store.GetDailyPush(ctx, "2026-01-31", 0)
	if got := len(row.Summary.Success.ErrorSample); got != domain.MaxStoredPushErrors {
		t.Fatalf("выборка ошибок должна быть обрезана до %d, получили %d", domain.MaxStoredPushErrors, got)
	}
}

func TestDispatchNowOutOfWindow(t *testing.T) {
	f := newFixture(t)
	// 02:00 по Калькутте лежит между концом и началом окна
	f.clock = time.Date(2026, 1, 31, 20, 30, 0, 0, time.UTC)

	res := f.svc.RunDispatchNow(context.Background())
	if res.Status != domain.RunStatusSkipped || res.Reason != domain.SkipOutOfWindow {
		t.Fatalf("ожидали пропуск out_of_window: %+v", res)
	}
}

func TestDispatchNowResolvesSlot(t *testing.T) {
	f := newFixture(t)
	f.publishTips(t, 1)
	// 08:05 по Калькутте
	f.clock = time.Date(2026, 1, 31, 2, 35, 0, 0, time.UTC)

	res := f.svc.RunDispatchNow(context.Background())
	if res.Date != "2026-01-31" || res.Slot != 0 || res.Status != domain.RunStatusSuccess {
		t.Fatalf("ожидали слот 0 за 2026-01-31: %+v", res)
	}
}

func TestDispatchRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	if res := f.svc.RunDispatchForSlot(context.Background(), "31-01-2026", 1); res.Status != domain.RunStatusFailed {
		t.Fatalf("некорректная дата должна отклоняться: %+v", res)
	}
	if res := f.svc.RunDispatchForSlot(context.Background(), "2026-01-31", 30); res.Status != domain.RunStatusFailed {
		t.Fatalf("слот вне диапазона должен отклоняться: %+v", res)
	}
}
