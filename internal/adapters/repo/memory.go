package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aryainguz/tldev-backend/internal/domain"
)

// Memory хранит все сущности в памяти процесса. Используется в dev-режиме без PG_DSN и в тестах.
type Memory struct {
	mu sync.RWMutex

	now func() time.Time
	seq int64

	tips    map[string]*memTip
	users   map[string]*domain.User
	actions map[actionKey]time.Time
	jobs    map[string]*domain.Job
	pushes  map[pushKey]*domain.DailyPush
	events  []domain.BusinessMetric
}

type memTip struct {
	tip domain.Tip
	seq int64
}

type actionKey struct {
	userID string
	tipID  string
	kind   domain.ActionKind
}

type pushKey struct {
	date string
	slot int
}

var (
	_ domain.TipRepo            = (*Memory)(nil)
	_ domain.UserRepo           = (*Memory)(nil)
	_ domain.ActionRepo         = (*Memory)(nil)
	_ domain.JobRepo            = (*Memory)(nil)
	_ domain.DailyPushRepo      = (*Memory)(nil)
	_ domain.BusinessMetricRepo = (*Memory)(nil)
)

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{
		now:     func() time.Time { return time.Now().UTC() },
		tips:    make(map[string]*memTip),
		users:   make(map[string]*domain.User),
		actions: make(map[actionKey]time.Time),
		jobs:    make(map[string]*domain.Job),
		pushes:  make(map[pushKey]*domain.DailyPush),
	}
}

// WithClock подменяет часы хранилища.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func cloneTip(t domain.Tip) domain.Tip {
	t.Tags = append([]string(nil), t.Tags...)
	if t.Image != nil {
		img := *t.Image
		t.Image = &img
	}
	if t.Link != nil {
		link := *t.Link
		t.Link = &link
	}
	if t.PublishedAt != nil {
		ts := *t.PublishedAt
		t.PublishedAt = &ts
	}
	return t
}

// sortedTips возвращает советы по возрастанию (created_at, порядок вставки).
func (m *Memory) sortedTips(filter func(domain.Tip) bool) []*memTip {
	out := make([]*memTip, 0, len(m.tips))
	for _, t := range m.tips {
		if filter == nil || filter(t.tip) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].tip.CreatedAt.Equal(out[j].tip.CreatedAt) {
			return out[i].tip.CreatedAt.Before(out[j].tip.CreatedAt)
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// CreateDraftTips сохраняет черновики.
func (m *Memory) CreateDraftTips(_ context.Context, tips []domain.Tip) ([]domain.Tip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Tip, 0, len(tips))
	for _, t := range tips {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.Source == "" {
			t.Source = domain.TipSourceAI
		}
		t.Status = domain.TipStatusDraft
		t.Counters = domain.TipCounters{}
		t.PublishedAt = nil
		if t.CreatedAt.IsZero() {
			t.CreatedAt = m.now()
		}
		m.seq++
		m.tips[t.ID] = &memTip{tip: cloneTip(t), seq: m.seq}
		out = append(out, cloneTip(t))
	}
	return out, nil
}

// GetTip возвращает совет по идентификатору.
func (m *Memory) GetTip(_ context.Context, id string) (domain.Tip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tips[id]
	if !ok {
		return domain.Tip{}, domain.ErrTipNotFound
	}
	return cloneTip(t.tip), nil
}

// ListDraftTips возвращает черновики от старых к новым.
func (m *Memory) ListDraftTips(_ context.Context, limit int) ([]domain.Tip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.sortedTips(func(t domain.Tip) bool { return t.Status == domain.TipStatusDraft })
	return collect(rows, limit), nil
}

// PublishEnriched записывает обогащение и публикует совет.
func (m *Memory) PublishEnriched(_ context.Context, id string, image *domain.TipImage, link *domain.TipLink) (domain.Tip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tips[id]
	if !ok {
		return domain.Tip{}, domain.ErrTipNotFound
	}
	if image != nil {
		img := *image
		t.tip.Image = &img
	}
	if link != nil {
		l := *link
		t.tip.Link = &l
	}
	t.tip.Status = domain.TipStatusPublished
	if t.tip.PublishedAt == nil {
		now := m.now()
		t.tip.PublishedAt = &now
	}
	return cloneTip(t.tip), nil
}

// ListPushCandidates возвращает опубликованные советы от старых к новым.
func (m *Memory) ListPushCandidates(_ context.Context) ([]domain.Tip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return collect(m.sortedTips(domain.Tip.Published), 0), nil
}

// ListFeed возвращает опубликованные советы от новых к старым, начиная после курсора.
func (m *Memory) ListFeed(_ context.Context, q domain.FeedQuery) ([]domain.Tip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.sortedTips(func(t domain.Tip) bool {
		return t.Published() && (q.Category == "" || t.Category == q.Category)
	})
	var cursor *memTip
	if q.Cursor != "" {
		c, ok := m.tips[q.Cursor]
		if !ok {
			return nil, domain.ErrTipNotFound
		}
		cursor = c
	}
	out := make([]domain.Tip, 0, q.Limit)
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if cursor != nil && !olderThan(row, cursor) {
			continue
		}
		out = append(out, cloneTip(row.tip))
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func olderThan(a, b *memTip) bool {
	if !a.tip.CreatedAt.Equal(b.tip.CreatedAt) {
		return a.tip.CreatedAt.Before(b.tip.CreatedAt)
	}
	return a.seq < b.seq
}

// IncrementViews увеличивает счётчик просмотров.
func (m *Memory) IncrementViews(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tips[id]
	if !ok {
		return domain.ErrTipNotFound
	}
	t.tip.Counters.Views++
	return nil
}

// RecentTopicKeys возвращает ключи уникальности последних советов.
func (m *Memory) RecentTopicKeys(_ context.Context, limit int) ([]domain.TopicKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.sortedTips(nil)
	out := make([]domain.TopicKey, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		t := rows[i].tip
		out = append(out, domain.TopicKey{TopicSlug: t.TopicSlug, Technology: t.Technology, HeadlinePattern: t.HeadlinePattern, Headline: t.Headline})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func collect(rows []*memTip, limit int) []domain.Tip {
	out := make([]domain.Tip, 0, len(rows))
	for _, r := range rows {
		out = append(out, cloneTip(r.tip))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// EnsureUser создаёт пользователя, если его ещё нет.
func (m *Memory) EnsureUser(_ context.Context, profile domain.UserProfile) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[profile.ID]; ok {
		return cloneUser(*u), false, nil
	}
	for _, u := range m.users {
		if u.Email == profile.Email || (profile.ProviderID != "" && u.Provider == profile.Provider && u.ProviderID == profile.ProviderID) {
			return cloneUser(*u), false, nil
		}
	}
	id := profile.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := m.now()
	u := &domain.User{
		ID:         id,
		Email:      profile.Email,
		Provider:   profile.Provider,
		ProviderID: profile.ProviderID,
		Name:       profile.Name,
		AvatarURL:  profile.AvatarURL,
		Interests:  []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.users[u.ID] = u
	return cloneUser(*u), true, nil
}

func cloneUser(u domain.User) domain.User {
	u.Interests = append([]string{}, u.Interests...)
	return u
}

// GetUser возвращает пользователя.
func (m *Memory) GetUser(_ context.Context, id string) (domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return cloneUser(*u), nil
}

// UpdatePushToken перезаписывает токен устройства.
func (m *Memory) UpdatePushToken(_ context.Context, userID, token, platform string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PushToken = token
	u.Platform = platform
	u.UpdatedAt = m.now()
	return nil
}

// UpdateInterests заменяет интересы пользователя.
func (m *Memory) UpdateInterests(_ context.Context, userID string, interests []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Interests = append([]string{}, interests...)
	u.UpdatedAt = m.now()
	return nil
}

// ListPushRecipients возвращает пользователей с токеном.
func (m *Memory) ListPushRecipients(_ context.Context) ([]domain.PushRecipient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]*domain.User, 0, len(m.users))
	for _, u := range m.users {
		if u.PushToken != "" {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	out := make([]domain.PushRecipient, 0, len(users))
	for _, u := range users {
		out = append(out, domain.PushRecipient{UserID: u.ID, Token: u.PushToken})
	}
	return out, nil
}

// ApplyAction меняет действие и счётчик под одной блокировкой.
func (m *Memory) ApplyAction(_ context.Context, userID, tipID string, kind domain.ActionKind) (domain.ActionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tips[tipID]
	if !ok {
		return domain.ActionResult{}, domain.ErrTipNotFound
	}
	if _, ok := m.users[userID]; !ok {
		return domain.ActionResult{}, domain.ErrUserNotFound
	}
	key := actionKey{userID: userID, tipID: tipID, kind: kind}
	_, exists := m.actions[key]

	outcome := domain.ActionAdded
	switch {
	case exists && kind.Toggleable():
		delete(m.actions, key)
		bumpCounter(&t.tip.Counters, kind, -1)
		outcome = domain.ActionRemoved
	case exists:
	default:
		m.actions[key] = m.now()
		bumpCounter(&t.tip.Counters, kind, 1)
	}
	return domain.ActionResult{Outcome: outcome, Kind: kind, Counters: t.tip.Counters}, nil
}

func bumpCounter(c *domain.TipCounters, kind domain.ActionKind, delta int64) {
	switch kind {
	case domain.ActionLike:
		c.Likes += delta
	case domain.ActionSave:
		c.Saves += delta
	case domain.ActionShare:
		c.Shares += delta
	}
}

// ListActionKinds возвращает действия пользователя по советам.
func (m *Memory) ListActionKinds(_ context.Context, userID string, tipIDs []string) (map[string][]domain.ActionKind, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]domain.ActionKind)
	for _, id := range tipIDs {
		for _, kind := range []domain.ActionKind{domain.ActionLike, domain.ActionSave, domain.ActionShare} {
			if _, ok := m.actions[actionKey{userID: userID, tipID: id, kind: kind}]; ok {
				out[id] = append(out[id], kind)
			}
		}
	}
	return out, nil
}

// CountActions возвращает число действий указанного типа по совету.
func (m *Memory) CountActions(tipID string, kind domain.ActionKind) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for key := range m.actions {
		if key.tipID == tipID && key.kind == kind {
			n++
		}
	}
	return n
}

// ListSavedTips возвращает сохранённые советы, последние сохранения первыми.
func (m *Memory) ListSavedTips(_ context.Context, userID string, limit int) ([]domain.Tip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type saved struct {
		tip *memTip
		at  time.Time
	}
	var rows []saved
	for key, at := range m.actions {
		if key.userID != userID || key.kind != domain.ActionSave {
			continue
		}
		if t, ok := m.tips[key.tipID]; ok {
			rows = append(rows, saved{tip: t, at: at})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].at.Equal(rows[j].at) {
			return rows[i].at.After(rows[j].at)
		}
		return rows[i].tip.seq > rows[j].tip.seq
	})
	out := make([]domain.Tip, 0, len(rows))
	for _, r := range rows {
		out = append(out, cloneTip(r.tip.tip))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// CreateJob создаёт запись о запуске генерации.
func (m *Memory) CreateJob(_ context.Context, startedAt time.Time) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := &domain.Job{ID: uuid.NewString(), Status: domain.JobStatusRunning, StartedAt: startedAt}
	m.jobs[job.ID] = job
	return cloneJob(*job), nil
}

func cloneJob(j domain.Job) domain.Job {
	j.Errors = append([]string(nil), j.Errors...)
	if j.Summary != nil {
		s := *j.Summary
		s.TipIDs = append([]string(nil), s.TipIDs...)
		j.Summary = &s
	}
	return j
}

func (m *Memory) finishJob(id string, status domain.JobStatus, tipsCount int, errs []string, summary domain.JobSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status != domain.JobStatusRunning {
		return domain.ErrJobNotFound
	}
	now := m.now()
	job.Status = status
	job.FinishedAt = &now
	job.TipsCount = tipsCount
	job.Errors = append([]string(nil), errs...)
	job.Summary = &summary
	return nil
}

// CompleteJob переводит запуск в completed.
func (m *Memory) CompleteJob(_ context.Context, id string, tipsCount int, summary domain.JobSummary) error {
	return m.finishJob(id, domain.JobStatusCompleted, tipsCount, nil, summary)
}

// FailJob переводит запуск в failed.
func (m *Memory) FailJob(_ context.Context, id string, errs []string, summary domain.JobSummary) error {
	return m.finishJob(id, domain.JobStatusFailed, 0, errs, summary)
}

// GetJob возвращает запуск.
func (m *Memory) GetJob(_ context.Context, id string) (domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}
	return cloneJob(*job), nil
}

// ListRecentJobs возвращает последние запуски.
func (m *Memory) ListRecentJobs(_ context.Context, limit int) ([]domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]domain.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, cloneJob(*j))
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartedAt.After(jobs[j].StartedAt) })
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// GetDailyPush возвращает запись журнала рассылок.
func (m *Memory) GetDailyPush(_ context.Context, date string, slot int) (domain.DailyPush, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pushes[pushKey{date: date, slot: slot}]
	if !ok {
		return domain.DailyPush{}, domain.ErrDailyPushNotFound
	}
	return *p, nil
}

// AcquireDailyPush создаёт запись sending или перехватывает упавшую либо брошенную попытку.
func (m *Memory) AcquireDailyPush(_ context.Context, params domain.AcquirePushParams) (domain.DailyPush, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pushKey{date: params.Date, slot: params.Slot}
	existing, ok := m.pushes[key]
	if ok {
		stale := existing.Status == domain.PushStatusSending && params.StaleAfter > 0 &&
			existing.StartedAt.Before(params.Now.Add(-params.StaleAfter))
		if existing.Status != domain.PushStatusFailed && !stale {
			return *existing, false, nil
		}
	}
	attempts := 1
	if ok {
		attempts = existing.Attempts + 1
	}
	row := &domain.DailyPush{
		Date:           params.Date,
		Slot:           params.Slot,
		TipID:          params.TipID,
		CandidateCount: params.CandidateCount,
		Status:         domain.PushStatusSending,
		Attempts:       attempts,
		StartedAt:      params.Now,
	}
	m.pushes[key] = row
	return *row, true, nil
}

// CompleteDailyPush фиксирует итог рассылки.
func (m *Memory) CompleteDailyPush(_ context.Context, date string, slot, attempt int, sent, errCount int, summary domain.PushSummary, finishedAt time.Time) error {
	if err := summary.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.ownedPush(date, slot, attempt)
	if err != nil {
		return err
	}
	p.Status = domain.PushStatusCompleted
	p.SentCount = sent
	p.ErrorCount = errCount
	p.Summary = &summary
	p.FinishedAt = &finishedAt
	return nil
}

// FailDailyPush фиксирует сбой рассылки.
func (m *Memory) FailDailyPush(_ context.Context, date string, slot, attempt int, summary domain.PushSummary, finishedAt time.Time) error {
	if err := summary.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.ownedPush(date, slot, attempt)
	if err != nil {
		return err
	}
	p.Status = domain.PushStatusFailed
	p.Summary = &summary
	p.FinishedAt = &finishedAt
	return nil
}

// ownedPush возвращает строку в sending, если она принадлежит попытке attempt. Вызывать под m.mu.
func (m *Memory) ownedPush(date string, slot, attempt int) (*domain.DailyPush, error) {
	p, ok := m.pushes[pushKey{date: date, slot: slot}]
	if !ok {
		return nil, domain.ErrDailyPushNotFound
	}
	if p.Status != domain.PushStatusSending || p.Attempts != attempt {
		return nil, domain.ErrPushLeaseLost
	}
	return p, nil
}

// ListDailyPushes возвращает записи журнала за дату.
func (m *Memory) ListDailyPushes(_ context.Context, date string) ([]domain.DailyPush, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.DailyPush, 0)
	for key, p := range m.pushes {
		if key.date == date {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out, nil
}

// RecordBusinessMetric сохраняет событие.
func (m *Memory) RecordBusinessMetric(_ context.Context, metric domain.BusinessMetric) error {
	if metric.Event == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = m.now()
	}
	m.events = append(m.events, metric)
	return nil
}

// BusinessMetrics возвращает сохранённые события.
func (m *Memory) BusinessMetrics() []domain.BusinessMetric {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.BusinessMetric(nil), m.events...)
}
