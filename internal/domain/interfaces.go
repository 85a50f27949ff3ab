package domain

import (
	"context"
	"time"
)

// TipRepo управляет советами.
type TipRepo interface {
	CreateDraftTips(ctx context.Context, tips []Tip) ([]Tip, error)
	GetTip(ctx context.Context, id string) (Tip, error)
	ListDraftTips(ctx context.Context, limit int) ([]Tip, error)
	// PublishEnriched сохраняет результат обогащения и переводит совет в published одной записью.
	PublishEnriched(ctx context.Context, id string, image *TipImage, link *TipLink) (Tip, error)
	// ListPushCandidates возвращает опубликованные советы от старых к новым.
	ListPushCandidates(ctx context.Context) ([]Tip, error)
	ListFeed(ctx context.Context, q FeedQuery) ([]Tip, error)
	IncrementViews(ctx context.Context, id string) error
	RecentTopicKeys(ctx context.Context, limit int) ([]TopicKey, error)
}

// UserRepo управляет пользователями.
type UserRepo interface {
	// EnsureUser создаёт пользователя, если его ещё нет, и возвращает признак создания.
	EnsureUser(ctx context.Context, profile UserProfile) (User, bool, error)
	GetUser(ctx context.Context, id string) (User, error)
	UpdatePushToken(ctx context.Context, userID, token, platform string) error
	UpdateInterests(ctx context.Context, userID string, interests []string) error
	ListPushRecipients(ctx context.Context) ([]PushRecipient, error)
}

// ActionRepo хранит действия и атомарно меняет связанные счётчики.
type ActionRepo interface {
	// ApplyAction в одной транзакции создаёт или удаляет действие и меняет счётчик совета.
	ApplyAction(ctx context.Context, userID, tipID string, kind ActionKind) (ActionResult, error)
	// ListActionKinds возвращает действия пользователя по указанным советам.
	ListActionKinds(ctx context.Context, userID string, tipIDs []string) (map[string][]ActionKind, error)
	ListSavedTips(ctx context.Context, userID string, limit int) ([]Tip, error)
}

// JobRepo ведёт журнал запусков генерации.
type JobRepo interface {
	CreateJob(ctx context.Context, startedAt time.Time) (Job, error)
	CompleteJob(ctx context.Context, id string, tipsCount int, summary JobSummary) error
	FailJob(ctx context.Context, id string, errs []string, summary JobSummary) error
	GetJob(ctx context.Context, id string) (Job, error)
	ListRecentJobs(ctx context.Context, limit int) ([]Job, error)
}

// DailyPushRepo ведёт журнал идемпотентности рассылок.
type DailyPushRepo interface {
	GetDailyPush(ctx context.Context, date string, slot int) (DailyPush, error)
	// AcquireDailyPush атомарно создаёт запись в статусе sending. Возвращает false без ошибки,
	// если слот уже завершён или занят свежей попыткой.
	AcquireDailyPush(ctx context.Context, params AcquirePushParams) (DailyPush, bool, error)
	// CompleteDailyPush и FailDailyPush пишут только в попытку attempt, полученную от AcquireDailyPush.
	// Если слот уже перехвачен, возвращается ErrPushLeaseLost.
	CompleteDailyPush(ctx context.Context, date string, slot, attempt int, sent, errCount int, summary PushSummary, finishedAt time.Time) error
	FailDailyPush(ctx context.Context, date string, slot, attempt int, summary PushSummary, finishedAt time.Time) error
	ListDailyPushes(ctx context.Context, date string) ([]DailyPush, error)
}

// GenerateRequest задаёт параметры вызова модели.
type GenerateRequest struct {
	Count    int
	Category string
	Exclude  []TopicKey
}

// GeneratedTip описывает структурированный совет от модели.
type GeneratedTip struct {
	Headline        string   `json:"headline"`
	Summary         string   `json:"summary"`
	Detail          string   `json:"detail"`
	CodeSample      string   `json:"code_sample"`
	Category        string   `json:"category"`
	Tags            []string `json:"tags"`
	TopicSlug       string   `json:"topic_slug"`
	Technology      string   `json:"technology"`
	HeadlinePattern string   `json:"headline_pattern"`
}

// GenerateResponse содержит ответ модели.
type GenerateResponse struct {
	Tips  []GeneratedTip
	Model string
}

// TipGenerator вызывает модель генерации текста.
type TipGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
}

// ImageFinder ищет иллюстрацию по категории. nil без ошибки означает «ничего не найдено».
type ImageFinder interface {
	FindImage(ctx context.Context, category string) (*TipImage, error)
}

// LinkFinder ищет ссылку «узнать больше». nil без ошибки означает «ничего не найдено».
type LinkFinder interface {
	FindLink(ctx context.Context, text, category string) (*TipLink, error)
}

// PushMessage описывает уведомление для одного получателя.
type PushMessage struct {
	To       string         `json:"to"`
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Data     map[string]any `json:"data,omitempty"`
	ImageURL string         `json:"-"`
}

// PushTicketStatus описывает статус тикета провайдера.
type PushTicketStatus string

const (
	PushTicketOK    PushTicketStatus = "ok"
	PushTicketError PushTicketStatus = "error"
)

// PushTicket содержит ответ провайдера на одно сообщение.
type PushTicket struct {
	Status  PushTicketStatus `json:"status"`
	ID      string           `json:"id,omitempty"`
	Message string           `json:"message,omitempty"`
}

// PushSender отправляет пачку уведомлений и возвращает тикеты в том же порядке.
type PushSender interface {
	SendBatch(ctx context.Context, messages []PushMessage) ([]PushTicket, error)
	// ChunkSize возвращает максимальный размер пачки провайдера.
	ChunkSize() int
	// ValidToken проверяет формат токена до отправки.
	ValidToken(token string) bool
}

// EnrichQueue публикует идентификаторы черновиков на обогащение.
type EnrichQueue interface {
	PublishDrafts(ctx context.Context, tipIDs []string) error
}

// Alerter сообщает операторам о сбоях стадий.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}
