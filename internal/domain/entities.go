package domain

import "time"

// TipStatus описывает стадию жизненного цикла совета.
type TipStatus string

const (
	// TipStatusDraft: совет сгенерирован, но обогащение ещё не выполнялось.
	TipStatusDraft TipStatus = "draft"
	// TipStatusPublished: обогащение выполнено (успешно или нет), совет виден в ленте.
	TipStatusPublished TipStatus = "published"
)

// TipSourceAI отмечает советы, созданные моделью.
const TipSourceAI = "ai"

// TipImage хранит иллюстрацию и атрибуцию автора.
type TipImage struct {
	URL          string `json:"url"`
	ThumbURL     string `json:"thumb_url,omitempty"`
	Alt          string `json:"alt,omitempty"`
	AuthorName   string `json:"author_name,omitempty"`
	AuthorURL    string `json:"author_url,omitempty"`
	Provider     string `json:"provider,omitempty"`
	ProviderID   string `json:"provider_id,omitempty"`
	DownloadURL  string `json:"-"`
	BlurHash     string `json:"blur_hash,omitempty"`
	PrimaryColor string `json:"color,omitempty"`
}

// TipLink описывает ссылку «узнать больше».
type TipLink struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	Source  string `json:"source,omitempty"`
}

// TipCounters содержит счётчики вовлечённости.
type TipCounters struct {
	Likes  int64 `json:"likes"`
	Saves  int64 `json:"saves"`
	Shares int64 `json:"shares"`
	Views  int64 `json:"views"`
}

// Tip — единица контента.
type Tip struct {
	ID              string      `json:"id"`
	Headline        string      `json:"headline"`
	Summary         string      `json:"summary"`
	Detail          string      `json:"detail"`
	CodeSample      string      `json:"code_sample,omitempty"`
	Category        string      `json:"category"`
	Tags            []string    `json:"tags"`
	TopicSlug       string      `json:"topic_slug"`
	Technology      string      `json:"technology,omitempty"`
	HeadlinePattern string      `json:"-"`
	Image           *TipImage   `json:"image,omitempty"`
	Link            *TipLink    `json:"link,omitempty"`
	Counters        TipCounters `json:"counters"`
	Status          TipStatus   `json:"status"`
	Source          string      `json:"source"`
	Model           string      `json:"model,omitempty"`
	JobID           string      `json:"job_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	PublishedAt     *time.Time  `json:"published_at,omitempty"`
}

// Published сообщает, виден ли совет в ленте.
func (t Tip) Published() bool {
	return t.Status == TipStatusPublished
}

// User описывает пользователя мобильного клиента.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Provider   string    `json:"provider,omitempty"`
	ProviderID string    `json:"provider_id,omitempty"`
	Name       string    `json:"name,omitempty"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	Interests  []string  `json:"interests"`
	PushToken  string    `json:"-"`
	Platform   string    `json:"platform,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UserProfile содержит данные для создания пользователя «если отсутствует».
type UserProfile struct {
	// ID задаёт идентификатор нового пользователя. Пустой ID генерируется хранилищем.
	ID         string
	Email      string
	Provider   string
	ProviderID string
	Name       string
	AvatarURL  string
}

// PushRecipient связывает пользователя с токеном для рассылки.
type PushRecipient struct {
	UserID string
	Token  string
}

// ActionKind задаёт тип взаимодействия пользователя с советом.
type ActionKind string

const (
	ActionLike  ActionKind = "like"
	ActionSave  ActionKind = "save"
	ActionShare ActionKind = "share"
)

// ParseActionKind проверяет тип действия.
func ParseActionKind(raw string) (ActionKind, error) {
	switch kind := ActionKind(raw); kind {
	case ActionLike, ActionSave, ActionShare:
		return kind, nil
	default:
		return "", ErrInvalidActionKind
	}
}

// Toggleable сообщает, снимается ли действие повторным вызовом.
func (k ActionKind) Toggleable() bool {
	return k == ActionLike || k == ActionSave
}

// Action описывает взаимодействие пользователя с советом.
type Action struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TipID     string     `json:"tip_id"`
	Kind      ActionKind `json:"kind"`
	CreatedAt time.Time  `json:"created_at"`
}

// ActionOutcome описывает итог применения действия.
type ActionOutcome string

const (
	ActionAdded   ActionOutcome = "added"
	ActionRemoved ActionOutcome = "removed"
)

// ActionResult возвращается после применения действия вместе с актуальными счётчиками.
type ActionResult struct {
	Outcome  ActionOutcome `json:"outcome"`
	Kind     ActionKind    `json:"kind"`
	Counters TipCounters   `json:"counters"`
}

// FeedQuery задаёт параметры постраничного чтения ленты.
type FeedQuery struct {
	Cursor   string
	Limit    int
	Category string
}

// FeedPage описывает страницу ленты.
type FeedPage struct {
	Tips       []FeedTip `json:"tips"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// FeedTip дополняет совет флагами текущего пользователя.
type FeedTip struct {
	Tip
	Liked bool `json:"liked"`
	Saved bool `json:"saved"`
}

// TopicKey содержит ключи уникальности совета.
type TopicKey struct {
	TopicSlug       string `json:"topic_slug"`
	Technology      string `json:"technology"`
	HeadlinePattern string `json:"headline_pattern"`
	Headline        string `json:"headline"`
}
