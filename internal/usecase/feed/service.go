// Package feed отдаёт ленту опубликованных советов и карточку совета.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aryainguz/tldev-backend/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// ErrInvalidCursor возвращается, если курсор не указывает на существующий совет.
var ErrInvalidCursor = errors.New("feed: invalid cursor")

// Config задаёт размер страницы и время жизни кэша.
type Config struct {
	PageSize int
	CacheTTL time.Duration
}

// Service читает ленту. Cache необязателен.
type Service struct {
	tips    domain.TipRepo
	actions domain.ActionRepo
	cache   domain.Cache
	cfg     Config
	log     zerolog.Logger
}

// NewService создаёт сервис ленты.
func NewService(tips domain.TipRepo, actions domain.ActionRepo, cache domain.Cache, cfg Config, logger zerolog.Logger) *Service {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	return &Service{
		tips:    tips,
		actions: actions,
		cache:   cache,
		cfg:     cfg,
		log:     logger.With().Str("component", "feed").Logger(),
	}
}

// Query описывает запрос страницы ленты. UserID пустой для анонимного клиента.
type Query struct {
	UserID   string
	Cursor   string
	Limit    int
	Category string
}

type cachedPage struct {
	Tips       []domain.Tip `json:"tips"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// List возвращает страницу ленты от новых к старым. NextCursor пуст на последней странице.
func (s *Service) List(ctx context.Context, q Query) (domain.FeedPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = s.cfg.PageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	category := strings.ToLower(strings.TrimSpace(q.Category))

	page, err := s.loadPage(ctx, domain.FeedQuery{Cursor: q.Cursor, Limit: limit, Category: category})
	if err != nil {
		return domain.FeedPage{}, err
	}
	tips, err := s.decorate(ctx, q.UserID, page.Tips)
	if err != nil {
		return domain.FeedPage{}, err
	}
	return domain.FeedPage{Tips: tips, NextCursor: page.NextCursor}, nil
}

func (s *Service) loadPage(ctx context.Context, q domain.FeedQuery) (cachedPage, error) {
	key := fmt.Sprintf("feed:%s:%s:%d", q.Category, q.Cursor, q.Limit)
	if s.cache != nil && s.cfg.CacheTTL > 0 {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var page cachedPage
			if err := json.Unmarshal(raw, &page); err == nil {
				return page, nil
			}
		}
	}

	// на один больше, чтобы понять, есть ли следующая страница
	rows, err := s.tips.ListFeed(ctx, domain.FeedQuery{Cursor: q.Cursor, Limit: q.Limit + 1, Category: q.Category})
	if errors.Is(err, domain.ErrTipNotFound) {
		return cachedPage{}, ErrInvalidCursor
	}
	if err != nil {
		return cachedPage{}, fmt.Errorf("list feed: %w", err)
	}
	page := cachedPage{Tips: rows}
	if len(rows) > q.Limit {
		page.Tips = rows[:q.Limit]
		page.NextCursor = page.Tips[len(page.Tips)-1].ID
	}

	if s.cache != nil && s.cfg.CacheTTL > 0 {
		if raw, err := json.Marshal(page); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.cfg.CacheTTL); err != nil {
				s.log.Warn().Err(err).Str("key", key).Msg("feed: cache write failed")
			}
		}
	}
	return page, nil
}

// decorate проставляет флаги liked/saved для известного пользователя.
func (s *Service) decorate(ctx context.Context, userID string, tips []domain.Tip) ([]domain.FeedTip, error) {
	out := make([]domain.FeedTip, 0, len(tips))
	var kinds map[string][]domain.ActionKind
	if userID != "" && len(tips) > 0 && s.actions != nil {
		ids := make([]string, 0, len(tips))
		for _, t := range tips {
			ids = append(ids, t.ID)
		}
		var err error
		kinds, err = s.actions.ListActionKinds(ctx, userID, ids)
		if err != nil {
			return nil, fmt.Errorf("list action kinds: %w", err)
		}
	}
	for _, t := range tips {
		ft := domain.FeedTip{Tip: t}
		for _, k := range kinds[t.ID] {
			switch k {
			case domain.ActionLike:
				ft.Liked = true
			case domain.ActionSave:
				ft.Saved = true
			}
		}
		out = append(out, ft)
	}
	return out, nil
}

// Get возвращает опубликованный совет и учитывает просмотр.
// Черновики наружу не отдаются.
func (s *Service) Get(ctx context.Context, userID, tipID string) (domain.FeedTip, error) {
	tip, err := s.tips.GetTip(ctx, tipID)
	if err != nil {
		return domain.FeedTip{}, err
	}
	if !tip.Published() {
		return domain.FeedTip{}, domain.ErrTipNotFound
	}
	if err := s.tips.IncrementViews(ctx, tipID); err != nil {
		s.log.Warn().Err(err).Str("tip_id", tipID).Msg("feed: increment views failed")
	} else {
		tip.Counters.Views++
	}
	tips, err := s.decorate(ctx, userID, []domain.Tip{tip})
	if err != nil {
		return domain.FeedTip{}, err
	}
	return tips[0], nil
}

// ListSaved возвращает сохранённые пользователем советы.
func (s *Service) ListSaved(ctx context.Context, userID string, limit int) ([]domain.FeedTip, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	tips, err := s.actions.ListSavedTips(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list saved tips: %w", err)
	}
	return s.decorate(ctx, userID, tips)
}
