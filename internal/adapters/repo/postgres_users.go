package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Aryainguz/tldev-backend/internal/domain"
	"github.com/Aryainguz/tldev-backend/internal/infra/metrics"
)

const userColumns = `id::text, email, COALESCE(provider, ''), COALESCE(provider_id, ''), COALESCE(name, ''),
       COALESCE(avatar_url, ''), interests, COALESCE(push_token, ''), COALESCE(platform, ''), created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.Provider, &u.ProviderID, &u.Name, &u.AvatarURL, &u.Interests,
		&u.PushToken, &u.Platform, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, err
	}
	if u.Interests == nil {
		u.Interests = []string{}
	}
	return u, nil
}

// EnsureUser реализует «создать, если отсутствует» по id, email или паре провайдера.
func (p *Postgres) EnsureUser(ctx context.Context, profile domain.UserProfile) (domain.User, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if profile.ID != "" {
		start := time.Now()
		u, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, profile.ID))
		metrics.ObserveNetworkRequest("postgres", "users_get", "users", start, err)
		if err == nil {
			return u, false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, false, err
		}
	}

	if profile.ProviderID != "" {
		start := time.Now()
		u, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE provider = $1 AND provider_id = $2`,
			profile.Provider, profile.ProviderID))
		metrics.ObserveNetworkRequest("postgres", "users_get_by_provider", "users", start, err)
		if err == nil {
			return u, false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, false, err
		}
	}

	start := time.Now()
	u, err := scanUser(p.pool.QueryRow(ctx, `
INSERT INTO users (id, email, provider, provider_id, name, avatar_url)
VALUES (COALESCE(NULLIF($6, '')::uuid, gen_random_uuid()), $1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''))
ON CONFLICT DO NOTHING
RETURNING `+userColumns,
		profile.Email, profile.Provider, profile.ProviderID, profile.Name, profile.AvatarURL, profile.ID))
	metrics.ObserveNetworkRequest("postgres", "users_insert", "users", start, err)
	if err == nil {
		return u, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, false, err
	}

	// вставку опередил параллельный запрос
	start = time.Now()
	u, err = scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id::text = $1 OR email = $2 LIMIT 1`,
		profile.ID, profile.Email))
	metrics.ObserveNetworkRequest("postgres", "users_get_by_email", "users", start, err)
	if err != nil {
		return domain.User{}, false, err
	}
	return u, false, nil
}

// GetUser возвращает пользователя.
func (p *Postgres) GetUser(ctx context.Context, id string) (domain.User, error) {
	if !validID(id) {
		return domain.User{}, domain.ErrUserNotFound
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	u, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	metrics.ObserveNetworkRequest("postgres", "users_get", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, err
}

func (p *Postgres) updateUser(ctx context.Context, op, query string, args ...any) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", op, "users", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// UpdatePushToken перезаписывает токен устройства.
func (p *Postgres) UpdatePushToken(ctx context.Context, userID, token, platform string) error {
	if !validID(userID) {
		return domain.ErrUserNotFound
	}
	return p.updateUser(ctx, "users_update_push_token",
		`UPDATE users SET push_token = NULLIF($2, ''), platform = NULLIF($3, ''), updated_at = now() WHERE id = $1`,
		userID, token, platform)
}

// UpdateInterests заменяет интересы.
func (p *Postgres) UpdateInterests(ctx context.Context, userID string, interests []string) error {
	if !validID(userID) {
		return domain.ErrUserNotFound
	}
	if interests == nil {
		interests = []string{}
	}
	return p.updateUser(ctx, "users_update_interests",
		`UPDATE users SET interests = $2, updated_at = now() WHERE id = $1`, userID, interests)
}

// ListPushRecipients возвращает пользователей с токеном.
func (p *Postgres) ListPushRecipients(ctx context.Context) ([]domain.PushRecipient, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id::text, push_token
FROM users
WHERE push_token IS NOT NULL AND push_token <> ''
ORDER BY created_at, id
`)
	metrics.ObserveNetworkRequest("postgres", "users_list_recipients", "users", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PushRecipient
	for rows.Next() {
		var r domain.PushRecipient
		if err := rows.Scan(&r.UserID, &r.Token); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func counterColumn(kind domain.ActionKind) (string, error) {
	switch kind {
	case domain.ActionLike:
		return "likes_count", nil
	case domain.ActionSave:
		return "saves_count", nil
	case domain.ActionShare:
		return "shares_count", nil
	default:
		return "", domain.ErrInvalidActionKind
	}
}

// ApplyAction в одной транзакции меняет наличие действия и соответствующий счётчик.
func (p *Postgres) ApplyAction(ctx context.Context, userID, tipID string, kind domain.ActionKind) (domain.ActionResult, error) {
	if !validID(tipID) {
		return domain.ActionResult{}, domain.ErrTipNotFound
	}
	if !validID(userID) {
		return domain.ActionResult{}, domain.ErrUserNotFound
	}
	column, err := counterColumn(kind)
	if err != nil {
		return domain.ActionResult{}, err
	}

	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "actions", start, err)
	if err != nil {
		return domain.ActionResult{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exists bool
	start = time.Now()
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "users_exists", "users", start, err)
	if err != nil {
		return domain.ActionResult{}, err
	}
	if !exists {
		return domain.ActionResult{}, domain.ErrUserNotFound
	}

	// Блокировка строки совета упорядочивает конкурентные переключения.
	start = time.Now()
	_, err = tx.Exec(ctx, `SELECT 1 FROM tips WHERE id = $1 FOR UPDATE`, tipID)
	metrics.ObserveNetworkRequest("postgres", "tips_lock", "tips", start, err)
	if err != nil {
		return domain.ActionResult{}, err
	}

	outcome := domain.ActionAdded
	var delta int64
	if kind.Toggleable() {
		start = time.Now()
		res, err := tx.Exec(ctx, `DELETE FROM actions WHERE user_id = $1 AND tip_id = $2 AND kind = $3`, userID, tipID, string(kind))
		metrics.ObserveNetworkRequest("postgres", "actions_delete", "actions", start, err)
		if err != nil {
			return domain.ActionResult{}, err
		}
		if res.RowsAffected() > 0 {
			outcome = domain.ActionRemoved
			delta = -1
		}
	}
	if outcome == domain.ActionAdded {
		start = time.Now()
		res, err := tx.Exec(ctx, `
INSERT INTO actions (user_id, tip_id, kind)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, tip_id, kind) DO NOTHING
`, userID, tipID, string(kind))
		metrics.ObserveNetworkRequest("postgres", "actions_insert", "actions", start, err)
		if err != nil {
			return domain.ActionResult{}, err
		}
		if res.RowsAffected() > 0 {
			delta = 1
		}
	}

	var counters domain.TipCounters
	start = time.Now()
	err = tx.QueryRow(ctx, fmt.Sprintf(`
UPDATE tips SET %[1]s = %[1]s + $2
WHERE id = $1
RETURNING likes_count, saves_count, shares_count, views_count
`, column), tipID, delta).Scan(&counters.Likes, &counters.Saves, &counters.Shares, &counters.Views)
	metrics.ObserveNetworkRequest("postgres", "tips_update_counter", "tips", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ActionResult{}, domain.ErrTipNotFound
	}
	if err != nil {
		return domain.ActionResult{}, err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit_tx", "actions", start, err)
	if err != nil {
		return domain.ActionResult{}, err
	}
	return domain.ActionResult{Outcome: outcome, Kind: kind, Counters: counters}, nil
}

// ListActionKinds возвращает действия пользователя по набору советов.
func (p *Postgres) ListActionKinds(ctx context.Context, userID string, tipIDs []string) (map[string][]domain.ActionKind, error) {
	out := make(map[string][]domain.ActionKind)
	if !validID(userID) || len(tipIDs) == 0 {
		return out, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT tip_id::text, kind
FROM actions
WHERE user_id = $1 AND tip_id::text = ANY($2)
`, userID, tipIDs)
	metrics.ObserveNetworkRequest("postgres", "actions_list_kinds", "actions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var tipID, kind string
		if err := rows.Scan(&tipID, &kind); err != nil {
			return nil, err
		}
		out[tipID] = append(out[tipID], domain.ActionKind(kind))
	}
	return out, rows.Err()
}

// ListSavedTips возвращает сохранённые пользователем советы.
func (p *Postgres) ListSavedTips(ctx context.Context, userID string, limit int) ([]domain.Tip, error) {
	if !validID(userID) {
		return nil, domain.ErrUserNotFound
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+prefixedTipColumns+`
FROM actions a
JOIN tips t ON t.id = a.tip_id
WHERE a.user_id = $1 AND a.kind = 'save'
ORDER BY a.created_at DESC, t.id DESC
LIMIT $2
`, userID, limit)
	metrics.ObserveNetworkRequest("postgres", "actions_list_saved", "actions", start, err)
	if err != nil {
		return nil, err
	}
	return collectTips(rows)
}

const prefixedTipColumns = `t.id::text, t.headline, t.summary, t.detail, COALESCE(t.code_sample, ''), t.category, t.tags,
       t.topic_slug, t.technology, t.headline_pattern, t.image, t.link,
       t.likes_count, t.saves_count, t.shares_count, t.views_count,
       t.status, t.source, COALESCE(t.model, ''), COALESCE(t.job_id::text, ''), t.created_at, t.published_at`
