package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Aryainguz/tldev-backend/internal/domain"
	"github.com/Aryainguz/tldev-backend/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.TipRepo            = (*Postgres)(nil)
	_ domain.UserRepo           = (*Postgres)(nil)
	_ domain.ActionRepo         = (*Postgres)(nil)
	_ domain.JobRepo            = (*Postgres)(nil)
	_ domain.DailyPushRepo      = (*Postgres)(nil)
	_ domain.BusinessMetricRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// validID отсекает строки, которые Postgres не сможет привести к uuid.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func marshalNullable(v any) ([]byte, error) {
	switch x := v.(type) {
	case *domain.TipImage:
		if x == nil {
			return nil, nil
		}
	case *domain.TipLink:
		if x == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

// RecordBusinessMetric сохраняет бизнесовую метрику в БД.
func (p *Postgres) RecordBusinessMetric(ctx context.Context, metric domain.BusinessMetric) error {
	if metric.Event == "" {
		return nil
	}
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var payload []byte
	if metric.Metadata != nil {
		if data, err := json.Marshal(metric.Metadata); err == nil {
			payload = data
		}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO business_metrics (event, user_id, tip_id, metadata, occurred_at)
VALUES ($1, $2::uuid, $3::uuid, $4, $5)
`, metric.Event, metric.UserID, metric.TipID, payload, metric.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "business_metrics_insert", "business_metrics", start, err)
	return err
}

const tipColumns = `id::text, headline, summary, detail, COALESCE(code_sample, ''), category, tags,
       topic_slug, technology, headline_pattern, image, link,
       likes_count, saves_count, shares_count, views_count,
       status, source, COALESCE(model, ''), COALESCE(job_id::text, ''), created_at, published_at`

func scanTip(row pgx.Row) (domain.Tip, error) {
	var (
		t         domain.Tip
		image     []byte
		link      []byte
		status    string
		published *time.Time
	)
	err := row.Scan(
		&t.ID, &t.Headline, &t.Summary, &t.Detail, &t.CodeSample, &t.Category, &t.Tags,
		&t.TopicSlug, &t.Technology, &t.HeadlinePattern, &image, &link,
		&t.Counters.Likes, &t.Counters.Saves, &t.Counters.Shares, &t.Counters.Views,
		&status, &t.Source, &t.Model, &t.JobID, &t.CreatedAt, &published,
	)
	if err != nil {
		return domain.Tip{}, err
	}
	t.Status = domain.TipStatus(status)
	t.PublishedAt = published
	if len(image) > 0 {
		var img domain.TipImage
		if err := json.Unmarshal(image, &img); err != nil {
			return domain.Tip{}, fmt.Errorf("decode tip image: %w", err)
		}
		t.Image = &img
	}
	if len(link) > 0 {
		var l domain.TipLink
		if err := json.Unmarshal(link, &l); err != nil {
			return domain.Tip{}, fmt.Errorf("decode tip link: %w", err)
		}
		t.Link = &l
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return t, nil
}

func collectTips(rows pgx.Rows) ([]domain.Tip, error) {
	defer rows.Close()
	var tips []domain.Tip
	for rows.Next() {
		t, err := scanTip(rows)
		if err != nil {
			return nil, err
		}
		tips = append(tips, t)
	}
	return tips, rows.Err()
}

// CreateDraftTips сохраняет черновики одной транзакцией.
func (p *Postgres) CreateDraftTips(ctx context.Context, tips []domain.Tip) ([]domain.Tip, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "tips", start, err)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	out := make([]domain.Tip, 0, len(tips))
	for _, t := range tips {
		if t.Source == "" {
			t.Source = domain.TipSourceAI
		}
		if t.Tags == nil {
			t.Tags = []string{}
		}
		var jobID *string
		if t.JobID != "" {
			jobID = &t.JobID
		}
		start := time.Now()
		saved, err := scanTip(tx.QueryRow(ctx, `
INSERT INTO tips (headline, summary, detail, code_sample, category, tags, topic_slug, technology,
                  headline_pattern, status, source, model, job_id)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, 'draft', $10, NULLIF($11, ''), $12::uuid)
RETURNING `+tipColumns,
			t.Headline, t.Summary, t.Detail, t.CodeSample, t.Category, t.Tags, t.TopicSlug, t.Technology,
			t.HeadlinePattern, t.Source, t.Model, jobID))
		metrics.ObserveNetworkRequest("postgres", "tips_insert", "tips", start, err)
		if err != nil {
			return nil, err
		}
		out = append(out, saved)
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit_tx", "tips", start, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetTip возвращает совет.
func (p *Postgres) GetTip(ctx context.Context, id string) (domain.Tip, error) {
	if !validID(id) {
		return domain.Tip{}, domain.ErrTipNotFound
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	t, err := scanTip(p.pool.QueryRow(ctx, `SELECT `+tipColumns+` FROM tips WHERE id = $1`, id))
	metrics.ObserveNetworkRequest("postgres", "tips_get", "tips", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Tip{}, domain.ErrTipNotFound
	}
	return t, err
}

// ListDraftTips возвращает черновики от старых к новым.
func (p *Postgres) ListDraftTips(ctx context.Context, limit int) ([]domain.Tip, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+tipColumns+`
FROM tips
WHERE status = 'draft'
ORDER BY created_at, id
LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("postgres", "tips_list_drafts", "tips", start, err)
	if err != nil {
		return nil, err
	}
	return collectTips(rows)
}

// PublishEnriched записывает найденные изображение и ссылку и публикует совет.
// Отсутствующие значения не затирают ранее сохранённые, статус никогда не возвращается в draft.
func (p *Postgres) PublishEnriched(ctx context.Context, id string, image *domain.TipImage, link *domain.TipLink) (domain.Tip, error) {
	if !validID(id) {
		return domain.Tip{}, domain.ErrTipNotFound
	}
	imageRaw, err := marshalNullable(image)
	if err != nil {
		return domain.Tip{}, err
	}
	linkRaw, err := marshalNullable(link)
	if err != nil {
		return domain.Tip{}, err
	}

	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	t, err := scanTip(p.pool.QueryRow(ctx, `
UPDATE tips
SET image = COALESCE($2::jsonb, image),
    link = COALESCE($3::jsonb, link),
    status = 'published',
    published_at = COALESCE(published_at, now())
WHERE id = $1
RETURNING `+tipColumns, id, imageRaw, linkRaw))
	metrics.ObserveNetworkRequest("postgres", "tips_publish", "tips", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Tip{}, domain.ErrTipNotFound
	}
	return t, err
}

// ListPushCandidates возвращает опубликованные советы от старых к новым.
func (p *Postgres) ListPushCandidates(ctx context.Context) ([]domain.Tip, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+tipColumns+`
FROM tips
WHERE status = 'published'
ORDER BY created_at, id
`)
	metrics.ObserveNetworkRequest("postgres", "tips_list_candidates", "tips", start, err)
	if err != nil {
		return nil, err
	}
	return collectTips(rows)
}

// ListFeed возвращает опубликованные советы от новых к старым после курсора.
func (p *Postgres) ListFeed(ctx context.Context, q domain.FeedQuery) ([]domain.Tip, error) {
	if q.Cursor != "" && !validID(q.Cursor) {
		return nil, domain.ErrTipNotFound
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+tipColumns+`
FROM tips
WHERE status = 'published'
  AND ($1 = '' OR category = $1)
  AND ($2 = '' OR (created_at, id) < (SELECT c.created_at, c.id FROM tips c WHERE c.id = NULLIF($2, '')::uuid))
ORDER BY created_at DESC, id DESC
LIMIT $3
`, q.Category, q.Cursor, q.Limit)
	metrics.ObserveNetworkRequest("postgres", "tips_list_feed", "tips", start, err)
	if err != nil {
		return nil, err
	}
	return collectTips(rows)
}

// IncrementViews атомарно увеличивает счётчик просмотров.
func (p *Postgres) IncrementViews(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.ErrTipNotFound
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `UPDATE tips SET views_count = views_count + 1 WHERE id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "tips_increment_views", "tips", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrTipNotFound
	}
	return nil
}

// RecentTopicKeys возвращает ключи уникальности последних советов.
func (p *Postgres) RecentTopicKeys(ctx context.Context, limit int) ([]domain.TopicKey, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT topic_slug, technology, headline_pattern, headline
FROM tips
ORDER BY created_at DESC, id DESC
LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("postgres", "tips_recent_topics", "tips", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []domain.TopicKey
	for rows.Next() {
		var k domain.TopicKey
		if err := rows.Scan(&k.TopicSlug, &k.Technology, &k.HeadlinePattern, &k.Headline); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
