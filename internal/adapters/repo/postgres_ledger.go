package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Aryainguz/tldev-backend/internal/domain"
	"github.com/Aryainguz/tldev-backend/internal/infra/metrics"
)

// CreateJob создаёт запись о запуске генерации в статусе running.
func (p *Postgres) CreateJob(ctx context.Context, startedAt time.Time) (domain.Job, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	job := domain.Job{Status: domain.JobStatusRunning, StartedAt: startedAt}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO jobs (status, started_at)
VALUES ('running', $1)
RETURNING id::text
`, startedAt).Scan(&job.ID)
	metrics.ObserveNetworkRequest("postgres", "jobs_insert", "jobs", start, err)
	if err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

func (p *Postgres) finishJob(ctx context.Context, id string, status domain.JobStatus, tipsCount int, errs []string, summary domain.JobSummary) error {
	if !validID(id) {
		return domain.ErrJobNotFound
	}
	if errs == nil {
		errs = []string{}
	}
	errsRaw, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	summaryRaw, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE jobs
SET status = $2, finished_at = now(), tips_count = $3, errors = $4, summary = $5
WHERE id = $1 AND status = 'running'
`, id, string(status), tipsCount, errsRaw, summaryRaw)
	metrics.ObserveNetworkRequest("postgres", "jobs_finish", "jobs", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// CompleteJob переводит запуск в completed. Повторное завершение невозможно.
func (p *Postgres) CompleteJob(ctx context.Context, id string, tipsCount int, summary domain.JobSummary) error {
	return p.finishJob(ctx, id, domain.JobStatusCompleted, tipsCount, nil, summary)
}

// FailJob переводит запуск в failed.
func (p *Postgres) FailJob(ctx context.Context, id string, errs []string, summary domain.JobSummary) error {
	return p.finishJob(ctx, id, domain.JobStatusFailed, 0, errs, summary)
}

const jobColumns = `id::text, status, started_at, finished_at, tips_count, errors, summary`

func scanJob(row pgx.Row) (domain.Job, error) {
	var (
		job        domain.Job
		status     string
		errsRaw    []byte
		summaryRaw []byte
	)
	if err := row.Scan(&job.ID, &status, &job.StartedAt, &job.FinishedAt, &job.TipsCount, &errsRaw, &summaryRaw); err != nil {
		return domain.Job{}, err
	}
	job.Status = domain.JobStatus(status)
	if len(errsRaw) > 0 {
		if err := json.Unmarshal(errsRaw, &job.Errors); err != nil {
			return domain.Job{}, err
		}
	}
	if len(summaryRaw) > 0 && string(summaryRaw) != "null" {
		var s domain.JobSummary
		if err := json.Unmarshal(summaryRaw, &s); err != nil {
			return domain.Job{}, err
		}
		job.Summary = &s
	}
	return job, nil
}

// GetJob возвращает запуск.
func (p *Postgres) GetJob(ctx context.Context, id string) (domain.Job, error) {
	if !validID(id) {
		return domain.Job{}, domain.ErrJobNotFound
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	job, err := scanJob(p.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	metrics.ObserveNetworkRequest("postgres", "jobs_get", "jobs", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Job{}, domain.ErrJobNotFound
	}
	return job, err
}

// ListRecentJobs возвращает последние запуски.
func (p *Postgres) ListRecentJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY started_at DESC LIMIT $1`, limit)
	metrics.ObserveNetworkRequest("postgres", "jobs_list", "jobs", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

const pushColumns = `date, slot, COALESCE(tip_id::text, ''), candidate_count, status, attempts, started_at,
       finished_at, sent_count, error_count, summary`

func scanPush(row pgx.Row) (domain.DailyPush, error) {
	var (
		push       domain.DailyPush
		status     string
		summaryRaw []byte
	)
	err := row.Scan(&push.Date, &push.Slot, &push.TipID, &push.CandidateCount, &status, &push.Attempts,
		&push.StartedAt, &push.FinishedAt, &push.SentCount, &push.ErrorCount, &summaryRaw)
	if err != nil {
		return domain.DailyPush{}, err
	}
	push.Status = domain.PushStatus(status)
	summary, err := domain.UnmarshalSummary(summaryRaw)
	if err != nil {
		return domain.DailyPush{}, err
	}
	push.Summary = summary
	return push, nil
}

// GetDailyPush возвращает запись журнала по (дата, слот).
func (p *Postgres) GetDailyPush(ctx context.Context, date string, slot int) (domain.DailyPush, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	push, err := scanPush(p.pool.QueryRow(ctx, `SELECT `+pushColumns+` FROM daily_pushes WHERE date = $1 AND slot = $2`, date, slot))
	metrics.ObserveNetworkRequest("postgres", "daily_pushes_get", "daily_pushes", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DailyPush{}, domain.ErrDailyPushNotFound
	}
	return push, err
}

// AcquireDailyPush атомарно занимает слот. Строка создаётся, если её нет, и перезаписывается,
// только если предыдущая попытка упала или зависла в sending дольше StaleAfter.
// Во всех остальных случаях возвращается существующая строка и false.
// Условие WHERE должно совпадать с Memory.AcquireDailyPush, оба варианта проверяет ledgerContract.
func (p *Postgres) AcquireDailyPush(ctx context.Context, params domain.AcquirePushParams) (domain.DailyPush, bool, error) {
	var staleBefore time.Time
	if params.StaleAfter > 0 {
		staleBefore = params.Now.Add(-params.StaleAfter)
	}
	var tipID *string
	if params.TipID != "" {
		tipID = &params.TipID
	}

	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	push, err := scanPush(p.pool.QueryRow(ctx, `
INSERT INTO daily_pushes (date, slot, tip_id, candidate_count, status, attempts, started_at)
VALUES ($1, $2, $3::uuid, $4, 'sending', 1, $5)
ON CONFLICT (date, slot) DO UPDATE
    SET tip_id = EXCLUDED.tip_id,
        candidate_count = EXCLUDED.candidate_count,
        status = 'sending',
        attempts = daily_pushes.attempts + 1,
        started_at = EXCLUDED.started_at,
        finished_at = NULL,
        sent_count = 0,
        error_count = 0,
        summary = NULL
    WHERE daily_pushes.status = 'failed'
       OR (daily_pushes.status = 'sending' AND daily_pushes.started_at < $6)
RETURNING `+pushColumns,
		params.Date, params.Slot, tipID, params.CandidateCount, params.Now, staleBefore))
	metrics.ObserveNetworkRequest("postgres", "daily_pushes_acquire", "daily_pushes", start, err)
	if err == nil {
		return push, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.DailyPush{}, false, err
	}

	existing, err := p.GetDailyPush(ctx, params.Date, params.Slot)
	if err != nil {
		return domain.DailyPush{}, false, err
	}
	return existing, false, nil
}

func (p *Postgres) finishPush(ctx context.Context, op, query string, args ...any) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", op, "daily_pushes", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrPushLeaseLost
	}
	return nil
}

// CompleteDailyPush переводит слот в completed.
func (p *Postgres) CompleteDailyPush(ctx context.Context, date string, slot, attempt int, sent, errCount int, summary domain.PushSummary, finishedAt time.Time) error {
	raw, err := domain.MarshalSummary(summary)
	if err != nil {
		return err
	}
	return p.finishPush(ctx, "daily_pushes_complete", `
UPDATE daily_pushes
SET status = 'completed', sent_count = $4, error_count = $5, summary = $6, finished_at = $7
WHERE date = $1 AND slot = $2 AND attempts = $3 AND status = 'sending'
`, date, slot, attempt, sent, errCount, raw, finishedAt)
}

// FailDailyPush переводит слот в failed.
func (p *Postgres) FailDailyPush(ctx context.Context, date string, slot, attempt int, summary domain.PushSummary, finishedAt time.Time) error {
	raw, err := domain.MarshalSummary(summary)
	if err != nil {
		return err
	}
	return p.finishPush(ctx, "daily_pushes_fail", `
UPDATE daily_pushes
SET status = 'failed', summary = $4, finished_at = $5
WHERE date = $1 AND slot = $2 AND attempts = $3 AND status = 'sending'
`, date, slot, attempt, raw, finishedAt)
}

// ListDailyPushes возвращает журнал за дату.
func (p *Postgres) ListDailyPushes(ctx context.Context, date string) ([]domain.DailyPush, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+pushColumns+` FROM daily_pushes WHERE date = $1 ORDER BY slot`, date)
	metrics.ObserveNetworkRequest("postgres", "daily_pushes_list", "daily_pushes", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DailyPush
	for rows.Next() {
		push, err := scanPush(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, push)
	}
	return out, rows.Err()
}
