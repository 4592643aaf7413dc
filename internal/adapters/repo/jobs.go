package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"newspaper/internal/domain"
	"newspaper/internal/infra/metrics"
)

// AcquireScheduleTask вставляет запись о поставленной задаче и возвращает true, если удалось.
func (p *Postgres) AcquireScheduleTask(ctx context.Context, name string, scheduledFor time.Time) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
INSERT INTO schedule_tasks (name, scheduled_for)
VALUES ($1, $2)
ON CONFLICT (name, scheduled_for) DO NOTHING
`, name, scheduledFor)
	metrics.ObserveNetworkRequest("postgres", "schedule_tasks_acquire", "schedule_tasks", start, err)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// ReleaseScheduleTask удаляет запись о запуске, чтобы его можно было поставить повторно.
func (p *Postgres) ReleaseScheduleTask(ctx context.Context, name string, scheduledFor time.Time) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM schedule_tasks WHERE name = $1 AND scheduled_for = $2`, name, scheduledFor)
	metrics.ObserveNetworkRequest("postgres", "schedule_tasks_release", "schedule_tasks", start, err)
	return err
}

// EnsureJob фиксирует попытку обработки задачи.
func (p *Postgres) EnsureJob(ctx context.Context, jobID string, kind domain.JobKind) (bool, int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		doneAt   sql.NullTime
		attempts int
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO job_statuses (job_id, kind, attempts)
VALUES ($1, $2, 1)
ON CONFLICT (job_id) DO UPDATE
SET attempts = job_statuses.attempts + 1, updated_at = now()
RETURNING done_at, attempts
`, jobID, string(kind)).Scan(&doneAt, &attempts)
	metrics.ObserveNetworkRequest("postgres", "job_statuses_upsert", "job_statuses", start, err)
	if err != nil {
		return false, 0, err
	}
	return doneAt.Valid, attempts, nil
}

// MarkJobDone помечает задачу как выполненную.
func (p *Postgres) MarkJobDone(ctx context.Context, jobID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE job_statuses
SET done_at = COALESCE(done_at, now()), updated_at = now()
WHERE job_id = $1
`, jobID)
	metrics.ObserveNetworkRequest("postgres", "job_statuses_mark_done", "job_statuses", start, err)
	return err
}

// RecordDigestRun сохраняет итоги запуска рассылки.
func (p *Postgres) RecordDigestRun(ctx context.Context, run domain.DigestRun) (domain.DigestRun, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO digest_runs (period_start, period_end, users_considered, emails_sent, failures, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id
`, run.PeriodStart, run.PeriodEnd, run.UsersConsidered, run.EmailsSent, run.Failures, run.StartedAt, run.FinishedAt).Scan(&run.ID)
	metrics.ObserveNetworkRequest("postgres", "digest_runs_insert", "digest_runs", start, err)
	if err != nil {
		return domain.DigestRun{}, err
	}
	return run, nil
}

// LastDigestRun возвращает последний запуск рассылки.
func (p *Postgres) LastDigestRun(ctx context.Context) (domain.DigestRun, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var run domain.DigestRun
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, period_start, period_end, users_considered, emails_sent, failures, started_at, finished_at
FROM digest_runs
ORDER BY started_at DESC, id DESC
LIMIT 1
`).Scan(&run.ID, &run.PeriodStart, &run.PeriodEnd, &run.UsersConsidered, &run.EmailsSent, &run.Failures, &run.StartedAt, &run.FinishedAt)
	metrics.ObserveNetworkRequest("postgres", "digest_runs_last", "digest_runs", start, err)
	if err != nil {
		return domain.DigestRun{}, mapError(err)
	}
	return run, nil
}

// RecordEvent сохраняет бизнесовое событие в БД.
func (p *Postgres) RecordEvent(ctx context.Context, event domain.BusinessEvent) error {
	if event.Event == "" {
		return nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var userID sql.NullInt64
	if event.UserID != nil {
		userID = sql.NullInt64{Int64: *event.UserID, Valid: true}
	}

	var postID sql.NullInt64
	if event.PostID != nil {
		postID = sql.NullInt64{Int64: *event.PostID, Valid: true}
	}

	var payload []byte
	if event.Metadata != nil {
		if data, err := json.Marshal(event.Metadata); err == nil {
			payload = data
		}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO business_events (event, user_id, post_id, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5)
`, event.Event, userID, postID, payload, event.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "business_events_insert", "business_events", start, err)
	return err
}
