package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobKind определяет тип фоновой задачи.
type JobKind string

const (
	// JobPostCreated: рассылка уведомлений подписчикам о новой новости.
	JobPostCreated JobKind = "post_created"
	// JobSendEmail: отправка одного письма.
	JobSendEmail JobKind = "send_email"
	// JobWeeklyDigest: еженедельная рассылка.
	JobWeeklyDigest JobKind = "weekly_digest"
)

// DigestCause описывает источник запуска рассылки.
type DigestCause string

const (
	// DigestCauseManual: запуск вручную.
	DigestCauseManual DigestCause = "manual"
	// DigestCauseScheduled: запуск по расписанию.
	DigestCauseScheduled DigestCause = "scheduled"
)

// Job: задача в очереди.
type Job struct {
	ID         string          `json:"job_id"`
	Kind       JobKind         `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewJob упаковывает полезную нагрузку в задачу с новым идентификатором.
func NewJob(kind JobKind, payload any) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Decode распаковывает полезную нагрузку задачи.
func (j Job) Decode(dst any) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("job %s: empty payload", j.ID)
	}
	if err := json.Unmarshal(j.Payload, dst); err != nil {
		return fmt.Errorf("job %s: decode %s payload: %w", j.ID, j.Kind, err)
	}
	return nil
}

// PostCreatedPayload: нагрузка задачи post_created.
type PostCreatedPayload struct {
	PostID int64 `json:"post_id"`
}

// SendEmailPayload: нагрузка задачи send_email.
type SendEmailPayload struct {
	Kind  string `json:"kind"`
	Email Email  `json:"email"`
}

// WeeklyDigestPayload: нагрузка задачи weekly_digest.
type WeeklyDigestPayload struct {
	Cause        DigestCause `json:"cause"`
	RequestedAt  time.Time   `json:"requested_at"`
	ScheduledFor time.Time   `json:"scheduled_for,omitempty"`
}

// JobQueue описывает очередь фоновых задач.
type JobQueue interface {
	Enqueue(ctx context.Context, job Job) error
	Receive(ctx context.Context) (Job, AckFunc, error)
}

// AckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type AckFunc func(success bool) error

// ScheduleTaskRepo отвечает за идемпотентное планирование задач.
type ScheduleTaskRepo interface {
	// AcquireScheduleTask помечает выполнение задачи на указанное время и возвращает true,
	// если запись была создана. При конфликте возвращает false без ошибки.
	AcquireScheduleTask(ctx context.Context, name string, scheduledFor time.Time) (bool, error)
	// ReleaseScheduleTask удаляет отметку, если задачу не удалось поставить.
	ReleaseScheduleTask(ctx context.Context, name string, scheduledFor time.Time) error
}

// JobStatusRepo отвечает за отслеживание статуса выполнения задач.
type JobStatusRepo interface {
	// EnsureJob регистрирует попытку обработки и возвращает признак завершения
	// и номер текущей попытки.
	EnsureJob(ctx context.Context, jobID string, kind JobKind) (done bool, attempt int, err error)
	// MarkJobDone помечает задачу как окончательно выполненную.
	MarkJobDone(ctx context.Context, jobID string) error
}
