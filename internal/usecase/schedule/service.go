package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"newspaper/internal/domain"
)

// ErrInvalidTimezone возвращается, если указан некорректный часовой пояс.
var ErrInvalidTimezone = errors.New("invalid timezone")

const (
	// WeeklyDigestTask: имя задачи еженедельной рассылки в таблице запусков.
	WeeklyDigestTask = "weekly_digest"
	// TickTask: имя срабатывания расписания в планировщике. Отличается от имени задачи
	// рассылки, чтобы аренда срабатывания не блокировала саму рассылку в воркере.
	TickTask = "weekly_digest_tick"
)

// Service ставит еженедельную рассылку в очередь по расписанию и вручную.
type Service struct {
	tasks domain.ScheduleTaskRepo
	queue domain.JobQueue
	log   zerolog.Logger
	now   func() time.Time
}

// NewService создаёт сервис.
func NewService(tasks domain.ScheduleTaskRepo, queue domain.JobQueue, logger zerolog.Logger) *Service {
	return &Service{tasks: tasks, queue: queue, log: logger, now: time.Now}
}

// Tick ставит рассылку в очередь один раз на срабатывание расписания,
// даже если планировщик запущен в нескольких экземплярах.
func (s *Service) Tick(ctx context.Context, scheduledFor time.Time) (bool, error) {
	slot := scheduledFor.UTC().Truncate(time.Minute)
	acquired, err := s.tasks.AcquireScheduleTask(ctx, WeeklyDigestTask, slot)
	if err != nil {
		return false, fmt.Errorf("регистрация запуска: %w", err)
	}
	if !acquired {
		s.log.Info().Time("scheduled_for", slot).Msg("scheduler: запуск уже поставлен другим экземпляром")
		return false, nil
	}
	if _, err := s.enqueue(ctx, domain.DigestCauseScheduled, slot); err != nil {
		// Освобождаем слот, чтобы следующий экземпляр или повтор смог поставить рассылку.
		if releaseErr := s.tasks.ReleaseScheduleTask(ctx, WeeklyDigestTask, slot); releaseErr != nil {
			s.log.Error().Err(releaseErr).Time("scheduled_for", slot).Msg("scheduler: не удалось освободить запуск")
		}
		return false, err
	}
	return true, nil
}

// TriggerNow ставит рассылку в очередь вне расписания.
func (s *Service) TriggerNow(ctx context.Context) (domain.Job, error) {
	return s.enqueue(ctx, domain.DigestCauseManual, time.Time{})
}

func (s *Service) enqueue(ctx context.Context, cause domain.DigestCause, scheduledFor time.Time) (domain.Job, error) {
	job, err := domain.NewJob(domain.JobWeeklyDigest, domain.WeeklyDigestPayload{
		Cause:        cause,
		RequestedAt:  s.now().UTC(),
		ScheduledFor: scheduledFor,
	})
	if err != nil {
		return domain.Job{}, err
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return domain.Job{}, fmt.Errorf("постановка рассылки: %w", err)
	}
	s.log.Info().Str("job_id", job.ID).Str("cause", string(cause)).Msg("scheduler: рассылка поставлена в очередь")
	return job, nil
}

// LoadLocation разбирает часовой пояс, допуская пробелы и произвольный регистр.
func LoadLocation(raw string) (*time.Location, error) {
	name, err := normalizeTimezone(raw)
	if err != nil {
		return nil, err
	}
	return time.LoadLocation(name)
}

func normalizeTimezone(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", ErrInvalidTimezone
	}
	candidate = strings.ReplaceAll(candidate, " ", "_")
	if _, err := time.LoadLocation(candidate); err == nil {
		return candidate, nil
	}

	lower := strings.ToLower(candidate)
	parts := strings.Split(lower, "/")
	for i, part := range parts {
		segments := strings.Split(part, "_")
		for j, segment := range segments {
			pieces := strings.Split(segment, "-")
			for k, piece := range pieces {
				if piece == "" {
					continue
				}
				pieces[k] = strings.ToUpper(piece[:1]) + piece[1:]
			}
			segments[j] = strings.Join(pieces, "-")
		}
		parts[i] = strings.Join(segments, "_")
	}
	normalized := strings.Join(parts, "/")
	if _, err := time.LoadLocation(normalized); err == nil {
		return normalized, nil
	}
	return "", ErrInvalidTimezone
}
