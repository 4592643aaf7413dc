package jobs

import (
	"context"

	"newspaper/internal/domain"
)

// Decoded оборачивает обработчик типизированной нагрузки.
// Нераспознанная нагрузка не повторяется: задача завершается с ошибкой в логе.
func Decoded[T any](r *Runner, fn func(ctx context.Context, payload T) error) Handler {
	return func(ctx context.Context, job domain.Job) error {
		var payload T
		if err := job.Decode(&payload); err != nil {
			r.log.Error().Err(err).Str("job_id", job.ID).Msg("worker: некорректная нагрузка задачи")
			return nil
		}
		return fn(ctx, payload)
	}
}
