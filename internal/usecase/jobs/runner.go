package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"newspaper/internal/domain"
	"newspaper/internal/infra/metrics"
)

// DefaultMaxAttempts: число попыток доставки задачи по умолчанию.
const DefaultMaxAttempts = 5

// Handler обрабатывает задачу одного типа. Ошибка приводит к повтору.
type Handler func(ctx context.Context, job domain.Job) error

type jobOutcome int

const (
	jobOutcomeCompleted jobOutcome = iota
	jobOutcomeRetry
)

// Runner читает задачи из очереди и выполняет обработчики вне запросов пользователей.
// Выполнение не реже одного раза: повторно доставленная выполненная задача подтверждается без запуска.
type Runner struct {
	queue       domain.JobQueue
	statuses    domain.JobStatusRepo
	alerter     domain.Alerter
	handlers    map[domain.JobKind]Handler
	log         zerolog.Logger
	concurrency int
	maxAttempts int
	retryDelay  time.Duration
}

// Options задаёт параллельность и число попыток.
type Options struct {
	Concurrency int
	MaxAttempts int
}

// NewRunner создаёт обработчик очереди. statuses и alerter могут быть nil.
func NewRunner(queue domain.JobQueue, statuses domain.JobStatusRepo, alerter domain.Alerter, opts Options, logger zerolog.Logger) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &Runner{
		queue:       queue,
		statuses:    statuses,
		alerter:     alerter,
		handlers:    make(map[domain.JobKind]Handler),
		log:         logger,
		concurrency: opts.Concurrency,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  time.Second,
	}
}

// Handle регистрирует обработчик для типа задачи.
func (r *Runner) Handle(kind domain.JobKind, h Handler) {
	r.handlers[kind] = h
}

// Run обрабатывает очередь до отмены контекста.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < r.concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r.loop(ctx, r.log.With().Int("worker", worker).Logger())
		}(i)
	}
	wg.Wait()
}

func (r *Runner) loop(ctx context.Context, log zerolog.Logger) {
	for {
		job, ack, err := r.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("worker: ошибка чтения очереди")
			r.sleep(ctx)
			continue
		}
		r.Process(ctx, job, ack, log)
	}
}

// Process выполняет одну полученную задачу и подтверждает её.
func (r *Runner) Process(ctx context.Context, job domain.Job, ack domain.AckFunc, log zerolog.Logger) {
	jobLog := log.With().Str("job_id", job.ID).Str("kind", string(job.Kind)).Logger()

	if job.ID == "" {
		jobLog.Error().Msg("worker: получена задача без идентификатора, подтверждаем и пропускаем")
		r.ack(jobLog, ack, true)
		return
	}

	attempt := 1
	if r.statuses != nil {
		done, n, err := r.statuses.EnsureJob(ctx, job.ID, job.Kind)
		if err != nil {
			jobLog.Error().Err(err).Msg("worker: не удалось зарегистрировать задачу")
			r.ack(jobLog, ack, false)
			r.sleep(ctx)
			return
		}
		attempt = n
		if done {
			jobLog.Info().Msg("worker: задача уже выполнена, подтверждаем")
			metrics.ObserveJob(string(job.Kind), "duplicate")
			r.ack(jobLog, ack, true)
			return
		}
	}
	jobLog = jobLog.With().Int("attempt", attempt).Logger()

	outcome := r.handle(ctx, job, jobLog)

	if outcome == jobOutcomeRetry && attempt < r.maxAttempts {
		jobLog.Warn().Msg("worker: задача завершилась ошибкой, повторим позже")
		metrics.ObserveJob(string(job.Kind), "retry")
		r.ack(jobLog, ack, false)
		return
	}

	if outcome == jobOutcomeRetry {
		jobLog.Error().Msg("worker: достигнут предел попыток, помечаем задачу как завершённую")
		metrics.ObserveJob(string(job.Kind), "exhausted")
		r.alert(ctx, fmt.Sprintf("Задача %s (%s) не выполнена после %d попыток", job.ID, job.Kind, attempt))
	} else {
		metrics.ObserveJob(string(job.Kind), "completed")
	}

	if r.statuses != nil {
		if err := r.statuses.MarkJobDone(ctx, job.ID); err != nil {
			jobLog.Error().Err(err).Msg("worker: не удалось пометить задачу выполненной")
			r.ack(jobLog, ack, false)
			r.sleep(ctx)
			return
		}
	}
	r.ack(jobLog, ack, true)
}

func (r *Runner) handle(ctx context.Context, job domain.Job, jobLog zerolog.Logger) (outcome jobOutcome) {
	handler, ok := r.handlers[job.Kind]
	if !ok {
		jobLog.Error().Msg("worker: неизвестный тип задачи")
		return jobOutcomeCompleted
	}
	defer func() {
		if rec := recover(); rec != nil {
			jobLog.Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("worker: паника в обработчике")
			outcome = jobOutcomeRetry
		}
	}()
	if err := handler(ctx, job); err != nil {
		jobLog.Error().Err(err).Msg("worker: ошибка обработки задачи")
		return jobOutcomeRetry
	}
	return jobOutcomeCompleted
}

func (r *Runner) ack(log zerolog.Logger, ack domain.AckFunc, success bool) {
	if ack == nil {
		return
	}
	if err := ack(success); err != nil {
		log.Error().Err(err).Bool("success", success).Msg("worker: не удалось подтвердить задачу")
	}
}

func (r *Runner) alert(ctx context.Context, text string) {
	if r.alerter == nil {
		return
	}
	if err := r.alerter.Alert(ctx, text); err != nil {
		r.log.Error().Err(err).Msg("worker: не удалось отправить оповещение")
	}
}

func (r *Runner) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(r.retryDelay):
	}
}
