package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"newspaper/internal/domain"
	"newspaper/internal/infra/metrics"
)

// ErrAlreadyRunning возвращается RunOnce, если задача с тем же именем ещё выполняется.
var ErrAlreadyRunning = errors.New("task is already running")

// Task: выполняемая планировщиком функция.
type Task func(ctx context.Context) error

// Scheduler запускает задачи по cron-выражению и не допускает пересечения запусков одной задачи.
// Локальная блокировка защищает процесс, аренда в locker (если задан) защищает все экземпляры.
type Scheduler struct {
	cron     *cron.Cron
	locker   domain.Locker
	leaseTTL time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	running map[string]bool
	ctx     context.Context
}

// New создаёт планировщик в часовом поясе loc. locker может быть nil.
func New(loc *time.Location, locker domain.Locker, leaseTTL time.Duration, logger zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if leaseTTL <= 0 {
		leaseTTL = time.Hour
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		locker:   locker,
		leaseTTL: leaseTTL,
		log:      logger,
		running:  make(map[string]bool),
		ctx:      context.Background(),
	}
}

// ScheduleRecurring регистрирует задачу по cron-выражению из пяти полей.
// Функция получает время срабатывания по расписанию.
func (s *Scheduler) ScheduleRecurring(spec, name string, fn func(ctx context.Context, firedAt time.Time) error) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("parse cron %q: %w", spec, err)
	}
	s.cron.Schedule(schedule, cron.FuncJob(func() {
		firedAt := time.Now()
		err := s.RunOnce(s.context(), name, func(ctx context.Context) error {
			return fn(ctx, firedAt)
		})
		if err != nil && !errors.Is(err, ErrAlreadyRunning) {
			s.log.Error().Err(err).Str("task", name).Msg("scheduler: задача завершилась ошибкой")
		}
	}))
	s.log.Info().Str("task", name).Str("spec", spec).Msg("scheduler: задача добавлена")
	return nil
}

// RunOnce выполняет задачу, если она не выполняется сейчас. Иначе возвращает ErrAlreadyRunning.
func (s *Scheduler) RunOnce(ctx context.Context, name string, fn Task) error {
	if !s.tryLock(name) {
		s.skipped(name)
		return ErrAlreadyRunning
	}
	defer s.unlock(name)

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, "lock:task:"+name, s.leaseTTL)
		if err != nil {
			return fmt.Errorf("аренда задачи %s: %w", name, err)
		}
		if !ok {
			s.skipped(name)
			return ErrAlreadyRunning
		}
		defer release()
	}

	start := time.Now()
	err := fn(ctx)
	s.log.Info().Str("task", name).Dur("duration", time.Since(start)).Err(err).Msg("scheduler: задача выполнена")
	return err
}

// Start запускает cron до отмены ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop останавливает cron и ждёт завершения выполняющихся задач.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Next возвращает ближайшее время срабатывания спецификации.
func Next(spec string, from time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) tryLock(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[name] {
		return false
	}
	s.running[name] = true
	return true
}

func (s *Scheduler) unlock(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, name)
}

func (s *Scheduler) skipped(name string) {
	metrics.IncDigestSkipped()
	s.log.Warn().Str("task", name).Msg("scheduler: предыдущий запуск ещё выполняется, пропускаем")
}
