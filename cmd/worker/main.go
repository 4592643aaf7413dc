package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/namsral/flag"
	"github.com/prometheus/client_golang/prometheus"

	"newspaper/internal/app"
	"newspaper/internal/domain"
	"newspaper/internal/infra/config"
	applog "newspaper/internal/infra/log"
	"newspaper/internal/infra/metrics"
	"newspaper/internal/infra/queue"
	"newspaper/internal/infra/scheduler"
	"newspaper/internal/usecase/jobs"
)

var flRecover = flag.Bool("recover", false, "return jobs left in the processing list to the queue on start (RECOVER)")

func main() {
	flag.Parse()

	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось инициализировать зависимости")
	}
	defer a.Close()

	if *flRecover {
		if rq, ok := a.Queue.(*queue.RedisJobQueue); ok {
			moved, err := rq.Recover(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("worker: не удалось вернуть задачи в очередь")
			} else {
				logger.Info().Int("moved", moved).Msg("worker: задачи возвращены в очередь")
			}
		}
	}

	sched := scheduler.New(cfg.Location(), a.Locker, cfg.Digest.LockTTL, applog.Component(logger, "scheduler"))

	runner := jobs.NewRunner(a.Queue, a.Repo, a.Alerter, jobs.Options{
		Concurrency: cfg.Queue.Concurrency,
		MaxAttempts: cfg.Queue.MaxAttempts,
	}, applog.Component(logger, "worker"))

	runner.Handle(domain.JobPostCreated, jobs.Decoded(runner, func(ctx context.Context, p domain.PostCreatedPayload) error {
		_, err := a.Dispatcher.HandlePostCreated(ctx, p)
		return err
	}))
	runner.Handle(domain.JobSendEmail, jobs.Decoded(runner, a.Dispatcher.HandleSendEmail))
	runner.Handle(domain.JobWeeklyDigest, jobs.Decoded(runner, func(ctx context.Context, p domain.WeeklyDigestPayload) error {
		err := sched.RunOnce(ctx, string(domain.JobWeeklyDigest), func(ctx context.Context) error {
			res, err := a.Digest.Run(ctx)
			if err != nil {
				return err
			}
			logger.Info().
				Str("cause", string(p.Cause)).
				Int("users", res.UsersConsidered).
				Int("sent", res.EmailsSent).
				Int("failures", res.Failures).
				Msg("worker: еженедельная рассылка завершена")
			if res.Failures > 0 {
				if err := a.Alerter.Alert(ctx, digestFailuresText(res.EmailsSent, res.Failures)); err != nil {
					logger.Error().Err(err).Msg("worker: не удалось отправить оповещение")
				}
			}
			return nil
		})
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			logger.Warn().Str("cause", string(p.Cause)).Msg("worker: рассылка уже выполняется, запуск пропущен")
			return nil
		}
		if err != nil {
			if alertErr := a.Alerter.Alert(ctx, "Еженедельная рассылка не выполнена: "+err.Error()); alertErr != nil {
				logger.Error().Err(alertErr).Msg("worker: не удалось отправить оповещение")
			}
		}
		return err
	}))

	logger.Info().Str("backend", cfg.Queue.Backend).Msg("worker: запуск обработки очереди")
	runner.Run(ctx)
	logger.Info().Msg("worker: остановлен")
}
