package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"newspaper/internal/app"
	"newspaper/internal/infra/config"
	applog "newspaper/internal/infra/log"
	"newspaper/internal/infra/metrics"
	"newspaper/internal/infra/scheduler"
	"newspaper/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	loc, err := schedule.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Warn().Err(err).Str("tz", cfg.TZ).Msg("scheduler: неизвестный часовой пояс, используется локальный")
		loc = cfg.Location()
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось инициализировать зависимости")
	}
	defer a.Close()

	sched := scheduler.New(loc, a.Locker, time.Minute, applog.Component(logger, "scheduler"))
	err = sched.ScheduleRecurring(cfg.Digest.Cron, schedule.TickTask, func(ctx context.Context, firedAt time.Time) error {
		_, err := a.Schedule.Tick(ctx, firedAt)
		return err
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: некорректное расписание рассылки")
	}

	if next, err := scheduler.Next(cfg.Digest.Cron, time.Now().In(loc)); err == nil {
		logger.Info().Time("next_run", next).Str("tz", loc.String()).Msg("scheduler: запущен")
	}

	sched.Start(ctx)
	<-ctx.Done()
	sched.Stop()
	logger.Info().Msg("scheduler: остановлен")
}
