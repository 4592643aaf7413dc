package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/namsral/flag"

	"newspaper/internal/adapters/repo"
	"newspaper/internal/infra/config"
	"newspaper/internal/infra/db"
	applog "newspaper/internal/infra/log"
)

var flStatus = flag.Bool("status", false, "print migration status instead of applying (STATUS)")

func main() {
	flag.Parse()

	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate: нет подключения к БД")
	}
	defer pool.Close()

	if *flStatus {
		if err := repo.MigrationStatus(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("migrate: не удалось получить статус")
		}
		return
	}
	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate: миграции не применены")
	}
	logger.Info().Msg("migrate: схема актуальна")
}
