package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"newspaper/internal/adapters/httpapi"
	"newspaper/internal/app"
	"newspaper/internal/infra/config"
	httpinfra "newspaper/internal/infra/http"
	applog "newspaper/internal/infra/log"
	"newspaper/internal/infra/metrics"
	"newspaper/internal/usecase/content"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось инициализировать зависимости")
	}
	defer a.Close()

	server := httpinfra.NewServer(applog.Component(logger, "http"))
	handler := httpapi.NewHandler(a.Accounts, a.Posts, a.Subscriptions, a.Schedule, content.Links{BaseURL: cfg.PublicBaseURL}, applog.Component(logger, "api"))
	handler.Register(server.Router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(":" + strconv.Itoa(cfg.Port))
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
		}
	}

	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: graceful shutdown failed")
	}
}
