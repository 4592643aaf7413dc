// Package app собирает зависимости сервисов из конфигурации.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"newspaper/internal/adapters/alert"
	"newspaper/internal/adapters/mailer"
	"newspaper/internal/adapters/repo"
	"newspaper/internal/domain"
	"newspaper/internal/infra/cache"
	"newspaper/internal/infra/config"
	"newspaper/internal/infra/db"
	applog "newspaper/internal/infra/log"
	"newspaper/internal/infra/queue"
	"newspaper/internal/usecase/accounts"
	"newspaper/internal/usecase/content"
	"newspaper/internal/usecase/digest"
	"newspaper/internal/usecase/notify"
	"newspaper/internal/usecase/posts"
	"newspaper/internal/usecase/ratelimit"
	"newspaper/internal/usecase/schedule"
	"newspaper/internal/usecase/subscriptions"
)

// App хранит подключения и сервисы.
type App struct {
	Config config.AppConfig
	Log    zerolog.Logger

	Pool   *pgxpool.Pool
	Redis  *redis.Client
	Repo   *repo.Postgres
	Queue  domain.JobQueue
	Locker domain.Locker

	Mailer  domain.Mailer
	Alerter domain.Alerter

	Accounts      *accounts.Service
	Posts         *posts.Service
	Subscriptions *subscriptions.Service
	Dispatcher    *notify.Dispatcher
	Digest        *digest.Service
	Schedule      *schedule.Service

	closers []func()
}

// New подключается к хранилищам и собирает сервисы.
func New(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: logger}

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)
	a.Repo = repo.NewPostgres(pool)

	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = client
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.Locker = cache.NewRedis(client)
	}

	q, closeQueue, err := queue.Open(cfg.Queue.Backend, a.Redis, cfg.Queue.RabbitURL, cfg.Queue.Key)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Queue = q
	a.closers = append(a.closers, func() {
		if err := closeQueue(); err != nil {
			logger.Error().Err(err).Msg("app: не удалось закрыть очередь")
		}
	})

	a.Mailer = mailer.New(mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
	}, applog.Component(logger, "mailer"))
	a.Alerter = alert.New(cfg.Alert.TelegramToken, cfg.Alert.ChatID, "[newspaper "+cfg.AppEnv+"]", applog.Component(logger, "alert"))

	a.wire()
	return a, nil
}

func (a *App) wire() {
	cfg := a.Config
	loc := cfg.Location()
	links := content.Links{BaseURL: cfg.PublicBaseURL}

	a.Dispatcher = notify.NewDispatcher(a.Queue, a.Repo, a.Repo, a.Mailer, notify.Formatter{
		From:       cfg.Mail.NotifyFrom,
		Links:      links,
		PreviewLen: cfg.Limits.PreviewLength,
		Location:   loc,
	}, applog.Component(a.Log, "notify"))

	limiter := ratelimit.New(a.Repo, cfg.Limits.NewsPerDay, loc)
	a.Accounts = accounts.NewService(a.Repo, a.Repo, applog.Component(a.Log, "accounts"))
	a.Posts = posts.NewService(a.Repo, a.Repo, a.Repo, a.Repo, limiter, a.Dispatcher, applog.Component(a.Log, "posts"))
	a.Subscriptions = subscriptions.NewService(a.Repo, a.Repo, a.Repo, applog.Component(a.Log, "subscriptions"))

	a.Digest = digest.NewService(digest.Deps{
		Subscriptions: a.Repo,
		Posts:         a.Repo,
		Runs:          a.Repo,
		Users:         a.Repo,
		Authors:       a.Repo,
		Categories:    a.Repo,
		Events:        a.Repo,
		Mailer:        a.Mailer,
	}, digest.Formatter{
		From:       cfg.Mail.DigestFrom,
		Links:      links,
		PreviewLen: cfg.Limits.PreviewLength,
		Location:   loc,
	}, digest.Options{
		Window:     cfg.Digest.Window,
		Idempotent: cfg.Digest.Idempotent,
	}, applog.Component(a.Log, "digest"))

	a.Schedule = schedule.NewService(a.Repo, a.Queue, applog.Component(a.Log, "schedule"))
}

// Close освобождает подключения в обратном порядке.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
