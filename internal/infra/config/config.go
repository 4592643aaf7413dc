package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv        string `envconfig:"APP_ENV" default:"dev"`
	TZ            string `envconfig:"TZ" default:"Europe/Moscow"`
	Port          int    `envconfig:"PORT" default:"8080"`
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8000"`
	MetricsAddr   string `envconfig:"METRICS_ADDR" default:":9090"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Queue struct {
		Backend     string `envconfig:"QUEUE_BACKEND" default:"redis"`
		Key         string `envconfig:"JOB_QUEUE_KEY" default:"newspaper_jobs"`
		RabbitURL   string `envconfig:"RABBITMQ_URL"`
		Concurrency int    `envconfig:"WORKER_CONCURRENCY" default:"4"`
		MaxAttempts int    `envconfig:"JOB_MAX_ATTEMPTS" default:"5"`
	} `envconfig:""`

	Limits struct {
		NewsPerDay    int `envconfig:"NEWS_DAILY_LIMIT" default:"3"`
		PreviewLength int `envconfig:"PREVIEW_LENGTH" default:"100"`
	} `envconfig:""`

	Digest struct {
		Cron       string        `envconfig:"DIGEST_CRON" default:"0 10 * * 0"`
		Window     time.Duration `envconfig:"DIGEST_WINDOW" default:"168h"`
		Idempotent bool          `envconfig:"DIGEST_IDEMPOTENT" default:"true"`
		LockTTL    time.Duration `envconfig:"DIGEST_LOCK_TTL" default:"2h"`
	} `envconfig:""`

	SMTP struct {
		Host     string `envconfig:"SMTP_HOST"`
		Port     int    `envconfig:"SMTP_PORT" default:"587"`
		Username string `envconfig:"SMTP_USERNAME"`
		Password string `envconfig:"SMTP_PASSWORD"`
	} `envconfig:""`

	Mail struct {
		NotifyFrom string `envconfig:"MAIL_FROM_NOTIFY" default:"noreply@newspaper.com"`
		DigestFrom string `envconfig:"MAIL_FROM_DIGEST" default:"weekly@newspaper.com"`
	} `envconfig:""`

	Alert struct {
		TelegramToken string `envconfig:"ALERT_TG_TOKEN"`
		ChatID        int64  `envconfig:"ALERT_TG_CHAT_ID"`
	} `envconfig:""`
}

// Location возвращает часовой пояс сервера.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load загружает конфиг из .env (если есть) и окружения.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает конфиг и возвращает ошибку вместо завершения процесса.
func Parse() (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}
