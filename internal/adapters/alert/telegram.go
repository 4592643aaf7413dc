package alert

import (
	"context"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"newspaper/internal/domain"
	"newspaper/internal/infra/metrics"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram отправляет оповещения в служебный чат.
type Telegram struct {
	bot    sender
	chatID int64
	prefix string
}

var _ domain.Alerter = (*Telegram)(nil)

// NewTelegram создаёт клиента бота по токену.
func NewTelegram(token string, chatID int64, prefix string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: bot, chatID: chatID, prefix: prefix}, nil
}

// Alert реализует domain.Alerter.
func (t *Telegram) Alert(ctx context.Context, text string) error {
	if t.prefix != "" {
		text = t.prefix + "\n" + text
	}
	for _, part := range chunks(text, telegramLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(t.chatID, part)
		msg.DisableWebPagePreview = true
		start := time.Now()
		_, err := t.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(t.chatID, 10), start, err)
		if err != nil {
			return err
		}
	}
	return nil
}

// Log пишет оповещения в лог, когда бот не настроен.
type Log struct {
	logger zerolog.Logger
}

// NewLog создаёт оповещатель в лог.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

// Alert реализует domain.Alerter.
func (l *Log) Alert(_ context.Context, text string) error {
	l.logger.Warn().Str("alert", text).Msg("alert")
	return nil
}

// New выбирает реализацию по настройкам: без токена оповещения уходят в лог.
func New(token string, chatID int64, prefix string, logger zerolog.Logger) domain.Alerter {
	if token == "" || chatID == 0 {
		return NewLog(logger)
	}
	tg, err := NewTelegram(token, chatID, prefix)
	if err != nil {
		logger.Error().Err(err).Msg("alert: не удалось инициализировать бота, оповещения пойдут в лог")
		return NewLog(logger)
	}
	return tg
}
