package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"

	"newspaper/internal/domain"
	"newspaper/internal/infra/metrics"
)

// Config описывает подключение к SMTP.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// SMTP отправляет письма через SMTP сервер.
type SMTP struct {
	cfg Config
}

var _ domain.Mailer = (*SMTP)(nil)

// NewSMTP создаёт SMTP отправителя.
func NewSMTP(cfg Config) *SMTP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SMTP{cfg: cfg}
}

func (s *SMTP) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return mail.NewClient(s.cfg.Host, opts...)
}

// Send реализует domain.Mailer.
func (s *SMTP) Send(ctx context.Context, email domain.Email) error {
	msg, err := buildMessage(email)
	if err != nil {
		return err
	}
	c, err := s.client()
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	start := time.Now()
	err = c.DialAndSendWithContext(ctx, msg)
	metrics.ObserveNetworkRequest("smtp", "send", s.cfg.Host, start, err)
	if err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// buildMessage собирает письмо с текстовой и HTML частью.
func buildMessage(email domain.Email) (*mail.Msg, error) {
	if len(email.To) == 0 {
		return nil, errors.New("email without recipients")
	}
	msg := mail.NewMsg()
	if err := msg.From(email.From); err != nil {
		return nil, fmt.Errorf("from %q: %w", email.From, err)
	}
	if err := msg.To(email.To...); err != nil {
		return nil, fmt.Errorf("to %s: %w", strings.Join(email.To, ","), err)
	}
	msg.Subject(email.Subject)
	msg.SetBodyString(mail.TypeTextPlain, email.Text)
	if email.HTML != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, email.HTML)
	}
	return msg, nil
}

// Log пишет письма в лог вместо отправки.
type Log struct {
	logger zerolog.Logger
}

// NewLog создаёт отправителя для локального окружения.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

// Send реализует domain.Mailer.
func (l *Log) Send(_ context.Context, email domain.Email) error {
	if _, err := buildMessage(email); err != nil {
		return err
	}
	l.logger.Info().
		Str("from", email.From).
		Strs("to", email.To).
		Str("subject", email.Subject).
		Int("text_len", len(email.Text)).
		Msg("mailer: письмо не отправлено, SMTP не настроен")
	return nil
}

// New выбирает SMTP или вывод в лог в зависимости от наличия хоста.
func New(cfg Config, logger zerolog.Logger) domain.Mailer {
	if strings.TrimSpace(cfg.Host) == "" {
		return NewLog(logger)
	}
	return NewSMTP(cfg)
}
