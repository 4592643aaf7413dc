package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"newspaper/internal/domain"
	"newspaper/internal/infra/metrics"
)

// EmailKindNotification: тип письма о новой новости.
const EmailKindNotification = "notification"

// Dispatcher рассылает уведомления подписчикам о новых новостях.
type Dispatcher struct {
	queue     domain.JobQueue
	posts     domain.PostRepo
	subs      domain.SubscriptionRepo
	mailer    domain.Mailer
	formatter Formatter
	log       zerolog.Logger
}

// NewDispatcher создаёт диспетчер.
func NewDispatcher(queue domain.JobQueue, posts domain.PostRepo, subs domain.SubscriptionRepo, mailer domain.Mailer, formatter Formatter, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{queue: queue, posts: posts, subs: subs, mailer: mailer, formatter: formatter, log: logger}
}

// OnPostCreated ставит в очередь рассылку по только что созданной новости.
// Для статей ничего не делает. Вызывается после фиксации транзакции.
func (d *Dispatcher) OnPostCreated(ctx context.Context, post domain.Post) error {
	if post.Type != domain.PostTypeNews {
		return nil
	}
	job, err := domain.NewJob(domain.JobPostCreated, domain.PostCreatedPayload{PostID: post.ID})
	if err != nil {
		return err
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("постановка post_created: %w", err)
	}
	d.log.Info().Int64("post_id", post.ID).Str("job_id", job.ID).Msg("notify: рассылка поставлена в очередь")
	return nil
}

// HandlePostCreated раскладывает новость на письма: одно на пару (подписчик, рубрика).
// Возвращает количество поставленных писем.
func (d *Dispatcher) HandlePostCreated(ctx context.Context, payload domain.PostCreatedPayload) (int, error) {
	post, err := d.posts.GetPost(ctx, payload.PostID)
	if errors.Is(err, domain.ErrNotFound) {
		d.log.Error().Int64("post_id", payload.PostID).Msg("notify: пост не найден, рассылка пропущена")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("получение поста: %w", err)
	}
	if post.Type != domain.PostTypeNews {
		return 0, nil
	}
	if len(post.Categories) == 0 {
		d.log.Info().Int64("post_id", post.ID).Str("title", post.Title).Msg("notify: новость без категорий, уведомления не отправляются")
		return 0, nil
	}

	queued := 0
	for _, category := range post.Categories {
		subscribers, err := d.subs.ListSubscribers(ctx, category.ID)
		if err != nil {
			return queued, fmt.Errorf("подписчики категории %d: %w", category.ID, err)
		}
		if len(subscribers) == 0 {
			d.log.Info().Str("category", category.Name).Msg("notify: в категории нет подписчиков")
			continue
		}
		for _, subscriber := range subscribers {
			if strings.TrimSpace(subscriber.Email) == "" {
				d.log.Debug().Int64("user_id", subscriber.ID).Msg("notify: у подписчика нет email, пропускаем")
				continue
			}
			email := d.formatter.Build(post, category, subscriber)
			job, err := domain.NewJob(domain.JobSendEmail, domain.SendEmailPayload{Kind: EmailKindNotification, Email: email})
			if err != nil {
				d.log.Error().Err(err).Int64("user_id", subscriber.ID).Msg("notify: не удалось подготовить письмо")
				continue
			}
			if err := d.queue.Enqueue(ctx, job); err != nil {
				d.log.Error().Err(err).Int64("user_id", subscriber.ID).Msg("notify: не удалось поставить письмо в очередь")
				continue
			}
			queued++
		}
		d.log.Info().Str("category", category.Name).Int("subscribers", len(subscribers)).Msg("notify: уведомления по категории поставлены")
	}
	return queued, nil
}

// HandleSendEmail отправляет одно письмо. Ошибка отправки приводит к повтору задачи.
func (d *Dispatcher) HandleSendEmail(ctx context.Context, payload domain.SendEmailPayload) error {
	if len(payload.Email.To) == 0 {
		d.log.Error().Str("subject", payload.Email.Subject).Msg("notify: письмо без получателя")
		return nil
	}
	err := d.mailer.Send(ctx, payload.Email)
	metrics.ObserveEmail(payload.Kind, err)
	if err != nil {
		return fmt.Errorf("отправка письма %s: %w", strings.Join(payload.Email.To, ","), err)
	}
	d.log.Debug().Strs("to", payload.Email.To).Msg("notify: письмо отправлено")
	return nil
}
