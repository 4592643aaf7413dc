package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"newspaper/internal/domain"
	"newspaper/internal/infra/metrics"
)

// EmailKindDigest: тип письма еженедельной рассылки.
const EmailKindDigest = "digest"

// ErrNoAdmin возвращается, если для тестовой рассылки не нашёлся администратор.
var ErrNoAdmin = errors.New("no admin user found")

const (
	testCategoryName = "Тестовая"
	testPostTitle    = "Тест еженедельной рассылки"
	testPostText     = "Это тестовая статья для проверки еженедельной рассылки новостей."
)

// Options задаёт окно и политику повторной отправки.
type Options struct {
	Window time.Duration
	// Idempotent сужает окно пользователя до постов, созданных после его последней рассылки.
	Idempotent bool
}

// Result описывает итог запуска рассылки.
type Result struct {
	PeriodStart     time.Time
	PeriodEnd       time.Time
	UsersConsidered int
	EmailsSent      int
	Failures        int
}

// Service реализует еженедельную рассылку.
type Service struct {
	subs       domain.SubscriptionRepo
	posts      domain.PostRepo
	runs       domain.DigestRunRepo
	users      domain.UserRepo
	authors    domain.AuthorRepo
	categories domain.CategoryRepo
	events     domain.EventRepo
	mailer     domain.Mailer
	formatter  Formatter
	opts       Options
	log        zerolog.Logger
	now        func() time.Time
}

// Deps собирает зависимости сервиса.
type Deps struct {
	Subscriptions domain.SubscriptionRepo
	Posts         domain.PostRepo
	Runs          domain.DigestRunRepo
	Users         domain.UserRepo
	Authors       domain.AuthorRepo
	Categories    domain.CategoryRepo
	Events        domain.EventRepo
	Mailer        domain.Mailer
}

// NewService создаёт сервис рассылки.
func NewService(deps Deps, formatter Formatter, opts Options, logger zerolog.Logger) *Service {
	if opts.Window <= 0 {
		opts.Window = 7 * 24 * time.Hour
	}
	return &Service{
		subs:       deps.Subscriptions,
		posts:      deps.Posts,
		runs:       deps.Runs,
		users:      deps.Users,
		authors:    deps.Authors,
		categories: deps.Categories,
		events:     deps.Events,
		mailer:     deps.Mailer,
		formatter:  formatter,
		opts:       opts,
		log:        logger,
		now:        time.Now,
	}
}

type userGroup struct {
	user         domain.User
	categoryIDs  []int64
	lastDigestAt *time.Time
}

// Run отправляет каждому подписчику одно письмо с новостями его рубрик за окно [now-window, now).
// Ошибка по одному пользователю не прерывает рассылку остальным.
func (s *Service) Run(ctx context.Context) (Result, error) {
	startedAt := s.now()
	until := startedAt
	since := until.Add(-s.opts.Window)
	result := Result{PeriodStart: since, PeriodEnd: until}

	subscriptions, err := s.subs.ListSubscriptions(ctx)
	if err != nil {
		return result, fmt.Errorf("получение подписок: %w", err)
	}

	for _, group := range groupByUser(subscriptions) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.UsersConsidered++
		userLog := s.log.With().Int64("user_id", group.user.ID).Logger()

		if strings.TrimSpace(group.user.Email) == "" {
			userLog.Debug().Msg("digest: у пользователя нет email, пропускаем")
			continue
		}

		windowStart := since
		if s.opts.Idempotent && group.lastDigestAt != nil && group.lastDigestAt.After(windowStart) {
			windowStart = *group.lastDigestAt
		}

		posts, err := s.posts.ListNewsForDigest(ctx, group.categoryIDs, windowStart, until)
		if err != nil {
			result.Failures++
			userLog.Error().Err(err).Msg("digest: не удалось получить новости")
			continue
		}
		if len(posts) == 0 {
			continue
		}

		email := s.formatter.Build(group.user, posts, since, until)
		err = s.mailer.Send(ctx, email)
		metrics.ObserveEmail(EmailKindDigest, err)
		if err != nil {
			result.Failures++
			userLog.Error().Err(err).Str("email", group.user.Email).Msg("digest: ошибка отправки")
			continue
		}
		result.EmailsSent++

		if err := s.subs.MarkDigestSent(ctx, group.user.ID, until); err != nil {
			result.Failures++
			userLog.Error().Err(err).Msg("digest: не удалось обновить дату последней рассылки")
		}
		s.recordDelivered(ctx, group.user, len(posts), since, until)
		userLog.Info().Int("posts", len(posts)).Msg("digest: рассылка отправлена")
	}

	finishedAt := s.now()
	metrics.ObserveDigestRun(finishedAt.Sub(startedAt))
	if s.runs != nil {
		run := domain.DigestRun{
			PeriodStart:     since,
			PeriodEnd:       until,
			UsersConsidered: result.UsersConsidered,
			EmailsSent:      result.EmailsSent,
			Failures:        result.Failures,
			StartedAt:       startedAt,
			FinishedAt:      finishedAt,
		}
		if _, err := s.runs.RecordDigestRun(ctx, run); err != nil {
			s.log.Error().Err(err).Msg("digest: не удалось сохранить запуск")
		}
	}
	s.log.Info().
		Int("users", result.UsersConsidered).
		Int("sent", result.EmailsSent).
		Int("failures", result.Failures).
		Msg("digest: рассылка завершена")
	return result, nil
}

// SendTest создаёт тестовые данные и отправляет рассылку первому администратору.
func (s *Service) SendTest(ctx context.Context) (domain.User, error) {
	admin, err := s.users.FirstAdmin(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, ErrNoAdmin
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("поиск администратора: %w", err)
	}

	category, err := s.categories.FirstCategory(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		category, err = s.categories.CreateCategory(ctx, testCategoryName)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("тестовая категория: %w", err)
	}

	if _, err := s.authors.EnsureAuthor(ctx, admin.ID); err != nil {
		return domain.User{}, fmt.Errorf("профиль автора: %w", err)
	}
	post, err := s.posts.CreatePost(ctx, domain.NewPost{
		AuthorID:    admin.ID,
		Type:        domain.PostTypeNews,
		Title:       testPostTitle,
		Text:        testPostText,
		CategoryIDs: []int64{category.ID},
	}, nil)
	if err != nil {
		return domain.User{}, fmt.Errorf("тестовая новость: %w", err)
	}

	until := s.now()
	email := s.formatter.Build(admin, []domain.Post{post}, until.Add(-s.opts.Window), until)
	err = s.mailer.Send(ctx, email)
	metrics.ObserveEmail(EmailKindDigest, err)
	if err != nil {
		return admin, fmt.Errorf("отправка тестовой рассылки: %w", err)
	}
	s.log.Info().Int64("user_id", admin.ID).Int64("post_id", post.ID).Msg("digest: тестовая рассылка отправлена")
	return admin, nil
}

func (s *Service) recordDelivered(ctx context.Context, user domain.User, posts int, since, until time.Time) {
	if s.events == nil {
		return
	}
	event := domain.BusinessEvent{
		Event:  domain.EventDigestDelivered,
		UserID: domain.Int64Ptr(user.ID),
		Metadata: map[string]any{
			"posts":        posts,
			"period_start": since,
			"period_end":   until,
		},
		OccurredAt: s.now().UTC(),
	}
	if err := s.events.RecordEvent(ctx, event); err != nil {
		s.log.Error().Err(err).Str("event", event.Event).Msg("digest: не удалось сохранить бизнес-событие")
	}
}

// groupByUser группирует подписки по пользователю, сохраняя порядок первого появления.
func groupByUser(subscriptions []domain.Subscription) []*userGroup {
	index := make(map[int64]*userGroup)
	order := make([]*userGroup, 0)
	for _, sub := range subscriptions {
		group, ok := index[sub.UserID]
		if !ok {
			user := sub.User
			if user.ID == 0 {
				user.ID = sub.UserID
			}
			group = &userGroup{user: user}
			index[sub.UserID] = group
			order = append(order, group)
		}
		group.categoryIDs = append(group.categoryIDs, sub.CategoryID)
		if sub.LastDigestSentAt != nil && (group.lastDigestAt == nil || sub.LastDigestSentAt.After(*group.lastDigestAt)) {
			at := *sub.LastDigestSentAt
			group.lastDigestAt = &at
		}
	}
	return order
}
