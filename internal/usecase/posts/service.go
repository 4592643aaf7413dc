package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"newspaper/internal/domain"
	"newspaper/internal/infra/metrics"
	"newspaper/internal/usecase/ratelimit"
)

const maxTitleLength = 255

// Notifier получает созданные посты после фиксации транзакции.
type Notifier interface {
	OnPostCreated(ctx context.Context, post domain.Post) error
}

// Service управляет постами, их рейтингом и комментариями.
type Service struct {
	authors  domain.AuthorRepo
	posts    domain.PostRepo
	comments domain.CommentRepo
	events   domain.EventRepo
	limiter  *ratelimit.Limiter
	notifier Notifier
	guards   []Guard
	log      zerolog.Logger
	now      func() time.Time
}

// NewService создаёт сервис постов.
func NewService(authors domain.AuthorRepo, posts domain.PostRepo, comments domain.CommentRepo, events domain.EventRepo, limiter *ratelimit.Limiter, notifier Notifier, logger zerolog.Logger) *Service {
	s := &Service{
		authors:  authors,
		posts:    posts,
		comments: comments,
		events:   events,
		limiter:  limiter,
		notifier: notifier,
		log:      logger,
		now:      time.Now,
	}
	s.guards = []Guard{RequireLogin, RequireAuthor, RateLimit(limiter, s.clock)}
	return s
}

func (s *Service) clock() time.Time {
	return s.now()
}

// Create публикует пост от имени actor. Лимит новостей перепроверяется при сохранении,
// уведомления ставятся в очередь только после успешной записи.
func (s *Service) Create(ctx context.Context, actor *domain.User, input domain.NewPost) (domain.Post, error) {
	if err := runGuards(ctx, s.guards, actor, input); err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			s.rejected(ctx, actor.ID)
		}
		return domain.Post{}, err
	}
	if err := validatePost(input.Type, input.Title, input.Text); err != nil {
		return domain.Post{}, err
	}
	input.AuthorID = actor.ID

	if _, err := s.authors.EnsureAuthor(ctx, actor.ID); err != nil {
		return domain.Post{}, fmt.Errorf("профиль автора: %w", err)
	}

	quota := s.limiter.Quota(input.Type, s.now())
	post, err := s.posts.CreatePost(ctx, input, quota)
	if errors.Is(err, domain.ErrRateLimited) && quota != nil {
		s.rejected(ctx, actor.ID)
		return domain.Post{}, rateLimitDenial(quota.Max)
	}
	if err != nil {
		return domain.Post{}, fmt.Errorf("сохранение поста: %w", err)
	}

	metrics.IncPostPublished(string(post.Type))
	s.record(ctx, domain.BusinessEvent{
		Event:    domain.EventPostPublished,
		UserID:   domain.Int64Ptr(actor.ID),
		PostID:   domain.Int64Ptr(post.ID),
		Metadata: map[string]any{"type": string(post.Type)},
	})

	if s.notifier != nil {
		if err := s.notifier.OnPostCreated(ctx, post); err != nil {
			s.log.Error().Err(err).Int64("post_id", post.ID).Msg("posts: не удалось поставить уведомления в очередь")
		}
	}
	return post, nil
}

// Update меняет пост. Уведомления не отправляются.
func (s *Service) Update(ctx context.Context, actor *domain.User, id int64, update domain.PostUpdate) (domain.Post, error) {
	if err := RequireLogin(ctx, actor, domain.NewPost{}); err != nil {
		return domain.Post{}, err
	}
	current, err := s.posts.GetPost(ctx, id)
	if err != nil {
		return domain.Post{}, err
	}
	if current.AuthorID != actor.ID && !actor.IsAdmin {
		return domain.Post{}, domain.Deny(domain.ErrForbidden, "редактировать можно только свои посты")
	}
	if err := validatePost(current.Type, update.Title, update.Text); err != nil {
		return domain.Post{}, err
	}
	return s.posts.UpdatePost(ctx, id, update)
}

// Get возвращает пост.
func (s *Service) Get(ctx context.Context, id int64) (domain.Post, error) {
	return s.posts.GetPost(ctx, id)
}

// Search ищет новости по фильтру.
func (s *Service) Search(ctx context.Context, filter domain.NewsFilter) ([]domain.Post, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 10
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.posts.SearchNews(ctx, filter)
}

// Like увеличивает рейтинг поста.
func (s *Service) Like(ctx context.Context, actor *domain.User, postID int64) error {
	return s.ratePost(ctx, actor, postID, 1)
}

// Dislike уменьшает рейтинг поста.
func (s *Service) Dislike(ctx context.Context, actor *domain.User, postID int64) error {
	return s.ratePost(ctx, actor, postID, -1)
}

func (s *Service) ratePost(ctx context.Context, actor *domain.User, postID int64, delta int) error {
	if err := RequireLogin(ctx, actor, domain.NewPost{}); err != nil {
		return err
	}
	return s.posts.AdjustPostRating(ctx, postID, delta)
}

// AddComment добавляет комментарий к посту.
func (s *Service) AddComment(ctx context.Context, actor *domain.User, postID int64, text string) (domain.Comment, error) {
	if err := RequireLogin(ctx, actor, domain.NewPost{}); err != nil {
		return domain.Comment{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Comment{}, fmt.Errorf("%w: пустой комментарий", domain.ErrInvalidInput)
	}
	if _, err := s.posts.GetPost(ctx, postID); err != nil {
		return domain.Comment{}, err
	}
	return s.comments.AddComment(ctx, postID, actor.ID, text)
}

// Comments возвращает комментарии к посту.
func (s *Service) Comments(ctx context.Context, postID int64) ([]domain.Comment, error) {
	return s.comments.ListComments(ctx, postID)
}

// LikeComment увеличивает рейтинг комментария.
func (s *Service) LikeComment(ctx context.Context, actor *domain.User, commentID int64) error {
	if err := RequireLogin(ctx, actor, domain.NewPost{}); err != nil {
		return err
	}
	return s.comments.AdjustCommentRating(ctx, commentID, 1)
}

// DislikeComment уменьшает рейтинг комментария.
func (s *Service) DislikeComment(ctx context.Context, actor *domain.User, commentID int64) error {
	if err := RequireLogin(ctx, actor, domain.NewPost{}); err != nil {
		return err
	}
	return s.comments.AdjustCommentRating(ctx, commentID, -1)
}

func (s *Service) rejected(ctx context.Context, userID int64) {
	metrics.IncPostRejected()
	s.record(ctx, domain.BusinessEvent{
		Event:  domain.EventPostRejected,
		UserID: domain.Int64Ptr(userID),
		Metadata: map[string]any{
			"reason": "rate_limit",
		},
	})
}

func (s *Service) record(ctx context.Context, event domain.BusinessEvent) {
	if s.events == nil {
		return
	}
	event.OccurredAt = s.now().UTC()
	if err := s.events.RecordEvent(ctx, event); err != nil {
		s.log.Error().Err(err).Str("event", event.Event).Msg("posts: не удалось сохранить бизнес-событие")
	}
}

func validatePost(postType domain.PostType, title, text string) error {
	if !postType.Valid() {
		return fmt.Errorf("%w: неизвестный тип поста %q", domain.ErrInvalidInput, postType)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: пустой заголовок", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return fmt.Errorf("%w: заголовок длиннее %d символов", domain.ErrInvalidInput, maxTitleLength)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: пустой текст", domain.ErrInvalidInput)
	}
	return nil
}
