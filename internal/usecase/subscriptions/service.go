package subscriptions

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"newspaper/internal/domain"
)

// Service управляет подписками пользователей на рубрики.
type Service struct {
	subs       domain.SubscriptionRepo
	categories domain.CategoryRepo
	events     domain.EventRepo
	log        zerolog.Logger
}

// NewService создаёт сервис подписок.
func NewService(subs domain.SubscriptionRepo, categories domain.CategoryRepo, events domain.EventRepo, logger zerolog.Logger) *Service {
	return &Service{subs: subs, categories: categories, events: events, log: logger}
}

func requireLogin(actor *domain.User) error {
	if actor == nil || actor.ID == 0 {
		return domain.Deny(domain.ErrUnauthenticated, "нужно войти в систему")
	}
	return nil
}

// Subscribe подписывает пользователя на рубрику.
func (s *Service) Subscribe(ctx context.Context, actor *domain.User, categoryID int64) (domain.Subscription, error) {
	if err := requireLogin(actor); err != nil {
		return domain.Subscription{}, err
	}
	sub, err := s.subs.Subscribe(ctx, actor.ID, categoryID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadySubscribed) || errors.Is(err, domain.ErrNotFound) {
			return domain.Subscription{}, err
		}
		return domain.Subscription{}, fmt.Errorf("подписка: %w", err)
	}
	if s.events != nil {
		event := domain.BusinessEvent{
			Event:      domain.EventUserSubscribed,
			UserID:     domain.Int64Ptr(actor.ID),
			Metadata:   map[string]any{"category_id": categoryID},
			OccurredAt: sub.SubscribedAt,
		}
		if err := s.events.RecordEvent(ctx, event); err != nil {
			s.log.Error().Err(err).Str("event", event.Event).Msg("subscriptions: не удалось сохранить бизнес-событие")
		}
	}
	return sub, nil
}

// Unsubscribe отписывает пользователя от рубрики. Отписка от отсутствующей подписки не ошибка.
func (s *Service) Unsubscribe(ctx context.Context, actor *domain.User, categoryID int64) error {
	if err := requireLogin(actor); err != nil {
		return err
	}
	return s.subs.Unsubscribe(ctx, actor.ID, categoryID)
}

// List возвращает подписки пользователя.
func (s *Service) List(ctx context.Context, actor *domain.User) ([]domain.Subscription, error) {
	if err := requireLogin(actor); err != nil {
		return nil, err
	}
	return s.subs.ListUserSubscriptions(ctx, actor.ID)
}

// Categories возвращает все рубрики.
func (s *Service) Categories(ctx context.Context) ([]domain.Category, error) {
	return s.categories.ListCategories(ctx)
}

// CreateCategory создаёт рубрику. Доступно только администраторам.
func (s *Service) CreateCategory(ctx context.Context, actor *domain.User, name string) (domain.Category, error) {
	if err := requireLogin(actor); err != nil {
		return domain.Category{}, err
	}
	if !actor.IsAdmin {
		return domain.Category{}, domain.Deny(domain.ErrForbidden, "создавать рубрики может только администратор")
	}
	return s.categories.CreateCategory(ctx, name)
}
