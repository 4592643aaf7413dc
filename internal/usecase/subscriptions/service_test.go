package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"newspaper/internal/domain"
)

type stubRepo struct {
	domain.SubscriptionRepo
	domain.CategoryRepo
	subs   map[[2]int64]bool
	events []domain.BusinessEvent
}

func (s *stubRepo) Subscribe(_ context.Context, userID, categoryID int64) (domain.Subscription, error) {
	key := [2]int64{userID, categoryID}
	if s.subs[key] {
		return domain.Subscription{}, domain.ErrAlreadySubscribed
	}
	s.subs[key] = true
	return domain.Subscription{UserID: userID, CategoryID: categoryID, SubscribedAt: time.Now()}, nil
}

func (s *stubRepo) Unsubscribe(_ context.Context, userID, categoryID int64) error {
	delete(s.subs, [2]int64{userID, categoryID})
	return nil
}

func (s *stubRepo) RecordEvent(_ context.Context, e domain.BusinessEvent) error {
	s.events = append(s.events, e)
	return nil
}

func TestSubscribeTwiceReturnsAlreadySubscribed(t *testing.T) {
	repo := &stubRepo{subs: map[[2]int64]bool{}}
	svc := NewService(repo, repo, repo, zerolog.Nop())
	user := &domain.User{ID: 1}

	_, err := svc.Subscribe(context.Background(), user, 5)
	require.NoError(t, err)
	_, err = svc.Subscribe(context.Background(), user, 5)
	require.ErrorIs(t, err, domain.ErrAlreadySubscribed)
	require.Len(t, repo.events, 1)

	require.NoError(t, svc.Unsubscribe(context.Background(), user, 5))
	_, err = svc.Subscribe(context.Background(), user, 5)
	require.NoError(t, err)
}

func TestSubscribeRequiresLogin(t *testing.T) {
	repo := &stubRepo{subs: map[[2]int64]bool{}}
	svc := NewService(repo, repo, repo, zerolog.Nop())

	_, err := svc.Subscribe(context.Background(), nil, 5)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestCreateCategoryAdminOnly(t *testing.T) {
	repo := &stubRepo{subs: map[[2]int64]bool{}}
	svc := NewService(repo, repo, repo, zerolog.Nop())

	_, err := svc.CreateCategory(context.Background(), &domain.User{ID: 1}, "Спорт")
	require.ErrorIs(t, err, domain.ErrForbidden)
}
