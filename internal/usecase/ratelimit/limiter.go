package ratelimit

import (
	"context"
	"fmt"
	"time"

	"newspaper/internal/domain"
)

// Limiter ограничивает число новостей автора за календарные сутки.
type Limiter struct {
	posts domain.PostRepo
	max   int
	loc   *time.Location
}

// New создаёт лимитер. max <= 0 отключает ограничение.
func New(posts domain.PostRepo, max int, loc *time.Location) *Limiter {
	if loc == nil {
		loc = time.Local
	}
	return &Limiter{posts: posts, max: max, loc: loc}
}

// CheckLimit возвращает количество новостей автора за сутки now и лимит.
func (l *Limiter) CheckLimit(ctx context.Context, authorID int64, now time.Time) (domain.LimitState, error) {
	since, until := domain.DayBounds(now, l.loc)
	count, err := l.posts.CountNewsSince(ctx, authorID, since, until)
	if err != nil {
		return domain.LimitState{}, fmt.Errorf("подсчёт новостей: %w", err)
	}
	return domain.LimitState{CountToday: count, MaxAllowed: l.max}, nil
}

// Quota возвращает окно и лимит для перепроверки при сохранении.
// Для статей и при отключённом лимите возвращает nil.
func (l *Limiter) Quota(postType domain.PostType, now time.Time) *domain.NewsQuota {
	if postType != domain.PostTypeNews || l.max <= 0 {
		return nil
	}
	since, until := domain.DayBounds(now, l.loc)
	return &domain.NewsQuota{Since: since, Until: until, Max: l.max}
}
