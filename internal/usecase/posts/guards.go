package posts

import (
	"context"
	"fmt"
	"time"

	"newspaper/internal/domain"
	"newspaper/internal/usecase/ratelimit"
)

// Guard проверяет право создать пост. Возвращает nil, если можно, или *domain.DenyError с причиной отказа.
type Guard func(ctx context.Context, actor *domain.User, input domain.NewPost) error

// RequireLogin отклоняет анонимные запросы.
func RequireLogin(_ context.Context, actor *domain.User, _ domain.NewPost) error {
	if actor == nil || actor.ID == 0 {
		return domain.Deny(domain.ErrUnauthenticated, "нужно войти в систему")
	}
	return nil
}

// RequireAuthor пропускает только участников группы authors.
func RequireAuthor(_ context.Context, actor *domain.User, _ domain.NewPost) error {
	if !actor.InGroup(domain.GroupAuthors) {
		return domain.Deny(domain.ErrForbidden, "публиковать могут только авторы")
	}
	return nil
}

// RateLimit отклоняет новость, если автор исчерпал дневной лимит. Статьи не ограничиваются.
func RateLimit(limiter *ratelimit.Limiter, now func() time.Time) Guard {
	return func(ctx context.Context, actor *domain.User, input domain.NewPost) error {
		if input.Type != domain.PostTypeNews {
			return nil
		}
		state, err := limiter.CheckLimit(ctx, actor.ID, now())
		if err != nil {
			return err
		}
		if !state.Allowed() {
			return rateLimitDenial(state.MaxAllowed)
		}
		return nil
	}
}

func rateLimitDenial(max int) *domain.DenyError {
	return domain.Deny(domain.ErrRateLimited, fmt.Sprintf("нельзя публиковать более %d новостей в сутки", max))
}

// runGuards выполняет проверки по порядку и возвращает первый отказ.
func runGuards(ctx context.Context, guards []Guard, actor *domain.User, input domain.NewPost) error {
	for _, guard := range guards {
		if err := guard(ctx, actor, input); err != nil {
			return err
		}
	}
	return nil
}
