package domain

import (
	"context"
	"time"
)

// UserRepo управляет пользователями и группами.
type UserRepo interface {
	// CreateUser создаёт пользователя и добавляет его в группу common.
	CreateUser(ctx context.Context, username, email string, isAdmin bool) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	// FirstAdmin возвращает первого по id администратора или ErrNotFound.
	FirstAdmin(ctx context.Context) (User, error)
	AddUserToGroup(ctx context.Context, userID int64, group string) error
}

// AuthorRepo управляет профилями авторов.
type AuthorRepo interface {
	EnsureAuthor(ctx context.Context, userID int64) (Author, error)
	GetAuthor(ctx context.Context, userID int64) (Author, error)
	RatingParts(ctx context.Context, userID int64) (AuthorRatingParts, error)
	SetAuthorRating(ctx context.Context, userID int64, rating int) error
}

// CategoryRepo управляет рубриками.
type CategoryRepo interface {
	CreateCategory(ctx context.Context, name string) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	// FirstCategory возвращает рубрику с минимальным id или ErrNotFound.
	FirstCategory(ctx context.Context) (Category, error)
}

// PostRepo управляет постами.
type PostRepo interface {
	// CreatePost сохраняет пост с рубриками в одной транзакции. При непустой quota
	// количество новостей автора в окне пересчитывается под блокировкой строки автора,
	// и при достижении лимита возвращается ErrRateLimited.
	CreatePost(ctx context.Context, post NewPost, quota *NewsQuota) (Post, error)
	// CountNewsSince считает новости автора в окне [since, until).
	CountNewsSince(ctx context.Context, authorID int64, since, until time.Time) (int, error)
	GetPost(ctx context.Context, id int64) (Post, error)
	UpdatePost(ctx context.Context, id int64, update PostUpdate) (Post, error)
	AdjustPostRating(ctx context.Context, id int64, delta int) error
	// ListNewsForDigest возвращает новости из окна [since, until), относящиеся хотя бы
	// к одной из рубрик. Каждый пост встречается один раз, новые первыми.
	ListNewsForDigest(ctx context.Context, categoryIDs []int64, since, until time.Time) ([]Post, error)
	SearchNews(ctx context.Context, filter NewsFilter) ([]Post, error)
}

// CommentRepo управляет комментариями.
type CommentRepo interface {
	AddComment(ctx context.Context, postID, userID int64, text string) (Comment, error)
	ListComments(ctx context.Context, postID int64) ([]Comment, error)
	AdjustCommentRating(ctx context.Context, id int64, delta int) error
}

// SubscriptionRepo управляет подписками на рубрики. Списки возвращаются снимком на момент вызова.
type SubscriptionRepo interface {
	// Subscribe возвращает ErrAlreadySubscribed при повторной подписке.
	Subscribe(ctx context.Context, userID, categoryID int64) (Subscription, error)
	Unsubscribe(ctx context.Context, userID, categoryID int64) error
	// ListSubscribers возвращает подписчиков рубрики по возрастанию id.
	ListSubscribers(ctx context.Context, categoryID int64) ([]User, error)
	// ListSubscriptions возвращает все подписки с пользователями и рубриками,
	// упорядоченные по пользователю и рубрике.
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
	// ListUserSubscriptions возвращает подписки пользователя по возрастанию id рубрики.
	ListUserSubscriptions(ctx context.Context, userID int64) ([]Subscription, error)
	// MarkDigestSent обновляет last_digest_sent_at у всех подписок пользователя.
	MarkDigestSent(ctx context.Context, userID int64, at time.Time) error
}

// DigestRunRepo сохраняет историю запусков рассылки.
type DigestRunRepo interface {
	RecordDigestRun(ctx context.Context, run DigestRun) (DigestRun, error)
	LastDigestRun(ctx context.Context) (DigestRun, error)
}

// Mailer отправляет письма.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// Locker выдаёт распределённую блокировку на время ttl.
type Locker interface {
	// Acquire возвращает release и true, если блокировка получена.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Alerter отправляет короткие оповещения администраторам.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}
