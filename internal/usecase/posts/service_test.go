package posts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newspaper/internal/domain"
	"newspaper/internal/usecase/ratelimit"
)

// memRepo повторяет транзакционную семантику CreatePost: подсчёт и вставка под одной блокировкой.
type memRepo struct {
	domain.CommentRepo

	mu       sync.Mutex
	posts    []domain.Post
	ratings  map[int64]int
	comments []domain.Comment
	authors  map[int64]bool
	events   []domain.BusinessEvent
}

func newMemRepo() *memRepo {
	return &memRepo{ratings: map[int64]int{}, authors: map[int64]bool{}}
}

func (r *memRepo) countLocked(authorID int64, since, until time.Time) int {
	n := 0
	for _, p := range r.posts {
		if p.AuthorID == authorID && p.Type == domain.PostTypeNews && !p.CreatedAt.Before(since) && p.CreatedAt.Before(until) {
			n++
		}
	}
	return n
}

func (r *memRepo) CreatePost(_ context.Context, in domain.NewPost, quota *domain.NewsQuota) (domain.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if quota != nil && r.countLocked(in.AuthorID, quota.Since, quota.Until) >= quota.Max {
		return domain.Post{}, domain.ErrRateLimited
	}
	p := domain.Post{ID: int64(len(r.posts) + 1), AuthorID: in.AuthorID, Type: in.Type, Title: in.Title, Text: in.Text, CreatedAt: testNow}
	r.posts = append(r.posts, p)
	return p, nil
}

func (r *memRepo) CountNewsSince(_ context.Context, authorID int64, since, until time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countLocked(authorID, since, until), nil
}

func (r *memRepo) GetPost(_ context.Context, id int64) (domain.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.ID == id {
			p.Rating = r.ratings[id]
			return p, nil
		}
	}
	return domain.Post{}, domain.ErrNotFound
}

func (r *memRepo) UpdatePost(_ context.Context, id int64, u domain.PostUpdate) (domain.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.posts {
		if r.posts[i].ID == id {
			r.posts[i].Title, r.posts[i].Text = u.Title, u.Text
			return r.posts[i], nil
		}
	}
	return domain.Post{}, domain.ErrNotFound
}

func (r *memRepo) AdjustPostRating(_ context.Context, id int64, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ratings[id] += delta
	return nil
}

func (r *memRepo) ListNewsForDigest(context.Context, []int64, time.Time, time.Time) ([]domain.Post, error) {
	return nil, nil
}

func (r *memRepo) SearchNews(context.Context, domain.NewsFilter) ([]domain.Post, error) {
	return nil, nil
}

func (r *memRepo) AddComment(_ context.Context, postID, userID int64, text string) (domain.Comment, error) {
	c := domain.Comment{ID: int64(len(r.comments) + 1), PostID: postID, UserID: userID, Text: text}
	r.comments = append(r.comments, c)
	return c, nil
}

func (r *memRepo) EnsureAuthor(_ context.Context, userID int64) (domain.Author, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authors[userID] = true
	return domain.Author{UserID: userID}, nil
}
func (r *memRepo) GetAuthor(context.Context, int64) (domain.Author, error) {
	return domain.Author{}, nil
}
func (r *memRepo) RatingParts(context.Context, int64) (domain.AuthorRatingParts, error) {
	return domain.AuthorRatingParts{}, nil
}
func (r *memRepo) SetAuthorRating(context.Context, int64, int) error { return nil }

func (r *memRepo) RecordEvent(_ context.Context, e domain.BusinessEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type stubNotifier struct {
	mu    sync.Mutex
	posts []domain.Post
	err   error
}

func (n *stubNotifier) OnPostCreated(_ context.Context, post domain.Post) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.posts = append(n.posts, post)
	return n.err
}

var testNow = time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)

var author = &domain.User{ID: 1, Username: "ivan", Email: "ivan@example.com", Groups: []string{domain.GroupCommon, domain.GroupAuthors}}

func newTestService(repo *memRepo, notifier Notifier) *Service {
	limiter := ratelimit.New(repo, 3, time.UTC)
	svc := NewService(repo, repo, repo, repo, limiter, notifier, zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return svc
}

func newsInput() domain.NewPost {
	return domain.NewPost{Type: domain.PostTypeNews, Title: "Заголовок", Text: "Текст новости", CategoryIDs: []int64{1}}
}

func TestCreateGuardOrder(t *testing.T) {
	svc := newTestService(newMemRepo(), &stubNotifier{})

	_, err := svc.Create(context.Background(), nil, newsInput())
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
	var deny *domain.DenyError
	require.ErrorAs(t, err, &deny)
	require.NotEmpty(t, deny.Reason)

	reader := &domain.User{ID: 2, Groups: []string{domain.GroupCommon}}
	_, err = svc.Create(context.Background(), reader, newsInput())
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCreateNewsRespectsDailyLimit(t *testing.T) {
	repo := newMemRepo()
	notifier := &stubNotifier{}
	svc := newTestService(repo, notifier)

	for i := 0; i < 3; i++ {
		_, err := svc.Create(context.Background(), author, newsInput())
		require.NoError(t, err)
	}
	_, err := svc.Create(context.Background(), author, newsInput())
	require.ErrorIs(t, err, domain.ErrRateLimited)
	var deny *domain.DenyError
	require.ErrorAs(t, err, &deny)
	assert.Contains(t, deny.Reason, "3")

	require.Len(t, repo.posts, 3)
	require.Len(t, notifier.posts, 3)
	require.True(t, repo.authors[author.ID])
}

func TestCreateArticleIsNotLimited(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubNotifier{})

	for i := 0; i < 5; i++ {
		in := newsInput()
		in.Type = domain.PostTypeArticle
		_, err := svc.Create(context.Background(), author, in)
		require.NoError(t, err)
	}
	require.Len(t, repo.posts, 5)
}

func TestCreateConcurrentNeverExceedsLimit(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubNotifier{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, limited int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), author, newsInput())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrRateLimited):
				limited++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 3, ok)
	require.Equal(t, 7, limited)
	require.Len(t, repo.posts, 3)
}

func TestCreateValidationPersistsNothing(t *testing.T) {
	repo := newMemRepo()
	notifier := &stubNotifier{}
	svc := newTestService(repo, notifier)

	in := newsInput()
	in.Title = "  "
	_, err := svc.Create(context.Background(), author, in)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	in = newsInput()
	in.Type = "XX"
	_, err = svc.Create(context.Background(), author, in)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	require.Empty(t, repo.posts)
	require.Empty(t, notifier.posts)
}

func TestCreateSucceedsWhenNotifierFails(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubNotifier{err: errors.New("queue down")})

	post, err := svc.Create(context.Background(), author, newsInput())
	require.NoError(t, err)
	require.NotZero(t, post.ID)
}

func TestUpdateDoesNotNotify(t *testing.T) {
	repo := newMemRepo()
	notifier := &stubNotifier{}
	svc := newTestService(repo, notifier)

	post, err := svc.Create(context.Background(), author, newsInput())
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), author, post.ID, domain.PostUpdate{Title: "Новый", Text: "Новый текст"})
	require.NoError(t, err)
	require.Equal(t, "Новый", updated.Title)
	require.Len(t, notifier.posts, 1)

	stranger := &domain.User{ID: 9, Groups: []string{domain.GroupAuthors}}
	_, err = svc.Update(context.Background(), stranger, post.ID, domain.PostUpdate{Title: "x", Text: "y"})
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestLikeDislike(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubNotifier{})
	post, err := svc.Create(context.Background(), author, newsInput())
	require.NoError(t, err)

	reader := &domain.User{ID: 3}
	require.NoError(t, svc.Like(context.Background(), reader, post.ID))
	require.NoError(t, svc.Like(context.Background(), reader, post.ID))
	require.NoError(t, svc.Dislike(context.Background(), reader, post.ID))

	got, err := svc.Get(context.Background(), post.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Rating)

	require.ErrorIs(t, svc.Like(context.Background(), nil, post.ID), domain.ErrUnauthenticated)
}

func TestAddComment(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubNotifier{})
	post, err := svc.Create(context.Background(), author, newsInput())
	require.NoError(t, err)

	c, err := svc.AddComment(context.Background(), &domain.User{ID: 3}, post.ID, " отлично ")
	require.NoError(t, err)
	require.Equal(t, "отлично", c.Text)

	_, err = svc.AddComment(context.Background(), &domain.User{ID: 3}, post.ID, " ")
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.AddComment(context.Background(), &domain.User{ID: 3}, 404, "текст")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
