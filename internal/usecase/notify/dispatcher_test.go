package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newspaper/internal/domain"
	"newspaper/internal/usecase/content"
)

type stubQueue struct {
	jobs []domain.Job
	err  error
}

func (q *stubQueue) Enqueue(_ context.Context, job domain.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *stubQueue) Receive(context.Context) (domain.Job, domain.AckFunc, error) {
	return domain.Job{}, nil, errors.New("not implemented")
}

type stubPosts struct {
	domain.PostRepo
	posts map[int64]domain.Post
}

func (s *stubPosts) GetPost(_ context.Context, id int64) (domain.Post, error) {
	p, ok := s.posts[id]
	if !ok {
		return domain.Post{}, domain.ErrNotFound
	}
	return p, nil
}

type stubSubs struct {
	domain.SubscriptionRepo
	byCategory map[int64][]domain.User
	marked     []int64
}

func (s *stubSubs) MarkDigestSent(_ context.Context, userID int64, _ time.Time) error {
	s.marked = append(s.marked, userID)
	return nil
}

func (s *stubSubs) ListSubscribers(_ context.Context, categoryID int64) ([]domain.User, error) {
	return s.byCategory[categoryID], nil
}

type stubMailer struct {
	sent []domain.Email
	err  error
}

func (m *stubMailer) Send(_ context.Context, email domain.Email) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

var (
	politics = domain.Category{ID: 1, Name: "Политика"}
	economy  = domain.Category{ID: 2, Name: "Экономика"}
	s1       = domain.User{ID: 11, Username: "s1", Email: "s1@example.com"}
	s2       = domain.User{ID: 12, Username: "s2", Email: "s2@example.com"}
)

func newDispatcher(q *stubQueue, posts *stubPosts, subs *stubSubs, mailer *stubMailer) *Dispatcher {
	formatter := Formatter{From: "noreply@newspaper.com", Links: content.Links{BaseURL: "http://127.0.0.1:8000"}, PreviewLen: 100, Location: time.UTC}
	return NewDispatcher(q, posts, subs, mailer, formatter, zerolog.Nop())
}

func recipients(t *testing.T, jobs []domain.Job) map[string]int {
	t.Helper()
	out := map[string]int{}
	for _, job := range jobs {
		require.Equal(t, domain.JobSendEmail, job.Kind)
		var payload domain.SendEmailPayload
		require.NoError(t, job.Decode(&payload))
		for _, to := range payload.Email.To {
			out[to]++
		}
	}
	return out
}

func TestOnPostCreatedOnlyForNews(t *testing.T) {
	q := &stubQueue{}
	d := newDispatcher(q, &stubPosts{}, &stubSubs{}, &stubMailer{})

	require.NoError(t, d.OnPostCreated(context.Background(), domain.Post{ID: 1, Type: domain.PostTypeArticle}))
	require.Empty(t, q.jobs)

	require.NoError(t, d.OnPostCreated(context.Background(), domain.Post{ID: 2, Type: domain.PostTypeNews}))
	require.Len(t, q.jobs, 1)
	require.Equal(t, domain.JobPostCreated, q.jobs[0].Kind)
	var payload domain.PostCreatedPayload
	require.NoError(t, q.jobs[0].Decode(&payload))
	require.Equal(t, int64(2), payload.PostID)
}

func TestHandlePostCreatedOneEmailPerSubscriberCategoryPair(t *testing.T) {
	post := domain.Post{
		ID: 7, Type: domain.PostTypeNews, Title: "Выборы", Text: "Подробности", AuthorName: "author",
		CreatedAt:  time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC),
		Categories: []domain.Category{politics, economy},
	}
	q := &stubQueue{}
	subs := &stubSubs{byCategory: map[int64][]domain.User{
		politics.ID: {s1, s2},
		economy.ID:  {s2},
	}}
	d := newDispatcher(q, &stubPosts{posts: map[int64]domain.Post{7: post}}, subs, &stubMailer{})

	queued, err := d.HandlePostCreated(context.Background(), domain.PostCreatedPayload{PostID: 7})
	require.NoError(t, err)
	require.Equal(t, 3, queued)

	got := recipients(t, q.jobs)
	assert.Equal(t, 1, got[s1.Email])
	assert.Equal(t, 2, got[s2.Email])
}

func TestNewsPostNotifiesSubscriberWithoutTouchingDigestState(t *testing.T) {
	reader := domain.User{ID: 21, Username: "a", Email: "a@example.com"}
	post := domain.Post{
		ID: 31, AuthorID: 22, AuthorName: "b", Type: domain.PostTypeNews, Title: "X", Text: "Текст",
		CreatedAt:  time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC),
		Categories: []domain.Category{politics},
	}
	q := &stubQueue{}
	subs := &stubSubs{byCategory: map[int64][]domain.User{politics.ID: {reader}}}
	d := newDispatcher(q, &stubPosts{posts: map[int64]domain.Post{post.ID: post}}, subs, &stubMailer{})

	require.NoError(t, d.OnPostCreated(context.Background(), post))
	require.Len(t, q.jobs, 1)
	var created domain.PostCreatedPayload
	require.NoError(t, q.jobs[0].Decode(&created))
	q.jobs = nil

	queued, err := d.HandlePostCreated(context.Background(), created)
	require.NoError(t, err)
	require.Equal(t, 1, queued)
	require.Len(t, q.jobs, 1)

	var payload domain.SendEmailPayload
	require.NoError(t, q.jobs[0].Decode(&payload))
	assert.Equal(t, []string{reader.Email}, payload.Email.To)
	assert.Contains(t, payload.Email.Subject, "X")
	assert.Contains(t, payload.Email.Text, "/news/31/")
	assert.Empty(t, subs.marked)
}

func TestHandlePostCreatedSkipsEmptyEmail(t *testing.T) {
	post := domain.Post{ID: 7, Type: domain.PostTypeNews, Categories: []domain.Category{politics}}
	q := &stubQueue{}
	subs := &stubSubs{byCategory: map[int64][]domain.User{politics.ID: {s1, {ID: 99, Username: "ghost"}}}}
	d := newDispatcher(q, &stubPosts{posts: map[int64]domain.Post{7: post}}, subs, &stubMailer{})

	queued, err := d.HandlePostCreated(context.Background(), domain.PostCreatedPayload{PostID: 7})
	require.NoError(t, err)
	require.Equal(t, 1, queued)
	require.Equal(t, map[string]int{s1.Email: 1}, recipients(t, q.jobs))
}

func TestHandlePostCreatedNoSubscribers(t *testing.T) {
	post := domain.Post{ID: 7, Type: domain.PostTypeNews, Categories: []domain.Category{politics}}
	q := &stubQueue{}
	d := newDispatcher(q, &stubPosts{posts: map[int64]domain.Post{7: post}}, &stubSubs{}, &stubMailer{})

	queued, err := d.HandlePostCreated(context.Background(), domain.PostCreatedPayload{PostID: 7})
	require.NoError(t, err)
	require.Zero(t, queued)
	require.Empty(t, q.jobs)
}

func TestHandlePostCreatedNoCategories(t *testing.T) {
	post := domain.Post{ID: 7, Type: domain.PostTypeNews}
	q := &stubQueue{}
	d := newDispatcher(q, &stubPosts{posts: map[int64]domain.Post{7: post}}, &stubSubs{}, &stubMailer{})

	queued, err := d.HandlePostCreated(context.Background(), domain.PostCreatedPayload{PostID: 7})
	require.NoError(t, err)
	require.Zero(t, queued)
}

func TestHandlePostCreatedMissingPostCompletes(t *testing.T) {
	q := &stubQueue{}
	d := newDispatcher(q, &stubPosts{posts: map[int64]domain.Post{}}, &stubSubs{}, &stubMailer{})

	queued, err := d.HandlePostCreated(context.Background(), domain.PostCreatedPayload{PostID: 404})
	require.NoError(t, err)
	require.Zero(t, queued)
	require.Empty(t, q.jobs)
}

func TestHandleSendEmail(t *testing.T) {
	mailer := &stubMailer{}
	d := newDispatcher(&stubQueue{}, &stubPosts{}, &stubSubs{}, mailer)

	email := domain.Email{To: []string{s1.Email}, Subject: "x"}
	require.NoError(t, d.HandleSendEmail(context.Background(), domain.SendEmailPayload{Kind: EmailKindNotification, Email: email}))
	require.Len(t, mailer.sent, 1)

	mailer.err = errors.New("smtp down")
	require.Error(t, d.HandleSendEmail(context.Background(), domain.SendEmailPayload{Kind: EmailKindNotification, Email: email}))
}

func TestFormatterBuild(t *testing.T) {
	post := domain.Post{
		ID: 5, Title: "Плохой день", AuthorName: "ivan", Text: strings.Repeat("а", 150),
		CreatedAt: time.Date(2024, 3, 1, 14, 5, 0, 0, time.UTC),
	}
	f := Formatter{From: "noreply@newspaper.com", Links: content.Links{BaseURL: "http://127.0.0.1:8000"}, PreviewLen: 100, Location: time.UTC}

	email := f.Build(post, politics, s1)

	assert.Equal(t, "noreply@newspaper.com", email.From)
	assert.Equal(t, []string{s1.Email}, email.To)
	assert.Equal(t, "🔔 Новая новость в категории \"Политика\": П***** день", email.Subject)
	assert.Contains(t, email.Text, "Здравствуй, s1!")
	assert.Contains(t, email.Text, "Автор: ivan")
	assert.Contains(t, email.Text, "Дата публикации: 01.03.2024 14:05")
	assert.Contains(t, email.Text, strings.Repeat("а", 100)+"...")
	assert.NotContains(t, email.Text, strings.Repeat("а", 101))
	assert.Contains(t, email.Text, "http://127.0.0.1:8000/news/5/")
	assert.Contains(t, email.Text, "http://127.0.0.1:8000/news/category/1/unsubscribe/")
	assert.Contains(t, email.HTML, "<a href=\"http://127.0.0.1:8000/news/5/\">")
}
