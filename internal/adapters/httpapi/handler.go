package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"newspaper/internal/domain"
	httpinfra "newspaper/internal/infra/http"
	"newspaper/internal/usecase/content"
)

// Accounts: операции с пользователями.
type Accounts interface {
	Register(ctx context.Context, username, email string) (domain.User, error)
	Get(ctx context.Context, id int64) (domain.User, error)
	BecomeAuthor(ctx context.Context, actor *domain.User) (domain.Author, error)
	UpdateRating(ctx context.Context, authorID int64) (domain.Author, error)
}

// Posts: операции с постами и комментариями.
type Posts interface {
	Create(ctx context.Context, actor *domain.User, input domain.NewPost) (domain.Post, error)
	Update(ctx context.Context, actor *domain.User, id int64, update domain.PostUpdate) (domain.Post, error)
	Get(ctx context.Context, id int64) (domain.Post, error)
	Search(ctx context.Context, filter domain.NewsFilter) ([]domain.Post, error)
	Like(ctx context.Context, actor *domain.User, postID int64) error
	Dislike(ctx context.Context, actor *domain.User, postID int64) error
	AddComment(ctx context.Context, actor *domain.User, postID int64, text string) (domain.Comment, error)
	Comments(ctx context.Context, postID int64) ([]domain.Comment, error)
	LikeComment(ctx context.Context, actor *domain.User, commentID int64) error
	DislikeComment(ctx context.Context, actor *domain.User, commentID int64) error
}

// Subscriptions: операции с рубриками и подписками.
type Subscriptions interface {
	Subscribe(ctx context.Context, actor *domain.User, categoryID int64) (domain.Subscription, error)
	Unsubscribe(ctx context.Context, actor *domain.User, categoryID int64) error
	List(ctx context.Context, actor *domain.User) ([]domain.Subscription, error)
	Categories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, actor *domain.User, name string) (domain.Category, error)
}

// DigestTrigger ставит внеочередную рассылку.
type DigestTrigger interface {
	TriggerNow(ctx context.Context) (domain.Job, error)
}

// Handler обслуживает REST API портала.
type Handler struct {
	accounts Accounts
	posts    Posts
	subs     Subscriptions
	digest   DigestTrigger
	links    content.Links
	validate *validator.Validate
	log      zerolog.Logger
}

// NewHandler создаёт обработчик API.
func NewHandler(accounts Accounts, posts Posts, subs Subscriptions, digest DigestTrigger, links content.Links, logger zerolog.Logger) *Handler {
	return &Handler{
		accounts: accounts,
		posts:    posts,
		subs:     subs,
		digest:   digest,
		links:    links,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      logger,
	}
}

// Register подключает маршруты к роутеру.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.identify)

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/users", h.registerUser)
			r.Get("/users/me", h.me)
			r.Post("/users/me/author", h.becomeAuthor)
			r.Post("/authors/{id}/rating", h.updateRating)

			r.Get("/categories", h.listCategories)
			r.Post("/categories", h.createCategory)
			r.Post("/categories/{id}/subscription", h.subscribe)
			r.Delete("/categories/{id}/subscription", h.unsubscribe)
			r.Get("/subscriptions", h.listSubscriptions)

			r.Get("/news", h.search)
			r.Post("/posts", h.createPost)
			r.Get("/posts/{id}", h.getPost)
			r.Put("/posts/{id}", h.updatePost)
			r.Post("/posts/{id}/like", h.likePost)
			r.Post("/posts/{id}/dislike", h.dislikePost)
			r.Get("/posts/{id}/comments", h.listComments)
			r.Post("/posts/{id}/comments", h.addComment)
			r.Post("/comments/{id}/like", h.likeComment)
			r.Post("/comments/{id}/dislike", h.dislikeComment)

			r.Post("/digest/trigger", h.triggerDigest)
		})

		// Ссылки из писем.
		r.Get("/news/{id}/", h.getPost)
		r.Get("/news/category/{id}/unsubscribe/", h.unsubscribe)
	})
}

type ctxKey struct{}

// identify подставляет текущего пользователя по заголовку X-User-ID.
func (h *Handler) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpinfra.WriteError(w, http.StatusUnauthorized, "invalid X-User-ID")
			return
		}
		user, err := h.accounts.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				httpinfra.WriteError(w, http.StatusUnauthorized, "unknown user")
				return
			}
			h.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, &user)))
	})
}

func actorFrom(ctx context.Context) *domain.User {
	user, _ := ctx.Value(ctxKey{}).(*domain.User)
	return user
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, strings.ToLower(fe.Field())+": "+fe.Tag())
	}
	return "validation failed: " + strings.Join(msgs, ", ")
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// fail переводит доменные ошибки в HTTP статусы.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	var deny *domain.DenyError
	if errors.As(err, &deny) && deny.Reason != "" {
		msg = deny.Reason
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("api: внутренняя ошибка")
		msg = "internal error"
	}
	httpinfra.WriteError(w, status, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadySubscribed), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func parseAfter(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New("after must be YYYY-MM-DD or RFC3339")
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return v, nil
}
