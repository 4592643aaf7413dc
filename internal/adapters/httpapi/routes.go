package httpapi

import (
	"context"
	"net/http"
	"time"

	"newspaper/internal/domain"
	httpinfra "newspaper/internal/infra/http"
	"newspaper/internal/usecase/content"
)

type registerRequest struct {
	Username string `json:"username" validate:"required,max=150"`
	Email    string `json:"email" validate:"omitempty,email"`
}

type categoryRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type postRequest struct {
	Type        string  `json:"type" validate:"required,oneof=AR NW"`
	Title       string  `json:"title" validate:"required,max=255"`
	Text        string  `json:"text" validate:"required"`
	CategoryIDs []int64 `json:"category_ids" validate:"dive,gt=0"`
}

type postUpdateRequest struct {
	Title       string  `json:"title" validate:"required,max=255"`
	Text        string  `json:"text" validate:"required"`
	CategoryIDs []int64 `json:"category_ids" validate:"omitempty,dive,gt=0"`
}

type commentRequest struct {
	Text string `json:"text" validate:"required"`
}

type userResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	Groups    []string  `json:"groups"`
	CreatedAt time.Time `json:"created_at"`
}

type authorResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
}

type categoryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type postResponse struct {
	ID         int64              `json:"id"`
	AuthorID   int64              `json:"author_id"`
	Author     string             `json:"author"`
	Type       string             `json:"type"`
	Title      string             `json:"title"`
	Text       string             `json:"text,omitempty"`
	Preview    string             `json:"preview"`
	Rating     int                `json:"rating"`
	CreatedAt  time.Time          `json:"created_at"`
	Categories []categoryResponse `json:"categories"`
	URL        string             `json:"url"`
}

type commentResponse struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"post_id"`
	UserID    int64     `json:"user_id"`
	Text      string    `json:"text"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}

type subscriptionResponse struct {
	Category         categoryResponse `json:"category"`
	SubscribedAt     time.Time        `json:"subscribed_at"`
	LastDigestSentAt *time.Time       `json:"last_digest_sent_at"`
}

func toUser(u domain.User) userResponse {
	groups := u.Groups
	if groups == nil {
		groups = []string{}
	}
	return userResponse{ID: u.ID, Username: u.Username, Email: u.Email, IsAdmin: u.IsAdmin, Groups: groups, CreatedAt: u.CreatedAt}
}

func toAuthor(a domain.Author) authorResponse {
	return authorResponse{UserID: a.UserID, Username: a.Username, Rating: a.Rating}
}

func toCategories(cs []domain.Category) []categoryResponse {
	res := make([]categoryResponse, 0, len(cs))
	for _, c := range cs {
		res = append(res, categoryResponse{ID: c.ID, Name: c.Name})
	}
	return res
}

// toPost отдаёт пост с цензурой заголовка и текста. Полный текст только при full.
func (h *Handler) toPost(p domain.Post, full bool) postResponse {
	res := postResponse{
		ID:         p.ID,
		AuthorID:   p.AuthorID,
		Author:     p.AuthorName,
		Type:       string(p.Type),
		Title:      content.Censor(p.Title),
		Preview:    content.Censor(p.Preview()),
		Rating:     p.Rating,
		CreatedAt:  p.CreatedAt,
		Categories: toCategories(p.Categories),
		URL:        h.links.Post(p.ID),
	}
	if full {
		res.Text = content.Censor(p.Text)
	}
	return res
}

func toComment(c domain.Comment) commentResponse {
	return commentResponse{ID: c.ID, PostID: c.PostID, UserID: c.UserID, Text: content.Censor(c.Text), Rating: c.Rating, CreatedAt: c.CreatedAt}
}

func (h *Handler) registerUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.accounts.Register(r.Context(), req.Username, req.Email)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, toUser(user))
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if actor == nil {
		h.fail(w, r, domain.ErrUnauthenticated)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toUser(*actor))
}

func (h *Handler) becomeAuthor(w http.ResponseWriter, r *http.Request) {
	author, err := h.accounts.BecomeAuthor(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toAuthor(author))
}

func (h *Handler) updateRating(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	author, err := h.accounts.UpdateRating(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toAuthor(author))
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.subs.Categories(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toCategories(cats))
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !h.decode(w, r, &req) {
		return
	}
	cat, err := h.subs.CreateCategory(r.Context(), actorFrom(r.Context()), req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, categoryResponse{ID: cat.ID, Name: cat.Name})
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sub, err := h.subs.Subscribe(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, subscriptionResponse{
		Category:         categoryResponse{ID: sub.CategoryID, Name: sub.Category.Name},
		SubscribedAt:     sub.SubscribedAt,
		LastDigestSentAt: sub.LastDigestSentAt,
	})
}

func (h *Handler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.subs.Unsubscribe(r.Context(), actorFrom(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subs.List(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res := make([]subscriptionResponse, 0, len(subs))
	for _, s := range subs {
		res = append(res, subscriptionResponse{
			Category:         categoryResponse{ID: s.CategoryID, Name: s.Category.Name},
			SubscribedAt:     s.SubscribedAt,
			LastDigestSentAt: s.LastDigestSentAt,
		})
	}
	httpinfra.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after, err := parseAfter(q.Get("after"))
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	posts, err := h.posts.Search(r.Context(), domain.NewsFilter{
		Title:      q.Get("title"),
		AuthorName: q.Get("author"),
		After:      after,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		res = append(res, h.toPost(p, false))
	}
	httpinfra.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor := actorFrom(r.Context())
	input := domain.NewPost{
		Type:        domain.PostType(req.Type),
		Title:       req.Title,
		Text:        req.Text,
		CategoryIDs: req.CategoryIDs,
	}
	if actor != nil {
		input.AuthorID = actor.ID
	}
	post, err := h.posts.Create(r.Context(), actor, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, h.toPost(post, true))
}

func (h *Handler) getPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	post, err := h.posts.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, h.toPost(post, true))
}

func (h *Handler) updatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req postUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	post, err := h.posts.Update(r.Context(), actorFrom(r.Context()), id, domain.PostUpdate{
		Title:       req.Title,
		Text:        req.Text,
		CategoryIDs: req.CategoryIDs,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, h.toPost(post, true))
}

func (h *Handler) likePost(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, h.posts.Like)
}

func (h *Handler) dislikePost(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, h.posts.Dislike)
}

func (h *Handler) likeComment(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, h.posts.LikeComment)
}

func (h *Handler) dislikeComment(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, h.posts.DislikeComment)
}

func (h *Handler) vote(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor *domain.User, id int64) error) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), actorFrom(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listComments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	comments, err := h.posts.Comments(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res := make([]commentResponse, 0, len(comments))
	for _, c := range comments {
		res = append(res, toComment(c))
	}
	httpinfra.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) addComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if !h.decode(w, r, &req) {
		return
	}
	comment, err := h.posts.AddComment(r.Context(), actorFrom(r.Context()), id, req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, toComment(comment))
}

func (h *Handler) triggerDigest(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	switch {
	case actor == nil:
		h.fail(w, r, domain.ErrUnauthenticated)
		return
	case !actor.IsAdmin:
		h.fail(w, r, domain.ErrForbidden)
		return
	}
	job, err := h.digest.TriggerNow(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}
