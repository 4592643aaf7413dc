package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// PostType различает новости и статьи.
type PostType string

const (
	// PostTypeArticle: статья, не ограничивается лимитом публикаций.
	PostTypeArticle PostType = "AR"
	// PostTypeNews: новость, участвует в лимите и рассылках.
	PostTypeNews PostType = "NW"
)

// Valid сообщает, известен ли тип поста.
func (t PostType) Valid() bool {
	return t == PostTypeArticle || t == PostTypeNews
}

// Группы пользователей.
const (
	GroupCommon  = "common"
	GroupAuthors = "authors"
)

// previewLength: длина превью поста в ленте.
const previewLength = 124

// User описывает зарегистрированного пользователя портала.
type User struct {
	ID        int64
	Username  string
	Email     string
	IsAdmin   bool
	Groups    []string
	CreatedAt time.Time
}

// InGroup проверяет членство пользователя в группе.
func (u User) InGroup(group string) bool {
	for _, g := range u.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// DisplayName возвращает имя для писем и ленты.
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.Username); name != "" {
		return name
	}
	return u.Email
}

// Author хранит профиль автора и его рейтинг.
type Author struct {
	UserID   int64
	Username string
	Rating   int
}

// AuthorRatingParts содержит слагаемые рейтинга автора.
type AuthorRatingParts struct {
	PostsRating        int
	OwnCommentsRating  int
	PostCommentsRating int
}

// Total считает итоговый рейтинг: рейтинг постов учитывается с весом 3.
func (p AuthorRatingParts) Total() int {
	return p.PostsRating*3 + p.OwnCommentsRating + p.PostCommentsRating
}

// Category: рубрика, на которую подписываются пользователи.
type Category struct {
	ID   int64
	Name string
}

// Post представляет новость или статью.
type Post struct {
	ID         int64
	AuthorID   int64
	AuthorName string
	Type       PostType
	Title      string
	Text       string
	Rating     int
	CreatedAt  time.Time
	Categories []Category
}

// Preview возвращает начало текста для ленты.
func (p Post) Preview() string {
	if utf8.RuneCountInString(p.Text) <= previewLength {
		return p.Text + "..."
	}
	return string([]rune(p.Text)[:previewLength]) + "..."
}

// CategoryIDs возвращает идентификаторы рубрик поста.
func (p Post) CategoryIDs() []int64 {
	ids := make([]int64, 0, len(p.Categories))
	for _, c := range p.Categories {
		ids = append(ids, c.ID)
	}
	return ids
}

// CategoryNames возвращает названия рубрик в порядке хранения.
func (p Post) CategoryNames() []string {
	names := make([]string, 0, len(p.Categories))
	for _, c := range p.Categories {
		names = append(names, c.Name)
	}
	return names
}

// NewPost содержит данные для создания поста.
type NewPost struct {
	AuthorID    int64
	Type        PostType
	Title       string
	Text        string
	CategoryIDs []int64
}

// PostUpdate содержит изменяемые поля поста.
type PostUpdate struct {
	Title       string
	Text        string
	CategoryIDs []int64
}

// Comment: комментарий пользователя к посту.
type Comment struct {
	ID        int64
	PostID    int64
	UserID    int64
	Text      string
	Rating    int
	CreatedAt time.Time
}

// Subscription хранит подписку пользователя на рубрику.
type Subscription struct {
	UserID           int64
	CategoryID       int64
	SubscribedAt     time.Time
	LastDigestSentAt *time.Time
	User             User
	Category         Category
}

// NewsFilter описывает поиск новостей.
type NewsFilter struct {
	Title      string
	AuthorName string
	After      *time.Time
	Limit      int
	Offset     int
}

// Email: готовое к отправке письмо.
type Email struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    string   `json:"html"`
}

// DigestRun фиксирует результат одного запуска еженедельной рассылки.
type DigestRun struct {
	ID              int64
	PeriodStart     time.Time
	PeriodEnd       time.Time
	UsersConsidered int
	EmailsSent      int
	Failures        int
	StartedAt       time.Time
	FinishedAt      time.Time
}
