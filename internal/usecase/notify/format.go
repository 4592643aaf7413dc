package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"newspaper/internal/domain"
	"newspaper/internal/usecase/content"
)

// Formatter собирает письмо о новой новости.
type Formatter struct {
	From       string
	Links      content.Links
	PreviewLen int
	Location   *time.Location
}

// Build формирует письмо подписчику рубрики.
func (f Formatter) Build(post domain.Post, category domain.Category, subscriber domain.User) domain.Email {
	loc := f.Location
	if loc == nil {
		loc = time.Local
	}
	title := content.Censor(post.Title)
	preview := content.Censor(content.Excerpt(post.Text, f.PreviewLen))
	published := post.CreatedAt.In(loc).Format("02.01.2006 15:04")
	postURL := f.Links.Post(post.ID)
	unsubscribeURL := f.Links.Unsubscribe(category.ID)

	var text strings.Builder
	fmt.Fprintf(&text, "Здравствуй, %s!\n\n", subscriber.DisplayName())
	fmt.Fprintf(&text, "📰 Новая новость в категории \"%s\":\n\n", category.Name)
	fmt.Fprintf(&text, "Заголовок: %s\n", title)
	fmt.Fprintf(&text, "Автор: %s\n", post.AuthorName)
	fmt.Fprintf(&text, "Дата публикации: %s\n\n", published)
	fmt.Fprintf(&text, "Краткое содержание:\n%s\n\n", preview)
	fmt.Fprintf(&text, "➡️ Читать полностью: %s\n\n", postURL)
	text.WriteString("---\n")
	fmt.Fprintf(&text, "Вы получили это письмо, потому что подписаны на категорию \"%s\"\n", category.Name)
	fmt.Fprintf(&text, "Чтобы отписаться: %s\n", unsubscribeURL)

	var body strings.Builder
	fmt.Fprintf(&body, "<p>Здравствуй, %s!</p>\n", esc(subscriber.DisplayName()))
	fmt.Fprintf(&body, "<p>📰 Новая новость в категории <b>%s</b>:</p>\n", esc(category.Name))
	fmt.Fprintf(&body, "<h2><a href=\"%s\">%s</a></h2>\n", esc(postURL), esc(title))
	fmt.Fprintf(&body, "<p>Автор: %s<br>Дата публикации: %s</p>\n", esc(post.AuthorName), published)
	fmt.Fprintf(&body, "<p>%s</p>\n", esc(preview))
	fmt.Fprintf(&body, "<p><a href=\"%s\">Читать полностью</a></p>\n", esc(postURL))
	fmt.Fprintf(&body, "<hr><p><small>Вы получили это письмо, потому что подписаны на категорию «%s». <a href=\"%s\">Отписаться</a></small></p>", esc(category.Name), esc(unsubscribeURL))

	return domain.Email{
		From:    f.From,
		To:      []string{subscriber.Email},
		Subject: fmt.Sprintf("🔔 Новая новость в категории \"%s\": %s", category.Name, title),
		Text:    text.String(),
		HTML:    body.String(),
	}
}

func esc(s string) string {
	return html.EscapeString(s)
}
