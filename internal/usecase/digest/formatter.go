package digest

import (
	"fmt"
	"html"
	"strings"
	"time"

	"newspaper/internal/domain"
	"newspaper/internal/usecase/content"
)

// Formatter собирает письмо еженедельной рассылки.
type Formatter struct {
	From       string
	Links      content.Links
	PreviewLen int
	Location   *time.Location
}

// Build формирует письмо пользователю с новостями за период [since, until).
func (f Formatter) Build(user domain.User, posts []domain.Post, since, until time.Time) domain.Email {
	loc := f.Location
	if loc == nil {
		loc = time.Local
	}
	weekStart := since.In(loc).Format("2006-01-02")
	weekEnd := until.In(loc).Format("2006-01-02")

	return domain.Email{
		From:    f.From,
		To:      []string{user.Email},
		Subject: fmt.Sprintf("Еженедельная рассылка новостей (%s - %s)", weekStart, weekEnd),
		Text:    f.text(user, posts, loc),
		HTML:    f.html(user, posts, weekStart, weekEnd, loc),
	}
}

func (f Formatter) text(user domain.User, posts []domain.Post, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("Еженедельная рассылка новостей\n\n")
	fmt.Fprintf(&b, "Здравствуйте, %s!\n\n", user.DisplayName())
	fmt.Fprintf(&b, "За последнюю неделю в ваших подписках появилось %d новых статей.\n", len(posts))
	for _, post := range posts {
		b.WriteString("\n")
		fmt.Fprintf(&b, "- %s\n", content.Censor(post.Title))
		fmt.Fprintf(&b, "  Категории: %s\n", strings.Join(post.CategoryNames(), ", "))
		fmt.Fprintf(&b, "  Автор: %s\n", post.AuthorName)
		fmt.Fprintf(&b, "  Дата: %s\n", post.CreatedAt.In(loc).Format("02.01.2006"))
		fmt.Fprintf(&b, "  %s\n", content.Censor(content.Excerpt(post.Text, f.PreviewLen)))
		fmt.Fprintf(&b, "  Ссылка: %s\n", f.Links.Post(post.ID))
	}
	b.WriteString("\nПриятного чтения!\n\nНовостной портал\n")
	return b.String()
}

func (f Formatter) html(user domain.User, posts []domain.Post, weekStart, weekEnd string, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>Еженедельная рассылка новостей</h1>\n<p>%s - %s</p>\n", weekStart, weekEnd)
	fmt.Fprintf(&b, "<p>Здравствуйте, %s!</p>\n", escapeHTML(user.DisplayName()))
	fmt.Fprintf(&b, "<p>За последнюю неделю в ваших подписках появилось <b>%d</b> новых статей.</p>\n", len(posts))
	b.WriteString("<ul>\n")
	for _, post := range posts {
		url := f.Links.Post(post.ID)
		b.WriteString("<li>")
		fmt.Fprintf(&b, "<a href=\"%s\"><b>%s</b></a><br>", escapeHTML(url), escapeHTML(content.Censor(post.Title)))
		fmt.Fprintf(&b, "<small>Категории: %s · Автор: %s · %s</small><br>",
			escapeHTML(strings.Join(post.CategoryNames(), ", ")),
			escapeHTML(post.AuthorName),
			post.CreatedAt.In(loc).Format("02.01.2006"))
		b.WriteString(escapeHTML(content.Censor(content.Excerpt(post.Text, f.PreviewLen))))
		b.WriteString("</li>\n")
	}
	b.WriteString("</ul>\n<p>Приятного чтения!<br>Новостной портал</p>")
	return b.String()
}

func escapeHTML(s string) string {
	return html.EscapeString(s)
}
