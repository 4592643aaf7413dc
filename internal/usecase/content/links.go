package content

import (
	"fmt"
	"strings"
)

// Links строит публичные ссылки портала.
type Links struct {
	BaseURL string
}

func (l Links) base() string {
	return strings.TrimRight(l.BaseURL, "/")
}

// Post возвращает ссылку на пост.
func (l Links) Post(id int64) string {
	return fmt.Sprintf("%s/news/%d/", l.base(), id)
}

// Unsubscribe возвращает ссылку отписки от рубрики.
func (l Links) Unsubscribe(categoryID int64) string {
	return fmt.Sprintf("%s/news/category/%d/unsubscribe/", l.base(), categoryID)
}
