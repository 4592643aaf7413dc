// Package content готовит тексты постов для писем и ленты.
package content

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var censorWords = []string{"редиска", "плохой", "нехороший", "брань", "ругательство"}

var censorPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(censorWords))
	for _, w := range censorWords {
		out = append(out, regexp.MustCompile("(?i)"+regexp.QuoteMeta(w)))
	}
	return out
}()

var spaces = regexp.MustCompile(`\s+`)

// Censor маскирует запрещённые слова, оставляя первую букву: «редиска» → «р******».
func Censor(text string) string {
	for _, re := range censorPatterns {
		text = re.ReplaceAllStringFunc(text, mask)
	}
	return text
}

func mask(word string) string {
	first, size := utf8.DecodeRuneInString(word)
	rest := utf8.RuneCountInString(word[size:])
	return string(first) + strings.Repeat("*", rest)
}

// PlainText убирает HTML-разметку и схлопывает пробелы.
func PlainText(text string) string {
	if !strings.ContainsAny(text, "<&") {
		return strings.TrimSpace(spaces.ReplaceAllString(text, " "))
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return strings.TrimSpace(spaces.ReplaceAllString(text, " "))
	}
	doc.Find("script, style").Remove()
	return strings.TrimSpace(spaces.ReplaceAllString(doc.Text(), " "))
}

// Excerpt возвращает первые n символов текста без разметки с многоточием.
func Excerpt(text string, n int) string {
	plain := PlainText(text)
	if n <= 0 {
		return plain
	}
	runes := []rune(plain)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes) + "..."
}
