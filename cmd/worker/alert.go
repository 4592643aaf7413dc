package main

import "fmt"

func digestFailuresText(sent, failures int) string {
	return fmt.Sprintf("Еженедельная рассылка: отправлено %d, ошибок %d", sent, failures)
}
