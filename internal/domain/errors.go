package domain

import "errors"

var (
	// ErrNotFound возвращается, когда сущность не найдена.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated возвращается, если запрос пришёл без пользователя.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden возвращается, если у пользователя нет прав на операцию.
	ErrForbidden = errors.New("forbidden")
	// ErrRateLimited возвращается при превышении дневного лимита новостей.
	ErrRateLimited = errors.New("daily news limit exceeded")
	// ErrAlreadySubscribed возвращается при повторной подписке на рубрику.
	ErrAlreadySubscribed = errors.New("already subscribed")
	// ErrInvalidInput возвращается при некорректных входных данных.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict возвращается при нарушении уникальности.
	ErrConflict = errors.New("conflict")
)

// DenyError описывает отказ одного из guard'ов с причиной для пользователя.
type DenyError struct {
	Reason string
	Err    error
}

func (e *DenyError) Error() string {
	if e.Reason == "" {
		return e.Err.Error()
	}
	return e.Reason
}

func (e *DenyError) Unwrap() error {
	return e.Err
}

// Deny создаёт отказ с причиной.
func Deny(err error, reason string) *DenyError {
	return &DenyError{Reason: reason, Err: err}
}
