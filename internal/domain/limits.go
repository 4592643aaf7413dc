package domain

import "time"

// DefaultNewsPerDay: лимит новостей на автора в сутки.
const DefaultNewsPerDay = 3

// NewsQuota описывает окно и лимит, которые проверяются при сохранении новости.
// Окно полуоткрытое: [Since, Until).
type NewsQuota struct {
	Since time.Time
	Until time.Time
	Max   int
}

// LimitState описывает текущее состояние лимита автора.
type LimitState struct {
	CountToday int
	MaxAllowed int
}

// Allowed сообщает, можно ли опубликовать ещё одну новость. MaxAllowed <= 0 означает отсутствие лимита.
func (s LimitState) Allowed() bool {
	return s.MaxAllowed <= 0 || s.CountToday < s.MaxAllowed
}

// Remaining возвращает количество оставшихся публикаций. -1 означает отсутствие лимитов.
func (s LimitState) Remaining() int {
	if s.MaxAllowed <= 0 {
		return -1
	}
	remaining := s.MaxAllowed - s.CountToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

// DayBounds возвращает начало суток now и начало следующих суток в часовом поясе loc.
func DayBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
