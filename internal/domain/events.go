package domain

import (
	"context"
	"time"
)

// BusinessEvent описывает бизнесовое событие, которое сохраняется для последующего анализа.
type BusinessEvent struct {
	Event      string
	UserID     *int64
	PostID     *int64
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	// EventPostPublished фиксирует публикацию поста.
	EventPostPublished = "post_published"
	// EventPostRejected фиксирует отказ в публикации по лимиту.
	EventPostRejected = "post_rejected"
	// EventUserSubscribed фиксирует подписку на рубрику.
	EventUserSubscribed = "user_subscribed"
	// EventDigestDelivered фиксирует отправку еженедельной рассылки пользователю.
	EventDigestDelivered = "digest_delivered"
)

// EventRepo сохраняет бизнесовые события.
type EventRepo interface {
	RecordEvent(ctx context.Context, event BusinessEvent) error
}

// Int64Ptr возвращает указатель на копию значения.
func Int64Ptr(v int64) *int64 {
	return &v
}
