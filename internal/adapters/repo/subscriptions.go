package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"newspaper/internal/domain"
	"newspaper/internal/infra/metrics"
)

// Subscribe реализует domain.SubscriptionRepo.
func (p *Postgres) Subscribe(ctx context.Context, userID, categoryID int64) (domain.Subscription, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	sub := domain.Subscription{UserID: userID, CategoryID: categoryID}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO subscriptions (user_id, category_id)
VALUES ($1, $2)
ON CONFLICT (user_id, category_id) DO NOTHING
RETURNING subscribed_at
`, userID, categoryID).Scan(&sub.SubscribedAt)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_insert", "subscriptions", start, err)
	if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
		return domain.Subscription{}, domain.ErrAlreadySubscribed
	}
	if err != nil {
		return domain.Subscription{}, mapError(err)
	}
	return sub, nil
}

// Unsubscribe реализует domain.SubscriptionRepo.
func (p *Postgres) Unsubscribe(ctx context.Context, userID, categoryID int64) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `DELETE FROM subscriptions WHERE user_id = $1 AND category_id = $2`, userID, categoryID)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_delete", "subscriptions", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListSubscribers реализует domain.SubscriptionRepo.
func (p *Postgres) ListSubscribers(ctx context.Context, categoryID int64) ([]domain.User, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT u.id, u.username, u.email, u.is_admin, u.created_at
FROM subscriptions s
JOIN users u ON u.id = s.user_id
WHERE s.category_id = $1
ORDER BY u.id
`, categoryID)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_list_subscribers", "subscriptions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.IsAdmin, &u.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

const subscriptionColumns = `
SELECT s.user_id, s.category_id, s.subscribed_at, s.last_digest_sent_at,
       u.username, u.email, u.is_admin, u.created_at,
       c.name
FROM subscriptions s
JOIN users u ON u.id = s.user_id
JOIN categories c ON c.id = s.category_id
`

func collectSubscriptions(rows pgx.Rows) ([]domain.Subscription, error) {
	defer rows.Close()
	var res []domain.Subscription
	for rows.Next() {
		var s domain.Subscription
		if err := rows.Scan(
			&s.UserID, &s.CategoryID, &s.SubscribedAt, &s.LastDigestSentAt,
			&s.User.Username, &s.User.Email, &s.User.IsAdmin, &s.User.CreatedAt,
			&s.Category.Name,
		); err != nil {
			return nil, err
		}
		s.User.ID = s.UserID
		s.Category.ID = s.CategoryID
		res = append(res, s)
	}
	return res, rows.Err()
}

// ListSubscriptions реализует domain.SubscriptionRepo.
func (p *Postgres) ListSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, subscriptionColumns+`ORDER BY s.user_id, s.category_id`)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_list", "subscriptions", start, err)
	if err != nil {
		return nil, err
	}
	return collectSubscriptions(rows)
}

// ListUserSubscriptions реализует domain.SubscriptionRepo.
func (p *Postgres) ListUserSubscriptions(ctx context.Context, userID int64) ([]domain.Subscription, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, subscriptionColumns+`WHERE s.user_id = $1 ORDER BY s.category_id`, userID)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_list_user", "subscriptions", start, err)
	if err != nil {
		return nil, err
	}
	return collectSubscriptions(rows)
}

// MarkDigestSent реализует domain.SubscriptionRepo.
func (p *Postgres) MarkDigestSent(ctx context.Context, userID int64, at time.Time) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE subscriptions SET last_digest_sent_at = $2 WHERE user_id = $1`, userID, at)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_mark_digest", "subscriptions", start, err)
	return err
}
