package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"newspaper/internal/domain"
	"newspaper/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.UserRepo         = (*Postgres)(nil)
	_ domain.AuthorRepo       = (*Postgres)(nil)
	_ domain.CategoryRepo     = (*Postgres)(nil)
	_ domain.PostRepo         = (*Postgres)(nil)
	_ domain.CommentRepo      = (*Postgres)(nil)
	_ domain.SubscriptionRepo = (*Postgres)(nil)
	_ domain.DigestRunRepo    = (*Postgres)(nil)
	_ domain.EventRepo        = (*Postgres)(nil)
	_ domain.ScheduleTaskRepo = (*Postgres)(nil)
	_ domain.JobStatusRepo    = (*Postgres)(nil)
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// mapError переводит ошибки драйвера в доменные.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", domain.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

const userColumns = `
SELECT u.id, u.username, u.email, u.is_admin, u.created_at,
       COALESCE(array_agg(g.name ORDER BY g.name) FILTER (WHERE g.name IS NOT NULL), '{}')
FROM users u
LEFT JOIN user_groups ug ON ug.user_id = u.id
LEFT JOIN groups g ON g.id = ug.group_id
`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.IsAdmin, &u.CreatedAt, &u.Groups); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// CreateUser реализует domain.UserRepo.
func (p *Postgres) CreateUser(ctx context.Context, username, email string, isAdmin bool) (domain.User, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "users", start, err)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback(ctx)

	var id int64
	start = time.Now()
	err = tx.QueryRow(ctx, `
INSERT INTO users (username, email, is_admin)
VALUES ($1, $2, $3)
RETURNING id
`, strings.TrimSpace(username), strings.TrimSpace(email), isAdmin).Scan(&id)
	metrics.ObserveNetworkRequest("postgres", "users_insert", "users", start, err)
	if err != nil {
		return domain.User{}, mapError(err)
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `
INSERT INTO user_groups (user_id, group_id)
SELECT $1, id FROM groups WHERE name = $2
ON CONFLICT DO NOTHING
`, id, domain.GroupCommon)
	metrics.ObserveNetworkRequest("postgres", "user_groups_insert", "user_groups", start, err)
	if err != nil {
		return domain.User{}, err
	}

	start = time.Now()
	user, err := scanUser(tx.QueryRow(ctx, userColumns+`WHERE u.id = $1 GROUP BY u.id`, id))
	metrics.ObserveNetworkRequest("postgres", "users_select", "users", start, err)
	if err != nil {
		return domain.User{}, err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit_tx", "users", start, err)
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// GetUser реализует domain.UserRepo.
func (p *Postgres) GetUser(ctx context.Context, id int64) (domain.User, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	user, err := scanUser(p.pool.QueryRow(ctx, userColumns+`WHERE u.id = $1 GROUP BY u.id`, id))
	metrics.ObserveNetworkRequest("postgres", "users_select", "users", start, err)
	if err != nil {
		return domain.User{}, mapError(err)
	}
	return user, nil
}

// FirstAdmin реализует domain.UserRepo.
func (p *Postgres) FirstAdmin(ctx context.Context) (domain.User, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	user, err := scanUser(p.pool.QueryRow(ctx, userColumns+`WHERE u.is_admin GROUP BY u.id ORDER BY u.id LIMIT 1`))
	metrics.ObserveNetworkRequest("postgres", "users_first_admin", "users", start, err)
	if err != nil {
		return domain.User{}, mapError(err)
	}
	return user, nil
}

// AddUserToGroup реализует domain.UserRepo.
func (p *Postgres) AddUserToGroup(ctx context.Context, userID int64, group string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
INSERT INTO user_groups (user_id, group_id)
SELECT $1, id FROM groups WHERE name = $2
ON CONFLICT DO NOTHING
`, userID, group)
	metrics.ObserveNetworkRequest("postgres", "user_groups_insert", "user_groups", start, err)
	if err != nil {
		return mapError(err)
	}
	if res.RowsAffected() == 0 {
		// Пользователь уже в группе либо группы нет.
		var exists bool
		if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM groups WHERE name = $1)`, group).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("group %q: %w", group, domain.ErrNotFound)
		}
	}
	return nil
}

// EnsureAuthor реализует domain.AuthorRepo.
func (p *Postgres) EnsureAuthor(ctx context.Context, userID int64) (domain.Author, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `INSERT INTO authors (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	metrics.ObserveNetworkRequest("postgres", "authors_upsert", "authors", start, err)
	if err != nil {
		return domain.Author{}, mapError(err)
	}
	return p.GetAuthor(ctx, userID)
}

// GetAuthor реализует domain.AuthorRepo.
func (p *Postgres) GetAuthor(ctx context.Context, userID int64) (domain.Author, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var a domain.Author
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT a.user_id, u.username, a.rating
FROM authors a
JOIN users u ON u.id = a.user_id
WHERE a.user_id = $1
`, userID).Scan(&a.UserID, &a.Username, &a.Rating)
	metrics.ObserveNetworkRequest("postgres", "authors_select", "authors", start, err)
	if err != nil {
		return domain.Author{}, mapError(err)
	}
	return a, nil
}

// RatingParts реализует domain.AuthorRepo.
func (p *Postgres) RatingParts(ctx context.Context, userID int64) (domain.AuthorRatingParts, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var parts domain.AuthorRatingParts
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT
    COALESCE((SELECT SUM(rating) FROM posts WHERE author_id = $1), 0),
    COALESCE((SELECT SUM(rating) FROM comments WHERE user_id = $1), 0),
    COALESCE((SELECT SUM(c.rating) FROM comments c JOIN posts p ON p.id = c.post_id WHERE p.author_id = $1), 0)
`, userID).Scan(&parts.PostsRating, &parts.OwnCommentsRating, &parts.PostCommentsRating)
	metrics.ObserveNetworkRequest("postgres", "authors_rating_parts", "posts", start, err)
	if err != nil {
		return domain.AuthorRatingParts{}, err
	}
	return parts, nil
}

// SetAuthorRating реализует domain.AuthorRepo.
func (p *Postgres) SetAuthorRating(ctx context.Context, userID int64, rating int) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `UPDATE authors SET rating = $2 WHERE user_id = $1`, userID, rating)
	metrics.ObserveNetworkRequest("postgres", "authors_update_rating", "authors", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CreateCategory реализует domain.CategoryRepo.
func (p *Postgres) CreateCategory(ctx context.Context, name string) (domain.Category, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	c := domain.Category{Name: strings.TrimSpace(name)}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `INSERT INTO categories (name) VALUES ($1) RETURNING id`, c.Name).Scan(&c.ID)
	metrics.ObserveNetworkRequest("postgres", "categories_insert", "categories", start, err)
	if err != nil {
		return domain.Category{}, mapError(err)
	}
	return c, nil
}

// ListCategories реализует domain.CategoryRepo.
func (p *Postgres) ListCategories(ctx context.Context) ([]domain.Category, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT id, name FROM categories ORDER BY id`)
	metrics.ObserveNetworkRequest("postgres", "categories_list", "categories", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// FirstCategory реализует domain.CategoryRepo.
func (p *Postgres) FirstCategory(ctx context.Context) (domain.Category, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var c domain.Category
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT id, name FROM categories ORDER BY id LIMIT 1`).Scan(&c.ID, &c.Name)
	metrics.ObserveNetworkRequest("postgres", "categories_first", "categories", start, err)
	if err != nil {
		return domain.Category{}, mapError(err)
	}
	return c, nil
}
