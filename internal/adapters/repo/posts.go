package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"newspaper/internal/domain"
	"newspaper/internal/infra/metrics"
)

const postColumns = `p.id, p.author_id, u.username, p.post_type, p.title, p.text, p.rating, p.created_at`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanPost(row pgx.Row) (domain.Post, error) {
	var (
		post     domain.Post
		postType string
	)
	if err := row.Scan(&post.ID, &post.AuthorID, &post.AuthorName, &postType, &post.Title, &post.Text, &post.Rating, &post.CreatedAt); err != nil {
		return domain.Post{}, err
	}
	post.Type = domain.PostType(postType)
	return post, nil
}

func collectPosts(rows pgx.Rows) ([]domain.Post, error) {
	defer rows.Close()
	var res []domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, post)
	}
	return res, rows.Err()
}

// attachCategories подгружает рубрики для списка постов одним запросом.
func attachCategories(ctx context.Context, q querier, posts []domain.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(posts))
	index := make(map[int64]int, len(posts))
	for i, post := range posts {
		ids = append(ids, post.ID)
		index[post.ID] = i
	}

	start := time.Now()
	rows, err := q.Query(ctx, `
SELECT pc.post_id, c.id, c.name
FROM post_categories pc
JOIN categories c ON c.id = pc.category_id
WHERE pc.post_id = ANY($1)
ORDER BY pc.post_id, c.id
`, ids)
	metrics.ObserveNetworkRequest("postgres", "post_categories_select", "post_categories", start, err)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			postID int64
			c      domain.Category
		)
		if err := rows.Scan(&postID, &c.ID, &c.Name); err != nil {
			return err
		}
		if i, ok := index[postID]; ok {
			posts[i].Categories = append(posts[i].Categories, c)
		}
	}
	return rows.Err()
}

func insertPostCategories(ctx context.Context, tx pgx.Tx, postID int64, categoryIDs []int64) error {
	if len(categoryIDs) == 0 {
		return nil
	}
	start := time.Now()
	_, err := tx.Exec(ctx, `
INSERT INTO post_categories (post_id, category_id)
SELECT $1, unnest($2::bigint[])
ON CONFLICT DO NOTHING
`, postID, categoryIDs)
	metrics.ObserveNetworkRequest("postgres", "post_categories_insert", "post_categories", start, err)
	return mapError(err)
}

func (p *Postgres) getPost(ctx context.Context, q querier, id int64) (domain.Post, error) {
	start := time.Now()
	post, err := scanPost(q.QueryRow(ctx, `SELECT `+postColumns+`
FROM posts p
JOIN users u ON u.id = p.author_id
WHERE p.id = $1
`, id))
	metrics.ObserveNetworkRequest("postgres", "posts_select", "posts", start, err)
	if err != nil {
		return domain.Post{}, mapError(err)
	}
	posts := []domain.Post{post}
	if err := attachCategories(ctx, q, posts); err != nil {
		return domain.Post{}, err
	}
	return posts[0], nil
}

// CreatePost реализует domain.PostRepo.
func (p *Postgres) CreatePost(ctx context.Context, post domain.NewPost, quota *domain.NewsQuota) (domain.Post, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "posts", start, err)
	if err != nil {
		return domain.Post{}, err
	}
	defer tx.Rollback(ctx)

	if quota != nil {
		// Строка автора сериализует параллельные публикации одного автора.
		var authorID int64
		start = time.Now()
		err = tx.QueryRow(ctx, `SELECT user_id FROM authors WHERE user_id = $1 FOR UPDATE`, post.AuthorID).Scan(&authorID)
		metrics.ObserveNetworkRequest("postgres", "authors_lock", "authors", start, err)
		if err != nil {
			return domain.Post{}, mapError(err)
		}

		var count int
		start = time.Now()
		err = tx.QueryRow(ctx, `
SELECT COUNT(*) FROM posts
WHERE author_id = $1 AND post_type = $2 AND created_at >= $3 AND created_at < $4
`, post.AuthorID, string(domain.PostTypeNews), quota.Since, quota.Until).Scan(&count)
		metrics.ObserveNetworkRequest("postgres", "posts_count_news", "posts", start, err)
		if err != nil {
			return domain.Post{}, err
		}
		if quota.Max > 0 && count >= quota.Max {
			return domain.Post{}, domain.ErrRateLimited
		}
	}

	var id int64
	start = time.Now()
	err = tx.QueryRow(ctx, `
INSERT INTO posts (author_id, post_type, title, text)
VALUES ($1, $2, $3, $4)
RETURNING id
`, post.AuthorID, string(post.Type), post.Title, post.Text).Scan(&id)
	metrics.ObserveNetworkRequest("postgres", "posts_insert", "posts", start, err)
	if err != nil {
		return domain.Post{}, mapError(err)
	}

	if err := insertPostCategories(ctx, tx, id, post.CategoryIDs); err != nil {
		return domain.Post{}, err
	}

	created, err := p.getPost(ctx, tx, id)
	if err != nil {
		return domain.Post{}, err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit_tx", "posts", start, err)
	if err != nil {
		return domain.Post{}, err
	}
	return created, nil
}

// CountNewsSince реализует domain.PostRepo.
func (p *Postgres) CountNewsSince(ctx context.Context, authorID int64, since, until time.Time) (int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var count int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM posts
WHERE author_id = $1 AND post_type = $2 AND created_at >= $3 AND created_at < $4
`, authorID, string(domain.PostTypeNews), since, until).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "posts_count_news", "posts", start, err)
	return count, err
}

// GetPost реализует domain.PostRepo.
func (p *Postgres) GetPost(ctx context.Context, id int64) (domain.Post, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	return p.getPost(ctx, p.pool, id)
}

// UpdatePost реализует domain.PostRepo. Nil CategoryIDs оставляет рубрики без изменений.
func (p *Postgres) UpdatePost(ctx context.Context, id int64, update domain.PostUpdate) (domain.Post, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "posts", start, err)
	if err != nil {
		return domain.Post{}, err
	}
	defer tx.Rollback(ctx)

	start = time.Now()
	res, err := tx.Exec(ctx, `UPDATE posts SET title = $2, text = $3 WHERE id = $1`, id, update.Title, update.Text)
	metrics.ObserveNetworkRequest("postgres", "posts_update", "posts", start, err)
	if err != nil {
		return domain.Post{}, err
	}
	if res.RowsAffected() == 0 {
		return domain.Post{}, domain.ErrNotFound
	}

	if update.CategoryIDs != nil {
		start = time.Now()
		_, err = tx.Exec(ctx, `DELETE FROM post_categories WHERE post_id = $1`, id)
		metrics.ObserveNetworkRequest("postgres", "post_categories_delete", "post_categories", start, err)
		if err != nil {
			return domain.Post{}, err
		}
		if err := insertPostCategories(ctx, tx, id, update.CategoryIDs); err != nil {
			return domain.Post{}, err
		}
	}

	updated, err := p.getPost(ctx, tx, id)
	if err != nil {
		return domain.Post{}, err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit_tx", "posts", start, err)
	if err != nil {
		return domain.Post{}, err
	}
	return updated, nil
}

// AdjustPostRating реализует domain.PostRepo.
func (p *Postgres) AdjustPostRating(ctx context.Context, id int64, delta int) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `UPDATE posts SET rating = rating + $2 WHERE id = $1`, id, delta)
	metrics.ObserveNetworkRequest("postgres", "posts_adjust_rating", "posts", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListNewsForDigest реализует domain.PostRepo.
func (p *Postgres) ListNewsForDigest(ctx context.Context, categoryIDs []int64, since, until time.Time) ([]domain.Post, error) {
	if len(categoryIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	query, args, err := buildDigestNewsQuery(categoryIDs, since, until)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "posts_list_digest", "posts", start, err)
	if err != nil {
		return nil, err
	}
	posts, err := collectPosts(rows)
	if err != nil {
		return nil, err
	}
	if err := attachCategories(ctx, p.pool, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// buildDigestNewsQuery собирает запрос новостей для рассылки: пост из нескольких рубрик попадает один раз,
// сначала самые свежие.
func buildDigestNewsQuery(categoryIDs []int64, since, until time.Time) (string, []any, error) {
	return sq.Select(postColumns).
		Distinct().
		From("posts p").
		Join("post_categories pc ON pc.post_id = p.id").
		Join("users u ON u.id = p.author_id").
		Where(sq.Eq{"p.post_type": string(domain.PostTypeNews)}).
		Where("pc.category_id = ANY(?)", categoryIDs).
		Where(sq.GtOrEq{"p.created_at": since}).
		Where(sq.Lt{"p.created_at": until}).
		OrderBy("p.created_at DESC", "p.id DESC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

// escapeLike экранирует спецсимволы шаблона ILIKE.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// buildSearchQuery собирает запрос поиска новостей.
func buildSearchQuery(filter domain.NewsFilter) (string, []any, error) {
	q := sq.Select(postColumns).
		From("posts p").
		Join("users u ON u.id = p.author_id").
		Where(sq.Eq{"p.post_type": string(domain.PostTypeNews)}).
		OrderBy("p.created_at DESC", "p.id DESC").
		PlaceholderFormat(sq.Dollar)

	if title := strings.TrimSpace(filter.Title); title != "" {
		q = q.Where(sq.ILike{"p.title": "%" + escapeLike(title) + "%"})
	}
	if author := strings.TrimSpace(filter.AuthorName); author != "" {
		q = q.Where(sq.ILike{"u.username": "%" + escapeLike(author) + "%"})
	}
	if filter.After != nil {
		q = q.Where(sq.GtOrEq{"p.created_at": *filter.After})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q.ToSql()
}

// SearchNews реализует domain.PostRepo.
func (p *Postgres) SearchNews(ctx context.Context, filter domain.NewsFilter) ([]domain.Post, error) {
	query, args, err := buildSearchQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "posts_search", "posts", start, err)
	if err != nil {
		return nil, err
	}
	posts, err := collectPosts(rows)
	if err != nil {
		return nil, err
	}
	if err := attachCategories(ctx, p.pool, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// AddComment реализует domain.CommentRepo.
func (p *Postgres) AddComment(ctx context.Context, postID, userID int64, text string) (domain.Comment, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	c := domain.Comment{PostID: postID, UserID: userID, Text: text}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO comments (post_id, user_id, text)
VALUES ($1, $2, $3)
RETURNING id, rating, created_at
`, postID, userID, text).Scan(&c.ID, &c.Rating, &c.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "comments_insert", "comments", start, err)
	if err != nil {
		return domain.Comment{}, mapError(err)
	}
	return c, nil
}

// ListComments реализует domain.CommentRepo.
func (p *Postgres) ListComments(ctx context.Context, postID int64) ([]domain.Comment, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, post_id, user_id, text, rating, created_at
FROM comments
WHERE post_id = $1
ORDER BY created_at, id
`, postID)
	metrics.ObserveNetworkRequest("postgres", "comments_list", "comments", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.UserID, &c.Text, &c.Rating, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// AdjustCommentRating реализует domain.CommentRepo.
func (p *Postgres) AdjustCommentRating(ctx context.Context, id int64, delta int) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `UPDATE comments SET rating = rating + $2 WHERE id = $1`, id, delta)
	metrics.ObserveNetworkRequest("postgres", "comments_adjust_rating", "comments", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
