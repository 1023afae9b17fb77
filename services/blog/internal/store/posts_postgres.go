package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPostStore persists posts in Postgres.
type PostgresPostStore struct {
	pool *pgxpool.Pool
}

// NewPostgresPostStore creates a store backed by Postgres.
func NewPostgresPostStore(pool *pgxpool.Pool) *PostgresPostStore {
	return &PostgresPostStore{pool: pool}
}

const postColumns = `id, author_id, title, slug, content, excerpt, status,
	views, likes_count, comments_count, reading_time,
	published_at, is_deleted, created_at, updated_at`

func scanPost(row pgx.Row) (Post, error) {
	var p Post
	var excerpt *string
	err := row.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Slug, &p.Content, &excerpt, &p.Status,
		&p.Views, &p.LikesCount, &p.CommentsCount, &p.ReadingTime,
		&p.PublishedAt, &p.IsDeleted, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Post{}, err
	}
	if excerpt != nil {
		p.Excerpt = *excerpt
	}
	return p, nil
}

func (s *PostgresPostStore) Create(ctx context.Context, in CreatePost) (Post, error) {
	slug := Slugify(in.Title)
	excerpt := in.Excerpt
	if excerpt == "" {
		excerpt = MakeExcerpt(in.Content)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO posts (author_id, title, slug, content, excerpt, status, reading_time)
		 VALUES ($1, $2, $3, $4, $5, 'draft', $6)
		 RETURNING `+postColumns,
		in.AuthorID, in.Title, slug, in.Content, excerpt, ReadingTime(in.Content))
	p, err := scanPost(row)

	// Slug collision: retry once with an id-derived suffix.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		row = s.pool.QueryRow(ctx,
			`INSERT INTO posts (author_id, title, slug, content, excerpt, status, reading_time)
			 VALUES ($1, $2, $3 || '-' || left(gen_random_uuid()::text, 8), $4, $5, 'draft', $6)
			 RETURNING `+postColumns,
			in.AuthorID, in.Title, slug, in.Content, excerpt, ReadingTime(in.Content))
		p, err = scanPost(row)
	}
	if err != nil {
		return Post{}, wrapPg(err)
	}
	return p, nil
}

func (s *PostgresPostStore) GetByID(ctx context.Context, postID string) (Post, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = $1 AND is_deleted = false`, postID)
	p, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, wrapPg(err)
	}
	return p, nil
}

func (s *PostgresPostStore) GetBySlug(ctx context.Context, slug string) (Post, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postColumns+` FROM posts WHERE slug = $1 AND is_deleted = false`, slug)
	p, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, wrapPg(err)
	}
	return p, nil
}

func (s *PostgresPostStore) ListPublished(ctx context.Context, page, pageSize int) ([]Post, Pagination, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 10
	}

	const filter = ` WHERE status = 'published' AND is_deleted = false`

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM posts`+filter).Scan(&total); err != nil {
		return nil, Pagination{}, wrapPg(err)
	}

	pg, lo, _ := paginate(total, page, pageSize)

	rows, err := s.pool.Query(ctx,
		`SELECT `+postColumns+` FROM posts`+filter+`
		 ORDER BY published_at DESC NULLS LAST, id DESC
		 LIMIT $1 OFFSET $2`, pageSize, lo)
	if err != nil {
		return nil, Pagination{}, wrapPg(err)
	}
	defer rows.Close()

	out := []Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, Pagination{}, wrapPg(err)
		}
		out = append(out, p)
	}
	return out, pg, rows.Err()
}

func (s *PostgresPostStore) ListByAuthor(ctx context.Context, authorID string, includeUnpublished bool, page, pageSize int) ([]Post, Pagination, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 10
	}

	filter := ` WHERE author_id = $1 AND is_deleted = false`
	if !includeUnpublished {
		filter += ` AND status = 'published'`
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM posts`+filter, authorID).Scan(&total); err != nil {
		return nil, Pagination{}, wrapPg(err)
	}

	pg, lo, _ := paginate(total, page, pageSize)

	rows, err := s.pool.Query(ctx,
		`SELECT `+postColumns+` FROM posts`+filter+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`, authorID, pageSize, lo)
	if err != nil {
		return nil, Pagination{}, wrapPg(err)
	}
	defer rows.Close()

	out := []Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, Pagination{}, wrapPg(err)
		}
		out = append(out, p)
	}
	return out, pg, rows.Err()
}

func (s *PostgresPostStore) Update(ctx context.Context, postID string, actor Actor, in UpdatePost) (Post, error) {
	p, err := s.GetByID(ctx, postID)
	if err != nil {
		return Post{}, err
	}
	if p.AuthorID != actor.UserID && !actor.Admin() {
		return Post{}, ErrForbidden
	}

	title, slug, content, excerpt := p.Title, p.Slug, p.Content, p.Excerpt
	readingTime := p.ReadingTime
	if in.Title != "" && in.Title != p.Title {
		title = in.Title
		slug = Slugify(in.Title)
	}
	if in.Content != "" {
		content = in.Content
		readingTime = ReadingTime(in.Content)
		if in.Excerpt == "" {
			excerpt = MakeExcerpt(in.Content)
		}
	}
	if in.Excerpt != "" {
		excerpt = in.Excerpt
	}

	const update = `UPDATE posts
		 SET title = $2, slug = %s, content = $4, excerpt = $5,
		     reading_time = $6, updated_at = now()
		 WHERE id = $1 AND is_deleted = false
		 RETURNING ` + postColumns

	row := s.pool.QueryRow(ctx, fmt.Sprintf(update, `$3`),
		postID, title, slug, content, excerpt, readingTime)
	out, err := scanPost(row)

	// Slug collision with another post: retry once with an id-derived
	// suffix, same scheme as Create.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		row = s.pool.QueryRow(ctx, fmt.Sprintf(update, `$3 || '-' || left(id::text, 8)`),
			postID, title, slug, content, excerpt, readingTime)
		out, err = scanPost(row)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, wrapPg(err)
	}
	return out, nil
}

func (s *PostgresPostStore) authorize(ctx context.Context, postID string, actor Actor) error {
	var authorID string
	err := s.pool.QueryRow(ctx,
		`SELECT author_id FROM posts WHERE id = $1 AND is_deleted = false`, postID).
		Scan(&authorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return wrapPg(err)
	}
	if authorID != actor.UserID && !actor.Admin() {
		return ErrForbidden
	}
	return nil
}

func (s *PostgresPostStore) Publish(ctx context.Context, postID string, actor Actor) (Post, error) {
	if err := s.authorize(ctx, postID, actor); err != nil {
		return Post{}, err
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE posts
		 SET status = 'published',
		     published_at = COALESCE(published_at, now()),
		     updated_at = now()
		 WHERE id = $1 AND is_deleted = false
		 RETURNING `+postColumns, postID)
	p, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, wrapPg(err)
	}
	return p, nil
}

func (s *PostgresPostStore) Archive(ctx context.Context, postID string, actor Actor) (Post, error) {
	if err := s.authorize(ctx, postID, actor); err != nil {
		return Post{}, err
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE posts SET status = 'archived', updated_at = now()
		 WHERE id = $1 AND is_deleted = false
		 RETURNING `+postColumns, postID)
	p, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, wrapPg(err)
	}
	return p, nil
}

func (s *PostgresPostStore) SoftDelete(ctx context.Context, postID string, actor Actor) error {
	if err := s.authorize(ctx, postID, actor); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE posts SET is_deleted = true, updated_at = now()
		 WHERE id = $1 AND is_deleted = false`, postID)
	if err != nil {
		return wrapPg(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresPostStore) ToggleLike(ctx context.Context, postID, userID string) (LikeResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return LikeResult{}, wrapPg(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var isDeleted bool
	err = tx.QueryRow(ctx,
		`SELECT is_deleted FROM posts WHERE id = $1 FOR UPDATE`, postID).Scan(&isDeleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return LikeResult{}, ErrNotFound
	}
	if err != nil {
		return LikeResult{}, wrapPg(err)
	}
	if isDeleted {
		return LikeResult{}, ErrNotFound
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2`, postID, userID)
	if err != nil {
		return LikeResult{}, wrapPg(err)
	}
	liked := tag.RowsAffected() == 0
	if liked {
		if _, err := tx.Exec(ctx,
			`INSERT INTO post_likes (post_id, user_id) VALUES ($1, $2)`, postID, userID); err != nil {
			return LikeResult{}, wrapPg(err)
		}
	}

	var count int
	err = tx.QueryRow(ctx,
		`UPDATE posts
		 SET likes_count = (SELECT count(*) FROM post_likes WHERE post_id = $1)
		 WHERE id = $1
		 RETURNING likes_count`, postID).Scan(&count)
	if err != nil {
		return LikeResult{}, wrapPg(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return LikeResult{}, wrapPg(err)
	}
	return LikeResult{Liked: liked, LikesCount: count}, nil
}

func (s *PostgresPostStore) AddViews(ctx context.Context, postID string, delta int) error {
	if delta <= 0 {
		return nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE posts SET views = views + $2 WHERE id = $1`, postID, delta)
	if err != nil {
		return wrapPg(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
