package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCommentStore persists comments in Postgres. Every counter change
// is a single SQL statement inside the owning transaction; read-modify-write
// across round trips is never used.
type PostgresCommentStore struct {
	pool *pgxpool.Pool
}

// NewPostgresCommentStore creates a store backed by Postgres.
func NewPostgresCommentStore(pool *pgxpool.Pool) *PostgresCommentStore {
	return &PostgresCommentStore{pool: pool}
}

const commentColumns = `id, post_id, author_id, parent_id, depth, content,
	likes_count, replies_count, is_edited, edited_at,
	is_hidden, hidden_cause, hidden_reason, hidden_by, hidden_at,
	report_count, created_at, updated_at`

func scanComment(row pgx.Row) (Comment, error) {
	var c Comment
	var cause, reason *string
	err := row.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.ParentID, &c.Depth, &c.Content,
		&c.LikesCount, &c.RepliesCount, &c.IsEdited, &c.EditedAt,
		&c.IsHidden, &cause, &reason, &c.HiddenBy, &c.HiddenAt,
		&c.ReportCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Comment{}, err
	}
	if cause != nil {
		c.HiddenCause = HiddenCause(*cause)
	}
	if reason != nil {
		c.HiddenReason = *reason
	}
	return c, nil
}

// wrapPg converts contention faults into the retryable sentinel so callers
// can retry idempotent operations.
func wrapPg(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return fmt.Errorf("%w: %v", ErrRetryableConflict, err)
		}
	}
	return err
}

func (s *PostgresCommentStore) Create(ctx context.Context, in CreateComment) (Comment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Comment{}, wrapPg(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	var isDeleted bool
	err = tx.QueryRow(ctx,
		`SELECT status, is_deleted FROM posts WHERE id = $1`, in.PostID).
		Scan(&status, &isDeleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	if err != nil {
		return Comment{}, wrapPg(err)
	}
	if isDeleted {
		return Comment{}, ErrNotFound
	}
	if PostStatus(status) != PostPublished {
		return Comment{}, ErrPostNotPublished
	}

	depth := 0
	if in.ParentID != nil {
		var parentPost string
		var parentDepth int
		var parentHidden bool
		err = tx.QueryRow(ctx,
			`SELECT post_id, depth, is_hidden FROM comments WHERE id = $1`, *in.ParentID).
			Scan(&parentPost, &parentDepth, &parentHidden)
		if errors.Is(err, pgx.ErrNoRows) {
			return Comment{}, ErrNotFound
		}
		if err != nil {
			return Comment{}, wrapPg(err)
		}
		if parentPost != in.PostID {
			return Comment{}, ErrNotFound
		}
		if parentHidden {
			return Comment{}, ErrParentHidden
		}
		depth = parentDepth + 1
		if depth > MaxDepth {
			return Comment{}, ErrDepthExceeded
		}
	}

	row := tx.QueryRow(ctx,
		`INSERT INTO comments (post_id, author_id, parent_id, depth, content)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+commentColumns,
		in.PostID, in.AuthorID, in.ParentID, depth, in.Content)
	c, err := scanComment(row)
	if err != nil {
		return Comment{}, wrapPg(err)
	}

	// Counter legs, same transaction as the insert: either all three rows
	// change or none do.
	if _, err := tx.Exec(ctx,
		`UPDATE posts SET comments_count = comments_count + 1 WHERE id = $1`,
		in.PostID); err != nil {
		return Comment{}, wrapPg(err)
	}
	if in.ParentID != nil {
		if _, err := tx.Exec(ctx,
			`UPDATE comments SET replies_count = replies_count + 1 WHERE id = $1`,
			*in.ParentID); err != nil {
			return Comment{}, wrapPg(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Comment{}, wrapPg(err)
	}
	return c, nil
}

func (s *PostgresCommentStore) GetByID(ctx context.Context, commentID string) (Comment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE id = $1`, commentID)
	c, err := scanComment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	if err != nil {
		return Comment{}, wrapPg(err)
	}
	return c, nil
}

func (s *PostgresCommentStore) FetchThread(ctx context.Context, postID string, opts ThreadOptions) ([]ThreadNode, Pagination, error) {
	var isDeleted bool
	err := s.pool.QueryRow(ctx,
		`SELECT is_deleted FROM posts WHERE id = $1`, postID).Scan(&isDeleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, Pagination{}, ErrNotFound
	}
	if err != nil {
		return nil, Pagination{}, wrapPg(err)
	}
	if isDeleted {
		return nil, Pagination{}, ErrNotFound
	}

	// One bulk read for the whole post; the forest is assembled in memory.
	rows, err := s.pool.Query(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE post_id = $1`, postID)
	if err != nil {
		return nil, Pagination{}, wrapPg(err)
	}
	defer rows.Close()

	var all []Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, Pagination{}, wrapPg(err)
		}
		all = append(all, c)
	}
	if err := rows.Err(); err != nil {
		return nil, Pagination{}, wrapPg(err)
	}

	nodes, pg := BuildForest(all, opts)
	return nodes, pg, nil
}

func (s *PostgresCommentStore) ListByAuthor(ctx context.Context, authorID string, includeHidden bool, page, pageSize int) ([]Comment, Pagination, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	filter := ` WHERE author_id = $1`
	if !includeHidden {
		filter += ` AND is_hidden = false`
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM comments`+filter, authorID).Scan(&total); err != nil {
		return nil, Pagination{}, wrapPg(err)
	}

	pg, lo, _ := paginate(total, page, pageSize)

	rows, err := s.pool.Query(ctx,
		`SELECT `+commentColumns+` FROM comments`+filter+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`, authorID, pageSize, lo)
	if err != nil {
		return nil, Pagination{}, wrapPg(err)
	}
	defer rows.Close()

	out := []Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, Pagination{}, wrapPg(err)
		}
		out = append(out, c)
	}
	return out, pg, rows.Err()
}

func (s *PostgresCommentStore) UpdateContent(ctx context.Context, commentID string, actor Actor, content string) (Comment, error) {
	var authorID string
	err := s.pool.QueryRow(ctx,
		`SELECT author_id FROM comments WHERE id = $1`, commentID).Scan(&authorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	if err != nil {
		return Comment{}, wrapPg(err)
	}
	if authorID != actor.UserID && !actor.Admin() {
		return Comment{}, ErrForbidden
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE comments
		 SET content = $2, is_edited = true, edited_at = now(), updated_at = now()
		 WHERE id = $1
		 RETURNING `+commentColumns, commentID, content)
	c, err := scanComment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	if err != nil {
		return Comment{}, wrapPg(err)
	}
	return c, nil
}

func (s *PostgresCommentStore) ToggleLike(ctx context.Context, commentID, userID string) (LikeResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return LikeResult{}, wrapPg(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the comment row before touching the membership table: without it
	// a concurrent toggle's count subquery can evaluate on a pre-commit
	// snapshot and write a stale likes_count.
	var hidden bool
	err = tx.QueryRow(ctx,
		`SELECT is_hidden FROM comments WHERE id = $1 FOR UPDATE`, commentID).Scan(&hidden)
	if errors.Is(err, pgx.ErrNoRows) {
		return LikeResult{}, ErrNotFound
	}
	if err != nil {
		return LikeResult{}, wrapPg(err)
	}
	if hidden {
		return LikeResult{}, ErrNotFound
	}

	// Test-and-flip on the membership table.
	tag, err := tx.Exec(ctx,
		`DELETE FROM comment_likes WHERE comment_id = $1 AND user_id = $2`,
		commentID, userID)
	if err != nil {
		return LikeResult{}, wrapPg(err)
	}
	liked := tag.RowsAffected() == 0
	if liked {
		if _, err := tx.Exec(ctx,
			`INSERT INTO comment_likes (comment_id, user_id) VALUES ($1, $2)`,
			commentID, userID); err != nil {
			return LikeResult{}, wrapPg(err)
		}
	}

	// likes_count is recomputed from the authoritative set inside the same
	// transaction; the written value matches the set at commit time.
	var count int
	err = tx.QueryRow(ctx,
		`UPDATE comments
		 SET likes_count = (SELECT count(*) FROM comment_likes WHERE comment_id = $1)
		 WHERE id = $1
		 RETURNING likes_count`, commentID).Scan(&count)
	if err != nil {
		return LikeResult{}, wrapPg(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return LikeResult{}, wrapPg(err)
	}
	return LikeResult{Liked: liked, LikesCount: count}, nil
}

func (s *PostgresCommentStore) Report(ctx context.Context, commentID, reporterID, reason string) (ReportResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ReportResult{}, wrapPg(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current ReportResult
	err = tx.QueryRow(ctx,
		`SELECT report_count, is_hidden FROM comments WHERE id = $1 FOR UPDATE`, commentID).
		Scan(&current.ReportCount, &current.IsHidden)
	if errors.Is(err, pgx.ErrNoRows) {
		return ReportResult{}, ErrNotFound
	}
	if err != nil {
		return ReportResult{}, wrapPg(err)
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO comment_reports (comment_id, reporter_id, reason)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (comment_id, reporter_id) DO NOTHING`,
		commentID, reporterID, reason)
	if err != nil {
		return ReportResult{}, wrapPg(err)
	}
	if tag.RowsAffected() == 0 {
		// Duplicate reporter: silent no-op.
		return current, nil
	}

	var out ReportResult
	err = tx.QueryRow(ctx,
		`UPDATE comments
		 SET report_count = (SELECT count(*) FROM comment_reports WHERE comment_id = $1)
		 WHERE id = $1
		 RETURNING report_count, is_hidden`, commentID).
		Scan(&out.ReportCount, &out.IsHidden)
	if err != nil {
		return ReportResult{}, wrapPg(err)
	}

	if out.ReportCount >= ReportThreshold && !out.IsHidden {
		if _, err := tx.Exec(ctx,
			`UPDATE comments
			 SET is_hidden = true, hidden_cause = $2, hidden_reason = $3,
			     hidden_by = NULL, hidden_at = now()
			 WHERE id = $1 AND is_hidden = false`,
			commentID, string(CauseReportThreshold), ReasonMultipleReports); err != nil {
			return ReportResult{}, wrapPg(err)
		}
		out.IsHidden = true
	}

	if err := tx.Commit(ctx); err != nil {
		return ReportResult{}, wrapPg(err)
	}
	return out, nil
}

func (s *PostgresCommentStore) Reports(ctx context.Context, commentID string) ([]Report, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM comments WHERE id = $1)`, commentID).Scan(&exists); err != nil {
		return nil, wrapPg(err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := s.pool.Query(ctx,
		`SELECT reporter_id, reason, created_at
		 FROM comment_reports WHERE comment_id = $1
		 ORDER BY created_at ASC`, commentID)
	if err != nil {
		return nil, wrapPg(err)
	}
	defer rows.Close()

	out := []Report{}
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ReporterID, &r.Reason, &r.ReportedAt); err != nil {
			return nil, wrapPg(err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresCommentStore) Moderate(ctx context.Context, commentID string, actor Actor, action, reason string) (Comment, error) {
	if !actor.Moderator() {
		return Comment{}, ErrForbidden
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Comment{}, wrapPg(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var row pgx.Row
	switch action {
	case ActionHide:
		row = tx.QueryRow(ctx,
			`UPDATE comments
			 SET is_hidden = true, hidden_cause = $2, hidden_reason = $3,
			     hidden_by = $4, hidden_at = now()
			 WHERE id = $1
			 RETURNING `+commentColumns,
			commentID, string(CauseModerator), reason, actor.UserID)
	case ActionUnhide:
		row = tx.QueryRow(ctx,
			`UPDATE comments
			 SET is_hidden = false, hidden_cause = NULL, hidden_reason = NULL,
			     hidden_by = NULL, hidden_at = NULL
			 WHERE id = $1
			 RETURNING `+commentColumns, commentID)
	case ActionClearReports:
		if _, err := tx.Exec(ctx,
			`DELETE FROM comment_reports WHERE comment_id = $1`, commentID); err != nil {
			return Comment{}, wrapPg(err)
		}
		row = tx.QueryRow(ctx,
			`UPDATE comments SET report_count = 0 WHERE id = $1
			 RETURNING `+commentColumns, commentID)
	default:
		return Comment{}, ErrInvalidAction
	}

	c, err := scanComment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	if err != nil {
		return Comment{}, wrapPg(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Comment{}, wrapPg(err)
	}
	return c, nil
}

func (s *PostgresCommentStore) SoftDelete(ctx context.Context, commentID string, actor Actor) (Comment, error) {
	var commentAuthor, postAuthor string
	err := s.pool.QueryRow(ctx,
		`SELECT c.author_id, p.author_id
		 FROM comments c JOIN posts p ON p.id = c.post_id
		 WHERE c.id = $1`, commentID).Scan(&commentAuthor, &postAuthor)
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	if err != nil {
		return Comment{}, wrapPg(err)
	}

	isAuthor := commentAuthor == actor.UserID
	if !isAuthor && postAuthor != actor.UserID && !actor.Admin() {
		return Comment{}, ErrForbidden
	}

	cause := CauseModerator
	if isAuthor {
		cause = CauseSelfDelete
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE comments
		 SET is_hidden = true, hidden_cause = $2, hidden_reason = $3,
		     hidden_by = $4, hidden_at = now()
		 WHERE id = $1
		 RETURNING `+commentColumns,
		commentID, string(cause), ReasonDeletedByUser, actor.UserID)
	c, err := scanComment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	if err != nil {
		return Comment{}, wrapPg(err)
	}
	return c, nil
}

func (s *PostgresCommentStore) HardDelete(ctx context.Context, commentID string, actor Actor) (int, error) {
	if !actor.Admin() {
		return 0, ErrForbidden
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, wrapPg(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var postID string
	var parentID *string
	err = tx.QueryRow(ctx,
		`SELECT post_id, parent_id FROM comments WHERE id = $1`, commentID).
		Scan(&postID, &parentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, wrapPg(err)
	}

	// Subtree discovery over the parent index.
	rows, err := tx.Query(ctx,
		`WITH RECURSIVE subtree AS (
		   SELECT id FROM comments WHERE id = $1
		   UNION ALL
		   SELECT c.id FROM comments c JOIN subtree s ON c.parent_id = s.id
		 )
		 SELECT id FROM subtree`, commentID)
	if err != nil {
		return 0, wrapPg(err)
	}
	var doomed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, wrapPg(err)
		}
		doomed = append(doomed, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, wrapPg(err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM comment_likes WHERE comment_id = ANY($1)`, doomed); err != nil {
		return 0, wrapPg(err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM comment_reports WHERE comment_id = ANY($1)`, doomed); err != nil {
		return 0, wrapPg(err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM comments WHERE id = ANY($1)`, doomed); err != nil {
		return 0, wrapPg(err)
	}

	// Rollback legs: total subtree off the post counter, exactly one direct
	// child link off the parent.
	if _, err := tx.Exec(ctx,
		`UPDATE posts
		 SET comments_count = GREATEST(comments_count - $2, 0)
		 WHERE id = $1`, postID, len(doomed)); err != nil {
		return 0, wrapPg(err)
	}
	if parentID != nil {
		if _, err := tx.Exec(ctx,
			`UPDATE comments
			 SET replies_count = GREATEST(replies_count - 1, 0)
			 WHERE id = $1`, *parentID); err != nil {
			return 0, wrapPg(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, wrapPg(err)
	}
	return len(doomed), nil
}
