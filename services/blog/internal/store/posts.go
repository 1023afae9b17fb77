package store

import (
	"context"
	"regexp"
	"strings"
	"time"
)

type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostPublished PostStatus = "published"
	PostArchived  PostStatus = "archived"
)

// Post is a blog post row. CommentsCount and LikesCount are denormalized and
// only ever mutated through the atomic counter paths.
type Post struct {
	ID            string     `json:"id"`
	AuthorID      string     `json:"author_id"`
	Title         string     `json:"title"`
	Slug          string     `json:"slug"`
	Content       string     `json:"content"`
	Excerpt       string     `json:"excerpt,omitempty"`
	Status        PostStatus `json:"status"`
	Views         int        `json:"views"`
	LikesCount    int        `json:"likes_count"`
	CommentsCount int        `json:"comments_count"`
	ReadingTime   int        `json:"reading_time"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	IsDeleted     bool       `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// Visible reports whether the post accepts reads and comments.
func (p Post) Visible() bool {
	return !p.IsDeleted && p.Status == PostPublished
}

// CreatePost carries the validated input for PostStore.Create.
type CreatePost struct {
	AuthorID string
	Title    string
	Content  string
	Excerpt  string
}

// UpdatePost carries a partial edit; empty fields are left untouched.
type UpdatePost struct {
	Title   string
	Content string
	Excerpt string
}

// PostStore defines the contract for post persistence. Lifecycle fields are
// owned here; the comment engine only touches comments_count.
type PostStore interface {
	Create(ctx context.Context, in CreatePost) (Post, error)
	GetByID(ctx context.Context, postID string) (Post, error)
	GetBySlug(ctx context.Context, slug string) (Post, error)
	ListPublished(ctx context.Context, page, pageSize int) ([]Post, Pagination, error)

	// ListByAuthor pages one author's posts, newest first. Drafts and
	// archived posts appear only when includeUnpublished is set.
	ListByAuthor(ctx context.Context, authorID string, includeUnpublished bool, page, pageSize int) ([]Post, Pagination, error)

	// Update edits title, content or excerpt. A new title re-derives the
	// slug, new content re-derives reading_time. Author or admin only.
	Update(ctx context.Context, postID string, actor Actor, in UpdatePost) (Post, error)

	// Publish and Archive move the post between lifecycle states. Author or
	// admin only.
	Publish(ctx context.Context, postID string, actor Actor) (Post, error)
	Archive(ctx context.Context, postID string, actor Actor) (Post, error)

	// SoftDelete flags the post deleted without removing rows.
	SoftDelete(ctx context.Context, postID string, actor Actor) error

	// ToggleLike flips membership in the post's liked set, recomputing
	// likes_count inside the same transaction.
	ToggleLike(ctx context.Context, postID, userID string) (LikeResult, error)

	// AddViews applies a batched view-counter increment. delta is the number
	// of view events aggregated by the worker, never a recomputed total.
	AddViews(ctx context.Context, postID string, delta int) error
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL slug from a post title.
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugStrip.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// MakeExcerpt truncates content for list views when no excerpt was supplied.
func MakeExcerpt(content string) string {
	content = strings.TrimSpace(content)
	const max = 200
	if len(content) <= max {
		return content
	}
	return content[:max] + "..."
}

// ReadingTime estimates minutes to read at roughly 200 words per minute.
func ReadingTime(content string) int {
	words := len(strings.Fields(content))
	if words == 0 {
		return 0
	}
	return (words + 199) / 200
}
