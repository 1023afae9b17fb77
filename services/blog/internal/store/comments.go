package store

import (
	"context"
	"time"
)

// Depth and moderation policy for comment threads.
const (
	// MaxDepth is the deepest reply level allowed at creation time.
	// The legacy schema tolerated 5 but the write path always enforced 3;
	// 3 is authoritative here.
	MaxDepth = 3

	// ReportThreshold is the unique-report count at which a comment is
	// hidden without moderator action.
	ReportThreshold = 3
)

// HiddenCause tags why a comment is hidden. A single is_hidden flag covers
// three distinct transitions; the cause keeps them distinguishable without
// string matching on the reason.
type HiddenCause string

const (
	CauseSelfDelete      HiddenCause = "self_delete"
	CauseReportThreshold HiddenCause = "report_threshold"
	CauseModerator       HiddenCause = "moderator"
)

// Human-readable reasons recorded on automatic transitions.
const (
	ReasonMultipleReports = "Multiple reports"
	ReasonDeletedByUser   = "Deleted by user"
)

// Moderation actions accepted by Moderate.
const (
	ActionHide         = "hide"
	ActionUnhide       = "unhide"
	ActionClearReports = "clear_reports"
)

// Thread ordering.
const (
	OrderNewest = "newest"
	OrderOldest = "oldest"
)

// Comment is a single comment row. LikesCount always equals the size of the
// membership set; RepliesCount counts direct non-removed children.
type Comment struct {
	ID           string      `json:"id"`
	PostID       string      `json:"post_id"`
	AuthorID     string      `json:"author_id"`
	ParentID     *string     `json:"parent_id,omitempty"`
	Depth        int         `json:"depth"`
	Content      string      `json:"content"`
	LikesCount   int         `json:"likes_count"`
	RepliesCount int         `json:"replies_count"`
	IsEdited     bool        `json:"is_edited,omitempty"`
	EditedAt     *time.Time  `json:"edited_at,omitempty"`
	IsHidden     bool        `json:"is_hidden"`
	HiddenCause  HiddenCause `json:"hidden_cause,omitempty"`
	HiddenReason string      `json:"hidden_reason,omitempty"`
	HiddenBy     *string     `json:"hidden_by,omitempty"`
	HiddenAt     *time.Time  `json:"hidden_at,omitempty"`
	ReportCount  int         `json:"report_count"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    *time.Time  `json:"updated_at,omitempty"`
}

// Report is one entry in a comment's report list. At most one per reporter.
type Report struct {
	ReporterID string    `json:"reporter_id"`
	Reason     string    `json:"reason"`
	ReportedAt time.Time `json:"reported_at"`
}

// CreateComment carries the validated input for Create.
type CreateComment struct {
	PostID   string
	AuthorID string
	Content  string
	ParentID *string
}

// Actor is the authenticated caller as the store sees it. The API layer is
// responsible for authentication; the store only checks rights.
type Actor struct {
	UserID string
	Role   string
}

// Admin reports whether the actor carries the admin role.
func (a Actor) Admin() bool { return a.Role == "admin" }

// Moderator reports whether the actor may moderate. Admins qualify.
func (a Actor) Moderator() bool { return a.Role == "moderator" || a.Admin() }

// ThreadOptions bounds a FetchThread response.
type ThreadOptions struct {
	MaxDepth int    // eager child depth, default MaxDepth
	Page     int    // 1-based, default 1
	PageSize int    // roots per page, default 20
	Order    string // OrderNewest (default) or OrderOldest
}

// ThreadNode is a comment with its eagerly attached children. Children below
// the depth bound are reported as a count, never fetched recursively.
type ThreadNode struct {
	Comment        Comment      `json:"comment"`
	Replies        []ThreadNode `json:"replies"`
	OmittedReplies int          `json:"omitted_replies,omitempty"`
}

// Pagination is the page metadata attached to list responses.
type Pagination struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	Total    int  `json:"total"`
	Pages    int  `json:"pages"`
	HasNext  bool `json:"has_next"`
	HasPrev  bool `json:"has_prev"`
}

// LikeResult reports the state after a like toggle.
type LikeResult struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likes_count"`
}

// ReportResult reports the state after a report attempt.
type ReportResult struct {
	ReportCount int  `json:"report_count"`
	IsHidden    bool `json:"is_hidden"`
}

// CommentStore defines the contract for comment persistence and the
// consistency rules around it. Every mutation that touches a counter runs as
// one atomic storage operation; cross-entity updates are all-or-nothing.
type CommentStore interface {
	// Create validates the post and parent, computes depth, inserts the
	// comment and bumps post.comments_count (and parent.replies_count for
	// replies) in a single transaction.
	Create(ctx context.Context, in CreateComment) (Comment, error)

	GetByID(ctx context.Context, commentID string) (Comment, error)

	// FetchThread bulk-loads the post's comments and assembles a
	// depth-bounded forest. Hidden comments are included so that visible
	// children of a hidden parent still surface; projection is the caller's
	// concern.
	FetchThread(ctx context.Context, postID string, opts ThreadOptions) ([]ThreadNode, Pagination, error)

	// ListByAuthor pages a user's comments, newest first.
	ListByAuthor(ctx context.Context, authorID string, includeHidden bool, page, pageSize int) ([]Comment, Pagination, error)

	// UpdateContent replaces the content. Author or admin only.
	UpdateContent(ctx context.Context, commentID string, actor Actor, content string) (Comment, error)

	// ToggleLike flips the caller's membership in the liked set and
	// recomputes likes_count from the set inside the same transaction.
	ToggleLike(ctx context.Context, commentID, userID string) (LikeResult, error)

	// Report appends a report unless the reporter already filed one (silent
	// no-op). Crossing ReportThreshold hides the comment atomically.
	Report(ctx context.Context, commentID, reporterID, reason string) (ReportResult, error)

	// Reports returns the report list. Admin/moderator projection only.
	Reports(ctx context.Context, commentID string) ([]Report, error)

	// Moderate applies hide, unhide or clear_reports.
	Moderate(ctx context.Context, commentID string, actor Actor, action, reason string) (Comment, error)

	// SoftDelete hides the comment, leaving children untouched. Allowed to
	// the author, the post's author and admins.
	SoftDelete(ctx context.Context, commentID string, actor Actor) (Comment, error)

	// HardDelete removes the subtree rooted at commentID and rolls the
	// counters back in the same transaction. Admins only. Returns the
	// removed count.
	HardDelete(ctx context.Context, commentID string, actor Actor) (int, error)
}
