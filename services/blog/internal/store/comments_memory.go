package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryCommentStore is a development-only in-memory implementation. It
// carries the full consistency rules so the engine tests run against it.
type InMemoryCommentStore struct {
	mu       sync.Mutex
	comments map[string]Comment             // id -> comment
	likes    map[string]map[string]struct{} // commentID -> userID set
	reports  map[string][]Report            // commentID -> report list, append order
	posts    *InMemoryPostStore
}

func NewInMemoryCommentStore(posts *InMemoryPostStore) *InMemoryCommentStore {
	return &InMemoryCommentStore{
		comments: make(map[string]Comment),
		likes:    make(map[string]map[string]struct{}),
		reports:  make(map[string][]Report),
		posts:    posts,
	}
}

func (s *InMemoryCommentStore) Create(ctx context.Context, in CreateComment) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, err := s.posts.GetByID(ctx, in.PostID)
	if err != nil {
		return Comment{}, err
	}
	if post.Status != PostPublished {
		return Comment{}, ErrPostNotPublished
	}

	depth := 0
	if in.ParentID != nil {
		parent, ok := s.comments[*in.ParentID]
		if !ok || parent.PostID != in.PostID {
			return Comment{}, ErrNotFound
		}
		if parent.IsHidden {
			return Comment{}, ErrParentHidden
		}
		depth = parent.Depth + 1
		if depth > MaxDepth {
			return Comment{}, ErrDepthExceeded
		}
	}

	c := Comment{
		ID:        uuid.NewString(),
		PostID:    in.PostID,
		AuthorID:  in.AuthorID,
		ParentID:  in.ParentID,
		Depth:     depth,
		Content:   in.Content,
		CreatedAt: time.Now().UTC(),
	}
	s.comments[c.ID] = c

	// Counter legs of the create, applied under the same lock that
	// inserted the row: all-or-nothing by construction.
	if err := s.posts.addCommentsCount(in.PostID, 1); err != nil {
		delete(s.comments, c.ID)
		return Comment{}, err
	}
	if in.ParentID != nil {
		parent := s.comments[*in.ParentID]
		parent.RepliesCount++
		s.comments[*in.ParentID] = parent
	}
	return c, nil
}

func (s *InMemoryCommentStore) GetByID(_ context.Context, commentID string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[commentID]
	if !ok {
		return Comment{}, ErrNotFound
	}
	return c, nil
}

func (s *InMemoryCommentStore) FetchThread(ctx context.Context, postID string, opts ThreadOptions) ([]ThreadNode, Pagination, error) {
	if _, err := s.posts.GetByID(ctx, postID); err != nil {
		return nil, Pagination{}, err
	}

	s.mu.Lock()
	var all []Comment
	for _, c := range s.comments {
		if c.PostID == postID {
			all = append(all, c)
		}
	}
	s.mu.Unlock()

	nodes, pg := BuildForest(all, opts)
	return nodes, pg, nil
}

func (s *InMemoryCommentStore) ListByAuthor(_ context.Context, authorID string, includeHidden bool, page, pageSize int) ([]Comment, Pagination, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Comment
	for _, c := range s.comments {
		if c.AuthorID != authorID {
			continue
		}
		if c.IsHidden && !includeHidden {
			continue
		}
		out = append(out, c)
	}
	sortLevel(out, true)

	pg, lo, hi := paginate(len(out), page, pageSize)
	return out[lo:hi], pg, nil
}

func (s *InMemoryCommentStore) UpdateContent(_ context.Context, commentID string, actor Actor, content string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[commentID]
	if !ok {
		return Comment{}, ErrNotFound
	}
	if c.AuthorID != actor.UserID && !actor.Admin() {
		return Comment{}, ErrForbidden
	}
	now := time.Now().UTC()
	c.Content = content
	c.IsEdited = true
	c.EditedAt = &now
	c.UpdatedAt = &now
	s.comments[commentID] = c
	return c, nil
}

func (s *InMemoryCommentStore) ToggleLike(_ context.Context, commentID, userID string) (LikeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[commentID]
	if !ok || c.IsHidden {
		return LikeResult{}, ErrNotFound
	}

	set := s.likes[commentID]
	if set == nil {
		set = make(map[string]struct{})
		s.likes[commentID] = set
	}

	var liked bool
	if _, present := set[userID]; present {
		delete(set, userID)
	} else {
		set[userID] = struct{}{}
		liked = true
	}

	// likes_count is recomputed from the set before the lock is released,
	// so it can never drift from the membership.
	c.LikesCount = len(set)
	s.comments[commentID] = c
	return LikeResult{Liked: liked, LikesCount: c.LikesCount}, nil
}

func (s *InMemoryCommentStore) Report(_ context.Context, commentID, reporterID, reason string) (ReportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[commentID]
	if !ok {
		return ReportResult{}, ErrNotFound
	}

	for _, r := range s.reports[commentID] {
		if r.ReporterID == reporterID {
			// Duplicate reporter: silent no-op, current state unchanged.
			return ReportResult{ReportCount: c.ReportCount, IsHidden: c.IsHidden}, nil
		}
	}

	s.reports[commentID] = append(s.reports[commentID], Report{
		ReporterID: reporterID,
		Reason:     reason,
		ReportedAt: time.Now().UTC(),
	})
	c.ReportCount = len(s.reports[commentID])

	if c.ReportCount >= ReportThreshold && !c.IsHidden {
		now := time.Now().UTC()
		c.IsHidden = true
		c.HiddenCause = CauseReportThreshold
		c.HiddenReason = ReasonMultipleReports
		c.HiddenBy = nil // system transition, no human actor
		c.HiddenAt = &now
	}
	s.comments[commentID] = c
	return ReportResult{ReportCount: c.ReportCount, IsHidden: c.IsHidden}, nil
}

func (s *InMemoryCommentStore) Reports(_ context.Context, commentID string) ([]Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.comments[commentID]; !ok {
		return nil, ErrNotFound
	}
	out := make([]Report, len(s.reports[commentID]))
	copy(out, s.reports[commentID])
	return out, nil
}

func (s *InMemoryCommentStore) Moderate(_ context.Context, commentID string, actor Actor, action, reason string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[commentID]
	if !ok {
		return Comment{}, ErrNotFound
	}
	if !actor.Moderator() {
		return Comment{}, ErrForbidden
	}

	now := time.Now().UTC()
	switch action {
	case ActionHide:
		uid := actor.UserID
		c.IsHidden = true
		c.HiddenCause = CauseModerator
		c.HiddenReason = reason
		c.HiddenBy = &uid
		c.HiddenAt = &now
	case ActionUnhide:
		c.IsHidden = false
		c.HiddenCause = ""
		c.HiddenReason = ""
		c.HiddenBy = nil
		c.HiddenAt = nil
	case ActionClearReports:
		// Resets the report ledger only; hidden state is untouched.
		delete(s.reports, commentID)
		c.ReportCount = 0
	default:
		return Comment{}, ErrInvalidAction
	}
	s.comments[commentID] = c
	return c, nil
}

func (s *InMemoryCommentStore) SoftDelete(ctx context.Context, commentID string, actor Actor) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[commentID]
	if !ok {
		return Comment{}, ErrNotFound
	}

	isAuthor := c.AuthorID == actor.UserID
	if !isAuthor && !actor.Admin() {
		post, err := s.posts.GetByID(ctx, c.PostID)
		if err != nil || post.AuthorID != actor.UserID {
			return Comment{}, ErrForbidden
		}
	}

	now := time.Now().UTC()
	uid := actor.UserID
	c.IsHidden = true
	c.HiddenReason = ReasonDeletedByUser
	c.HiddenBy = &uid
	c.HiddenAt = &now
	if isAuthor {
		c.HiddenCause = CauseSelfDelete
	} else {
		c.HiddenCause = CauseModerator
	}
	s.comments[commentID] = c
	return c, nil
}

func (s *InMemoryCommentStore) HardDelete(_ context.Context, commentID string, actor Actor) (int, error) {
	if !actor.Admin() {
		return 0, ErrForbidden
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	root, ok := s.comments[commentID]
	if !ok {
		return 0, ErrNotFound
	}

	// Subtree discovery over the parent index, then removal and counter
	// rollback under the single lock: nothing can observe a half-applied
	// cascade.
	children := make(map[string][]string)
	for id, c := range s.comments {
		if c.ParentID != nil {
			children[*c.ParentID] = append(children[*c.ParentID], id)
		}
	}

	var doomed []string
	queue := []string{commentID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		doomed = append(doomed, id)
		queue = append(queue, children[id]...)
	}

	for _, id := range doomed {
		delete(s.comments, id)
		delete(s.likes, id)
		delete(s.reports, id)
	}

	if err := s.posts.addCommentsCount(root.PostID, -len(doomed)); err != nil && err != ErrNotFound {
		return 0, err
	}
	if root.ParentID != nil {
		// Only the direct child link; replies_count never counts the
		// deeper subtree.
		if parent, ok := s.comments[*root.ParentID]; ok {
			if parent.RepliesCount > 0 {
				parent.RepliesCount--
			}
			s.comments[*root.ParentID] = parent
		}
	}
	return len(doomed), nil
}

// countByPost reports live comments per post; test helper for counter
// invariants.
func (s *InMemoryCommentStore) countByPost(postID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.comments {
		if c.PostID == postID {
			n++
		}
	}
	return n
}

// likedBy reports the current membership set size; test helper.
func (s *InMemoryCommentStore) likedBy(commentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.likes[commentID])
}
