package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryPostStore is a development-only in-memory implementation.
type InMemoryPostStore struct {
	mu    sync.RWMutex
	posts map[string]Post                // id -> post
	slugs map[string]string              // slug -> id
	likes map[string]map[string]struct{} // postID -> userID set
}

func NewInMemoryPostStore() *InMemoryPostStore {
	return &InMemoryPostStore{
		posts: make(map[string]Post),
		slugs: make(map[string]string),
		likes: make(map[string]map[string]struct{}),
	}
}

func (s *InMemoryPostStore) Create(_ context.Context, in CreatePost) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Post{
		ID:          uuid.NewString(),
		AuthorID:    in.AuthorID,
		Title:       in.Title,
		Slug:        Slugify(in.Title),
		Content:     in.Content,
		Excerpt:     in.Excerpt,
		Status:      PostDraft,
		ReadingTime: ReadingTime(in.Content),
		CreatedAt:   time.Now().UTC(),
	}
	if p.Excerpt == "" {
		p.Excerpt = MakeExcerpt(in.Content)
	}
	if _, taken := s.slugs[p.Slug]; taken {
		p.Slug = p.Slug + "-" + p.ID[:8]
	}
	s.posts[p.ID] = p
	s.slugs[p.Slug] = p.ID
	return p, nil
}

func (s *InMemoryPostStore) GetByID(_ context.Context, postID string) (Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(postID)
}

func (s *InMemoryPostStore) getLocked(postID string) (Post, error) {
	p, ok := s.posts[postID]
	if !ok || p.IsDeleted {
		return Post{}, ErrNotFound
	}
	return p, nil
}

func (s *InMemoryPostStore) GetBySlug(_ context.Context, slug string) (Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.slugs[slug]
	if !ok {
		return Post{}, ErrNotFound
	}
	return s.getLocked(id)
}

func (s *InMemoryPostStore) ListPublished(_ context.Context, page, pageSize int) ([]Post, Pagination, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Post
	for _, p := range s.posts {
		if p.Visible() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i], out[j]
		ti, tj := pi.CreatedAt, pj.CreatedAt
		if pi.PublishedAt != nil {
			ti = *pi.PublishedAt
		}
		if pj.PublishedAt != nil {
			tj = *pj.PublishedAt
		}
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return pi.ID > pj.ID
	})

	pg, lo, hi := paginate(len(out), page, pageSize)
	return out[lo:hi], pg, nil
}

func (s *InMemoryPostStore) ListByAuthor(_ context.Context, authorID string, includeUnpublished bool, page, pageSize int) ([]Post, Pagination, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Post
	for _, p := range s.posts {
		if p.IsDeleted || p.AuthorID != authorID {
			continue
		}
		if !includeUnpublished && p.Status != PostPublished {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	pg, lo, hi := paginate(len(out), page, pageSize)
	return out[lo:hi], pg, nil
}

func (s *InMemoryPostStore) Update(_ context.Context, postID string, actor Actor, in UpdatePost) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.getLocked(postID)
	if err != nil {
		return Post{}, err
	}
	if p.AuthorID != actor.UserID && !actor.Admin() {
		return Post{}, ErrForbidden
	}

	if in.Title != "" && in.Title != p.Title {
		slug := Slugify(in.Title)
		if id, taken := s.slugs[slug]; taken && id != postID {
			slug = slug + "-" + p.ID[:8]
		}
		delete(s.slugs, p.Slug)
		p.Title = in.Title
		p.Slug = slug
		s.slugs[slug] = postID
	}
	if in.Content != "" {
		p.Content = in.Content
		p.ReadingTime = ReadingTime(in.Content)
		if in.Excerpt == "" {
			p.Excerpt = MakeExcerpt(in.Content)
		}
	}
	if in.Excerpt != "" {
		p.Excerpt = in.Excerpt
	}

	now := time.Now().UTC()
	p.UpdatedAt = &now
	s.posts[postID] = p
	return p, nil
}

func (s *InMemoryPostStore) Publish(_ context.Context, postID string, actor Actor) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.getLocked(postID)
	if err != nil {
		return Post{}, err
	}
	if p.AuthorID != actor.UserID && !actor.Admin() {
		return Post{}, ErrForbidden
	}
	if p.Status != PostPublished {
		now := time.Now().UTC()
		p.Status = PostPublished
		if p.PublishedAt == nil {
			p.PublishedAt = &now
		}
		p.UpdatedAt = &now
		s.posts[postID] = p
	}
	return p, nil
}

func (s *InMemoryPostStore) Archive(_ context.Context, postID string, actor Actor) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.getLocked(postID)
	if err != nil {
		return Post{}, err
	}
	if p.AuthorID != actor.UserID && !actor.Admin() {
		return Post{}, ErrForbidden
	}
	now := time.Now().UTC()
	p.Status = PostArchived
	p.UpdatedAt = &now
	s.posts[postID] = p
	return p, nil
}

func (s *InMemoryPostStore) SoftDelete(_ context.Context, postID string, actor Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.getLocked(postID)
	if err != nil {
		return err
	}
	if p.AuthorID != actor.UserID && !actor.Admin() {
		return ErrForbidden
	}
	p.IsDeleted = true
	s.posts[postID] = p
	return nil
}

func (s *InMemoryPostStore) ToggleLike(_ context.Context, postID, userID string) (LikeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.getLocked(postID)
	if err != nil {
		return LikeResult{}, err
	}

	set := s.likes[postID]
	if set == nil {
		set = make(map[string]struct{})
		s.likes[postID] = set
	}

	var liked bool
	if _, ok := set[userID]; ok {
		delete(set, userID)
	} else {
		set[userID] = struct{}{}
		liked = true
	}

	// Counter always recomputed from the membership set, same lock.
	p.LikesCount = len(set)
	s.posts[postID] = p
	return LikeResult{Liked: liked, LikesCount: p.LikesCount}, nil
}

func (s *InMemoryPostStore) AddViews(_ context.Context, postID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.getLocked(postID)
	if err != nil {
		return err
	}
	p.Views += delta
	s.posts[postID] = p
	return nil
}

// addCommentsCount is the in-memory CounterSync seam used by the comment
// store. delta may be negative during cascade rollback.
func (s *InMemoryPostStore) addCommentsCount(postID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return ErrNotFound
	}
	p.CommentsCount += delta
	if p.CommentsCount < 0 {
		p.CommentsCount = 0
	}
	s.posts[postID] = p
	return nil
}
