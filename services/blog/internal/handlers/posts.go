package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/blog-platform/internal/platform/api"
	"github.com/example/blog-platform/internal/platform/auth"
	"github.com/example/blog-platform/internal/platform/events"
	"github.com/example/blog-platform/services/blog/internal/store"
)

type createPostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Excerpt string `json:"excerpt,omitempty"`
}

type updatePostRequest struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
}

type postListResponse struct {
	Posts      []store.Post     `json:"posts"`
	Pagination store.Pagination `json:"pagination"`
}

// CreatePost handles POST /v1/posts
func CreatePost(ps store.PostStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}

		var req createPostRequest
		if err := api.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", "", nil)
			return
		}
		if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
			api.BadRequest(w, "MISSING_FIELDS", "title and content are required", "", nil)
			return
		}

		created, err := ps.Create(r.Context(), store.CreatePost{
			AuthorID: id.UserID,
			Title:    req.Title,
			Content:  req.Content,
			Excerpt:  req.Excerpt,
		})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, created)
	}
}

// ListPosts handles GET /v1/posts
func ListPosts(ps store.PostStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := queryInt(r, "page", "1", 1, 0)
		pageSize := queryInt(r, "page_size", "20", 1, 100)

		posts, pg, err := ps.ListPublished(r.Context(), page, pageSize)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, postListResponse{Posts: posts, Pagination: pg})
	}
}

// ListUserPosts handles GET /v1/users/{user_id}/posts
func ListUserPosts(ps store.PostStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(chi.URLParam(r, "user_id"))
		if userID == "" {
			api.BadRequest(w, "MISSING_ID", "user_id is required", "", nil)
			return
		}

		// Drafts and archived posts only show up for the owner or an admin.
		includeUnpublished := false
		if id, ok := auth.IdentityFromContext(r.Context()); ok {
			includeUnpublished = id.UserID == userID || id.Admin()
		}

		page := queryInt(r, "page", "1", 1, 0)
		pageSize := queryInt(r, "page_size", "20", 1, 100)

		posts, pg, err := ps.ListByAuthor(r.Context(), userID, includeUnpublished, page, pageSize)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, postListResponse{Posts: posts, Pagination: pg})
	}
}

// UpdatePost handles PUT /v1/posts/{post_id}
func UpdatePost(ps store.PostStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}
		postID := strings.TrimSpace(chi.URLParam(r, "post_id"))
		if postID == "" {
			api.BadRequest(w, "MISSING_ID", "post_id is required", "", nil)
			return
		}

		var req updatePostRequest
		if err := api.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", "", nil)
			return
		}
		if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Content) == "" &&
			strings.TrimSpace(req.Excerpt) == "" {
			api.BadRequest(w, "MISSING_FIELDS", "nothing to update", "", nil)
			return
		}

		p, err := ps.Update(r.Context(), postID, actor(id), store.UpdatePost{
			Title:   req.Title,
			Content: req.Content,
			Excerpt: req.Excerpt,
		})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, p)
	}
}

// GetPost handles GET /v1/posts/{post_id}
//
// Every successful read emits a view event; the worker batches them into the
// views counter so the read path never writes.
func GetPost(ps store.PostStore, pub *events.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		postID := strings.TrimSpace(chi.URLParam(r, "post_id"))
		if postID == "" {
			api.BadRequest(w, "MISSING_ID", "post_id is required", "", nil)
			return
		}

		p, err := ps.GetByID(r.Context(), postID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if p.Visible() {
			pub.Publish(events.SubjectPostViewed, "post_viewed", "", map[string]any{"post_id": p.ID})
		}
		api.WriteJSON(w, http.StatusOK, p)
	}
}

// GetPostBySlug handles GET /v1/posts/slug/{slug}
func GetPostBySlug(ps store.PostStore, pub *events.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := strings.TrimSpace(chi.URLParam(r, "slug"))
		if slug == "" {
			api.BadRequest(w, "MISSING_SLUG", "slug is required", "", nil)
			return
		}

		p, err := ps.GetBySlug(r.Context(), slug)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if p.Visible() {
			pub.Publish(events.SubjectPostViewed, "post_viewed", "", map[string]any{"post_id": p.ID})
		}
		api.WriteJSON(w, http.StatusOK, p)
	}
}

// PublishPost handles POST /v1/posts/{post_id}/publish
func PublishPost(ps store.PostStore) http.HandlerFunc {
	return lifecycleHandler(ps.Publish)
}

// ArchivePost handles POST /v1/posts/{post_id}/archive
func ArchivePost(ps store.PostStore) http.HandlerFunc {
	return lifecycleHandler(ps.Archive)
}

// lifecycleHandler wraps the author-gated state transitions, which share
// their whole request shape.
func lifecycleHandler(op func(ctx context.Context, postID string, actor store.Actor) (store.Post, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}
		postID := strings.TrimSpace(chi.URLParam(r, "post_id"))
		if postID == "" {
			api.BadRequest(w, "MISSING_ID", "post_id is required", "", nil)
			return
		}
		p, err := op(r.Context(), postID, actor(id))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, p)
	}
}

// DeletePost handles DELETE /v1/posts/{post_id}
func DeletePost(ps store.PostStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}
		postID := strings.TrimSpace(chi.URLParam(r, "post_id"))
		if postID == "" {
			api.BadRequest(w, "MISSING_ID", "post_id is required", "", nil)
			return
		}
		if err := ps.SoftDelete(r.Context(), postID, actor(id)); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// TogglePostLike handles POST /v1/posts/{post_id}/like
func TogglePostLike(ps store.PostStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}
		postID := strings.TrimSpace(chi.URLParam(r, "post_id"))
		if postID == "" {
			api.BadRequest(w, "MISSING_ID", "post_id is required", "", nil)
			return
		}
		res, err := ps.ToggleLike(r.Context(), postID, id.UserID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, res)
	}
}
