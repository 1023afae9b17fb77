package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/blog-platform/internal/platform/api"
	"github.com/example/blog-platform/internal/platform/auth"
	"github.com/example/blog-platform/internal/platform/events"
	"github.com/example/blog-platform/services/blog/internal/cache"
	"github.com/example/blog-platform/services/blog/internal/store"
)

type createCommentRequest struct {
	Content  string  `json:"content"`
	ParentID *string `json:"parent_id,omitempty"`
}

type updateCommentRequest struct {
	Content string `json:"content"`
}

type reportRequest struct {
	Reason string `json:"reason"`
}

type moderateRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

type threadResponse struct {
	Comments   []store.ThreadNode `json:"comments"`
	Pagination store.Pagination   `json:"pagination"`
}

type hardDeleteResponse struct {
	Removed int `json:"removed"`
}

// CreateComment handles POST /v1/posts/{post_id}/comments
func CreateComment(cs store.CommentStore, pub *events.Publisher, tc *cache.ThreadCache) http.HandlerFunc {
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

		var req createCommentRequest
		if err := api.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", "", nil)
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			api.BadRequest(w, "EMPTY_CONTENT", "content must not be empty", "", nil)
			return
		}

		created, err := cs.Create(r.Context(), store.CreateComment{
			PostID:   postID,
			AuthorID: id.UserID,
			Content:  req.Content,
			ParentID: req.ParentID,
		})
		if err != nil {
			writeStoreError(w, err)
			return
		}

		_ = tc.Invalidate(r.Context(), postID)
		pub.Publish(events.SubjectCommentCreated, "comment_created", id.UserID, map[string]any{
			"comment_id": created.ID,
			"post_id":    postID,
			"depth":      created.Depth,
		})
		api.WriteJSON(w, http.StatusCreated, created)
	}
}

// GetThread handles GET /v1/posts/{post_id}/comments
//
// The thread is assembled from a single bulk load and cached per page.
// Hidden comments stay in the tree so their visible children keep a parent;
// non-moderator viewers get them redacted.
func GetThread(cs store.CommentStore, tc *cache.ThreadCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		postID := strings.TrimSpace(chi.URLParam(r, "post_id"))
		if postID == "" {
			api.BadRequest(w, "MISSING_ID", "post_id is required", "", nil)
			return
		}

		order := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("order")))
		if order != store.OrderOldest {
			order = store.OrderNewest
		}
		opts := store.ThreadOptions{
			Page:     queryInt(r, "page", "1", 1, 0),
			PageSize: queryInt(r, "page_size", "20", 1, 100),
			Order:    order,
		}

		var resp threadResponse
		key := cache.Key(postID, opts.Page, opts.PageSize, opts.Order)
		hit, err := tc.Get(r.Context(), key, &resp)
		if err != nil || !hit {
			nodes, pg, err := cs.FetchThread(r.Context(), postID, opts)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			resp = threadResponse{Comments: nodes, Pagination: pg}
			_ = tc.Set(r.Context(), key, resp)
		}

		if !auth.IsModerator(r.Context()) {
			resp.Comments = redactNodes(resp.Comments)
		}
		api.WriteJSON(w, http.StatusOK, resp)
	}
}

// ListUserComments handles GET /v1/users/{user_id}/comments
func ListUserComments(cs store.CommentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(chi.URLParam(r, "user_id"))
		if userID == "" {
			api.BadRequest(w, "MISSING_ID", "user_id is required", "", nil)
			return
		}

		// Hidden comments only show up for the owner or a moderator.
		includeHidden := false
		if id, ok := auth.IdentityFromContext(r.Context()); ok {
			includeHidden = id.UserID == userID || id.Moderator()
		}

		page := queryInt(r, "page", "1", 1, 0)
		pageSize := queryInt(r, "page_size", "20", 1, 100)

		comments, pg, err := cs.ListByAuthor(r.Context(), userID, includeHidden, page, pageSize)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{
			"comments":   comments,
			"pagination": pg,
		})
	}
}

// UpdateComment handles PUT /v1/comments/{comment_id}
func UpdateComment(cs store.CommentStore, tc *cache.ThreadCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}
		commentID := strings.TrimSpace(chi.URLParam(r, "comment_id"))
		if commentID == "" {
			api.BadRequest(w, "MISSING_ID", "comment_id is required", "", nil)
			return
		}

		var req updateCommentRequest
		if err := api.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", "", nil)
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			api.BadRequest(w, "EMPTY_CONTENT", "content must not be empty", "", nil)
			return
		}

		updated, err := cs.UpdateContent(r.Context(), commentID, actor(id), req.Content)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		_ = tc.Invalidate(r.Context(), updated.PostID)
		api.WriteJSON(w, http.StatusOK, updated)
	}
}

// ToggleCommentLike handles POST /v1/comments/{comment_id}/like
func ToggleCommentLike(cs store.CommentStore, tc *cache.ThreadCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}
		commentID := strings.TrimSpace(chi.URLParam(r, "comment_id"))
		if commentID == "" {
			api.BadRequest(w, "MISSING_ID", "comment_id is required", "", nil)
			return
		}

		res, err := cs.ToggleLike(r.Context(), commentID, id.UserID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if c, err := cs.GetByID(r.Context(), commentID); err == nil {
			_ = tc.Invalidate(r.Context(), c.PostID)
		}
		api.WriteJSON(w, http.StatusOK, res)
	}
}

// ReportComment handles POST /v1/comments/{comment_id}/report
func ReportComment(cs store.CommentStore, pub *events.Publisher, tc *cache.ThreadCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}
		commentID := strings.TrimSpace(chi.URLParam(r, "comment_id"))
		if commentID == "" {
			api.BadRequest(w, "MISSING_ID", "comment_id is required", "", nil)
			return
		}

		var req reportRequest
		if err := api.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", "", nil)
			return
		}
		if strings.TrimSpace(req.Reason) == "" {
			api.BadRequest(w, "EMPTY_REASON", "reason must not be empty", "", nil)
			return
		}

		res, err := cs.Report(r.Context(), commentID, id.UserID, req.Reason)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		pub.Publish(events.SubjectCommentReported, "comment_reported", id.UserID, map[string]any{
			"comment_id":   commentID,
			"report_count": res.ReportCount,
		})
		if res.IsHidden && res.ReportCount == store.ReportThreshold {
			// The report that crossed the threshold.
			pub.Publish(events.SubjectCommentHidden, "comment_hidden", "", map[string]any{
				"comment_id": commentID,
				"cause":      string(store.CauseReportThreshold),
			})
			if c, err := cs.GetByID(r.Context(), commentID); err == nil {
				_ = tc.Invalidate(r.Context(), c.PostID)
			}
		}
		api.WriteJSON(w, http.StatusOK, res)
	}
}

// ListReports handles GET /v1/comments/{comment_id}/reports (moderators)
func ListReports(cs store.CommentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		commentID := strings.TrimSpace(chi.URLParam(r, "comment_id"))
		if commentID == "" {
			api.BadRequest(w, "MISSING_ID", "comment_id is required", "", nil)
			return
		}
		reports, err := cs.Reports(r.Context(), commentID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"reports": reports})
	}
}

// ModerateComment handles POST /v1/comments/{comment_id}/moderate (moderators)
func ModerateComment(cs store.CommentStore, pub *events.Publisher, tc *cache.ThreadCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}
		commentID := strings.TrimSpace(chi.URLParam(r, "comment_id"))
		if commentID == "" {
			api.BadRequest(w, "MISSING_ID", "comment_id is required", "", nil)
			return
		}

		var req moderateRequest
		if err := api.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", "", nil)
			return
		}

		updated, err := cs.Moderate(r.Context(), commentID, actor(id), req.Action, req.Reason)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		_ = tc.Invalidate(r.Context(), updated.PostID)
		if req.Action == store.ActionHide {
			pub.Publish(events.SubjectCommentHidden, "comment_hidden", id.UserID, map[string]any{
				"comment_id": commentID,
				"cause":      string(store.CauseModerator),
			})
		}
		api.WriteJSON(w, http.StatusOK, updated)
	}
}

// DeleteComment handles DELETE /v1/comments/{comment_id}
//
// This is the soft path: the row stays, children stay visible, counters are
// untouched.
func DeleteComment(cs store.CommentStore, pub *events.Publisher, tc *cache.ThreadCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}
		commentID := strings.TrimSpace(chi.URLParam(r, "comment_id"))
		if commentID == "" {
			api.BadRequest(w, "MISSING_ID", "comment_id is required", "", nil)
			return
		}

		hidden, err := cs.SoftDelete(r.Context(), commentID, actor(id))
		if err != nil {
			writeStoreError(w, err)
			return
		}

		_ = tc.Invalidate(r.Context(), hidden.PostID)
		pub.Publish(events.SubjectCommentHidden, "comment_hidden", id.UserID, map[string]any{
			"comment_id": commentID,
			"cause":      string(hidden.HiddenCause),
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

// HardDeleteComment handles DELETE /v1/comments/{comment_id}/hard (admins)
func HardDeleteComment(cs store.CommentStore, tc *cache.ThreadCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}
		commentID := strings.TrimSpace(chi.URLParam(r, "comment_id"))
		if commentID == "" {
			api.BadRequest(w, "MISSING_ID", "comment_id is required", "", nil)
			return
		}

		// Resolved before the delete so the cache can still be flushed.
		c, err := cs.GetByID(r.Context(), commentID)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		removed, err := cs.HardDelete(r.Context(), commentID, actor(id))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		_ = tc.Invalidate(r.Context(), c.PostID)
		api.WriteJSON(w, http.StatusOK, hardDeleteResponse{Removed: removed})
	}
}

// redactNodes blanks hidden comments for non-moderator viewers. The node
// stays so its children keep their anchor; only the is_hidden flag survives.
func redactNodes(nodes []store.ThreadNode) []store.ThreadNode {
	for i := range nodes {
		if nodes[i].Comment.IsHidden {
			c := &nodes[i].Comment
			c.Content = ""
			c.AuthorID = ""
			c.HiddenBy = nil
			c.HiddenReason = ""
			c.HiddenCause = ""
			c.HiddenAt = nil
			c.ReportCount = 0
		}
		nodes[i].Replies = redactNodes(nodes[i].Replies)
	}
	return nodes
}
