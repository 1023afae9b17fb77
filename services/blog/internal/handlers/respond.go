package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/example/blog-platform/internal/platform/api"
	"github.com/example/blog-platform/internal/platform/auth"
	"github.com/example/blog-platform/services/blog/internal/store"
)

const maxBodyBytes = 1 << 20

// writeStoreError maps the store's sentinel errors to the API envelope.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", "resource not found", "")
	case errors.Is(err, store.ErrForbidden):
		api.Forbidden(w, "FORBIDDEN", "not allowed", "")
	case errors.Is(err, store.ErrInvalidAction):
		api.BadRequest(w, "INVALID_ACTION", "unknown moderation action", "", nil)
	case errors.Is(err, store.ErrInvalidState):
		api.UnprocessableEntity(w, "INVALID_STATE", err.Error(), "", nil)
	case errors.Is(err, store.ErrRetryableConflict):
		api.Conflict(w, "CONFLICT", "concurrent update, retry the request", "", nil)
	default:
		api.Internal(w, "")
	}
}

// actor maps the authenticated identity to the store's actor type.
func actor(id auth.Identity) store.Actor {
	return store.Actor{UserID: id.UserID, Role: id.Role}
}

// identity pulls the caller injected by RequireUser, writing 401 on absence.
func identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		api.Unauthorized(w, "UNAUTHORIZED", "authentication required", "")
	}
	return id, ok
}

func queryInt(r *http.Request, name, def string, min, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		raw = def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min {
		n, _ = strconv.Atoi(def)
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}
