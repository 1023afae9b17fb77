package store

import (
	"errors"
	"fmt"
)

// Sentinel errors. Handlers map these to the API error envelope; anything
// else is a storage fault and surfaces as 500.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidAction     = errors.New("invalid moderation action")
	ErrRetryableConflict = errors.New("transaction conflict, safe to retry idempotent operations")
)

// InvalidState refinements. errors.Is(err, ErrInvalidState) holds for all.
var (
	ErrPostNotPublished = fmt.Errorf("post is not published: %w", ErrInvalidState)
	ErrParentHidden     = fmt.Errorf("parent comment is hidden: %w", ErrInvalidState)
	ErrDepthExceeded    = fmt.Errorf("comment depth limit exceeded: %w", ErrInvalidState)
)
