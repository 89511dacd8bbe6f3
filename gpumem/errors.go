package gpumem

import "errors"

var (
	// ErrCannotRenderBrick is returned when a single brick cannot be made resident
	// even after everything evictable was freed.
	ErrCannotRenderBrick = errors.New("cannot render a single brick")

	// ErrContextMismatch is returned when a resource would be replaced from a
	// graphics context other than the one it was created in.
	ErrContextMismatch = errors.New("resource belongs to a different graphics context")

	// ErrStaleHandle is returned for a handle whose resource was freed.
	ErrStaleHandle = errors.New("stale resource handle")

	// ErrAccountingMismatch is returned by Close if the memory counters are not
	// zero after every resource was freed.
	ErrAccountingMismatch = errors.New("memory accounting mismatch")
)
