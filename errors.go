package reveal

import "errors"

// Errors reported by the core. None of them reach the user: callers log and
// absorb them, and the worst outcome is a reveal that shows nothing.
var (
	// ErrDenied is returned when the photo library refuses access.
	ErrDenied = errors.New("reveal: library access denied")

	// ErrEmptyCatalog is returned when there is nothing to sample from.
	ErrEmptyCatalog = errors.New("reveal: empty catalog")

	// ErrNoImage is returned when a request finished without a final,
	// non-degraded delivery.
	ErrNoImage = errors.New("reveal: no final image delivered")

	// ErrClosed is returned by operations on a closed component.
	ErrClosed = errors.New("reveal: closed")
)
