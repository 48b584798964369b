package script

import "errors"

// Error taxonomy of the engine. Callers map these to transport status with
// errors.Is; everything else that escapes is a store failure.
var (
	// ErrValidation marks rejected input: empty or whitespace-only text, an
	// over-long commit message, a malformed identifier. Raised before any
	// mutation takes place.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing parent turn, persona, root, day, or module.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable marks transaction or connectivity failure from the
	// graph store. It propagates unmodified; no retry happens at this layer.
	ErrStoreUnavailable = errors.New("store unavailable")
)
