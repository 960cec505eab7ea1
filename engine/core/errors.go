package core

import (
	"errors"
)

// Error kinds surfaced by the renderer resource core. Call sites wrap them with
// fmt.Errorf("...: %w", ...) so callers can match with errors.Is.
var (
	// ErrOutOfMemory is returned when an allocator cannot satisfy a request after eviction.
	ErrOutOfMemory = errors.New("out of memory")
	// ErrDuplicateName is returned when creating a named resource that already exists.
	ErrDuplicateName = errors.New("duplicate name")
	// ErrNotFound is returned on lookup of an unregistered name.
	ErrNotFound = errors.New("not found")
	// ErrCacheInconsistency is returned when a release would drive a refcount below zero
	// or when a mesh that was never registered is touched at GPU level.
	ErrCacheInconsistency = errors.New("cache inconsistency")
	// ErrBackendLost is returned when the graphics backend reports a non-recoverable state.
	ErrBackendLost = errors.New("backend lost")
	// ErrInternal marks an invariant violation. The frame loop aborts on it.
	ErrInternal = errors.New("internal error")

	ErrUnknown = errors.New("unknown")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrOutOfMemory, "OutOfMemory"},
	{ErrDuplicateName, "DuplicateName"},
	{ErrNotFound, "NotFound"},
	{ErrCacheInconsistency, "CacheInconsistency"},
	{ErrBackendLost, "BackendLost"},
	{ErrInternal, "Internal"},
}

// ErrorKind returns the name of the error kind wrapped by err, or "Unknown".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Unknown"
}

// IsFatal reports whether err must abort the frame loop.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInternal)
}
