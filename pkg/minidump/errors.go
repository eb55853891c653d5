package minidump

import "errors"

// Sentinel errors returned by this package.
//
// Callers should use [errors.Is] to classify failures:
//
//	if errors.Is(err, minidump.ErrFormat) {
//	    // programmer error: fix the call site, don't retry
//	}
var (
	// ErrIO wraps a failure from the underlying [dumpio.Writer]. The partial
	// file's header signature is still zero; the caller is responsible for
	// unlinking it.
	ErrIO = errors.New("minidump: io error")

	// ErrFormat indicates a layout invariant was violated at freeze time:
	// a duplicate stream type, a field that overflowed its wire width when
	// narrowed, or a required child (e.g. a thread with no context) that
	// was never set.
	ErrFormat = errors.New("minidump: format error")
)
