// Package source provides the frame producers fed into the streaming loop:
// a live clock renderer, directory-based finite playback, and a static
// in-memory frame array for library callers.
package source
