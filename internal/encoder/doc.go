// Package encoder wraps JPEG compression behind a fixed quality and
// colorspace chosen at startup.
package encoder
