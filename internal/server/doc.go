// Package server implements the TCP streaming server: connection acceptance,
// the thread-safe client registry, frame fan-out with per-client failure
// isolation, and the HTTP monitoring API.
package server
