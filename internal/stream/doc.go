// Package stream implements the paced streaming loop that drives frame
// production, encoding, and broadcast at a bounded rate. Callers that
// produce frames elsewhere can skip the loop entirely and drive
// TCPServer.Broadcast with their own encoded buffers.
package stream
