// Package protocol implements the length-prefixed wire framing used for
// every message sent to a client: a 4-byte little-endian payload length
// followed by exactly that many JPEG bytes.
package protocol
