package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Wire format constants
const (
	// HeaderSize is the length prefix preceding every frame:
	// a 4-byte unsigned little-endian payload length.
	HeaderSize = 4

	// DefaultMaxFrameSize bounds frames accepted by ReadFrame.
	DefaultMaxFrameSize = 64 << 20 // 64 MiB
)

// WriteFrame writes one length-prefixed frame to w.
// Layout: [PayloadLen:4 LE][Payload:PayloadLen]
//
// The prefix is written as a single write; the payload is written in a loop
// until complete or the writer fails. The returned count is the number of
// payload bytes written, so callers detect failure by comparing it to
// len(payload). An I/O error mid-payload is reported both ways: the count is
// short and the error is non-nil.
func WriteFrame(w io.Writer, payload []byte) (int, error) {
	if len(payload) == 0 {
		return 0, fmt.Errorf("empty payload: a zero-length frame is indistinguishable from a disconnect")
	}

	var header [HeaderSize]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return 0, fmt.Errorf("failed to write frame header: %w", err)
	}

	sent := 0
	for sent < len(payload) {
		n, err := w.Write(payload[sent:])
		sent += n
		if err != nil {
			return sent, fmt.Errorf("failed to write frame payload at byte %d of %d: %w", sent, len(payload), err)
		}
		if n == 0 {
			return sent, fmt.Errorf("connection made no progress at byte %d of %d", sent, len(payload))
		}
	}

	return sent, nil
}

// ReadFrame reads one length-prefixed frame from r. It is the receiving half
// of WriteFrame, used by Go clients and the test suite. maxSize <= 0 selects
// DefaultMaxFrameSize.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}

	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	length := binary.LittleEndian.Uint32(header[:])
	if length == 0 {
		return nil, fmt.Errorf("invalid frame length 0")
	}
	if int64(length) > int64(maxSize) {
		return nil, fmt.Errorf("frame length %d exceeds maximum %d", length, maxSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("failed to read frame payload of %d bytes: %w", length, err)
	}

	return payload, nil
}
