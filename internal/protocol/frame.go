package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// FrameHeaderSize is the length of the prefix carried by every frame.
	FrameHeaderSize = 4

	// MaxFrameSize caps the body length accepted on decode and produced on
	// encode. Observation responses for large games stay well under this.
	MaxFrameSize = 16 * 1024 * 1024
)

// ErrCodec is returned for any frame or message that cannot be encoded or
// decoded. A codec failure means client and engine disagree about the wire
// format, so callers must treat it as fatal for the session.
var ErrCodec = errors.New("codec error")

// EncodeFrame prefixes body with its length as 4 little-endian bytes.
func EncodeFrame(body []byte) []byte {
	frame := make([]byte, FrameHeaderSize+len(body))
	binary.LittleEndian.PutUint32(frame[:FrameHeaderSize], uint32(len(body)))
	copy(frame[FrameHeaderSize:], body)
	return frame
}

// DecodeFrame validates the length prefix and returns the message body.
// The returned slice aliases frame.
func DecodeFrame(frame []byte) ([]byte, error) {
	if len(frame) < FrameHeaderSize {
		return nil, fmt.Errorf("frame truncated to %d bytes: %w", len(frame), ErrCodec)
	}
	size := binary.LittleEndian.Uint32(frame[:FrameHeaderSize])
	if size > MaxFrameSize {
		return nil, fmt.Errorf("frame declares %d byte body, cap is %d: %w", size, MaxFrameSize, ErrCodec)
	}
	if body := frame[FrameHeaderSize:]; uint32(len(body)) == size {
		return body, nil
	}
	return nil, fmt.Errorf("frame declares %d byte body, carries %d: %w",
		size, len(frame)-FrameHeaderSize, ErrCodec)
}
