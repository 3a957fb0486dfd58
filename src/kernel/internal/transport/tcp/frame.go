package tcp

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// DefaultMaxFrameBytes bounds one encoded multipart message.
const DefaultMaxFrameBytes = 16 << 20

// WriteMessage writes frames as one CBOR array of byte strings behind a 4-byte big-endian length.
func WriteMessage(w io.Writer, frames [][]byte, maxBytes int) error {
	payload, err := cbor.Marshal(frames)
	if err != nil {
		return fmt.Errorf("encoding frames: %w", err)
	}
	if len(payload) > maxBytes {
		return fmt.Errorf("encoded message size %d exceeds limit %d", len(payload), maxBytes)
	}

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)
	_, err = w.Write(buf)
	return err
}

// ReadMessage reads one message written by WriteMessage.
func ReadMessage(r io.Reader, maxBytes int) ([][]byte, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBuf[:])
	if int64(length) > int64(maxBytes) {
		return nil, fmt.Errorf("message size %d exceeds limit %d", length, maxBytes)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	var frames [][]byte
	if err := cbor.Unmarshal(payload, &frames); err != nil {
		return nil, fmt.Errorf("decoding frames: %w", err)
	}
	return frames, nil
}
