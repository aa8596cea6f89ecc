// Package rcrpc defines the wire format of the stub RPC server: length
// prefixed little-endian frames carrying one request or response each.
//
// A frame is an 8-byte header (operation, payload length) followed by the
// payload. Requests and responses share the frame layout; the operation
// code distinguishes them.
package rcrpc

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Op identifies the operation a frame carries.
type Op uint32

const (
	OpPingRequest  Op = 0x10
	OpPingResponse Op = 0x11

	OpReadRequest  Op = 0x20
	OpReadResponse Op = 0x21

	OpWriteRequest  Op = 0x30
	OpWriteResponse Op = 0x31

	OpRemoveRequest  Op = 0x40
	OpRemoveResponse Op = 0x41

	// OpErrorResponse carries a human-readable error message.
	OpErrorResponse Op = 0xff
)

const headerLen = 8

// MaxPayload bounds the payload of a single frame. Larger objects are
// rejected before they reach the log.
const MaxPayload = 1 << 20

var (
	// ErrFrameTooLarge is returned when a header announces a payload
	// beyond MaxPayload.
	ErrFrameTooLarge = errors.New("frame exceeds maximum payload size")

	// ErrShortPayload is returned when a payload is too small for its
	// operation.
	ErrShortPayload = errors.New("payload too short")
)

// WriteFrame writes one frame to w.
func WriteFrame(w io.Writer, op Op, payload []byte) error {
	if len(payload) > MaxPayload {
		return ErrFrameTooLarge
	}
	var hdr [headerLen]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(op))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "writing frame header")
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return errors.Wrap(err, "writing frame payload")
}

// ReadFrame reads one frame from r.
func ReadFrame(r io.Reader) (Op, []byte, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	op := Op(binary.LittleEndian.Uint32(hdr[0:]))
	n := binary.LittleEndian.Uint32(hdr[4:])
	if n > MaxPayload {
		return 0, nil, ErrFrameTooLarge
	}
	if n == 0 {
		return op, nil, nil
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, errors.Wrap(err, "reading frame payload")
	}
	return op, payload, nil
}

// Key payloads: Read and Remove requests carry just the object ID.

func MarshalKey(key uint64) []byte {
	var p [8]byte
	binary.LittleEndian.PutUint64(p[:], key)
	return p[:]
}

func UnmarshalKey(p []byte) (uint64, error) {
	if len(p) < 8 {
		return 0, ErrShortPayload
	}
	return binary.LittleEndian.Uint64(p), nil
}

// Write requests carry the object ID followed by the value bytes.

func MarshalWriteRequest(key uint64, value []byte) []byte {
	p := make([]byte, 8+len(value))
	binary.LittleEndian.PutUint64(p, key)
	copy(p[8:], value)
	return p
}

func UnmarshalWriteRequest(p []byte) (uint64, []byte, error) {
	if len(p) < 8 {
		return 0, nil, ErrShortPayload
	}
	return binary.LittleEndian.Uint64(p), p[8:], nil
}

// Read responses carry a found byte followed by the value when found.

func MarshalReadResponse(found bool, value []byte) []byte {
	p := make([]byte, 1+len(value))
	if found {
		p[0] = 1
	}
	copy(p[1:], value)
	return p
}

func UnmarshalReadResponse(p []byte) (bool, []byte, error) {
	if len(p) < 1 {
		return false, nil, ErrShortPayload
	}
	return p[0] != 0, p[1:], nil
}

// Remove responses carry one byte reporting whether the key was present.

func MarshalFound(found bool) []byte {
	if found {
		return []byte{1}
	}
	return []byte{0}
}

func UnmarshalFound(p []byte) (bool, error) {
	if len(p) < 1 {
		return false, ErrShortPayload
	}
	return p[0] != 0, nil
}
