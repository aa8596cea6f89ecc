// Package oblog implements the append-only in-memory log that holds object
// records. The hash table stores offsets into this log; the log is the
// authority on which key a record belongs to, which is what makes
// post-lookup key verification possible.
package oblog

import (
	"encoding/binary"

	sha256 "github.com/minio/sha256-simd"
	"github.com/pkg/errors"

	"github.com/Jingle-Wang/RAMCloud/internal/hashtable"
	"github.com/Jingle-Wang/RAMCloud/internal/memory"
)

// Record layout: key, payload length, reserved word, SHA-256 of the
// payload, then the payload itself. Records are 8-byte aligned so offsets
// double as stable handles.
const (
	keyOff    = 0
	lenOff    = 8
	sumOff    = 16
	headerLen = 48
)

var (
	// ErrLogFull is returned by Append when the arena has no room left.
	ErrLogFull = errors.New("object log full")

	// ErrInvalidHandle is returned when a handle does not refer to a
	// record boundary inside the written part of the log.
	ErrInvalidHandle = errors.New("invalid log handle")

	// ErrCorruptRecord is returned when a record fails its checksum.
	ErrCorruptRecord = errors.New("corrupt log record")
)

// A Log is one contiguous append-only arena. Like the hash table it is
// written by a single owner; it performs no synchronization of its own.
type Log struct {
	region *memory.Region
	buf    []byte
	head   uint64
}

// New allocates a log arena of capacity bytes. The first word of the arena
// is never written so that record handles are always non-zero.
func New(capacity uint64, largePages bool) (*Log, error) {
	if capacity < headerLen+8 {
		return nil, errors.Errorf("log capacity %d too small", capacity)
	}
	if capacity > uint64(hashtable.MaxPointer) {
		return nil, errors.Errorf("log capacity %d exceeds the 47-bit handle space", capacity)
	}
	r, err := memory.Alloc(int(capacity), largePages)
	if err != nil {
		return nil, errors.Wrap(err, "allocating log arena")
	}
	return &Log{region: r, buf: r.Bytes(), head: 8}, nil
}

// Close unmaps the arena. Records handed out by Read become invalid.
func (l *Log) Close() error {
	l.buf = nil
	if l.region == nil {
		return nil
	}
	err := l.region.Release()
	l.region = nil
	return err
}

// Append writes a record for key and returns its handle. Handles are
// non-zero, 8-byte aligned and below 2^47, so they can be stored in the
// hash table directly.
func (l *Log) Append(key uint64, data []byte) (hashtable.Pointer, error) {
	need := uint64(headerLen + len(data) + 7) &^ 7
	if l.head+need > uint64(len(l.buf)) {
		return 0, ErrLogFull
	}

	off := l.head
	rec := l.buf[off : off+need]
	binary.LittleEndian.PutUint64(rec[keyOff:], key)
	binary.LittleEndian.PutUint32(rec[lenOff:], uint32(len(data)))
	binary.LittleEndian.PutUint32(rec[lenOff+4:], 0)
	sum := sha256.Sum256(data)
	copy(rec[sumOff:], sum[:])
	copy(rec[headerLen:], data)

	l.head += need
	return hashtable.Pointer(off), nil
}

// Read decodes the record at ptr and verifies its checksum. The returned
// payload aliases the arena and stays valid until Close.
func (l *Log) Read(ptr hashtable.Pointer) (key uint64, data []byte, err error) {
	rec, err := l.record(ptr)
	if err != nil {
		return 0, nil, err
	}
	key = binary.LittleEndian.Uint64(rec[keyOff:])
	n := binary.LittleEndian.Uint32(rec[lenOff:])
	if uint64(ptr)+headerLen+uint64(n) > l.head {
		return 0, nil, ErrInvalidHandle
	}
	data = rec[headerLen : headerLen+n]

	sum := sha256.Sum256(data)
	if string(sum[:]) != string(rec[sumOff:sumOff+32]) {
		return 0, nil, errors.WithMessagef(ErrCorruptRecord, "handle %#x", uint64(ptr))
	}
	return key, data, nil
}

// Key returns the key stored in the record at ptr without touching the
// payload. This is the cheap authoritative check a caller runs on every
// lookup candidate.
func (l *Log) Key(ptr hashtable.Pointer) (uint64, error) {
	rec, err := l.record(ptr)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(rec[keyOff:]), nil
}

func (l *Log) record(ptr hashtable.Pointer) ([]byte, error) {
	off := uint64(ptr)
	if off < 8 || off%8 != 0 || off+headerLen > l.head {
		return nil, ErrInvalidHandle
	}
	return l.buf[off:], nil
}

// Size returns the number of arena bytes written so far.
func (l *Log) Size() uint64 {
	return l.head
}

// Capacity returns the arena size in bytes.
func (l *Log) Capacity() uint64 {
	return uint64(len(l.buf))
}
