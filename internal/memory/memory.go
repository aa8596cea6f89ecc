// Package memory provides zeroed, cache-line-aligned allocations for the
// hash table and the object log. On Linux allocations are backed by
// anonymous memory maps, optionally from the kernel's large page pool; on
// other platforms they come from the Go heap.
package memory

import (
	"github.com/alecthomas/unsafeslice"
)

// A Region is an owned allocation. All bytes are zero when the region is
// returned from Alloc. Release returns the memory to the system; using the
// region afterwards is invalid.
type Region struct {
	buf     []byte
	size    int
	release func([]byte) error
}

// Bytes returns the usable part of the region.
func (r *Region) Bytes() []byte {
	return r.buf[:r.size]
}

// Words returns the region as 64-bit words.
func (r *Region) Words() []uint64 {
	return unsafeslice.Uint64SliceFromByteSlice(r.buf[:r.size])
}

// Release frees the region. It is safe to call more than once.
func (r *Region) Release() error {
	if r.buf == nil {
		return nil
	}
	buf := r.buf
	r.buf = nil
	if r.release == nil {
		return nil
	}
	return r.release(buf)
}
