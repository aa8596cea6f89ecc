//go:build !linux

package memory

import (
	"unsafe"

	log "github.com/sirupsen/logrus"
)

// cacheLineSize is the alignment of regions returned by Alloc.
const cacheLineSize = 64

// Alloc returns a zeroed region of size bytes. Without mmap support the
// region comes from the Go heap, over-allocated so that it starts on a
// cache line boundary; large pages are not available.
func Alloc(size int, largePages bool) (*Region, error) {
	if largePages {
		log.Warn("large pages are not supported on this platform")
	}
	buf := make([]byte, size+cacheLineSize)
	off := int(-uintptr(unsafe.Pointer(&buf[0])) & (cacheLineSize - 1))
	return &Region{buf: buf[off : off+size], size: size}, nil
}
