//go:build linux

package memory

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// hugePageSize is the conventional x86-64 / arm64 large page size. Mappings
// from the large page pool must be a multiple of it.
const hugePageSize = 2 << 20

// Alloc returns a zeroed region of size bytes. Mappings are page aligned,
// which satisfies cache-line alignment. With largePages set, the allocation
// is attempted from the kernel's large page pool first; if the pool is
// exhausted or not configured the allocation falls back to normal pages.
func Alloc(size int, largePages bool) (*Region, error) {
	const prot = unix.PROT_READ | unix.PROT_WRITE

	if largePages {
		mapSize := (size + hugePageSize - 1) &^ (hugePageSize - 1)
		buf, err := unix.Mmap(-1, 0, mapSize, prot,
			unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_HUGETLB)
		if err == nil {
			return &Region{buf: buf, size: size, release: unix.Munmap}, nil
		}
		log.Warnf("large page allocation of %d bytes failed (%v), falling back to normal pages", mapSize, err)
	}

	buf, err := unix.Mmap(-1, 0, size, prot, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap %d bytes", size)
	}
	return &Region{buf: buf, size: size, release: unix.Munmap}, nil
}
