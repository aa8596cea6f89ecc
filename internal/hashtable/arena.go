package hashtable

import (
	"github.com/pkg/errors"

	"github.com/Jingle-Wang/RAMCloud/internal/memory"
)

// linesPerBlock is the number of overflow cache lines allocated at a time.
// One block is a 4 KiB page. Must be a power of two.
const linesPerBlock = 64

// A lineArena owns the overflow cache lines of a table and addresses them
// by dense handles. Handles are never zero, so they can live in the pointer
// field of a chain entry, and they stay valid until the arena is released:
// growing the arena appends a block instead of moving existing lines.
//
// The block list keeps memory growth incremental. Only the small slice of
// block headers is ever reallocated, never the lines themselves.
type lineArena struct {
	size    uint64 // lines handed out so far
	blocks  [][]uint64
	regions []*memory.Region
}

// alloc returns the handle of a fresh zeroed cache line.
func (a *lineArena) alloc() (uint64, error) {
	if a.size == uint64(len(a.blocks))*linesPerBlock {
		r, err := memory.Alloc(linesPerBlock*entriesPerLine*8, false)
		if err != nil {
			return 0, errors.WithMessage(ErrAllocationFailed, err.Error())
		}
		a.blocks = append(a.blocks, r.Words())
		a.regions = append(a.regions, r)
	}
	a.size++
	return a.size, nil
}

// line returns the cache line for a handle previously returned by alloc.
func (a *lineArena) line(handle uint64) []uint64 {
	i := handle - 1
	off := (i % linesPerBlock) * entriesPerLine
	return a.blocks[i/linesPerBlock][off : off+entriesPerLine : off+entriesPerLine]
}

// release frees every overflow line. The arena must not be used afterwards.
func (a *lineArena) release() error {
	var firstErr error
	for _, r := range a.regions {
		if err := r.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.blocks = nil
	a.regions = nil
	a.size = 0
	return firstErr
}
