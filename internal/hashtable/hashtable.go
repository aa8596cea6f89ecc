// Package hashtable implements the in-memory index that maps 64-bit object
// IDs to the location of the latest version of each object in the log.
//
// The table is an array of buckets, indexed by the low bits of the object
// ID. Each bucket is one or more chained cache lines, the first of which
// lives inline in the bucket array. Each cache line holds eight entries
// carrying extra bits of the ID to disambiguate most bucket collisions
// without touching the object, plus the pointer to the object itself. When
// a bucket outgrows its first cache line, additional lines are allocated
// outside the bucket array and the last entry of each non-terminal line
// links to the next one.
//
// The table is not internally synchronized. It is designed for a single
// writer; callers that share an instance provide their own locking or shard
// the key space over several instances.
package hashtable

import (
	"time"

	"github.com/pkg/errors"

	"github.com/Jingle-Wang/RAMCloud/internal/memory"
)

// entriesPerLine is the number of entries in a cache line.
const entriesPerLine = 8

// lineBytes is the size of one cache line in bytes.
const lineBytes = entriesPerLine * 8

// A Pointer is an opaque reference to an object in the log. The table
// stores and returns pointers but never dereferences them. Pointers must be
// non-zero and fit in 47 bits; see MaxPointer.
type Pointer uint64

// Errors returned by table operations. Everything else is reported through
// return values: an absent key is not an error.
var (
	// ErrNullPointer is returned when a caller passes the zero pointer,
	// which the table reserves as the unused-slot marker.
	ErrNullPointer = errors.New("null pointer")

	// ErrPointerOutOfRange is returned when a pointer has bits set above
	// the low 47.
	ErrPointerOutOfRange = errors.New("pointer outside low 47 bits")

	// ErrAllocationFailed is returned when the bucket array or an overflow
	// cache line could not be allocated.
	ErrAllocationFailed = errors.New("allocation failed")
)

func checkPointer(p Pointer) error {
	if p == 0 {
		return ErrNullPointer
	}
	if p > MaxPointer {
		return ErrPointerOutOfRange
	}
	return nil
}

// Options configures a Table.
type Options struct {
	// UseLargePages backs the bucket array with large pages when the host
	// provides them. Allocation falls back to normal pages with a warning
	// otherwise.
	UseLargePages bool
}

// A Table is the index of one logical table. It owns the bucket array and
// every overflow cache line; the objects its pointers refer to belong to
// the caller.
type Table struct {
	words    []uint64 // bucket array, nBuckets cache lines
	buckets  *memory.Region
	nBuckets uint64
	mask     uint64 // nBuckets-1 when nBuckets is a power of two
	pow2     bool

	arena lineArena
	perf  PerfCounters
}

// New constructs an empty table with nBuckets buckets. nBuckets should be a
// power of two so the bucket index is a bitmask of the key; other values
// work but cost a division per operation.
func New(nBuckets uint64, opts Options) (*Table, error) {
	if nBuckets == 0 {
		return nil, errors.New("hashtable: need at least one bucket")
	}

	r, err := memory.Alloc(int(nBuckets)*lineBytes, opts.UseLargePages)
	if err != nil {
		return nil, errors.WithMessage(ErrAllocationFailed, err.Error())
	}

	t := &Table{
		words:    r.Words(),
		buckets:  r,
		nBuckets: nBuckets,
		pow2:     nBuckets&(nBuckets-1) == 0,
	}
	if t.pow2 {
		t.mask = nBuckets - 1
	}
	t.perf.LookupDist = newPerfDistribution()
	return t, nil
}

// Close releases the bucket array and all overflow cache lines. The table
// must not be used afterwards.
func (t *Table) Close() error {
	err := t.arena.release()
	if t.buckets != nil {
		if rerr := t.buckets.Release(); err == nil {
			err = rerr
		}
		t.buckets = nil
		t.words = nil
	}
	return err
}

// bucketIndex selects the bucket for a key. The caller has already hashed
// external identifiers into the key, so the low bits are used as-is.
func (t *Table) bucketIndex(key uint64) uint64 {
	if t.pow2 {
		return key & t.mask
	}
	return key % t.nBuckets
}

func (t *Table) bucketLine(bi uint64) []uint64 {
	off := bi * entriesPerLine
	return t.words[off : off+entriesPerLine : off+entriesPerLine]
}

// forEachMatch calls fn for every occupied entry whose secondary hash
// matches key, in chain-then-slot order, until fn returns true. It reports
// whether fn accepted an entry. Chain follows are charged to the lookup
// counter.
func (t *Table) forEachMatch(key uint64, fn func(line []uint64, slot int) bool) bool {
	sh := key >> hashShift
	line := t.bucketLine(t.bucketIndex(key))
	for {
		var next uint64
		for i, w := range line {
			e := entry(w)
			if e.isChain() {
				next = e.chainHandle()
			} else if e.isOccupied() && e.hash() == sh {
				if fn(line, i) {
					return true
				}
			}
		}
		if next == 0 {
			return false
		}
		t.perf.LookupChainsFollowed++
		line = t.arena.line(next)
	}
}

// findSlot locates the first entry whose secondary hash matches key and
// records lookup timing.
func (t *Table) findSlot(key uint64) (line []uint64, slot int, ok bool) {
	start := time.Now()
	ok = t.forEachMatch(key, func(l []uint64, i int) bool {
		line, slot = l, i
		return true
	})
	d := uint64(time.Since(start))
	t.perf.LookupCycles += d
	t.perf.LookupDist.storeSample(d)
	return line, slot, ok
}

// Lookup returns the pointer of the first entry whose secondary hash
// matches key. The secondary hash is advisory: the caller compares the key
// stored in the referenced object and falls back to LookupAll when it does
// not match.
func (t *Table) Lookup(key uint64) (Pointer, bool) {
	line, slot, ok := t.findSlot(key)
	if !ok {
		return 0, false
	}
	return entry(line[slot]).pointer(), true
}

// LookupAll yields every candidate pointer for key in chain-then-slot
// order. accept is called once per candidate; returning true stops the walk
// and the candidate is returned. A rejected candidate is a hash collision
// and is counted. A nil accept behaves like Lookup.
func (t *Table) LookupAll(key uint64, accept func(Pointer) bool) (Pointer, bool) {
	start := time.Now()
	var found Pointer
	ok := t.forEachMatch(key, func(l []uint64, i int) bool {
		p := entry(l[i]).pointer()
		if accept != nil && !accept(p) {
			t.perf.LookupHashCollisions++
			return false
		}
		found = p
		return true
	})
	d := uint64(time.Since(start))
	t.perf.LookupCycles += d
	t.perf.LookupDist.storeSample(d)
	return found, ok
}

// Insert stores ptr under key. It does not check whether the key is already
// present; callers that want upsert semantics use Replace. The pointer must
// be non-zero and fit in 47 bits.
func (t *Table) Insert(key uint64, ptr Pointer) error {
	if err := checkPointer(ptr); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		t.perf.InsertCycles += uint64(time.Since(start))
	}()

	sh := key >> hashShift
	line := t.bucketLine(t.bucketIndex(key))
	for {
		var next uint64
		for i, w := range line {
			e := entry(w)
			if e.isUnused() {
				line[i] = uint64(pack(sh, false, uint64(ptr)))
				return nil
			}
			if e.isChain() {
				next = e.chainHandle()
			}
		}
		if next != 0 {
			t.perf.InsertChainsFollowed++
			line = t.arena.line(next)
			continue
		}

		// The terminal line is full: grow the chain by one line. The last
		// entry of the full line moves to slot 0 of the new line and its
		// old slot becomes the chain link.
		h, err := t.arena.alloc()
		if err != nil {
			return err
		}
		if h > uint64(MaxPointer) {
			return errors.WithMessage(ErrAllocationFailed, "line handle exceeds 47 bits")
		}
		nl := t.arena.line(h)
		nl[0] = line[entriesPerLine-1]
		nl[1] = uint64(pack(sh, false, uint64(ptr)))
		line[entriesPerLine-1] = uint64(pack(0, true, h))
		return nil
	}
}

// Delete removes the first entry whose secondary hash matches key and
// reports whether one was found. The match is on the hash alone; callers
// that need to remove one specific object use DeleteEntry. Overflow lines
// are not reclaimed until Close.
func (t *Table) Delete(key uint64) bool {
	line, slot, ok := t.findSlot(key)
	if !ok {
		return false
	}
	line[slot] = 0
	return true
}

// DeleteEntry removes the entry for key whose pointer equals ptr and
// reports whether it was present.
func (t *Table) DeleteEntry(key uint64, ptr Pointer) bool {
	start := time.Now()
	ok := t.forEachMatch(key, func(l []uint64, i int) bool {
		if entry(l[i]).pointer() != ptr {
			return false
		}
		l[i] = 0
		return true
	})
	d := uint64(time.Since(start))
	t.perf.LookupCycles += d
	t.perf.LookupDist.storeSample(d)
	return ok
}

// Replace overwrites the pointer of the first entry whose secondary hash
// matches key, preserving the stored hash bits, and returns true. If no
// entry matches, ptr is inserted and Replace returns false.
func (t *Table) Replace(key uint64, ptr Pointer) (bool, error) {
	if err := checkPointer(ptr); err != nil {
		return false, err
	}
	line, slot, ok := t.findSlot(key)
	if ok {
		line[slot] = uint64(pack(entry(line[slot]).hash(), false, uint64(ptr)))
		return true, nil
	}
	if err := t.Insert(key, ptr); err != nil {
		return false, err
	}
	return false, nil
}

// PerfCounters returns a snapshot of the table's performance counters.
func (t *Table) PerfCounters() PerfCounters {
	return t.perf
}

// NumBuckets returns the number of buckets the table was constructed with.
func (t *Table) NumBuckets() uint64 {
	return t.nBuckets
}

// OverflowLines returns the number of overflow cache lines allocated so
// far. Lines are never returned before Close, so this only grows.
func (t *Table) OverflowLines() uint64 {
	return t.arena.size
}
