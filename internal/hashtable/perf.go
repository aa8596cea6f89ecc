package hashtable

// Constants for the lookup time histogram.
const (
	// NBins is the number of bins samples are categorized into.
	NBins = 5000
	// BinWidth is the width of each bin in nanoseconds.
	BinWidth = 10
)

// A PerfDistribution tracks a frequency distribution of samples, here the
// per-lookup wall time in nanoseconds.
type PerfDistribution struct {
	// Bins holds the frequencies of samples that fall into each bin. The
	// first bin counts samples in [0, BinWidth), the second
	// [BinWidth, 2*BinWidth), and so on.
	Bins [NBins]uint64

	// BinOverflows counts samples beyond the highest bin.
	BinOverflows uint64

	// Min is the smallest sample stored, or ^uint64(0) if none were.
	Min uint64

	// Max is the largest sample stored, or 0 if none were.
	Max uint64
}

func newPerfDistribution() PerfDistribution {
	return PerfDistribution{Min: ^uint64(0)}
}

func (d *PerfDistribution) storeSample(v uint64) {
	if v/BinWidth < NBins {
		d.Bins[v/BinWidth]++
	} else {
		d.BinOverflows++
	}
	if v < d.Min {
		d.Min = v
	}
	if v > d.Max {
		d.Max = v
	}
}

// TotalSamples returns the number of samples stored across all bins,
// including overflows.
func (d *PerfDistribution) TotalSamples() uint64 {
	n := d.BinOverflows
	for _, b := range d.Bins {
		n += b
	}
	return n
}

// PerfCounters accumulates performance statistics for one table. Updates
// happen on the operation paths without synchronization; under a single
// writer they are monotonically nondecreasing, and concurrent readers get
// best-effort values.
type PerfCounters struct {
	// InsertCycles is the total time spent in Insert, in nanoseconds.
	InsertCycles uint64

	// LookupCycles is the total time spent locating entries, in
	// nanoseconds. Lookup, Delete and Replace all contribute, since they
	// share the entry search.
	LookupCycles uint64

	// InsertChainsFollowed counts chain links followed during Insert.
	InsertChainsFollowed uint64

	// LookupChainsFollowed counts chain links followed while locating
	// entries.
	LookupChainsFollowed uint64

	// LookupHashCollisions counts candidates whose secondary hash matched
	// the query but whose object turned out to hold a different key. Only
	// lookups that verify candidates (LookupAll with a rejecting accept
	// function) can detect these.
	LookupHashCollisions uint64

	// LookupDist is the distribution of per-lookup times.
	LookupDist PerfDistribution
}
