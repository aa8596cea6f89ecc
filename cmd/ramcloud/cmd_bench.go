package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jingle-Wang/RAMCloud/internal/hashtable"
)

var cmdBench = &cobra.Command{
	Use:   "bench",
	Short: "Exercise the index and print its performance counters",
	Long: `
The "bench" command inserts uniformly random keys into a fresh index, looks
every key up again, and prints the index's performance counters. It touches
no network and no log; the pointers it stores are synthetic.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunBench(benchOptions)
	},
}

// BenchOptions bundles all options for the bench command.
type BenchOptions struct {
	Buckets    uint64
	Count      uint64
	LargePages bool
	Seed       int64
}

var benchOptions BenchOptions

func init() {
	cmdRoot.AddCommand(cmdBench)

	f := cmdBench.Flags()
	f.Uint64Var(&benchOptions.Buckets, "buckets", 1<<17, "number of hash table buckets (use a power of two)")
	f.Uint64Var(&benchOptions.Count, "count", 1_000_000, "number of keys to insert")
	f.BoolVar(&benchOptions.LargePages, "large-pages", false, "back the index with large pages when available")
	f.Int64Var(&benchOptions.Seed, "seed", 0, "random seed (0 picks one from the clock)")
}

func RunBench(opts BenchOptions) error {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	tbl, err := hashtable.New(opts.Buckets, hashtable.Options{UseLargePages: opts.LargePages})
	if err != nil {
		return err
	}
	defer tbl.Close()

	keys := make([]uint64, opts.Count)
	for i := range keys {
		keys[i] = rng.Uint64()
	}

	start := time.Now()
	for i, k := range keys {
		if err := tbl.Insert(k, hashtable.Pointer(i+1)); err != nil {
			return err
		}
	}
	insertWall := time.Since(start)

	start = time.Now()
	missing := 0
	for i, k := range keys {
		want := hashtable.Pointer(i + 1)
		if _, ok := tbl.LookupAll(k, func(p hashtable.Pointer) bool { return p == want }); !ok {
			missing++
		}
	}
	lookupWall := time.Since(start)

	pc := tbl.PerfCounters()
	fmt.Printf("inserted %d keys into %d buckets in %v\n", opts.Count, opts.Buckets, insertWall)
	fmt.Printf("looked up %d keys in %v (%d missing)\n", opts.Count, lookupWall, missing)
	fmt.Printf("overflow lines:         %d\n", tbl.OverflowLines())
	fmt.Printf("insert chain follows:   %d\n", pc.InsertChainsFollowed)
	fmt.Printf("lookup chain follows:   %d\n", pc.LookupChainsFollowed)
	fmt.Printf("lookup hash collisions: %d\n", pc.LookupHashCollisions)

	d := &pc.LookupDist
	fmt.Printf("lookup time: min %dns max %dns, %d samples, %d beyond histogram\n",
		d.Min, d.Max, d.TotalSamples(), d.BinOverflows)
	return nil
}
