// Command bmbench stress-tests and benchmarks the rw spin lock against the
// stdlib primitives, using the bitmap allocator as a shared payload.
//
// Workers run randomized allocate-then-release batches against a bitmap
// guarded by the selected synchronization strategy. On completion the tool
// prints aggregate throughput and, for the spin-based strategies, a
// histogram of contention-round counts.
//
// Usage:
//
//	bmbench -algorithm spinlock -workers 8 -duration 5s
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/bits"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/llxisdsh/pb"
	"github.com/peterbourgon/ff/v3"
	"golang.org/x/sync/errgroup"

	"github.com/tringi/rwspinlock"
	"github.com/tringi/rwspinlock/bmalloc"
)

type config struct {
	algorithm string
	workers   int
	duration  time.Duration
	bitsN     int
	check     bool
}

// histogram of contention-round counts in power-of-two buckets:
// bucket 0 is "no contention", bucket k covers rounds [2^(k-1), 2^k).
type histogram [33]atomic.Uint64

func (h *histogram) record(rounds uint32) {
	h[bits.Len32(rounds)].Add(1)
}

func (h *histogram) print(w *tabwriter.Writer) {
	fmt.Fprintln(w, "rounds\tacquisitions")
	for i := range h {
		n := h[i].Load()
		if n == 0 {
			continue
		}
		switch i {
		case 0:
			fmt.Fprintf(w, "0\t%d\n", n)
		case 1:
			fmt.Fprintf(w, "1\t%d\n", n)
		default:
			fmt.Fprintf(w, "%d-%d\t%d\n", 1<<(i-1), 1<<i-1, n)
		}
	}
}

func main() {
	fs := flag.NewFlagSet("bmbench", flag.ExitOnError)
	cfg := config{}
	fs.StringVar(&cfg.algorithm, "algorithm", "spinlock", "strategy under test: spinlock, sharded, mutex, rwmutex")
	fs.IntVar(&cfg.workers, "workers", 8, "number of worker goroutines")
	fs.DurationVar(&cfg.duration, "duration", 5*time.Second, "how long to run")
	fs.IntVar(&cfg.bitsN, "bits", 2048, "bitmap capacity in bits")
	fs.BoolVar(&cfg.check, "check", false, "verify that no index is ever handed out twice")
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("BMBENCH")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config) error {
	if cfg.workers < 1 || cfg.bitsN < cfg.workers {
		return errors.New("bmbench: need at least one worker and one bit per worker")
	}

	bench, err := newBench(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.duration)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.workers; w++ {
		g.Go(func() error {
			return bench.worker(ctx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	total := bench.total.Load()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "algorithm\t%s\n", cfg.algorithm)
	fmt.Fprintf(w, "workers\t%d\n", cfg.workers)
	fmt.Fprintf(w, "allocations\t%d\n", total)
	fmt.Fprintf(w, "throughput\t%.0f/s\n", float64(total)/elapsed.Seconds())
	if n := bench.anomalies.Load(); n != 0 {
		fmt.Fprintf(w, "ANOMALIES\t%d\n", n)
	}
	if bench.hist != nil {
		fmt.Fprintln(w)
		bench.hist.print(w)
	}
	return w.Flush()
}

// bench holds the shared state of one run. The bitmap is deliberately
// unsynchronized; every access goes through the selected strategy.
type bench struct {
	cfg      config
	maxBatch int

	// exactly one of these is active, per cfg.algorithm
	spin    *rwspinlock.RwSpinLock
	sharded *rwspinlock.Sharded
	locker  sync.Locker

	bitmap *bmalloc.Bitmap   // single-lock strategies
	shards []*bmalloc.Bitmap // sharded strategy, one per stripe

	hist        *histogram
	outstanding *pb.MapOf[int, int] // index -> worker, when -check
	total       atomic.Uint64
	anomalies   atomic.Uint64
}

func newBench(cfg config) (*bench, error) {
	b := &bench{
		cfg:      cfg,
		maxBatch: cfg.bitsN / cfg.workers,
	}
	if cfg.check {
		b.outstanding = &pb.MapOf[int, int]{}
	}

	switch cfg.algorithm {
	case "spinlock":
		b.spin = &rwspinlock.RwSpinLock{}
		b.hist = &histogram{}
		b.bitmap = bmalloc.New(make([]uintptr, bmalloc.Requirement(cfg.bitsN)), cfg.bitsN)
	case "sharded":
		b.sharded = rwspinlock.NewSharded(cfg.workers)
		b.hist = &histogram{}
		perShard := cfg.bitsN / b.sharded.Len()
		if perShard < 1 {
			return nil, errors.New("bmbench: not enough bits for the shard count")
		}
		for i := 0; i < b.sharded.Len(); i++ {
			b.shards = append(b.shards,
				bmalloc.New(make([]uintptr, bmalloc.Requirement(perShard)), perShard))
		}
	case "mutex":
		b.locker = &sync.Mutex{}
		b.bitmap = bmalloc.New(make([]uintptr, bmalloc.Requirement(cfg.bitsN)), cfg.bitsN)
	case "rwmutex":
		b.locker = &sync.RWMutex{}
		b.bitmap = bmalloc.New(make([]uintptr, bmalloc.Requirement(cfg.bitsN)), cfg.bitsN)
	default:
		return nil, fmt.Errorf("bmbench: unknown algorithm %q", cfg.algorithm)
	}
	return b, nil
}

func (b *bench) worker(ctx context.Context) error {
	indices := make([]int, 0, b.maxBatch)
	shard := -1
	for ctx.Err() == nil {
		indices = indices[:0]

		if b.shards != nil {
			shard = rand.IntN(len(b.shards))
		}

		// random number of allocations each loop, then release them all
		n := 1 + rand.IntN(b.maxBatch)
		for i := 0; i < n; i++ {
			idx, ok := b.allocate(shard)
			if !ok {
				if b.shards != nil {
					// several workers can land on one stripe and fill it;
					// just cut the batch short
					break
				}
				// unreachable while every worker stays under its share of
				// the capacity; report and carry on
				b.anomalies.Add(1)
				continue
			}
			b.verifyAcquired(shard, idx)
			indices = append(indices, idx)
			b.total.Add(1)
		}

		for _, idx := range indices {
			b.verifyReleased(shard, idx)
			if !b.release(shard, idx) {
				b.anomalies.Add(1)
			}
		}
	}
	return nil
}

func (b *bench) allocate(shard int) (int, bool) {
	switch {
	case b.spin != nil:
		rounds := b.spin.Lock()
		idx, ok := b.bitmap.Acquire()
		b.spin.Unlock()
		b.hist.record(rounds)
		return idx, ok
	case b.sharded != nil:
		mu := b.sharded.At(uint64(shard))
		rounds := mu.Lock()
		idx, ok := b.shards[shard].Acquire()
		mu.Unlock()
		b.hist.record(rounds)
		return idx, ok
	default:
		b.locker.Lock()
		defer b.locker.Unlock()
		return b.bitmap.Acquire()
	}
}

func (b *bench) release(shard int, idx int) bool {
	switch {
	case b.spin != nil:
		rounds := b.spin.Lock()
		prior := b.bitmap.Release(idx)
		b.spin.Unlock()
		b.hist.record(rounds)
		return prior
	case b.sharded != nil:
		mu := b.sharded.At(uint64(shard))
		rounds := mu.Lock()
		prior := b.shards[shard].Release(idx)
		mu.Unlock()
		b.hist.record(rounds)
		return prior
	default:
		b.locker.Lock()
		defer b.locker.Unlock()
		return b.bitmap.Release(idx)
	}
}

// verifyAcquired records idx as outstanding, counting an anomaly if some
// other batch already holds it. Indices are only unique per shard, so the
// key is offset by the shard number.
func (b *bench) verifyAcquired(shard, idx int) {
	if b.outstanding == nil {
		return
	}
	key := b.checkKey(shard, idx)
	b.outstanding.ProcessEntry(key,
		func(l *pb.EntryOf[int, int]) (*pb.EntryOf[int, int], int, bool) {
			if l != nil {
				b.anomalies.Add(1)
				return l, 0, false
			}
			return &pb.EntryOf[int, int]{Value: shard}, 0, true
		})
}

func (b *bench) verifyReleased(shard, idx int) {
	if b.outstanding == nil {
		return
	}
	b.outstanding.Delete(b.checkKey(shard, idx))
}

func (b *bench) checkKey(shard, idx int) int {
	if shard < 0 {
		return idx
	}
	return shard*b.cfg.bitsN + idx
}
