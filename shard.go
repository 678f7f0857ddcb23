package rwspinlock

import (
	"math/bits"
	"unsafe"

	"github.com/tringi/rwspinlock/internal/opt"
)

// paddedLock keeps each stripe on its own cache line so neighbouring
// stripes never false-share.
type paddedLock struct {
	mu RwSpinLock
	_  [(opt.CacheLineSize - unsafe.Sizeof(RwSpinLock{})%opt.CacheLineSize) % opt.CacheLineSize]byte
}

// Sharded spreads contention across a fixed, power-of-two array of
// cache-line padded locks. Callers map an index or hash to its stripe with
// At; everything mapping to the same stripe shares one lock. Useful for
// striped locking over a large resource where a single lock would serialize
// everything.
type Sharded struct {
	_       noCopy
	stripes []paddedLock
	mask    uint64
}

// NewSharded returns a Sharded with at least n stripes, rounded up to the
// next power of two.
func NewSharded(n int) *Sharded {
	if n < 1 {
		n = 1
	}
	size := 1 << bits.Len(uint(n-1))
	return &Sharded{
		stripes: make([]paddedLock, size),
		mask:    uint64(size - 1),
	}
}

// Len reports the number of stripes.
func (s *Sharded) Len() int {
	return len(s.stripes)
}

// At returns the lock guarding the given index or hash.
func (s *Sharded) At(i uint64) *RwSpinLock {
	return &s.stripes[i&s.mask].mu
}
