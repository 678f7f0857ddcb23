package rwspinlock

import (
	"runtime"
	"time"
)

// Backoff holds the contention tuning for one class of acquire operation.
//
// For failed round r:
//   - r <= Spin: issue a CPU pause hint and retry immediately; the owner is
//     assumed to release soon.
//   - Spin < r <= Spin+Yield: hand the processor to the scheduler without
//     sleeping, letting ready goroutines run.
//   - r > Spin+Yield: sleep for the shortest practical duration before
//     retrying.
//
// Each step is a full memory barrier, so the CAS loops built on top need no
// additional fencing.
type Backoff struct {
	Spin  uint32 // pure busy-wait rounds
	Yield uint32 // scheduler-yield rounds after Spin is exhausted
}

// Per-class backoff profiles. The defaults were tuned empirically on the
// reference workload and usually need environment-specific calibration;
// adjust them before first use of any lock.
var (
	ExclusiveBackoff = Backoff{Spin: 125, Yield: 2}
	SharedBackoff    = Backoff{Spin: 120, Yield: 7}
	UpgradeBackoff   = Backoff{Spin: 27, Yield: 100}
)

// wait performs one backoff step for the given failed-round count.
func (b Backoff) wait(round uint32) {
	switch {
	case round <= b.Spin:
		runtime_doSpin()
	case round <= b.Spin+b.Yield:
		runtime.Gosched()
	default:
		// time.Sleep with a ~millisecond duration works effectively as
		// backoff under high concurrency, cf. Facebook/folly's Sleeper:
		// https://github.com/facebook/folly/blob/main/folly/synchronization/detail/Sleeper.h
		time.Sleep(time.Millisecond)
	}
}
