// Package rwspinlock provides a slim reader/writer spin lock designed for
// very short critical sections and for state shared between processes.
//
// The entire lock is a single integer word manipulated only through atomic
// compare-and-swap, exchange and decrement, so it can be embedded in a
// memory-mapped region and used by every process mapping it; there is no
// kernel wait object and no per-holder bookkeeping. Writers have no
// priority over readers (and vice versa); a continuous stream of one class
// can starve the other indefinitely. That unfairness is the price of the
// footprint and the latency.
package rwspinlock

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// RwSpinLock is the default, 32-bit instantiation of the lock.
//
// State word values:
//   - 0: unowned
//   - -1: owned exclusively (write access)
//   - N >= 1: number of concurrent shared readers
//
// The zero value is an unlocked lock. A lock must not be copied after first
// use. Re-acquiring exclusive access while already holding any access on
// the same lock is forbidden and hangs forever; ForceUnlock is the only
// recovery. Nesting shared locks is fine as long as acquire and release
// calls pair up.
//
// Size: 4 bytes.
type RwSpinLock struct {
	_     noCopy
	state atomic.Int32
}

const exclusivelyOwned = -1

// TryLock attempts to acquire the lock exclusively. It never spins; it
// succeeds only when the lock is observed unowned and the CAS wins.
//
//go:nosplit
func (l *RwSpinLock) TryLock() bool {
	return l.state.Load() == 0 && l.state.CompareAndSwap(0, exclusivelyOwned)
}

// TryRLock attempts to acquire one shared slot. The CAS swaps from the
// just-observed value, so it races against every other reader's arithmetic
// and can fail spuriously while the lock is logically available. Callers
// that need certainty retry, which is exactly what RLock does. A
// fetch-and-add would avoid the spurious failure, but it would have to be
// reverted whenever the word holds the exclusive sentinel, briefly
// publishing a bogus reader count to every other CASer; the observe-then-CAS
// form keeps illegal values out of the word entirely.
//
//go:nosplit
func (l *RwSpinLock) TryRLock() bool {
	s := l.state.Load()
	return s != exclusivelyOwned && l.state.CompareAndSwap(s, s+1)
}

// Lock acquires the lock exclusively, spinning with exclusive-class backoff
// until it succeeds. It reports the number of contended rounds for
// instrumentation; callers that don't care discard it.
func (l *RwSpinLock) Lock() (rounds uint32) {
	for !l.TryLock() {
		rounds++
		ExclusiveBackoff.wait(rounds)
	}
	return rounds
}

// LockTimeout is Lock bounded by a deadline. The deadline is computed at
// the first contended round; on success ok is true, on deadline passage the
// state is left untouched and ok is false.
func (l *RwSpinLock) LockTimeout(timeout time.Duration) (rounds uint32, ok bool) {
	if l.TryLock() {
		return 0, true
	}
	deadline := time.Now().Add(timeout)
	runtime.Gosched()
	for {
		if l.TryLock() {
			return rounds, true
		}
		if !time.Now().Before(deadline) {
			return rounds, false
		}
		rounds++
		ExclusiveBackoff.wait(rounds)
	}
}

// RLock acquires one shared slot, spinning with shared-class backoff until
// it succeeds. Reports contended rounds.
func (l *RwSpinLock) RLock() (rounds uint32) {
	for !l.TryRLock() {
		rounds++
		SharedBackoff.wait(rounds)
	}
	return rounds
}

// RLockTimeout is RLock bounded by a deadline.
func (l *RwSpinLock) RLockTimeout(timeout time.Duration) (rounds uint32, ok bool) {
	if l.TryRLock() {
		return 0, true
	}
	deadline := time.Now().Add(timeout)
	runtime.Gosched()
	for {
		if l.TryRLock() {
			return rounds, true
		}
		if !time.Now().Before(deadline) {
			return rounds, false
		}
		rounds++
		SharedBackoff.wait(rounds)
	}
}

// Unlock releases exclusive ownership by unconditionally exchanging the
// state to unowned. There is no owner identity recorded; calling Unlock
// without holding the lock exclusively corrupts the state.
//
//go:nosplit
func (l *RwSpinLock) Unlock() {
	l.state.Store(0)
}

// RUnlock releases one shared slot.
//
//go:nosplit
func (l *RwSpinLock) RUnlock() {
	l.state.Add(-1)
}

// TryUpgrade attempts to convert a held shared slot into exclusive
// ownership. It succeeds only when the caller is provably the sole reader
// (state is exactly 1). With other readers present it fails instead of
// blocking: two readers each waiting for the other to drop is a deadlock,
// which is why no unconditional blocking upgrade exists.
//
//go:nosplit
func (l *RwSpinLock) TryUpgrade() bool {
	return l.state.Load() == 1 && l.state.CompareAndSwap(1, exclusivelyOwned)
}

// Upgrade retries TryUpgrade with upgrade-class backoff until it succeeds
// or the deadline passes. Call only while holding a single shared slot.
// There is deliberately no variant without a timeout; see TryUpgrade.
func (l *RwSpinLock) Upgrade(timeout time.Duration) (rounds uint32, ok bool) {
	if l.TryUpgrade() {
		return 0, true
	}
	deadline := time.Now().Add(timeout)
	runtime.Gosched()
	for {
		if l.TryUpgrade() {
			return rounds, true
		}
		if !time.Now().Before(deadline) {
			return rounds, false
		}
		rounds++
		UpgradeBackoff.wait(rounds)
	}
}

// Downgrade converts exclusive ownership into a single shared slot,
// allowing other readers in while the caller continues reading. Call only
// while holding the lock exclusively; release the slot with RUnlock.
//
//go:nosplit
func (l *RwSpinLock) Downgrade() {
	l.state.Store(1)
}

// ForceUnlock unconditionally resets the lock to unowned. It is a recovery
// operation for when the exclusive holder terminated abnormally and
// external coordination proves no reader remains. Never call it
// speculatively.
//
//go:nosplit
func (l *RwSpinLock) ForceUnlock() {
	l.state.Store(0)
}

// IsLocked reports whether the lock is owned in any mode. The answer is a
// snapshot and may be stale by the time the caller looks at it.
//
//go:nosplit
func (l *RwSpinLock) IsLocked() bool {
	return l.state.Load() != 0
}

// IsLockedExclusively reports whether the lock is owned exclusively.
// Snapshot semantics, same as IsLocked.
//
//go:nosplit
func (l *RwSpinLock) IsLockedExclusively() bool {
	return l.state.Load() == exclusivelyOwned
}

// Locker returns a sync.Locker view of the exclusive side, for code that
// expects the stdlib interface.
func (l *RwSpinLock) Locker() sync.Locker {
	return exclusiveLocker{l}
}

// RLocker returns a sync.Locker view of the shared side.
func (l *RwSpinLock) RLocker() sync.Locker {
	return sharedLocker{l}
}

type exclusiveLocker struct{ l *RwSpinLock }

func (a exclusiveLocker) Lock()   { a.l.Lock() }
func (a exclusiveLocker) Unlock() { a.l.Unlock() }

type sharedLocker struct{ l *RwSpinLock }

func (a sharedLocker) Lock()   { a.l.RLock() }
func (a sharedLocker) Unlock() { a.l.RUnlock() }
