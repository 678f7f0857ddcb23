package rwspinlock

import (
	"runtime"
	"sync/atomic"
	"time"
)

// RwSpinLock64 is the 64-bit instantiation of the lock, for embedding in
// shared-memory records with 8-byte slots or alignment requirements. Same
// state encoding and contracts as RwSpinLock. The guard family is provided
// on RwSpinLock only; this width exposes the raw state machine.
//
// Size: 8 bytes.
type RwSpinLock64 struct {
	_     noCopy
	state atomic.Int64
}

// TryLock attempts to acquire the lock exclusively without spinning.
//
//go:nosplit
func (l *RwSpinLock64) TryLock() bool {
	return l.state.Load() == 0 && l.state.CompareAndSwap(0, exclusivelyOwned)
}

// TryRLock attempts to acquire one shared slot. May fail spuriously under
// concurrent modification; RLock retries.
//
//go:nosplit
func (l *RwSpinLock64) TryRLock() bool {
	s := l.state.Load()
	return s != exclusivelyOwned && l.state.CompareAndSwap(s, s+1)
}

// Lock acquires the lock exclusively, reporting contended rounds.
func (l *RwSpinLock64) Lock() (rounds uint32) {
	for !l.TryLock() {
		rounds++
		ExclusiveBackoff.wait(rounds)
	}
	return rounds
}

// LockTimeout is Lock bounded by a deadline.
func (l *RwSpinLock64) LockTimeout(timeout time.Duration) (rounds uint32, ok bool) {
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

// RLock acquires one shared slot, reporting contended rounds.
func (l *RwSpinLock64) RLock() (rounds uint32) {
	for !l.TryRLock() {
		rounds++
		SharedBackoff.wait(rounds)
	}
	return rounds
}

// RLockTimeout is RLock bounded by a deadline.
func (l *RwSpinLock64) RLockTimeout(timeout time.Duration) (rounds uint32, ok bool) {
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

// Unlock releases exclusive ownership.
//
//go:nosplit
func (l *RwSpinLock64) Unlock() {
	l.state.Store(0)
}

// RUnlock releases one shared slot.
//
//go:nosplit
func (l *RwSpinLock64) RUnlock() {
	l.state.Add(-1)
}

// TryUpgrade converts a sole shared slot to exclusive ownership; fails
// deterministically when other readers exist.
//
//go:nosplit
func (l *RwSpinLock64) TryUpgrade() bool {
	return l.state.Load() == 1 && l.state.CompareAndSwap(1, exclusivelyOwned)
}

// Upgrade retries TryUpgrade with upgrade-class backoff until success or
// deadline. Call only while holding a single shared slot.
func (l *RwSpinLock64) Upgrade(timeout time.Duration) (rounds uint32, ok bool) {
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

// Downgrade converts exclusive ownership into a single shared slot.
//
//go:nosplit
func (l *RwSpinLock64) Downgrade() {
	l.state.Store(1)
}

// ForceUnlock unconditionally resets the lock. Recovery only.
//
//go:nosplit
func (l *RwSpinLock64) ForceUnlock() {
	l.state.Store(0)
}

// IsLocked reports whether the lock is owned in any mode (snapshot).
//
//go:nosplit
func (l *RwSpinLock64) IsLocked() bool {
	return l.state.Load() != 0
}

// IsLockedExclusively reports whether the lock is owned exclusively
// (snapshot).
//
//go:nosplit
func (l *RwSpinLock64) IsLockedExclusively() bool {
	return l.state.Load() == exclusivelyOwned
}
