package rwspinlock

import (
	"time"
)

// The guard family binds lock state to object lifetime. A guard is active
// while it references its lock and spent once released; releasing is
// idempotent, every other operation on a spent guard is a caller bug. The
// timeout-bounded constructors return nil on contention timeout, so the
// conditional-scope idiom is
//
//	if g := lock.ExclusiveTimeout(d); g != nil {
//		defer g.Release()
//		...
//	}
//
// Guards must never outlive the lock they reference.

// ExclusiveGuard represents held exclusive access. It must not be copied;
// pass the pointer to transfer ownership.
type ExclusiveGuard struct {
	lock *RwSpinLock
}

// Exclusive acquires the lock exclusively and returns an active guard.
// Blocks forever under contention, like Lock.
func (l *RwSpinLock) Exclusive() *ExclusiveGuard {
	l.Lock()
	return &ExclusiveGuard{lock: l}
}

// ExclusiveTimeout acquires the lock exclusively within the deadline, or
// returns nil leaving the state untouched.
func (l *RwSpinLock) ExclusiveTimeout(timeout time.Duration) *ExclusiveGuard {
	if _, ok := l.LockTimeout(timeout); !ok {
		return nil
	}
	return &ExclusiveGuard{lock: l}
}

// Held reports whether the guard still owns the lock.
func (g *ExclusiveGuard) Held() bool {
	return g != nil && g.lock != nil
}

// Release unlocks. Safe to call more than once; only the first call
// touches the lock.
func (g *ExclusiveGuard) Release() {
	if g != nil && g.lock != nil {
		g.lock.Unlock()
		g.lock = nil
	}
}

// Downgrade converts the held exclusive access into shared access,
// consuming this guard and returning an active shared guard. The guard
// must be held.
func (g *ExclusiveGuard) Downgrade() *SharedGuard {
	g.lock.Downgrade()
	s := &SharedGuard{lock: g.lock}
	g.lock = nil
	return s
}

// TemporarilyUnlock fully releases the lock while keeping the caller's
// place in the protocol: Restore on the returned guard re-acquires
// exclusive access and re-arms this guard. Use it to call into code that
// may itself take locks and must not deadlock against this one. This guard
// is inert until restored.
func (g *ExclusiveGuard) TemporarilyUnlock() *UnlockedExclusive {
	g.lock.Unlock()
	u := &UnlockedExclusive{lock: g.lock, guard: g}
	g.lock = nil
	return u
}

// UnlockedExclusive is the ephemeral result of
// ExclusiveGuard.TemporarilyUnlock.
type UnlockedExclusive struct {
	lock  *RwSpinLock
	guard *ExclusiveGuard
}

// Restore re-acquires exclusive access, blocking as long as Lock would,
// and re-arms the originating guard. It reports the contention rounds
// spent re-acquiring; the cost is only known here, never at unlock time.
// Calling Restore again is a no-op.
func (u *UnlockedExclusive) Restore() (rounds uint32) {
	if u.lock == nil {
		return 0
	}
	rounds = u.lock.Lock()
	u.guard.lock = u.lock
	u.lock = nil
	return rounds
}

// SharedGuard represents one held reader slot. Clone acquires further
// slots; passing the pointer transfers the slot without touching the
// state word.
type SharedGuard struct {
	lock *RwSpinLock
}

// Shared acquires one reader slot and returns an active guard. Blocks
// forever under contention, like RLock.
func (l *RwSpinLock) Shared() *SharedGuard {
	l.RLock()
	return &SharedGuard{lock: l}
}

// SharedTimeout acquires one reader slot within the deadline, or returns
// nil leaving the state untouched.
func (l *RwSpinLock) SharedTimeout(timeout time.Duration) *SharedGuard {
	if _, ok := l.RLockTimeout(timeout); !ok {
		return nil
	}
	return &SharedGuard{lock: l}
}

// Held reports whether the guard still owns its slot.
func (g *SharedGuard) Held() bool {
	return g != nil && g.lock != nil
}

// Release gives the slot back. Safe to call more than once.
func (g *SharedGuard) Release() {
	if g != nil && g.lock != nil {
		g.lock.RUnlock()
		g.lock = nil
	}
}

// Clone acquires another reader slot on the same lock and returns it as a
// new active guard. While g holds its slot the state is >= 1 and no writer
// can install the exclusive sentinel, so a bare CAS loop terminates
// without backoff; availability is proven by g itself.
func (g *SharedGuard) Clone() *SharedGuard {
	for {
		s := g.lock.state.Load()
		if g.lock.state.CompareAndSwap(s, s+1) {
			return &SharedGuard{lock: g.lock}
		}
	}
}

// TryUpgrade attempts to convert the held slot into exclusive access in a
// single try. On success the returned guard is active and this guard's
// slot is suspended until the upgraded guard is released; on failure it
// returns nil and this guard is untouched. The shared guard must not be
// released while an upgraded guard from it is active.
func (g *SharedGuard) TryUpgrade() *UpgradedGuard {
	if !g.lock.TryUpgrade() {
		return nil
	}
	return &UpgradedGuard{lock: g.lock}
}

// Upgrade retries the conversion with upgrade-class backoff until success
// or deadline, returning nil on timeout. Failure is not destructive: this
// guard still holds its slot.
func (g *SharedGuard) Upgrade(timeout time.Duration) *UpgradedGuard {
	if _, ok := g.lock.Upgrade(timeout); !ok {
		return nil
	}
	return &UpgradedGuard{lock: g.lock}
}

// TemporarilyUnlock gives the slot back while keeping the caller's place
// in the protocol; Restore on the returned guard re-increments the reader
// count and re-arms this guard.
func (g *SharedGuard) TemporarilyUnlock() *UnlockedShared {
	g.lock.RUnlock()
	u := &UnlockedShared{lock: g.lock, guard: g}
	g.lock = nil
	return u
}

// UnlockedShared is the ephemeral result of SharedGuard.TemporarilyUnlock.
type UnlockedShared struct {
	lock  *RwSpinLock
	guard *SharedGuard
}

// Restore re-acquires one reader slot, blocking as long as RLock would,
// and re-arms the originating guard. Reports contention rounds; calling
// again is a no-op.
func (u *UnlockedShared) Restore() (rounds uint32) {
	if u.lock == nil {
		return 0
	}
	rounds = u.lock.RLock()
	u.guard.lock = u.lock
	u.lock = nil
	return rounds
}

// UpgradedGuard represents exclusive access reached by upgrading a shared
// guard. Releasing it downgrades back to a single reader, never to
// unowned: the upgrade contract is "temporarily write, then resume
// reading", and the surviving slot still belongs to the originating
// SharedGuard.
type UpgradedGuard struct {
	lock *RwSpinLock
}

// Held reports whether the guard still owns the lock exclusively.
func (g *UpgradedGuard) Held() bool {
	return g != nil && g.lock != nil
}

// Release downgrades back to the pre-upgrade single shared holder. Safe to
// call more than once.
func (g *UpgradedGuard) Release() {
	if g != nil && g.lock != nil {
		g.lock.Downgrade()
		g.lock = nil
	}
}
