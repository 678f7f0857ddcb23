package rwspinlock

import (
	"testing"
	"time"
)

func TestExclusiveGuard_ReleaseIdempotent(t *testing.T) {
	var l RwSpinLock

	g := l.Exclusive()
	if !g.Held() {
		t.Fatal("fresh guard not held")
	}
	g.Release()
	if g.Held() {
		t.Fatal("guard held after Release")
	}
	if got := l.state.Load(); got != 0 {
		t.Fatalf("state after Release = %d, want 0", got)
	}

	// a second release (e.g. explicit call followed by a deferred one)
	// must not touch the lock again
	if !l.TryRLock() {
		t.Fatal("TryRLock failed after guard release")
	}
	g.Release()
	if got := l.state.Load(); got != 1 {
		t.Fatalf("double release disturbed the state: %d, want 1", got)
	}
	l.RUnlock()
}

func TestGuard_TimeoutReturnsNil(t *testing.T) {
	var l RwSpinLock
	l.Lock()

	if g := l.ExclusiveTimeout(20 * time.Millisecond); g != nil {
		t.Fatal("ExclusiveTimeout returned a guard against a held lock")
	}
	if g := l.SharedTimeout(20 * time.Millisecond); g != nil {
		t.Fatal("SharedTimeout returned a guard against an exclusive holder")
	}

	// a nil guard is inert
	var g *ExclusiveGuard
	if g.Held() {
		t.Fatal("nil guard reports held")
	}
	g.Release()

	var s *SharedGuard
	if s.Held() {
		t.Fatal("nil shared guard reports held")
	}
	s.Release()

	if got := l.state.Load(); got != exclusivelyOwned {
		t.Fatalf("state disturbed: %d", got)
	}
	l.Unlock()
}

func TestSharedGuard_Clone(t *testing.T) {
	var l RwSpinLock

	g := l.Shared()
	c := g.Clone()
	if got := l.state.Load(); got != 2 {
		t.Fatalf("state after Clone = %d, want 2", got)
	}

	c.Release()
	if got := l.state.Load(); got != 1 {
		t.Fatalf("state after clone release = %d, want 1", got)
	}
	c.Release() // idempotent
	g.Release()
	if got := l.state.Load(); got != 0 {
		t.Fatalf("state after both released = %d, want 0", got)
	}
}

func TestExclusiveGuard_Downgrade(t *testing.T) {
	var l RwSpinLock

	g := l.Exclusive()
	s := g.Downgrade()
	if g.Held() {
		t.Fatal("exclusive guard still held after Downgrade")
	}
	if !s.Held() {
		t.Fatal("shared guard not held after Downgrade")
	}
	if got := l.state.Load(); got != 1 {
		t.Fatalf("state after Downgrade = %d, want 1", got)
	}

	// another reader can now join
	if !l.TryRLock() {
		t.Fatal("TryRLock failed after downgrade")
	}
	l.RUnlock()

	s.Release()
	if got := l.state.Load(); got != 0 {
		t.Fatalf("state after release = %d, want 0", got)
	}
}

func TestSharedGuard_UpgradeFailureNonDestructive(t *testing.T) {
	var l RwSpinLock

	g := l.Shared()
	other := g.Clone()

	if u := g.TryUpgrade(); u != nil {
		t.Fatal("TryUpgrade succeeded with a second reader")
	}
	if u := g.Upgrade(20 * time.Millisecond); u != nil {
		t.Fatal("Upgrade succeeded with a second reader")
	}
	if !g.Held() {
		t.Fatal("failed upgrade consumed the shared guard")
	}
	if got := l.state.Load(); got != 2 {
		t.Fatalf("state after failed upgrades = %d, want 2", got)
	}

	other.Release()

	u := g.Upgrade(time.Second)
	if u == nil {
		t.Fatal("Upgrade failed as sole reader")
	}
	if got := l.state.Load(); got != exclusivelyOwned {
		t.Fatalf("state after upgrade = %d, want %d", got, exclusivelyOwned)
	}

	// releasing the upgraded guard downgrades to the surviving reader
	// slot, it does not fully unlock
	u.Release()
	if u.Held() {
		t.Fatal("upgraded guard held after Release")
	}
	if got := l.state.Load(); got != 1 {
		t.Fatalf("state after upgraded release = %d, want 1", got)
	}
	u.Release() // idempotent
	if got := l.state.Load(); got != 1 {
		t.Fatalf("double release disturbed the state: %d", got)
	}

	g.Release()
	if got := l.state.Load(); got != 0 {
		t.Fatalf("state after final release = %d, want 0", got)
	}
}

func TestExclusiveGuard_TemporarilyUnlockRoundTrip(t *testing.T) {
	var l, other RwSpinLock

	g := l.Exclusive()
	u := g.TemporarilyUnlock()
	if g.Held() {
		t.Fatal("guard held while temporarily unlocked")
	}
	if l.IsLocked() {
		t.Fatal("lock held while temporarily unlocked")
	}

	// unrelated work on a second lock instance while the first is dropped
	s := other.Shared()
	s.Release()

	u.Restore()
	if !g.Held() {
		t.Fatal("guard not re-armed by Restore")
	}
	if got := l.state.Load(); got != exclusivelyOwned {
		t.Fatalf("state after Restore = %d, want %d", got, exclusivelyOwned)
	}

	if rounds := u.Restore(); rounds != 0 {
		t.Fatalf("second Restore reported %d rounds, want 0 no-op", rounds)
	}
	if got := l.state.Load(); got != exclusivelyOwned {
		t.Fatalf("second Restore disturbed the state: %d", got)
	}

	g.Release()
	if got := l.state.Load(); got != 0 {
		t.Fatalf("state after release = %d, want 0", got)
	}
}

func TestSharedGuard_TemporarilyUnlock(t *testing.T) {
	var l RwSpinLock

	g := l.Shared()
	other := g.Clone()

	u := g.TemporarilyUnlock()
	if got := l.state.Load(); got != 1 {
		t.Fatalf("state while temporarily unlocked = %d, want 1", got)
	}

	u.Restore()
	if !g.Held() {
		t.Fatal("guard not re-armed by Restore")
	}
	if got := l.state.Load(); got != 2 {
		t.Fatalf("state after Restore = %d, want 2", got)
	}

	g.Release()
	other.Release()
}

// Restore reports the contention rounds it spent re-acquiring; with a
// contender holding the lock for the first part of the wait the count must
// be non-zero.
func TestUnlockedExclusive_RestoreReportsRounds(t *testing.T) {
	var l RwSpinLock

	g := l.Exclusive()
	u := g.TemporarilyUnlock()

	holding := make(chan struct{})
	go func() {
		l.Lock()
		close(holding)
		time.Sleep(20 * time.Millisecond)
		l.Unlock()
	}()

	<-holding
	rounds := u.Restore()
	if rounds == 0 {
		t.Fatal("Restore against a held lock reported zero rounds")
	}
	if got := l.state.Load(); got != exclusivelyOwned {
		t.Fatalf("state after contended Restore = %d, want %d", got, exclusivelyOwned)
	}
	g.Release()
}
