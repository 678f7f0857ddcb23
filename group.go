package rwspinlock

import (
	"sync/atomic"

	"github.com/llxisdsh/pb"
)

// Group provides reader/writer spin locking on arbitrary keys (string,
// int, struct, etc.) without pre-allocating locks.
//
// Features:
//   - RLock/RUnlock for shared access, Lock/Unlock for exclusive access.
//   - Infinite keys; per-key locks are created on demand.
//   - Auto-cleanup: a key's lock is removed once unlocked with no one
//     else holding or waiting.
//
// Usage:
//
//	var group Group[string]
//
//	group.RLock("config")
//	read(config)
//	group.RUnlock("config")
//
//	group.Lock("config")
//	write(config)
//	group.Unlock("config")
//
// Entries are reference counted so deletion cannot race a late waiter.
type Group[K comparable] struct {
	_ noCopy
	m pb.MapOf[K, *groupEntry]
}

type groupEntry struct {
	mu  RwSpinLock
	ref int32
}

func (g *Group[K]) enter(k K) *groupEntry {
	v, _ := g.m.ProcessEntry(k,
		func(l *pb.EntryOf[K, *groupEntry]) (*pb.EntryOf[K, *groupEntry], *groupEntry, bool) {
			if l != nil {
				atomic.AddInt32(&l.Value.ref, 1)
				return l, l.Value, true
			}
			e := &groupEntry{ref: 1}
			return &pb.EntryOf[K, *groupEntry]{Value: e}, e, false
		})
	return v
}

func (g *Group[K]) leave(k K, e *groupEntry) {
	g.m.ProcessEntry(k,
		func(l *pb.EntryOf[K, *groupEntry]) (*pb.EntryOf[K, *groupEntry], *groupEntry, bool) {
			if l != nil && l.Value == e && atomic.AddInt32(&e.ref, -1) <= 0 {
				return nil, nil, true
			}
			return l, nil, false
		})
}

// Lock acquires the key's lock exclusively.
func (g *Group[K]) Lock(k K) {
	g.enter(k).mu.Lock()
}

// Unlock releases the key's exclusive lock.
func (g *Group[K]) Unlock(k K) {
	v, ok := g.m.Load(k)
	if !ok {
		return
	}
	v.mu.Unlock()
	g.leave(k, v)
}

// RLock acquires one shared slot on the key's lock.
func (g *Group[K]) RLock(k K) {
	g.enter(k).mu.RLock()
}

// RUnlock releases one shared slot on the key's lock.
func (g *Group[K]) RUnlock(k K) {
	v, ok := g.m.Load(k)
	if !ok {
		return
	}
	v.mu.RUnlock()
	g.leave(k, v)
}
