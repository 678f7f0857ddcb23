package rwspinlock

import (
	"sync"
	"testing"
)

func TestSharded_Sizing(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{8, 8},
		{9, 16},
		{100, 128},
	}
	for _, c := range cases {
		if got := NewSharded(c.n).Len(); got != c.want {
			t.Fatalf("NewSharded(%d).Len() = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestSharded_StripeSelection(t *testing.T) {
	s := NewSharded(8)
	for i := range uint64(64) {
		if s.At(i) != s.At(i+uint64(s.Len())) {
			t.Fatalf("index %d maps to a different stripe than %d", i, i+uint64(s.Len()))
		}
	}
	if s.At(0) == s.At(1) {
		t.Fatal("adjacent indices share a stripe")
	}
}

func TestSharded_Concurrent(t *testing.T) {
	s := NewSharded(4)
	counters := make([]int, s.Len())

	const loops = 1000
	const workers = 8

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := range workers {
		go func(w int) {
			defer wg.Done()
			for i := range loops {
				idx := uint64(w*loops + i)
				mu := s.At(idx)
				mu.Lock()
				counters[idx&uint64(s.Len()-1)]++
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	total := 0
	for _, c := range counters {
		total += c
	}
	if total != workers*loops {
		t.Fatalf("lost updates: total = %d, want %d", total, workers*loops)
	}
	for i := range uint64(s.Len()) {
		if s.At(i).IsLocked() {
			t.Fatalf("stripe %d still locked after quiescence", i)
		}
	}
}
