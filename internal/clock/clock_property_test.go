package clock

import (
	"sync"
	"testing"

	"lwwdict/internal/lww"
)

// TestClock_Property_StrictlyIncreasing tests that sequential calls never repeat or decrease
func TestClock_Property_StrictlyIncreasing(t *testing.T) {
	c := New()
	prev := c.Now()
	for i := 0; i < 10_000; i++ {
		next := c.Now()
		if next <= prev {
			t.Fatalf("Timestamp %d not after %d", next, prev)
		}
		prev = next
	}
}

// TestClock_Property_ConcurrentUnique tests that concurrent callers never receive the same timestamp
func TestClock_Property_ConcurrentUnique(t *testing.T) {
	c := New()

	var (
		mu   sync.Mutex
		seen = make(map[lww.Timestamp]bool)
		wg   sync.WaitGroup
	)

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]lww.Timestamp, 0, 500)
			for i := 0; i < 500; i++ {
				local = append(local, c.Now())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, ts := range local {
				if seen[ts] {
					t.Errorf("Duplicate timestamp %d", ts)
				}
				seen[ts] = true
			}
		}()
	}
	wg.Wait()

	if len(seen) != 8*500 {
		t.Errorf("Expected %d unique timestamps, got %d", 8*500, len(seen))
	}
}

// TestClock_Property_ObserveThenNowIsAfter tests that Now always exceeds any observed timestamp
func TestClock_Property_ObserveThenNowIsAfter(t *testing.T) {
	c := New()
	for _, ts := range []lww.Timestamp{1, 1 << 40, 1 << 50, 42} {
		c.Observe(ts)
		if got := c.Now(); got <= ts {
			t.Errorf("Now() = %d, want > %d", got, ts)
		}
	}
}
