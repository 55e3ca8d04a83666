// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSlidingWindowCounterAccumulates(t *testing.T) {
	counter := NewSlidingWindowCounter(time.Minute, 6)

	for i := 0; i < 20; i++ {
		counter.Increment(1)
	}

	if got := counter.Count(); got != 20 {
		t.Errorf("count = %d, want 20", got)
	}
}

func TestSlidingWindowCounterExpires(t *testing.T) {
	counter := NewSlidingWindowCounter(50*time.Millisecond, 5)

	counter.Increment(10)

	if got := counter.Count(); got != 10 {
		t.Fatalf("count = %d, want 10", got)
	}

	time.Sleep(80 * time.Millisecond)

	if got := counter.Count(); got != 0 {
		t.Errorf("count after window = %d, want 0", got)
	}
}

func TestSlidingWindowCounterPartialExpiry(t *testing.T) {
	counter := NewSlidingWindowCounter(100*time.Millisecond, 4)

	counter.Increment(5)
	time.Sleep(60 * time.Millisecond)
	counter.Increment(3)

	// The first bucket is still inside the window here.
	if got := counter.Count(); got != 8 {
		t.Errorf("count = %d, want 8", got)
	}

	time.Sleep(60 * time.Millisecond)

	// Now only the second increment survives.
	if got := counter.Count(); got != 3 {
		t.Errorf("count = %d, want 3", got)
	}
}

func TestSlidingWindowStoreIsolatesKeys(t *testing.T) {
	store := NewSlidingWindowStore(time.Minute, 6, 0)

	for i := 0; i < 5; i++ {
		store.Increment("203.0.113.7")
	}
	store.Increment("198.51.100.2")

	if got := store.Count("203.0.113.7"); got != 5 {
		t.Errorf("count = %d, want 5", got)
	}
	if got := store.Count("198.51.100.2"); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
	if got := store.Count("unknown"); got != 0 {
		t.Errorf("count for unknown key = %d, want 0", got)
	}
}

func TestSlidingWindowStoreMaxKeys(t *testing.T) {
	store := NewSlidingWindowStore(time.Minute, 6, 3)

	for i := 0; i < 10; i++ {
		store.Increment(fmt.Sprintf("ip-%d", i))
	}

	if got := store.Len(); got > 3 {
		t.Errorf("len = %d, want <= 3", got)
	}
}

func TestSlidingWindowStoreCleanupInactive(t *testing.T) {
	store := NewSlidingWindowStore(30*time.Millisecond, 3, 0)

	store.Increment("stale")
	time.Sleep(60 * time.Millisecond)
	store.Increment("fresh")

	removed := store.CleanupInactive()
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if got := store.Len(); got != 1 {
		t.Errorf("len = %d, want 1", got)
	}
	if got := store.Count("fresh"); got != 1 {
		t.Errorf("fresh count = %d, want 1", got)
	}
}

func TestSlidingWindowStoreConcurrent(t *testing.T) {
	store := NewSlidingWindowStore(time.Minute, 6, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.Increment("shared")
				store.Count("shared")
			}
		}()
	}
	wg.Wait()

	if got := store.Count("shared"); got != 800 {
		t.Errorf("count = %d, want 800", got)
	}
}

func TestUniqueValueCounterDeduplicates(t *testing.T) {
	counter := NewUniqueValueCounter(time.Minute, 6)

	counter.Add("10.0.0.1")
	counter.Add("10.0.0.1")
	counter.Add("10.0.0.2")
	counter.Add("10.0.0.3")

	if got := counter.CountUnique(); got != 3 {
		t.Errorf("unique = %d, want 3", got)
	}
}

func TestUniqueValueCounterExpires(t *testing.T) {
	counter := NewUniqueValueCounter(50*time.Millisecond, 5)

	counter.Add("10.0.0.1")
	counter.Add("10.0.0.2")

	time.Sleep(80 * time.Millisecond)

	if got := counter.CountUnique(); got != 0 {
		t.Errorf("unique after window = %d, want 0", got)
	}
}

func TestUniqueValueCounterValues(t *testing.T) {
	counter := NewUniqueValueCounter(time.Minute, 6)

	counter.Add("GET")
	counter.Add("POST")
	counter.Add("GET")

	values := counter.Values()
	if len(values) != 2 {
		t.Fatalf("values = %v, want 2 entries", values)
	}

	seen := make(map[string]bool)
	for _, v := range values {
		seen[v] = true
	}
	if !seen["GET"] || !seen["POST"] {
		t.Errorf("values = %v, want GET and POST", values)
	}
}

func TestUniqueValueStoreIsolatesKeys(t *testing.T) {
	store := NewUniqueValueStore(time.Minute, 6, 0)

	store.Add("actor-1", "10.0.0.1")
	store.Add("actor-1", "10.0.0.2")
	store.Add("actor-1", "10.0.0.2")
	store.Add("actor-2", "10.0.0.9")

	if got := store.CountUnique("actor-1"); got != 2 {
		t.Errorf("actor-1 unique = %d, want 2", got)
	}
	if got := store.CountUnique("actor-2"); got != 1 {
		t.Errorf("actor-2 unique = %d, want 1", got)
	}
	if got := store.CountUnique("unknown"); got != 0 {
		t.Errorf("unknown unique = %d, want 0", got)
	}
	if got := store.Values("unknown"); got != nil {
		t.Errorf("unknown values = %v, want nil", got)
	}
}

func TestUniqueValueStoreMaxKeys(t *testing.T) {
	store := NewUniqueValueStore(time.Minute, 6, 2)

	for i := 0; i < 8; i++ {
		store.Add(fmt.Sprintf("actor-%d", i), "10.0.0.1")
	}

	if got := store.Len(); got > 2 {
		t.Errorf("len = %d, want <= 2", got)
	}
}

func TestUniqueValueStoreCleanupInactive(t *testing.T) {
	store := NewUniqueValueStore(30*time.Millisecond, 3, 0)

	store.Add("stale", "10.0.0.1")
	time.Sleep(60 * time.Millisecond)
	store.Add("fresh", "10.0.0.2")

	removed := store.CleanupInactive()
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if got := store.Len(); got != 1 {
		t.Errorf("len = %d, want 1", got)
	}
	if got := store.CountUnique("fresh"); got != 1 {
		t.Errorf("fresh unique count = %d, want 1", got)
	}
}
