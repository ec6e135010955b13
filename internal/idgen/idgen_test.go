package idgen

import (
	"sync"
	"testing"
)

func TestNextIsMonotonic(t *testing.T) {
	a := New()
	var prev uint64
	for i := 0; i < 10000; i++ {
		id := a.Next()
		if id <= prev {
			t.Fatalf("id %d did not increase past previous %d", id, prev)
		}
		prev = id
	}
}

func TestNextMonotonicUnderConcurrency(t *testing.T) {
	a := New()
	const workers = 32
	const perWorker = 500

	ids := make([][]uint64, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		ids[w] = make([]uint64, perWorker)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ids[w][i] = a.Next()
			}
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool, workers*perWorker)
	for _, batch := range ids {
		for _, id := range batch {
			if seen[id] {
				t.Fatalf("duplicate id %d", id)
			}
			seen[id] = true
		}
	}
}

func TestCounterExhaustionBorrowsNextMillisecond(t *testing.T) {
	a := New()
	millis := int64(1000)
	a.nowMillis = func() int64 { return millis }

	// Fill the entire counter space for this millisecond.
	var last uint64
	for i := 0; i <= int(counterMask); i++ {
		last = a.Next()
	}
	if gotMillis, gotCounter := unpack(last); gotMillis != millis || gotCounter != counterMask {
		t.Fatalf("expected last id at millis=%d counter=%d, got millis=%d counter=%d", millis, counterMask, gotMillis, gotCounter)
	}

	// The clock hasn't advanced, but the counter space is exhausted: the
	// allocator must borrow from the next millisecond instead of
	// wrapping around to a smaller value.
	next := a.Next()
	if next <= last {
		t.Fatalf("expected id to increase past exhaustion, got %d after %d", next, last)
	}
	gotMillis, gotCounter := unpack(next)
	if gotMillis != millis+1 || gotCounter != 0 {
		t.Fatalf("expected borrowed millis=%d counter=0, got millis=%d counter=%d", millis+1, gotMillis, gotCounter)
	}
}

func TestClockRegressionNeverGoesBackwards(t *testing.T) {
	a := New()
	millis := int64(5000)
	a.nowMillis = func() int64 { return millis }

	first := a.Next()

	// Wall clock jumps backwards.
	millis = 100
	second := a.Next()
	if second <= first {
		t.Fatalf("id decreased after clock regression: %d then %d", first, second)
	}
}

func TestTimestampRecoversCoarseMillis(t *testing.T) {
	a := New()
	millis := int64(123456789)
	a.nowMillis = func() int64 { return millis }

	id := a.Next()
	if got := Timestamp(id); got != millis {
		t.Fatalf("Timestamp(id) = %d, want %d", got, millis)
	}
}
