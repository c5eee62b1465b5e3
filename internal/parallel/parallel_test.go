package parallel

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestFor(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 16}

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestFor_Sequential(t *testing.T) {
	var counter int64
	For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, Sequential())

	if counter != 100 {
		t.Errorf("Expected 100, got %d", counter)
	}
}

func TestRange_DisjointCover(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 3, MinChunkSize: 10}
	n := 95
	hits := make([]int, n)

	var mu sync.Mutex
	chunks := 0
	Range(n, func(start, end int) {
		mu.Lock()
		chunks++
		mu.Unlock()
		for i := start; i < end; i++ {
			hits[i]++
		}
	}, cfg)

	for i, h := range hits {
		if h != 1 {
			t.Errorf("index %d visited %d times", i, h)
		}
	}
	if chunks != 3 {
		t.Errorf("Expected 3 chunks, got %d", chunks)
	}
}

func TestRange_SmallFallsBackToOneChunk(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 8, MinChunkSize: 64}

	calls := 0
	Range(100, func(start, end int) {
		calls++
		if start != 0 || end != 100 {
			t.Errorf("Expected [0, 100), got [%d, %d)", start, end)
		}
	}, cfg)

	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRange_Empty(t *testing.T) {
	Range(0, func(_, _ int) {
		t.Error("f called for empty range")
	}, DefaultConfig())
}

func TestWithMinChunk(t *testing.T) {
	cfg := DefaultConfig().WithMinChunk(0)
	if cfg.MinChunkSize != 1 {
		t.Errorf("Expected 1, got %d", cfg.MinChunkSize)
	}
}
