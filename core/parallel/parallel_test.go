package parallel

import (
	"sync"
	"testing"
)

func TestParallelize(t *testing.T) {
	tests := []struct {
		name    string
		items   int
		workers int
	}{
		{name: "empty", items: 0, workers: 4},
		{name: "fewer items than workers", items: 3, workers: 8},
		{name: "uneven split", items: 103, workers: 4},
		{name: "single worker", items: 50, workers: 1},
		{name: "cpu default", items: 1000, workers: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			visits := make([]int, tt.items)
			var mu sync.Mutex
			calls := 0

			Parallelize(tt.items, tt.workers, func(start, end int) {
				mu.Lock()
				calls++
				mu.Unlock()
				for i := start; i < end; i++ {
					visits[i]++
				}
			})

			for i, v := range visits {
				if v != 1 {
					t.Fatalf("index %d visited %d times", i, v)
				}
			}
			if tt.workers > 0 && calls > tt.workers {
				t.Errorf("got %d ranges, want at most %d", calls, tt.workers)
			}
		})
	}
}

func TestParallelizeWithThreshold(t *testing.T) {
	calls := 0
	ParallelizeWithThreshold(10, 100, 4, func(start, end int) {
		calls++
		if start != 0 || end != 10 {
			t.Errorf("got range [%d,%d), want [0,10)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("below threshold should run once, ran %d times", calls)
	}
}

func TestWorkers(t *testing.T) {
	if Workers(3) != 3 {
		t.Error("explicit worker count should be kept")
	}
	if Workers(0) < 1 {
		t.Error("default worker count should be at least one")
	}
}
