// Package performance tracks the memory held by the pipeline's heavy stages
// and returns it to the runtime between them.
package performance

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/YuminosukeSato/churnrank/pkg/errors"
	"github.com/YuminosukeSato/churnrank/pkg/log"
)

// Budget accounts for large allocations such as frames and training
// matrices. A zero limit only records usage.
type Budget struct {
	maxBytes int64
	used     int64
	peak     int64
	mu       sync.Mutex
}

// NewBudget creates a budget capped at maxBytes. Use 0 for no cap.
func NewBudget(maxBytes int64) *Budget {
	return &Budget{maxBytes: maxBytes}
}

// CanAllocate reports whether bytes fit in the remaining budget.
func (b *Budget) CanAllocate(bytes int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.maxBytes == 0 || b.used+bytes <= b.maxBytes
}

// Allocate records bytes as live. It fails without recording when the cap
// would be exceeded.
func (b *Budget) Allocate(what string, bytes int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxBytes > 0 && b.used+bytes > b.maxBytes {
		return errors.NewValueError("Budget.Allocate", fmt.Sprintf("%s needs %s but only %s of %s remain",
			what, humanize.IBytes(uint64(bytes)), humanize.IBytes(uint64(b.maxBytes-b.used)), humanize.IBytes(uint64(b.maxBytes))))
	}
	b.used += bytes
	if b.used > b.peak {
		b.peak = b.used
	}
	return nil
}

// Free records bytes as released.
func (b *Budget) Free(bytes int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.used -= bytes
	if b.used < 0 {
		b.used = 0
	}
}

// Usage returns the live bytes and the cap.
func (b *Budget) Usage() (used, max int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.used, b.maxBytes
}

// Peak returns the highest live byte count seen.
func (b *Budget) Peak() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.peak
}

// HeapAlloc returns the bytes of allocated heap objects.
func HeapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// Release forces a collection and returns freed pages to the OS. Call it
// after dropping the last reference to a frame or training set.
func Release(logger log.Logger, stage string) {
	before := HeapAlloc()
	runtime.GC()
	debug.FreeOSMemory()
	after := HeapAlloc()

	logger.Debug("Memory released",
		log.StageKey, stage,
		"heap.before", humanize.IBytes(before),
		log.MemoryKey, humanize.IBytes(after),
	)
}
