package core

import (
	"context"
	"math"

	"golang.org/x/sync/semaphore"
)

// wakeSemaphore is a counting semaphore that starts at zero.
//
// semaphore.Weighted counts free capacity rather than posted permits, so the
// whole capacity is taken at construction; post releases one unit back and
// wait acquires one.
type wakeSemaphore struct {
	sem *semaphore.Weighted
}

func newWakeSemaphore() *wakeSemaphore {
	sem := semaphore.NewWeighted(math.MaxInt64)
	if !sem.TryAcquire(math.MaxInt64) {
		panic("wakeSemaphore: fresh semaphore refused full acquire")
	}
	return &wakeSemaphore{sem: sem}
}

// post makes n more wake-ups available.
func (s *wakeSemaphore) post(n int) {
	if n <= 0 {
		return
	}
	s.sem.Release(int64(n))
}

// wait blocks until a wake-up is available or ctx is done.
func (s *wakeSemaphore) wait(ctx context.Context) error {
	return s.sem.Acquire(ctx, 1)
}
