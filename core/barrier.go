package core

import (
	"context"
	"sync"
)

// completionBarrier counts submitted-but-unfinished tasks. The count is only
// read or written under mu, and every transition to zero broadcasts cond.
type completionBarrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	unfinished int
}

func newCompletionBarrier() *completionBarrier {
	b := &completionBarrier{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// add registers n tasks. It must run before those tasks are visible to workers.
func (b *completionBarrier) add(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	b.unfinished += n
	b.mu.Unlock()
}

// done retires n tasks and wakes all waiters if the count reaches zero.
func (b *completionBarrier) done(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > b.unfinished {
		panic("completionBarrier: unfinished task count went negative")
	}
	b.unfinished -= n
	if b.unfinished == 0 {
		b.cond.Broadcast()
	}
}

// wait blocks until the unfinished count is zero.
func (b *completionBarrier) wait() {
	b.mu.Lock()
	for b.unfinished > 0 {
		b.cond.Wait()
	}
	b.mu.Unlock()
}

// waitContext is wait with an escape hatch. sync.Cond has no cancellation,
// so the condition wait runs in a helper goroutine that finishes on the
// next drain even if ctx gave up first.
func (b *completionBarrier) waitContext(ctx context.Context) error {
	if b.count() == 0 {
		return nil
	}

	drained := make(chan struct{})
	go func() {
		b.wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *completionBarrier) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unfinished
}
