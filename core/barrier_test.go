package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionBarrier_WaitReturnsImmediatelyWhenIdle(t *testing.T) {
	b := newCompletionBarrier()

	done := make(chan struct{})
	go func() {
		b.wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait() blocked with nothing outstanding")
	}
}

func TestCompletionBarrier_BroadcastsAtZero(t *testing.T) {
	b := newCompletionBarrier()
	b.add(3)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.wait()
		}()
	}

	b.done(2)
	assert.Equal(t, 1, b.count())
	b.done(1)

	waited := make(chan struct{})
	go func() {
		wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("waiters were not released when the count reached zero")
	}
}

func TestCompletionBarrier_UnderflowPanics(t *testing.T) {
	b := newCompletionBarrier()
	b.add(1)

	assert.Panics(t, func() { b.done(2) })
}

func TestCompletionBarrier_WaitContext(t *testing.T) {
	b := newCompletionBarrier()
	b.add(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.waitContext(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, b.count(), "a timed out wait must not touch the count")

	b.done(1)
	require.NoError(t, b.waitContext(context.Background()))
}

func TestWakeSemaphore_PostThenWait(t *testing.T) {
	s := newWakeSemaphore()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, s.wait(ctx), "fresh semaphore must start at zero")

	s.post(2)
	require.NoError(t, s.wait(context.Background()))
	require.NoError(t, s.wait(context.Background()))

	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	assert.Error(t, s.wait(ctx2), "only two wake-ups were posted")
}

func TestWakeSemaphore_WakesBlockedWaiter(t *testing.T) {
	s := newWakeSemaphore()

	woke := make(chan struct{})
	go func() {
		_ = s.wait(context.Background())
		close(woke)
	}()

	time.Sleep(10 * time.Millisecond)
	s.post(1)

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("post did not wake the blocked waiter")
	}
}
