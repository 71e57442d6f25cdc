package core

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// workerPool is one generation of worker threads. A scheduler owns at most
// one pool at a time; Shutdown joins it and the next EnqueueTasks builds a
// fresh one with a fresh semaphore.
type workerPool struct {
	size  int
	wake  *wakeSemaphore
	group errgroup.Group
}

// startWorkerPool spawns size workers and waits until each has either
// entered its idle state or failed to start. On any failure the workers
// that did start are woken and joined before the error is returned.
//
// prepare runs on the worker's locked OS thread. It returns a release func
// (never nil, even alongside an error) that undoes whatever it changed on
// the thread; it runs when the worker leaves.
func startWorkerPool(size int, prepare func(workerID int) (release func() error, err error), loop func(p *workerPool, workerID int)) (*workerPool, error) {
	p := &workerPool{
		size: size,
		wake: newWakeSemaphore(),
	}

	started := make(chan error, size)
	for i := 0; i < size; i++ {
		id := i
		p.group.Go(func() error {
			runtime.LockOSThread()

			release, err := prepare(id)
			if err != nil {
				err = fmt.Errorf("worker %d: %w", id, err)
				started <- err
			} else {
				started <- nil
				loop(p, id)
			}

			// A thread whose state could not be put back stays locked, so
			// the runtime retires it instead of handing it to other
			// goroutines.
			if release() == nil {
				runtime.UnlockOSThread()
			}
			return err
		})
	}

	var startErr error
	for i := 0; i < size; i++ {
		if err := <-started; err != nil && startErr == nil {
			startErr = err
		}
	}
	if startErr != nil {
		p.stop()
		return nil, startErr
	}
	return p, nil
}

// stop posts one wake-up per worker and joins them all. Callers guarantee
// the shared queue is empty, so every woken worker takes the exit path.
func (p *workerPool) stop() {
	p.wake.post(p.size)
	_ = p.group.Wait()
}

// awaitWake blocks the calling worker until a task (or shutdown) wakes it.
func (p *workerPool) awaitWake() bool {
	return p.wake.wait(context.Background()) == nil
}
