// Package batchscheduler runs batches of short-lived tasks on a pool of
// worker threads, one per logical CPU, and lets the caller block until
// everything it submitted has finished.
//
// The design is a flat fire-and-forget batch scheduler: there are no
// priorities, dependencies, result values or cancellation of running tasks.
//
// # Quick Start
//
// Use the process-wide scheduler, created lazily on first use:
//
//	defer batchscheduler.Shutdown()
//
//	tasks := batchscheduler.Batch(
//		func() { resizeImage(0) },
//		func() { resizeImage(1) },
//	)
//	if err := batchscheduler.EnqueueTasks(tasks...); err != nil {
//		log.Fatal(err)
//	}
//	batchscheduler.WaitForAllTasks()
//
// Or own an explicit scheduler:
//
//	s := batchscheduler.NewTaskScheduler(0) // 0 = one worker per logical core
//	defer s.Shutdown()
//
// # Key Concepts
//
// Task: anything with a Run() method. The caller owns it; the scheduler
// calls Run exactly once per submission, on one of its worker threads.
//
// Worker pool: created on the first non-empty EnqueueTasks and sized once.
// Each worker is locked to its own OS thread while it runs. Shutdown joins
// the pool, handing the threads back to the Go runtime, and the next
// EnqueueTasks starts a new one.
//
// Barrier: WaitForAllTasks blocks until every task submitted before it has
// returned from Run, across all batches.
//
// # Failures
//
// A panicking task is recovered on its worker, still counts as finished,
// and is reported to the configured PanicHandler and through TakeErrors.
// Pool creation failures surface as ErrPoolCreationFailed and leave the
// scheduler ready for a retry.
//
// # Ordering
//
// Execution order is unspecified. The default queue is FIFO; LIFO can be
// selected with TaskSchedulerConfig.QueueOrder.
package batchscheduler
