package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// TaskScheduler runs batches of tasks on a lazily created pool of worker
// threads and lets callers block until everything submitted has finished.
//
// The pool is created by the first non-empty EnqueueTasks and torn down by
// Shutdown; a later EnqueueTasks creates it again. Execution order is not
// specified.
type TaskScheduler struct {
	name             string
	requestedWorkers int

	queue   TaskQueue
	barrier *completionBarrier

	// lifecycleMu guards pool and closing. It is held across pool creation
	// and across the add/push/post of a batch, so a shutdown never observes
	// a half-submitted batch.
	lifecycleMu sync.Mutex
	pool        *workerPool
	closing     bool

	// shutdownMu serializes Shutdown/ShutdownGraceful callers.
	shutdownMu sync.Mutex

	metricActive    int32
	metricCompleted int64
	metricPanicked  int64
	metricRejected  int64

	errMu sync.Mutex
	errs  []error

	// Handlers and Metrics
	logger              Logger
	panicHandler        PanicHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler

	pinWorkers  bool
	startHook   func(workerID int) error
	coreCounter func() int
}

// NewTaskScheduler creates a scheduler with default handlers. workers <= 0
// sizes the pool to the logical core count detected at pool creation.
func NewTaskScheduler(workers int) *TaskScheduler {
	return NewTaskSchedulerWithConfig(workers, DefaultTaskSchedulerConfig())
}

func NewTaskSchedulerWithConfig(workers int, config *TaskSchedulerConfig) *TaskScheduler {
	if config == nil {
		config = DefaultTaskSchedulerConfig()
	}

	s := &TaskScheduler{
		name:                config.Name,
		requestedWorkers:    workers,
		queue:               NewTaskQueue(config.QueueOrder),
		barrier:             newCompletionBarrier(),
		logger:              config.Logger,
		panicHandler:        config.PanicHandler,
		metrics:             config.Metrics,
		rejectedTaskHandler: config.RejectedTaskHandler,
		pinWorkers:          config.PinWorkers,
		startHook:           config.WorkerStartHook,
		coreCounter:         config.CoreCounter,
	}

	// Use defaults if not provided
	if s.name == "" {
		s.name = "scheduler-" + uuid.NewString()[:8]
	}
	if s.logger == nil {
		s.logger = NewDefaultLogger()
	}
	if s.panicHandler == nil {
		s.panicHandler = &DefaultPanicHandler{}
	}
	if s.metrics == nil {
		s.metrics = &NilMetrics{}
	}
	if s.rejectedTaskHandler == nil {
		s.rejectedTaskHandler = &DefaultRejectedTaskHandler{}
	}
	if s.coreCounter == nil {
		s.coreCounter = LogicalCores
	}

	return s
}

// EnqueueTasks submits a batch. An empty batch is a no-op and does not
// create the pool. Nil entries are skipped and reported as rejected.
//
// On a nil return every task of the batch is queued or already claimed by a
// worker. The tasks must stay valid until a WaitForAllTasks issued after
// this call returns.
func (s *TaskScheduler) EnqueueTasks(tasks ...Task) error {
	if len(tasks) == 0 {
		return nil
	}

	batch := tasks
	for _, t := range tasks {
		if t == nil {
			batch = s.dropNilTasks(tasks)
			break
		}
	}
	if len(batch) == 0 {
		return nil
	}

	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.closing {
		for range batch {
			s.reject(RejectShuttingDown)
		}
		return ErrShuttingDown
	}

	if s.pool == nil {
		pool, err := s.createPool()
		if err != nil {
			return err
		}
		s.pool = pool
	}

	// Count first: a worker may finish a task as soon as it is pushed.
	s.barrier.add(len(batch))
	s.queue.Push(batch...)
	depth := s.queue.Len()
	s.guard("RecordQueueDepth", -1, func() { s.metrics.RecordQueueDepth(s.name, depth) })
	s.pool.wake.post(len(batch))

	return nil
}

func (s *TaskScheduler) dropNilTasks(tasks []Task) []Task {
	batch := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t == nil {
			s.reject(RejectNilTask)
			continue
		}
		batch = append(batch, t)
	}
	return batch
}

func (s *TaskScheduler) reject(reason string) {
	atomic.AddInt64(&s.metricRejected, 1)
	s.guard("HandleRejectedTask", -1, func() { s.rejectedTaskHandler.HandleRejectedTask(s.name, reason) })
	s.guard("RecordTaskRejected", -1, func() { s.metrics.RecordTaskRejected(s.name, reason) })
}

// guard runs a caller-supplied handler or Metrics method. A panic inside it
// is logged and swallowed; workerID is -1 off the worker threads.
func (s *TaskScheduler) guard(callback string, workerID int, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("callback panicked",
				F("scheduler", s.name), F("callback", callback), F("worker", workerID), F("panic", r))
		}
	}()
	fn()
}

// createPool must be called with lifecycleMu held.
func (s *TaskScheduler) createPool() (*workerPool, error) {
	size := s.requestedWorkers
	if size <= 0 {
		size = s.coreCounter()
	}
	if size <= 0 {
		s.logger.Error("worker pool creation failed", F("scheduler", s.name), F("workers", size))
		return nil, fmt.Errorf("%w: %d workers requested", ErrPoolCreationFailed, size)
	}

	pool, err := startWorkerPool(size, s.prepareWorker, s.workerLoop)
	if err != nil {
		s.logger.Error("worker pool creation failed", F("scheduler", s.name), F("workers", size), F("error", err))
		return nil, fmt.Errorf("%w: %w", ErrPoolCreationFailed, err)
	}

	s.logger.Info("worker pool started", F("scheduler", s.name), F("workers", size), F("pinned", s.pinWorkers))
	return pool, nil
}

// prepareWorker runs on the worker's locked OS thread before it goes idle.
// The returned release restores the thread's CPU affinity when it was
// pinned.
func (s *TaskScheduler) prepareWorker(workerID int) (func() error, error) {
	release := func() error { return nil }
	if s.pinWorkers {
		restore, err := pinCurrentThread(workerID)
		if err != nil {
			return release, err
		}
		release = restore
	}
	if s.startHook != nil {
		if err := s.startHook(workerID); err != nil {
			return release, err
		}
	}
	return release, nil
}

// workerLoop: Idle -> Claiming -> (Exiting | Running -> Reporting -> Idle).
func (s *TaskScheduler) workerLoop(p *workerPool, workerID int) {
	for {
		if !p.awaitWake() {
			return
		}

		task, ok := s.queue.Pop()
		if !ok {
			// A wake-up without a task only happens at shutdown.
			return
		}
		depth := s.queue.Len()
		s.guard("RecordQueueDepth", workerID, func() { s.metrics.RecordQueueDepth(s.name, depth) })

		s.runTask(workerID, task)
	}
}

func (s *TaskScheduler) runTask(workerID int, task Task) {
	atomic.AddInt32(&s.metricActive, 1)
	start := time.Now()

	// Registered first so it runs last, after every callback below.
	defer s.barrier.done(1)
	defer func() {
		r := recover()
		atomic.AddInt32(&s.metricActive, -1)
		elapsed := time.Since(start)
		s.guard("RecordTaskDuration", workerID, func() { s.metrics.RecordTaskDuration(s.name, elapsed) })
		if r != nil {
			s.recordPanic(workerID, r, debug.Stack())
		}
		atomic.AddInt64(&s.metricCompleted, 1)
	}()

	task.Run()
}

func (s *TaskScheduler) recordPanic(workerID int, value any, stack []byte) {
	atomic.AddInt64(&s.metricPanicked, 1)

	s.errMu.Lock()
	s.errs = append(s.errs, &TaskPanicError{
		Scheduler: s.name,
		WorkerID:  workerID,
		Value:     value,
		Stack:     stack,
	})
	s.errMu.Unlock()

	s.guard("RecordTaskPanic", workerID, func() { s.metrics.RecordTaskPanic(s.name, value) })
	s.guard("HandlePanic", workerID, func() { s.panicHandler.HandlePanic(s.name, workerID, value, stack) })
}

// WaitForAllTasks blocks until every task submitted before the call has
// finished. It returns immediately when nothing is outstanding.
//
// It must not be called from a task of the same scheduler: the calling task
// is itself unfinished, so the wait never ends.
func (s *TaskScheduler) WaitForAllTasks() {
	s.barrier.wait()
}

// WaitForAllTasksContext is WaitForAllTasks bounded by ctx.
func (s *TaskScheduler) WaitForAllTasksContext(ctx context.Context) error {
	return s.barrier.waitContext(ctx)
}

// TakeErrors returns the task failures recorded since the previous call,
// combined into one error, or nil. Failures of a batch are visible once
// WaitForAllTasks has returned.
func (s *TaskScheduler) TakeErrors() error {
	s.errMu.Lock()
	errs := s.errs
	s.errs = nil
	s.errMu.Unlock()

	return multierr.Combine(errs...)
}

// Shutdown drains the queue, stops every worker and joins their threads.
// New batches are rejected with ErrShuttingDown until it returns. It is
// safe to call at any time and a no-op when no pool exists, except from one
// of the scheduler's own tasks, where it deadlocks for the same reason as
// WaitForAllTasks.
func (s *TaskScheduler) Shutdown() {
	_ = s.shutdown(nil)
}

// ShutdownGraceful is Shutdown with a bound on the drain. When the timeout
// expires, tasks still queued are discarded (reported as rejected), tasks
// already running are allowed to finish, the workers are joined, and an
// error wrapping ErrShutdownTimeout is returned.
func (s *TaskScheduler) ShutdownGraceful(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.shutdown(ctx)
}

func (s *TaskScheduler) shutdown(ctx context.Context) error {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()

	s.lifecycleMu.Lock()
	pool := s.pool
	if pool == nil {
		s.lifecycleMu.Unlock()
		return nil
	}
	s.closing = true
	s.lifecycleMu.Unlock()

	s.logger.Info("shutting down worker pool", F("scheduler", s.name), F("unfinished", s.barrier.count()))

	var result error
	if ctx == nil {
		s.barrier.wait()
	} else if err := s.barrier.waitContext(ctx); err != nil {
		dropped := s.queue.Clear()
		for i := 0; i < dropped; i++ {
			s.reject(RejectShutdownTimeout)
		}
		s.barrier.done(dropped)
		s.logger.Warn("shutdown timed out, discarded queued tasks", F("scheduler", s.name), F("discarded", dropped))
		result = fmt.Errorf("%w: %d queued tasks discarded", ErrShutdownTimeout, dropped)

		// Tasks already claimed cannot be interrupted.
		s.barrier.wait()
	}

	pool.stop()

	s.lifecycleMu.Lock()
	s.pool = nil
	s.closing = false
	s.lifecycleMu.Unlock()

	s.logger.Info("worker pool stopped", F("scheduler", s.name), F("workers", pool.size))
	return result
}

// Name returns the scheduler name used in logs and metrics.
func (s *TaskScheduler) Name() string { return s.name }

// IsRunning reports whether a worker pool currently exists.
func (s *TaskScheduler) IsRunning() bool {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	return s.pool != nil
}

// WorkerCount returns the live pool size, or 0 when no pool exists.
func (s *TaskScheduler) WorkerCount() int {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.pool == nil {
		return 0
	}
	return s.pool.size
}

func (s *TaskScheduler) QueuedTaskCount() int     { return s.queue.Len() }
func (s *TaskScheduler) ActiveTaskCount() int     { return int(atomic.LoadInt32(&s.metricActive)) }
func (s *TaskScheduler) UnfinishedTaskCount() int { return s.barrier.count() }

// Stats returns a point-in-time snapshot. Fields are read independently and
// may be mutually inconsistent under load.
func (s *TaskScheduler) Stats() SchedulerStats {
	s.lifecycleMu.Lock()
	workers := 0
	if s.pool != nil {
		workers = s.pool.size
	}
	running := s.pool != nil
	closing := s.closing
	s.lifecycleMu.Unlock()

	return SchedulerStats{
		Name:       s.name,
		Workers:    workers,
		Queued:     s.queue.Len(),
		Active:     s.ActiveTaskCount(),
		Unfinished: s.barrier.count(),
		Completed:  atomic.LoadInt64(&s.metricCompleted),
		Panicked:   atomic.LoadInt64(&s.metricPanicked),
		Rejected:   atomic.LoadInt64(&s.metricRejected),
		Running:    running,
		Closing:    closing,
	}
}
