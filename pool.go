package batchscheduler

import (
	"sync"

	"github.com/Swind/go-batch-scheduler/core"
)

// =============================================================================
// Process-wide Scheduler Helper (Singleton)
// =============================================================================

var (
	globalScheduler *core.TaskScheduler
	globalConfig    *core.TaskSchedulerConfig
	globalWorkers   int
	globalMu        sync.Mutex
)

// ConfigureGlobalScheduler sets the worker count and config used when the
// process-wide scheduler is next created. It has no effect on a scheduler
// that already exists; call Shutdown first to apply new settings.
func ConfigureGlobalScheduler(workers int, config *TaskSchedulerConfig) {
	globalMu.Lock()
	defer globalMu.Unlock()

	globalWorkers = workers
	globalConfig = config
}

// GlobalScheduler returns the process-wide scheduler, creating it on first
// use. Its worker pool is still only started by the first EnqueueTasks.
func GlobalScheduler() *TaskScheduler {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler == nil {
		cfg := globalConfig
		if cfg == nil {
			cfg = core.DefaultTaskSchedulerConfig()
			cfg.Name = "global-scheduler"
		}
		globalScheduler = core.NewTaskSchedulerWithConfig(globalWorkers, cfg)
	}
	return globalScheduler
}

// EnqueueTasks submits a batch to the process-wide scheduler.
func EnqueueTasks(tasks ...Task) error {
	return GlobalScheduler().EnqueueTasks(tasks...)
}

// WaitForAllTasks blocks until every task submitted to the process-wide
// scheduler has finished. It returns immediately if nothing was submitted.
func WaitForAllTasks() {
	globalMu.Lock()
	s := globalScheduler
	globalMu.Unlock()

	if s == nil {
		return
	}
	s.WaitForAllTasks()
}

// Shutdown drains and stops the process-wide scheduler and forgets it, so
// the next call to EnqueueTasks starts from a fresh scheduler. No-op when
// it was never used.
func Shutdown() {
	globalMu.Lock()
	s := globalScheduler
	globalScheduler = nil
	globalMu.Unlock()

	if s != nil {
		s.Shutdown()
	}
}
