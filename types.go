package batchscheduler

import "github.com/Swind/go-batch-scheduler/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the batchscheduler package for most use cases.

// Task is the unit of work
type Task = core.Task

// TaskFunc adapts a func() to Task
type TaskFunc = core.TaskFunc

// TaskScheduler runs batches of tasks on a worker pool
type TaskScheduler = core.TaskScheduler

// TaskSchedulerConfig holds optional scheduler settings and handlers
type TaskSchedulerConfig = core.TaskSchedulerConfig

// SchedulerStats is a point-in-time snapshot of a scheduler
type SchedulerStats = core.SchedulerStats

// TaskPanicError describes a task that panicked
type TaskPanicError = core.TaskPanicError

// QueueOrder selects FIFO or LIFO consumption
type QueueOrder = core.QueueOrder

const (
	QueueOrderFIFO = core.QueueOrderFIFO
	QueueOrderLIFO = core.QueueOrderLIFO
)

var (
	ErrPoolCreationFailed = core.ErrPoolCreationFailed
	ErrShuttingDown       = core.ErrShuttingDown
	ErrShutdownTimeout    = core.ErrShutdownTimeout
)

// Convenience constructors
var (
	Batch                      = core.Batch
	LogicalCores               = core.LogicalCores
	DefaultTaskSchedulerConfig = core.DefaultTaskSchedulerConfig
)

// NewTaskScheduler creates a scheduler with default handlers. workers <= 0
// means one worker per logical core, detected when the pool is created.
func NewTaskScheduler(workers int) *TaskScheduler {
	return core.NewTaskScheduler(workers)
}

// NewTaskSchedulerWithConfig creates a scheduler with custom handlers.
func NewTaskSchedulerWithConfig(workers int, config *TaskSchedulerConfig) *TaskScheduler {
	return core.NewTaskSchedulerWithConfig(workers, config)
}
