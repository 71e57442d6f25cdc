package core

import (
	"fmt"
	"os"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is the out-of-band sink for task failures. It is called on
// the worker that recovered the panic, before the task is counted as
// finished, so every failure of a batch has been handled by the time
// WaitForAllTasks returns.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - schedulerName: The name of the scheduler that owns the worker
	// - workerID: The index of the worker in the pool
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(schedulerName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler writes panic information to stderr.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stderr.
func (h *DefaultPanicHandler) HandlePanic(schedulerName string, workerID int, panicInfo any, stackTrace []byte) {
	fmt.Fprintf(os.Stderr, "[Worker %d @ %s] Panic: %v\nStack trace:\n%s",
		workerID, schedulerName, panicInfo, stackTrace)
}

// PanicHandlerFunc adapts a function to PanicHandler.
type PanicHandlerFunc func(schedulerName string, workerID int, panicInfo any, stackTrace []byte)

func (f PanicHandlerFunc) HandlePanic(schedulerName string, workerID int, panicInfo any, stackTrace []byte) {
	f(schedulerName, workerID, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting task execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast; they run on workers and on the
// submitting goroutine.
type Metrics interface {
	// RecordTaskDuration records how long a task's Run took.
	RecordTaskDuration(schedulerName string, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(schedulerName string, panicInfo any)

	// RecordQueueDepth records the number of tasks waiting to be claimed.
	// Called after every enqueue and every claim.
	RecordQueueDepth(schedulerName string, depth int)

	// RecordTaskRejected records that a task was not accepted or was
	// discarded before running.
	RecordTaskRejected(schedulerName string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(schedulerName string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(schedulerName string, panicInfo any)            {}
func (m *NilMetrics) RecordQueueDepth(schedulerName string, depth int)               {}
func (m *NilMetrics) RecordTaskRejected(schedulerName string, reason string)         {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called once per task the scheduler refuses or
// drops. This happens when:
// - The scheduler is shutting down (reason RejectShuttingDown)
// - A nil task is part of a batch (reason RejectNilTask)
// - ShutdownGraceful times out with tasks still queued (reason RejectShutdownTimeout)
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	HandleRejectedTask(schedulerName string, reason string)
}

// Rejection reasons passed to RejectedTaskHandler and Metrics.
const (
	RejectShuttingDown    = "shutting down"
	RejectNilTask         = "nil task"
	RejectShutdownTimeout = "shutdown timeout"
)

// DefaultRejectedTaskHandler writes rejected tasks to stderr.
type DefaultRejectedTaskHandler struct{}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(schedulerName string, reason string) {
	fmt.Fprintf(os.Stderr, "[Scheduler %s] Task rejected: %s\n", schedulerName, reason)
}

// =============================================================================
// TaskSchedulerConfig: Configuration for TaskScheduler
// =============================================================================

// TaskSchedulerConfig holds configuration options for TaskScheduler.
// All fields are optional; zero values select the defaults.
type TaskSchedulerConfig struct {
	// Name identifies the scheduler in logs and metrics. Defaults to
	// "scheduler-" followed by a short random id.
	Name string

	// QueueOrder selects FIFO (default) or LIFO consumption.
	QueueOrder QueueOrder

	// PinWorkers binds each worker's OS thread to one CPU of the process
	// affinity set. Linux only; elsewhere pool creation fails.
	PinWorkers bool

	// WorkerStartHook runs on each new worker thread before it starts
	// claiming tasks. An error aborts pool creation.
	WorkerStartHook func(workerID int) error

	// CoreCounter reports the logical core count when the scheduler was
	// created with workers <= 0. Defaults to LogicalCores.
	CoreCounter func() int

	// Logger receives lifecycle logs. Defaults to an slog-backed logger.
	Logger Logger

	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record task execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a task is rejected. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler
}

// DefaultTaskSchedulerConfig returns a config with default handlers.
func DefaultTaskSchedulerConfig() *TaskSchedulerConfig {
	return &TaskSchedulerConfig{
		QueueOrder:          QueueOrderFIFO,
		CoreCounter:         LogicalCores,
		Logger:              NewDefaultLogger(),
		PanicHandler:        &DefaultPanicHandler{},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{},
	}
}
