package core

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolCreationFailed is returned by EnqueueTasks when the worker pool
	// could not be started. The scheduler stays in the "not created" state,
	// so the call may be retried.
	ErrPoolCreationFailed = errors.New("worker pool creation failed")

	// ErrShuttingDown is returned by EnqueueTasks while Shutdown is in progress.
	ErrShuttingDown = errors.New("scheduler is shutting down")

	// ErrShutdownTimeout is returned by ShutdownGraceful when queued tasks did
	// not drain in time and had to be discarded.
	ErrShutdownTimeout = errors.New("shutdown timed out before queue drained")
)

// TaskPanicError records a task whose Run panicked on a worker.
type TaskPanicError struct {
	Scheduler string
	WorkerID  int
	Value     any
	Stack     []byte
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("task panicked on worker %d of %s: %v", e.WorkerID, e.Scheduler, e.Value)
}

// Unwrap exposes the panic value when it is itself an error.
func (e *TaskPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
