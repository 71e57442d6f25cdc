package core

// Task is the unit of work executed by a TaskScheduler.
//
// Run executes synchronously on the worker that claimed the task and returns
// once the work is complete. The caller owns the task value: the scheduler
// only borrows it, never copies or mutates it, and drops its reference once
// Run has returned. Tasks that share state must synchronize it themselves.
type Task interface {
	Run()
}

// TaskFunc adapts an ordinary function to the Task interface.
type TaskFunc func()

// Run calls f().
func (f TaskFunc) Run() { f() }

// Batch builds a slice of tasks from plain functions.
func Batch(fns ...func()) []Task {
	tasks := make([]Task, 0, len(fns))
	for _, fn := range fns {
		if fn == nil {
			tasks = append(tasks, nil)
			continue
		}
		tasks = append(tasks, TaskFunc(fn))
	}
	return tasks
}
