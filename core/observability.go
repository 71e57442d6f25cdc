package core

// SchedulerStats represents runtime observability state for a TaskScheduler.
type SchedulerStats struct {
	Name       string
	Workers    int // live pool size, 0 when no pool exists
	Queued     int // waiting in the task queue
	Active     int // inside Run on a worker
	Unfinished int // submitted but not yet finished
	Completed  int64
	Panicked   int64
	Rejected   int64
	Running    bool // a worker pool exists
	Closing    bool // a shutdown is in progress
}
