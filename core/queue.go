package core

import (
	"sync"

	"github.com/eapache/queue"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// QueueOrder selects the consumption order of a scheduler's task queue.
// The scheduler makes no ordering promise to callers; the order only
// matters for locality and for reproducing the reference behaviour.
type QueueOrder int

const (
	// QueueOrderFIFO pops the oldest task first. Default.
	QueueOrderFIFO QueueOrder = iota

	// QueueOrderLIFO pops the newest task first.
	QueueOrderLIFO
)

func (o QueueOrder) String() string {
	switch o {
	case QueueOrderFIFO:
		return "fifo"
	case QueueOrderLIFO:
		return "lifo"
	default:
		return "unknown"
	}
}

// ParseQueueOrder maps "fifo"/"lifo" (and "" as fifo) to a QueueOrder.
func ParseQueueOrder(s string) (QueueOrder, bool) {
	switch s {
	case "", "fifo", "FIFO":
		return QueueOrderFIFO, true
	case "lifo", "LIFO":
		return QueueOrderLIFO, true
	default:
		return QueueOrderFIFO, false
	}
}

// TaskQueue is the shared pending-task store. Every method takes the
// queue's own lock; no lock-free access is permitted.
type TaskQueue interface {
	Push(tasks ...Task)
	Pop() (Task, bool)
	Len() int
	IsEmpty() bool
	// Clear drops every pending task and returns how many were dropped.
	Clear() int
}

// NewTaskQueue returns the queue implementation for the given order.
func NewTaskQueue(order QueueOrder) TaskQueue {
	if order == QueueOrderLIFO {
		return NewLIFOTaskQueue()
	}
	return NewFIFOTaskQueue()
}

// =============================================================================
// FIFOTaskQueue: ring buffer backed queue
// =============================================================================

type FIFOTaskQueue struct {
	mu    sync.Mutex
	tasks *queue.Queue
}

func NewFIFOTaskQueue() *FIFOTaskQueue {
	return &FIFOTaskQueue{tasks: queue.New()}
}

func (q *FIFOTaskQueue) Push(tasks ...Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range tasks {
		q.tasks.Add(t)
	}
}

func (q *FIFOTaskQueue) Pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.tasks.Length() == 0 {
		return nil, false
	}
	// Remove nils the slot in the ring, so the task is not retained.
	return q.tasks.Remove().(Task), true
}

func (q *FIFOTaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Length()
}

func (q *FIFOTaskQueue) IsEmpty() bool {
	return q.Len() == 0
}

func (q *FIFOTaskQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.tasks.Length()
	q.tasks = queue.New()
	return n
}

// =============================================================================
// LIFOTaskQueue: slice popped from the tail
// =============================================================================

type LIFOTaskQueue struct {
	mu    sync.Mutex
	tasks []Task
}

func NewLIFOTaskQueue() *LIFOTaskQueue {
	return &LIFOTaskQueue{
		tasks: make([]Task, 0, defaultQueueCap),
	}
}

func (q *LIFOTaskQueue) Push(tasks ...Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, tasks...)
}

func (q *LIFOTaskQueue) Pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.tasks)
	if n == 0 {
		return nil, false
	}

	t := q.tasks[n-1]
	// Zero out the element in the underlying array to prevent memory leak
	q.tasks[n-1] = nil
	q.tasks = q.tasks[:n-1]
	q.maybeCompactLocked()

	return t, true
}

func (q *LIFOTaskQueue) maybeCompactLocked() {
	n := len(q.tasks)
	c := cap(q.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.tasks = make([]Task, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]Task, n, newCap)
	copy(newSlice, q.tasks)
	q.tasks = newSlice
}

func (q *LIFOTaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *LIFOTaskQueue) IsEmpty() bool {
	return q.Len() == 0
}

func (q *LIFOTaskQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.tasks)
	q.tasks = make([]Task, 0, defaultQueueCap)
	return n
}
