//go:build linux

package core

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestLogicalCores_MatchesAffinityMask(t *testing.T) {
	var set unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(0, &set))

	assert.Equal(t, set.Count(), LogicalCores())
	assert.LessOrEqual(t, LogicalCores(), runtime.NumCPU())
}

// settledGoroutines polls until the goroutine count drops to want or two
// seconds pass, and returns the last count.
func settledGoroutines(want int) int {
	deadline := time.Now().Add(2 * time.Second)
	n := runtime.NumGoroutine()
	for n > want && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		n = runtime.NumGoroutine()
	}
	return n
}

// TestTaskScheduler_UsesMultipleThreads records the executing thread per task
// Main test items:
// 1. A batch larger than the pool runs on more than one OS thread
// 2. No worker goroutine is left once Shutdown has joined the pool
func TestTaskScheduler_UsesMultipleThreads(t *testing.T) {
	baseline := runtime.NumGoroutine()
	workers := max(2, LogicalCores())
	s := newTestScheduler(t, workers)

	var mu sync.Mutex
	tids := make(map[int]struct{})
	tasks := make([]Task, workers*4)
	for i := range tasks {
		tasks[i] = TaskFunc(func() {
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			tids[CurrentThreadID()] = struct{}{}
			mu.Unlock()
		})
	}

	require.NoError(t, s.EnqueueTasks(tasks...))
	s.WaitForAllTasks()

	assert.Greater(t, len(tids), 1, "tasks never ran in parallel")
	assert.Greater(t, runtime.NumGoroutine(), baseline, "workers should be parked while the pool is up")

	s.Shutdown()

	assert.LessOrEqual(t, settledGoroutines(baseline), baseline, "worker goroutines still running after Shutdown")
}

// TestTaskScheduler_ShutdownRepeatedly cycles the pool several times
// Main test items:
// 1. Every cycle runs its whole batch
// 2. Goroutines do not pile up across cycles
func TestTaskScheduler_ShutdownRepeatedly(t *testing.T) {
	baseline := runtime.NumGoroutine()
	s := newTestScheduler(t, max(2, LogicalCores()))

	for round := 0; round < 5; round++ {
		var ran atomic.Int32
		tasks := make([]Task, 64)
		for i := range tasks {
			tasks[i] = TaskFunc(func() { ran.Add(1) })
		}
		require.NoError(t, s.EnqueueTasks(tasks...))
		s.WaitForAllTasks()
		s.Shutdown()

		require.EqualValues(t, 64, ran.Load(), "round %d", round)
		require.False(t, s.IsRunning(), "round %d", round)
	}

	assert.LessOrEqual(t, settledGoroutines(baseline), baseline, "worker goroutines leaked across shutdown cycles")
}

func TestTaskScheduler_PinWorkers(t *testing.T) {
	s := newTestScheduler(t, 2, func(cfg *TaskSchedulerConfig) {
		cfg.PinWorkers = true
	})

	var mu sync.Mutex
	var counts []int
	tasks := make([]Task, 8)
	for i := range tasks {
		tasks[i] = TaskFunc(func() {
			var set unix.CPUSet
			if err := unix.SchedGetaffinity(0, &set); err != nil {
				return
			}
			mu.Lock()
			counts = append(counts, set.Count())
			mu.Unlock()
		})
	}

	require.NoError(t, s.EnqueueTasks(tasks...))
	s.WaitForAllTasks()

	require.Len(t, counts, 8)
	for _, c := range counts {
		assert.Equal(t, 1, c, "pinned worker should see a single-CPU mask")
	}
}

// TestTaskScheduler_PinWorkersRestoresAffinity checks threads handed back to
// the runtime after Shutdown carry the full process mask again.
func TestTaskScheduler_PinWorkersRestoresAffinity(t *testing.T) {
	var before unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(0, &before))
	if before.Count() < 2 {
		t.Skip("needs at least two CPUs in the affinity set")
	}

	s := newTestScheduler(t, runtime.GOMAXPROCS(0), func(cfg *TaskSchedulerConfig) {
		cfg.PinWorkers = true
	})
	tasks := make([]Task, 32)
	for i := range tasks {
		tasks[i] = TaskFunc(func() { time.Sleep(100 * time.Microsecond) })
	}
	require.NoError(t, s.EnqueueTasks(tasks...))
	s.WaitForAllTasks()
	s.Shutdown()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var narrowed []int
	for i := 0; i < 4*runtime.GOMAXPROCS(0); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			time.Sleep(time.Millisecond)

			var set unix.CPUSet
			if err := unix.SchedGetaffinity(0, &set); err != nil {
				return
			}
			if set.Count() != before.Count() {
				mu.Lock()
				narrowed = append(narrowed, unix.Gettid())
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, narrowed, "threads still pinned after Shutdown")
}
