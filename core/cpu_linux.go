//go:build linux

package core

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// maxCPUs matches the kernel's CPU_SETSIZE.
const maxCPUs = 1024

// LogicalCores returns the number of logical CPUs the process may run on.
// It honours the affinity mask (taskset, cgroup cpusets) and falls back to
// runtime.NumCPU when the mask cannot be read.
func LogicalCores() int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err == nil {
		if n := set.Count(); n > 0 {
			return n
		}
	}
	return runtime.NumCPU()
}

// CurrentThreadID returns the kernel thread id of the calling OS thread.
func CurrentThreadID() int {
	return unix.Gettid()
}

// pinCurrentThread binds the calling OS thread to one CPU of the process
// affinity set, chosen round-robin by slot, and returns a func that puts
// the previous mask back. The caller must hold runtime.LockOSThread until
// restore has run.
func pinCurrentThread(slot int) (restore func() error, err error) {
	var allowed unix.CPUSet
	if err := unix.SchedGetaffinity(0, &allowed); err != nil {
		return nil, fmt.Errorf("read affinity: %w", err)
	}

	cpus := make([]int, 0, allowed.Count())
	for cpu := 0; cpu < maxCPUs; cpu++ {
		if allowed.IsSet(cpu) {
			cpus = append(cpus, cpu)
		}
	}
	if len(cpus) == 0 {
		return nil, fmt.Errorf("empty affinity set")
	}

	var pin unix.CPUSet
	pin.Set(cpus[slot%len(cpus)])
	if err := unix.SchedSetaffinity(0, &pin); err != nil {
		return nil, fmt.Errorf("pin to cpu %d: %w", cpus[slot%len(cpus)], err)
	}

	return func() error {
		if err := unix.SchedSetaffinity(0, &allowed); err != nil {
			return fmt.Errorf("restore affinity: %w", err)
		}
		return nil
	}, nil
}
