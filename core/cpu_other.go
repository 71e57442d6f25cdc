//go:build !linux

package core

import (
	"fmt"
	"runtime"
)

// LogicalCores returns the number of logical CPUs usable by the process.
func LogicalCores() int {
	return runtime.NumCPU()
}

// CurrentThreadID is not available on this platform and returns -1.
func CurrentThreadID() int {
	return -1
}

func pinCurrentThread(slot int) (restore func() error, err error) {
	return nil, fmt.Errorf("cpu pinning is not supported on %s", runtime.GOOS)
}
