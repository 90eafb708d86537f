//go:build linux

package process

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// SetPriority sets the nice value of every thread in the calling process. The
// first failure is returned after all threads have been attempted.
func SetPriority(prio int) error {
	entries, err := os.ReadDir("/proc/self/task")
	if err != nil {
		return unix.Setpriority(unix.PRIO_PROCESS, 0, prio)
	}

	var firstErr error
	for _, entry := range entries {
		tid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		if err := unix.Setpriority(unix.PRIO_PROCESS, tid, prio); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// GetPriority returns the nice value of the calling thread.
func GetPriority() (int, error) {
	// The raw syscall reports 20-nice so that the result is never negative.
	raw, err := unix.Getpriority(unix.PRIO_PROCESS, 0)
	if err != nil {
		return 0, err
	}
	return 20 - raw, nil
}
