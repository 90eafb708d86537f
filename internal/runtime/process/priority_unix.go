//go:build unix && !linux

package process

import "golang.org/x/sys/unix"

// SetPriority sets the nice value of the calling process.
func SetPriority(prio int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, 0, prio)
}

// GetPriority returns the nice value of the calling process.
func GetPriority() (int, error) {
	return unix.Getpriority(unix.PRIO_PROCESS, 0)
}
