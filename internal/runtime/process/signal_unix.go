//go:build unix

package process

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Kill delivers sig to pid. A process that is already gone is not an error.
func Kill(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("signal: invalid pid %d", pid)
	}
	if err := unix.Kill(pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal %d: %w", pid, err)
	}
	return nil
}

// KillGroup delivers sig to the process group led by pid, reaching the
// descendants of a child started by Start. When the child has moved to another
// group, only the child itself is signalled.
func KillGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("signal: invalid pid %d", pid)
	}
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return Kill(pid, sig)
	}
	if err != nil {
		return fmt.Errorf("signal group %d: %w", pid, err)
	}
	return nil
}

// Alive reports whether pid refers to an existing process. Zombies that have
// not been reaped yet still count as alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
