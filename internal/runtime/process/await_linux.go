//go:build linux

package process

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// AwaitExit blocks until the child identified by pid has exited but leaves it
// unreaped, so its pid cannot be reused before Wait collects it.
func AwaitExit(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("wait: invalid pid %d", pid)
	}
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ECHILD):
			return ErrNotChild
		default:
			return fmt.Errorf("wait %d: %w", pid, err)
		}
	}
}
