//go:build unix

package process

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Wait reaps the child identified by pid. With block set it waits until the
// child exits; otherwise it returns done=false immediately when the child is
// still running. ErrNotChild is returned for pids that are not children of the
// caller, including children that were reaped earlier.
func Wait(pid int, block bool) (status Status, done bool, err error) {
	if pid <= 0 {
		return Status{}, false, fmt.Errorf("wait: invalid pid %d", pid)
	}

	options := 0
	if !block {
		options = unix.WNOHANG
	}

	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, options, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.ECHILD) {
			return Status{}, false, ErrNotChild
		}
		if err != nil {
			return Status{}, false, fmt.Errorf("wait %d: %w", pid, err)
		}
		if wpid == 0 {
			return Status{}, false, nil
		}
		break
	}

	return statusFromWaitStatus(ws), true, nil
}

func statusFromWaitStatus(ws unix.WaitStatus) Status {
	switch {
	case ws.Exited():
		return Status{Code: ws.ExitStatus()}
	case ws.Signaled():
		return Status{Code: 128 + int(ws.Signal()), Signaled: true}
	default:
		return Status{Code: int(ws)}
	}
}
