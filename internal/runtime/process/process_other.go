//go:build !unix

package process

import (
	"errors"
	"os/exec"
	"syscall"
)

func configureCmdSysProcAttr(cmd *exec.Cmd) {}

// Wait is not supported on this platform.
func Wait(pid int, block bool) (Status, bool, error) {
	return Status{}, false, errors.ErrUnsupported
}

// Kill is not supported on this platform.
func Kill(pid int, sig syscall.Signal) error {
	return errors.ErrUnsupported
}

// KillGroup is not supported on this platform.
func KillGroup(pid int, sig syscall.Signal) error {
	return errors.ErrUnsupported
}

// AwaitExit is not supported on this platform.
func AwaitExit(pid int) error {
	return errors.ErrUnsupported
}

// Alive is not supported on this platform and always reports false.
func Alive(pid int) bool {
	return false
}

// SetPriority is not supported on this platform.
func SetPriority(prio int) error {
	return errors.ErrUnsupported
}

// GetPriority is not supported on this platform.
func GetPriority() (int, error) {
	return 0, errors.ErrUnsupported
}
