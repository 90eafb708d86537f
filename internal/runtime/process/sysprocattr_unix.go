//go:build unix

package process

import (
	"os/exec"
	"syscall"
)

// configureCmdSysProcAttr places the child in a new process group led by
// itself, so KillGroup reaches everything it starts. It also clears the
// parent-death signal reexec installs on Linux: it is bound to the spawning OS
// thread, which the Go scheduler may retire while the child is still supposed
// to run.
func configureCmdSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
