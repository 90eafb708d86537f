package process

import (
	"errors"
	"fmt"
	"os"

	"github.com/docker/docker/pkg/reexec"
)

// ErrNotChild is returned by Wait when the pid is not (or no longer) a child
// of the calling process, which is what the kernel reports for a pid that was
// already reaped.
var ErrNotChild = errors.New("process is not a child of the caller")

// Spec describes a re-executed child.
type Spec struct {
	// Name is placed in argv[0] and selects the initializer registered with
	// reexec.Register in the child.
	Name string
	// Args follow Name in argv.
	Args []string
	// Env is appended to the environment of the current process.
	Env []string
}

// Start launches a copy of the running binary described by spec and returns
// the pid of the new process. The child inherits stdin, stdout and stderr so no
// copying goroutines are attached to it, and it is not waited on by os/exec:
// the caller owns reaping through Wait.
func Start(spec Spec) (int, error) {
	if spec.Name == "" {
		return 0, errors.New("process name must not be empty")
	}

	argv := append([]string{spec.Name}, spec.Args...)
	cmd := reexec.Command(argv...)
	if cmd == nil {
		return 0, fmt.Errorf("start %s: %w", spec.Name, errors.ErrUnsupported)
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	env := os.Environ()
	if len(spec.Env) > 0 {
		env = append(env, spec.Env...)
	}
	cmd.Env = env

	configureCmdSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", spec.Name, err)
	}

	pid := cmd.Process.Pid
	// Drop the handle so os/exec never competes with Wait for the exit status.
	_ = cmd.Process.Release()
	return pid, nil
}

// Status is the outcome of a reaped child.
type Status struct {
	// Code is the exit code for a normal exit, or 128 plus the signal number
	// when the child was killed by a signal.
	Code int
	// Signaled reports whether the child was terminated by a signal.
	Signaled bool
}

// Success reports whether the child exited with status zero.
func (s Status) Success() bool {
	return s.Code == 0
}
