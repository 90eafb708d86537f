package cli

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"

	forkrt "github.com/Paintersrp/forkrun/internal/runtime"
)

const (
	// EnvWorkerOrdinal carries the worker's ordinal into the executed command.
	EnvWorkerOrdinal = "FORKRUN_ORDINAL"

	// EnvWorkerParentPid carries the pid of the forkrun root process.
	EnvWorkerParentPid = "FORKRUN_PARENT_PID"

	workerHandlerName = "forkrun-worker"

	exitCommandNotFound   = 127
	exitCommandNotRunning = 126
)

// workerHandler replaces the spawned child with the worker command. Its
// arguments are the working directory followed by the command line.
var workerHandler = forkrt.Register(workerHandlerName, runWorker)

func runWorker(rt *forkrt.Runtime) {
	args := rt.Args()
	if len(args) < 2 {
		rt.Terminate(exitCommandNotFound, "forkrun-worker: no command")
		return
	}
	workdir, argv := args[0], args[1:]

	if workdir != "" {
		if err := os.Chdir(workdir); err != nil {
			rt.Terminate(exitCommandNotRunning, fmt.Sprintf("forkrun-worker: %v", err))
			return
		}
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		rt.Terminate(exitCommandNotFound, fmt.Sprintf("forkrun-worker: %v", err))
		return
	}

	env := append(os.Environ(),
		EnvWorkerOrdinal+"="+strconv.Itoa(rt.ID()),
		EnvWorkerParentPid+"="+strconv.Itoa(rt.ParentPid()),
	)
	err = execCommand(path, argv, env)
	rt.Terminate(exitCommandNotRunning, fmt.Sprintf("forkrun-worker: exec %s: %v", path, err))
}

func workerArgs(workdir string, command []string) []string {
	return append([]string{workdir}, command...)
}

// workerEnv renders env as KEY=value pairs in a stable order.
func workerEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
