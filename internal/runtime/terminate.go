package runtime

import (
	"fmt"
	"os"
)

var exit = os.Exit

// Terminate prints msg, when present, and exits the process with code. It
// does not return.
func (r *Runtime) Terminate(code int, msg string) {
	if msg != "" {
		fmt.Fprintln(r.output(), msg)
	}
	r.emit(Event{Type: EventTypeTerminating, Ordinal: r.ID(), Pid: r.Pid(), Status: code, Message: msg})
	exit(code)
}

// TerminateIfChild exits with status 0 when the caller is a child. It keeps
// child continuations out of root-only code.
func (r *Runtime) TerminateIfChild() {
	if r.IsChild() {
		r.Terminate(0, "")
	}
}
