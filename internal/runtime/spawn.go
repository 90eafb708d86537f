package runtime

import (
	"errors"
	"fmt"
	"os"
	stdruntime "runtime"
	"sync/atomic"
	"syscall"

	"github.com/Paintersrp/forkrun/internal/runtime/process"
)

var (
	// ErrInvalidForkCount is returned by Run for a fork count below one.
	ErrInvalidForkCount = errors.New("fork count cannot be less than 1")

	// ErrNotInitialized is reported when a spawn happens before Init.
	ErrNotInitialized = errors.New("runtime.Init was not called")
)

var (
	initialized  atomic.Bool
	startProcess = process.Start
)

type spawnOptions struct {
	ordinal    int
	hasOrdinal bool
	args       []string
	env        []string
}

// SpawnOption configures a single spawn.
type SpawnOption func(*spawnOptions)

// WithOrdinal spawns the child under an explicit ordinal instead of the next
// allocated one. When the ordinal already holds a live child, SpawnChild kills
// it before recording the replacement.
func WithOrdinal(ordinal int) SpawnOption {
	return func(o *spawnOptions) {
		o.ordinal = ordinal
		o.hasOrdinal = true
	}
}

// WithArgs passes arguments to the handler. They are available in the child
// through Runtime.Args.
func WithArgs(args ...string) SpawnOption {
	return func(o *spawnOptions) {
		o.args = append(o.args, args...)
	}
}

// WithEnv adds KEY=value pairs to the child's environment, on top of the
// environment inherited from the caller.
func WithEnv(env ...string) SpawnOption {
	return func(o *spawnOptions) {
		o.env = append(o.env, env...)
	}
}

// SpawnChild starts a child running h and returns its ordinal. The call is a
// no-op returning 0 when the resolved ordinal is 0, which is always the case
// for a child that does not pass WithOrdinal: children cannot grow their
// parent's tree, although they may start a tree of their own with New.
//
// priority is the child's starting nice value unless the configuration names
// one for its ordinal. A failure to start the child terminates the calling
// process with ExitForkFailure.
func (r *Runtime) SpawnChild(h *Handler, priority int, opts ...SpawnOption) int {
	var o spawnOptions
	for _, opt := range opts {
		opt(&o)
	}
	return r.spawn(h, priority, o, true)
}

// ForkOnly is SpawnChild without explicit ordinals and without replacement:
// the child always receives the next allocated ordinal. WithOrdinal is
// ignored.
func (r *Runtime) ForkOnly(h *Handler, priority int, opts ...SpawnOption) int {
	var o spawnOptions
	for _, opt := range opts {
		opt(&o)
	}
	o.ordinal, o.hasOrdinal = 0, false
	return r.spawn(h, priority, o, false)
}

// Run spawns forkCount children running child and then, on the root, calls
// parent once. Nothing is spawned when forkCount is below one.
func (r *Runtime) Run(child *Handler, parent func(*Runtime), forkCount int, opts ...SpawnOption) error {
	if forkCount < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidForkCount, forkCount)
	}
	for i := 0; i < forkCount; i++ {
		r.ForkOnly(child, 0, opts...)
	}
	r.Parent(parent)
	return nil
}

// Parent calls fn when the caller is the root of the tree.
func (r *Runtime) Parent(fn func(*Runtime)) {
	if fn != nil && !r.IsChild() {
		fn(r)
	}
}

func (r *Runtime) spawn(h *Handler, priority int, o spawnOptions, replace bool) int {
	ordinal := o.ordinal
	if !o.hasOrdinal {
		ordinal = r.NextOrdinal(true)
	}
	if ordinal <= 0 {
		return 0
	}

	cfg := r.Config()
	if cfg.PreGC {
		stdruntime.GC()
	}

	pid, err := r.fork(h, ordinal, priority, o, cfg)
	if err != nil {
		r.Terminate(ExitForkFailure, fmt.Sprintf("fork ordinal %d: %v", ordinal, err))
		return 0
	}

	r.mu.Lock()
	r.id = 0
	r.pid = os.Getpid()
	r.mu.Unlock()
	r.SetPriority(0, cfg.PriorityFor(0, 0))

	if replace {
		if prev, ok := r.lookup(ordinal); ok && !prev.Reaped {
			r.evict(prev)
		}
	}

	r.mu.Lock()
	r.recordLocked(Child{Ordinal: ordinal, Pid: pid})
	r.mu.Unlock()

	r.emit(Event{Type: EventTypeSpawned, Ordinal: ordinal, Pid: pid})
	return ordinal
}

func (r *Runtime) fork(h *Handler, ordinal, priority int, o spawnOptions, cfg Config) (int, error) {
	if !initialized.Load() {
		return 0, ErrNotInitialized
	}
	if h == nil {
		h = noopHandler
	}
	env, err := childEnv(ordinal, priority, cfg, childOutputStream(r.output()))
	if err != nil {
		return 0, err
	}
	env = append(append([]string(nil), o.env...), env...)
	return startProcess(process.Spec{Name: h.name, Args: o.args, Env: env})
}

// evict kills the previous occupant of an ordinal and collects it so it does
// not linger as a zombie. Only the child itself is killed; processes it
// started in its group are left alone.
func (r *Runtime) evict(prev Child) {
	var err error
	if process.Alive(prev.Pid) {
		err = process.Kill(prev.Pid, syscall.SIGKILL)
	}
	if err == nil {
		_, _, err = r.collect(prev, true)
		if errors.Is(err, process.ErrNotChild) {
			err = nil
		}
	}
	r.emit(Event{
		Type:    EventTypeReplaced,
		Ordinal: prev.Ordinal,
		Pid:     prev.Pid,
		Message: fmt.Sprintf("ordinal %d replaced, killed pid %d", prev.Ordinal, prev.Pid),
		Err:     err,
	})
}
