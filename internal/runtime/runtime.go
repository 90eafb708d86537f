package runtime

import (
	"io"
	"os"
	"sync"
)

// ExitForkFailure is the exit status reserved for a failed spawn or a child
// handler that panicked. Callers should not use it for ordinary exits.
const ExitForkFailure = 250

// Config holds the optional runtime settings.
type Config struct {
	// PreGC runs a garbage collection before every spawn. Defaults to false.
	PreGC bool `yaml:"preGc"`
	// Priority maps ordinals to their starting nice value. Ordinals without
	// an entry use the priority passed to the spawn call (children) or 0
	// (the root).
	Priority map[int]int `yaml:"priority,omitempty"`
}

// PriorityFor returns the configured priority for ordinal, or fallback when
// none is configured.
func (c Config) PriorityFor(ordinal, fallback int) int {
	if prio, ok := c.Priority[ordinal]; ok {
		return prio
	}
	return fallback
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	dup := Config{PreGC: c.PreGC}
	if c.Priority != nil {
		dup.Priority = make(map[int]int, len(c.Priority))
		for k, v := range c.Priority {
			dup.Priority[k] = v
		}
	}
	return dup
}

// Child is a registry entry for a direct child.
type Child struct {
	Ordinal int
	Pid     int
	// Reaped is set once the exit status has been collected.
	Reaped bool
	// Status is the collected exit status: the exit code, 128 plus the
	// signal number for signal deaths, or -1 when the child had already
	// been reaped elsewhere.
	Status int
}

// Runtime is the per-process view of a spawn tree. After a spawn the parent
// and the child each hold their own Runtime: the parent keeps ordinal 0 and
// records the child, the child adopts its ordinal and starts with an empty
// registry.
type Runtime struct {
	mu sync.Mutex

	id        int
	pid       int
	parentPid int
	next      int

	children []Child
	index    map[int]int

	config Config
	args   []string
	events chan<- Event
	out    io.Writer
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithConfig sets the runtime configuration.
func WithConfig(cfg Config) Option {
	return func(r *Runtime) {
		r.config = cfg.Clone()
	}
}

// WithEvents delivers lifecycle events to ch. Sends block, so the channel
// must be drained for as long as the Runtime is in use.
func WithEvents(ch chan<- Event) Option {
	return func(r *Runtime) {
		r.events = ch
	}
}

// WithOutput sets the writer Terminate prints its message to. Defaults to
// os.Stdout. Spawned children print to os.Stdout when w is os.Stdout and to
// os.Stderr otherwise.
func WithOutput(w io.Writer) Option {
	return func(r *Runtime) {
		if w != nil {
			r.out = w
		}
	}
}

// New returns the root Runtime of a new tree.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		pid:       os.Getpid(),
		parentPid: os.Getppid(),
		next:      1,
		index:     make(map[int]int),
		out:       os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ID returns the ordinal of the calling process within this tree. The root
// reports 0.
func (r *Runtime) ID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// Pid returns the OS process id recorded for this process.
func (r *Runtime) Pid() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pid
}

// ParentPid returns the pid of the process that started this one.
func (r *Runtime) ParentPid() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.parentPid
}

// IsChild reports whether the caller took the child side of a spawn.
func (r *Runtime) IsChild() bool {
	return r.ID() != 0
}

// Args returns the arguments the handler was spawned with. The root has none.
func (r *Runtime) Args() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.args...)
}

// NextOrdinal returns the ordinal the next child will receive and, when
// increment is set, reserves it. Children are not allowed to allocate in
// their parent's tree and always get 0.
func (r *Runtime) NextOrdinal(increment bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.id != 0 {
		return 0
	}
	ordinal := r.next
	if increment {
		r.next++
	}
	return ordinal
}

// Config returns a copy of the runtime configuration.
func (r *Runtime) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.Clone()
}

// SetConfig replaces the runtime configuration.
func (r *Runtime) SetConfig(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = cfg.Clone()
}

// PidMap returns the registry of direct children in spawn order.
func (r *Runtime) PidMap() []Child {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Child(nil), r.children...)
}

// SetPidMap replaces the registry. Later entries win over earlier entries
// with the same ordinal, which keep their position.
func (r *Runtime) SetPidMap(children []Child) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.children = nil
	r.index = make(map[int]int, len(children))
	for _, c := range children {
		r.recordLocked(c)
	}
}

// Pending returns the number of tracked children that have not been reaped.
func (r *Runtime) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.children {
		if !c.Reaped {
			n++
		}
	}
	return n
}

func (r *Runtime) recordLocked(c Child) {
	if pos, ok := r.index[c.Ordinal]; ok {
		r.children[pos] = c
		return
	}
	r.index[c.Ordinal] = len(r.children)
	r.children = append(r.children, c)
}

func (r *Runtime) lookup(ordinal int) (Child, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.index[ordinal]
	if !ok {
		return Child{}, false
	}
	return r.children[pos], true
}

func (r *Runtime) output() io.Writer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out
}
