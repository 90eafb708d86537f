package runtime

import (
	"sync"

	"github.com/docker/docker/pkg/reexec"
)

// Handler is a named child continuation. Handlers must be registered during
// package initialisation so that the re-executed child can find them again.
type Handler struct {
	name string
	fn   func(*Runtime)
}

// Name returns the name the handler was registered under.
func (h *Handler) Name() string {
	if h == nil {
		return noopHandlerName
	}
	return h.name
}

const noopHandlerName = "forkrun-noop"

var (
	registryMu sync.RWMutex
	handlers   = map[string]*Handler{}

	noopHandler = Register(noopHandlerName, nil)
)

// Register associates fn with name and returns the handler to pass to the
// spawn methods. A nil fn registers a handler that does nothing. Registering
// the same name twice panics.
func Register(name string, fn func(*Runtime)) *Handler {
	if name == "" {
		panic("runtime.Register: name must not be empty")
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := handlers[name]; exists {
		panic("runtime.Register: handler " + name + " registered twice")
	}

	h := &Handler{name: name, fn: fn}
	handlers[name] = h
	reexec.Register(name, func() {
		runChild(h)
	})
	return h
}

// Lookup returns the handler registered under name.
func Lookup(name string) (*Handler, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	h, ok := handlers[name]
	return h, ok
}
