package runtime

import "time"

// EventType names a lifecycle notification.
type EventType string

const (
	EventTypeSpawned     EventType = "spawned"
	EventTypeReplaced    EventType = "replaced"
	EventTypeExited      EventType = "exited"
	EventTypeFailed      EventType = "failed"
	EventTypeLost        EventType = "lost"
	EventTypeError       EventType = "error"
	EventTypeTerminating EventType = "terminating"
)

// Event describes something that happened to a child or to the caller.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Ordinal   int
	Pid       int
	Status    int
	Message   string
	Err       error
}

func (r *Runtime) emit(evt Event) {
	r.mu.Lock()
	events := r.events
	r.mu.Unlock()
	if events == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	events <- evt
}
