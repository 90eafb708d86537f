package runtime

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/Paintersrp/forkrun/internal/runtime/process"
)

// ExitFunc receives the outcome of a reaped child.
type ExitFunc func(rt *Runtime, ordinal, pid, status int)

type reapOptions struct {
	onSuccess    ExitFunc
	onError      ExitFunc
	exitChildren bool
}

// ReapOption configures Wait and Listen.
type ReapOption func(*reapOptions)

// OnSuccess is called for every child that exited with status 0.
func OnSuccess(fn ExitFunc) ReapOption {
	return func(o *reapOptions) {
		o.onSuccess = fn
	}
}

// OnError is called for every child that exited with a nonzero status,
// including children killed by a signal.
func OnError(fn ExitFunc) ReapOption {
	return func(o *reapOptions) {
		o.onError = fn
	}
}

// ThenExitChildren makes a child that calls Wait or Listen terminate with
// status 0. It lets shared code park children without an explicit check.
func ThenExitChildren() ReapOption {
	return func(o *reapOptions) {
		o.exitChildren = true
	}
}

// Wait blocks until every tracked child that has not been reaped yet exits,
// in spawn order, and returns how many were reaped. Children already reaped
// are skipped, so calling Wait again is a no-op. Children never reap.
func (r *Runtime) Wait(opts ...ReapOption) int {
	return r.reap(true, opts)
}

// Listen is the non-blocking form of Wait: children still running are
// skipped and picked up by a later call.
func (r *Runtime) Listen(opts ...ReapOption) int {
	return r.reap(false, opts)
}

func (r *Runtime) reap(block bool, opts []ReapOption) int {
	var o reapOptions
	for _, opt := range opts {
		opt(&o)
	}

	reaped := 0
	if !r.IsChild() {
		for _, c := range r.PidMap() {
			if c.Reaped {
				continue
			}
			status, done, err := r.collect(c, block)
			if errors.Is(err, process.ErrNotChild) {
				if r.markReaped(c, -1) {
					r.emit(Event{
						Type:    EventTypeLost,
						Ordinal: c.Ordinal,
						Pid:     c.Pid,
						Status:  -1,
						Message: fmt.Sprintf("ordinal %d was reaped elsewhere", c.Ordinal),
					})
				}
				continue
			}
			if err != nil {
				r.emit(Event{Type: EventTypeError, Ordinal: c.Ordinal, Pid: c.Pid, Err: err})
				continue
			}
			if !done {
				continue
			}
			reaped++
			r.report(o, c, status)
		}
	}

	if o.exitChildren {
		r.TerminateIfChild()
	}
	return reaped
}

// collect reaps c and records its status in one step under mu, so that
// SignalChildren, which also holds mu, never signals a pid that has been
// released to the kernel. A blocking collect first waits for the exit without
// reaping. done is false when c is still running or its ordinal has been taken
// over in the meantime.
func (r *Runtime) collect(c Child, block bool) (status process.Status, done bool, err error) {
	if !block {
		return r.tryCollect(c)
	}
	err = process.AwaitExit(c.Pid)
	if errors.Is(err, errors.ErrUnsupported) {
		return r.pollCollect(c)
	}
	if err != nil {
		return process.Status{}, false, err
	}
	return r.tryCollect(c)
}

func (r *Runtime) tryCollect(c Child) (process.Status, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, done, err := process.Wait(c.Pid, false)
	if err != nil || !done {
		return status, false, err
	}
	return status, r.markReapedLocked(c, status.Code), nil
}

const maxCollectPoll = 50 * time.Millisecond

func (r *Runtime) pollCollect(c Child) (process.Status, bool, error) {
	delay := time.Millisecond
	for {
		status, done, err := r.tryCollect(c)
		if err != nil || done {
			return status, done, err
		}
		if !r.tracks(c) {
			return status, false, nil
		}
		time.Sleep(delay)
		delay = min(2*delay, maxCollectPoll)
	}
}

// tracks reports whether c still occupies its ordinal unreaped.
func (r *Runtime) tracks(c Child) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.index[c.Ordinal]
	return ok && r.children[pos].Pid == c.Pid && !r.children[pos].Reaped
}

// markReaped records the status unless the ordinal was taken over by a
// replacement in the meantime.
func (r *Runtime) markReaped(c Child, status int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.markReapedLocked(c, status)
}

func (r *Runtime) markReapedLocked(c Child, status int) bool {
	pos, ok := r.index[c.Ordinal]
	if !ok || r.children[pos].Pid != c.Pid || r.children[pos].Reaped {
		return false
	}
	r.children[pos].Reaped = true
	r.children[pos].Status = status
	return true
}

func (r *Runtime) report(o reapOptions, c Child, status process.Status) {
	evt := Event{Ordinal: c.Ordinal, Pid: c.Pid, Status: status.Code}
	fn := o.onSuccess
	if status.Success() {
		evt.Type = EventTypeExited
		evt.Message = fmt.Sprintf("ordinal %d exited", c.Ordinal)
	} else {
		evt.Type = EventTypeFailed
		evt.Message = fmt.Sprintf("ordinal %d exited with status %d", c.Ordinal, status.Code)
		fn = o.onError
	}
	r.emit(evt)
	if fn != nil {
		fn(r, c.Ordinal, c.Pid, status.Code)
	}
}

// SignalChildren delivers sig to the process group of every child that has
// not been reaped, so processes started by the children receive it too.
func (r *Runtime) SignalChildren(sig syscall.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.id != 0 {
		return nil
	}
	var errs []error
	for _, c := range r.children {
		if c.Reaped {
			continue
		}
		if err := process.KillGroup(c.Pid, sig); err != nil {
			errs = append(errs, fmt.Errorf("ordinal %d: %w", c.Ordinal, err))
		}
	}
	return errors.Join(errs...)
}
