package runtime

import "github.com/Paintersrp/forkrun/internal/runtime/process"

// SetPriority sets the nice value of the calling process when ordinal is its
// own. Priorities of other processes are never touched, and OS refusals are
// ignored.
func (r *Runtime) SetPriority(ordinal, prio int) {
	if ordinal != r.ID() {
		return
	}
	_ = process.SetPriority(prio)
}

// Priority returns the live nice value of the calling process when ordinal is
// its own. The boolean is false for any other ordinal or when the value
// cannot be read.
func (r *Runtime) Priority(ordinal int) (int, bool) {
	if ordinal != r.ID() {
		return 0, false
	}
	prio, err := process.GetPriority()
	if err != nil {
		return 0, false
	}
	return prio, true
}
