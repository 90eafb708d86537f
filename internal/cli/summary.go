package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	units "github.com/docker/go-units"

	forkrt "github.com/Paintersrp/forkrun/internal/runtime"
)

// runSummary accumulates the outcome of every worker from runtime events. It
// is fed by a single goroutine.
type runSummary struct {
	workers map[int]*workerOutcome
}

type workerOutcome struct {
	ordinal  int
	pid      int
	started  time.Time
	finished time.Time
	status   int
	done     bool
	lost     bool
	replaced int
}

func newRunSummary() *runSummary {
	return &runSummary{workers: make(map[int]*workerOutcome)}
}

func (s *runSummary) apply(evt forkrt.Event) {
	if evt.Ordinal <= 0 {
		return
	}
	w := s.workers[evt.Ordinal]
	if w == nil {
		w = &workerOutcome{ordinal: evt.Ordinal}
		s.workers[evt.Ordinal] = w
	}
	switch evt.Type {
	case forkrt.EventTypeSpawned:
		w.pid = evt.Pid
		w.started = evt.Timestamp
		w.finished = time.Time{}
		w.done = false
		w.lost = false
		w.status = 0
	case forkrt.EventTypeReplaced:
		w.replaced++
	case forkrt.EventTypeExited, forkrt.EventTypeFailed, forkrt.EventTypeLost:
		if evt.Pid != w.pid {
			return
		}
		w.finished = evt.Timestamp
		w.status = evt.Status
		w.done = true
		w.lost = evt.Type == forkrt.EventTypeLost
	}
}

// failures counts workers that exited with a nonzero status. A lost worker
// counts as failed since its status is unknown.
func (s *runSummary) failures() int {
	n := 0
	for _, w := range s.workers {
		if w.done && w.status != 0 {
			n++
		}
	}
	return n
}

func (s *runSummary) total() int {
	return len(s.workers)
}

func (s *runSummary) render(out io.Writer) error {
	ordinals := make([]int, 0, len(s.workers))
	for ordinal := range s.workers {
		ordinals = append(ordinals, ordinal)
	}
	sort.Ints(ordinals)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ORDINAL\tPID\tRESULT\tSTATUS\tREPLACED\tRUNTIME")
	for _, ordinal := range ordinals {
		worker := s.workers[ordinal]
		result := "running"
		status := "-"
		switch {
		case worker.lost:
			result = "lost"
		case worker.done:
			status = strconv.Itoa(worker.status)
			result = "ok"
			if worker.status != 0 {
				result = "failed"
			}
		}
		elapsed := "-"
		if !worker.started.IsZero() && !worker.finished.IsZero() {
			elapsed = units.HumanDuration(worker.finished.Sub(worker.started))
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d\t%s\n", ordinal, worker.pid, result, status, worker.replaced, elapsed)
	}
	return w.Flush()
}
