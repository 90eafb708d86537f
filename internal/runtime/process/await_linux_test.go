//go:build linux

package process

import (
	"errors"
	"testing"
)

func TestAwaitExitLeavesChildUnreaped(t *testing.T) {
	pid, err := Start(Spec{Name: exitHelper, Args: []string{"7"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := AwaitExit(pid); err != nil {
		t.Fatalf("await exit: %v", err)
	}
	if !Alive(pid) {
		t.Fatalf("exited child %d should stay a zombie until collected", pid)
	}

	status, done, err := Wait(pid, false)
	if err != nil || !done {
		t.Fatalf("collect after await: done=%v err=%v", done, err)
	}
	if status.Code != 7 {
		t.Fatalf("unexpected status: %+v", status)
	}

	if err := AwaitExit(pid); !errors.Is(err, ErrNotChild) {
		t.Fatalf("expected ErrNotChild after collection, got %v", err)
	}
}
