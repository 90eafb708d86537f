package runtime

import (
	"bytes"
	"errors"
	"os"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/Paintersrp/forkrun/internal/runtime/process"
)

type exitCode int

// captureExit replaces the process exit with a panic carrying the status.
func captureExit(t *testing.T) {
	t.Helper()
	prev := exit
	exit = func(code int) { panic(exitCode(code)) }
	t.Cleanup(func() { exit = prev })
}

func expectExit(t *testing.T, want int, fn func()) {
	t.Helper()
	defer func() {
		rec := recover()
		code, ok := rec.(exitCode)
		if !ok {
			t.Fatalf("expected exit, recovered %v", rec)
		}
		if int(code) != want {
			t.Fatalf("unexpected exit status: got %d want %d", code, want)
		}
	}()
	fn()
}

func TestRunAssignsOrdinalsInSpawnOrder(t *testing.T) {
	path := outputFile(t)
	rt := New()

	err := rt.Run(labelHandler, func(r *Runtime) {
		appendLine(path, strconv.Itoa(r.ID()))
	}, 3, WithArgs(path, ""))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if got, want := ordinals(rt.PidMap()), []int{1, 2, 3}; !slices.Equal(got, want) {
		t.Fatalf("unexpected ordinals: got %v want %v", got, want)
	}
	if n := rt.Wait(); n != 3 {
		t.Fatalf("expected 3 children reaped, got %d", n)
	}

	if got, want := readLines(t, path), []string{"0", "1", "2", "3"}; !slices.Equal(got, want) {
		t.Fatalf("unexpected output: got %v want %v", got, want)
	}
}

func TestRunWithTwoChildren(t *testing.T) {
	path := outputFile(t)
	rt := New()

	if err := rt.Run(labelHandler, func(r *Runtime) {
		appendLine(path, strconv.Itoa(r.ID()))
	}, 2, WithArgs(path, "")); err != nil {
		t.Fatalf("run: %v", err)
	}
	rt.Wait()

	if got, want := readLines(t, path), []string{"0", "1", "2"}; !slices.Equal(got, want) {
		t.Fatalf("unexpected output: got %v want %v", got, want)
	}
}

func TestRunRejectsInvalidForkCount(t *testing.T) {
	for _, count := range []int{0, -1} {
		rt := New()
		called := false
		err := rt.Run(labelHandler, func(*Runtime) { called = true }, count)
		if !errors.Is(err, ErrInvalidForkCount) {
			t.Fatalf("count %d: expected ErrInvalidForkCount, got %v", count, err)
		}
		if called {
			t.Fatalf("count %d: parent callback must not run", count)
		}
		if len(rt.PidMap()) != 0 || rt.NextOrdinal(false) != 1 {
			t.Fatalf("count %d: nothing should have been spawned", count)
		}
	}
}

func TestRunWithGarbageCollection(t *testing.T) {
	path := outputFile(t)
	rt := New(WithConfig(Config{PreGC: true}))

	if err := rt.Run(labelHandler, nil, 2, WithArgs(path, "")); err != nil {
		t.Fatalf("run: %v", err)
	}
	rt.Wait()

	if got, want := readLines(t, path), []string{"1", "2"}; !slices.Equal(got, want) {
		t.Fatalf("unexpected output: got %v want %v", got, want)
	}
}

func TestChildCannotGrowParentTree(t *testing.T) {
	path := outputFile(t)
	rt := New()

	if got := rt.SpawnChild(sameTreeHandler, 0, WithArgs(path)); got != 1 {
		t.Fatalf("expected ordinal 1, got %d", got)
	}
	rt.Wait()

	if got, want := readLines(t, path), []string{"child1 spawn=0 next=0"}; !slices.Equal(got, want) {
		t.Fatalf("unexpected output: got %v want %v", got, want)
	}
}

func TestNestedRuntimesFormIndependentTrees(t *testing.T) {
	path := outputFile(t)
	rt := New()

	err := rt.Run(nestedHandler, func(r *Runtime) {
		appendLine(path, "parent"+strconv.Itoa(r.ID()))
	}, 1, WithArgs(path))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	rt.Wait()

	want := []string{"child-child11", "child-parent10", "child1", "parent0"}
	if got := readLines(t, path); !slices.Equal(got, want) {
		t.Fatalf("unexpected output: got %v want %v", got, want)
	}
}

func TestTerminateStopsChildContinuation(t *testing.T) {
	path := outputFile(t)
	rt := New()

	rt.SpawnChild(terminateHandler, 0, WithArgs(path))

	var statuses []int
	rt.Wait(OnSuccess(func(_ *Runtime, _, _, status int) {
		statuses = append(statuses, status)
	}))

	if !slices.Equal(statuses, []int{0}) {
		t.Fatalf("expected a single successful exit, got %v", statuses)
	}
	if got := readLines(t, path); len(got) != 0 {
		t.Fatalf("write after terminate happened: %v", got)
	}
}

func TestThenExitChildrenParksChild(t *testing.T) {
	path := outputFile(t)
	rt := New()

	rt.SpawnChild(waitInChildHandler, 0, WithArgs(path))

	failures := 0
	rt.Wait(OnError(func(*Runtime, int, int, int) { failures++ }), ThenExitChildren())

	if failures != 0 {
		t.Fatalf("child should exit cleanly, got %d failures", failures)
	}
	if got := readLines(t, path); len(got) != 0 {
		t.Fatalf("child continued after waiting: %v", got)
	}
	if rt.IsChild() {
		t.Fatalf("root must survive ThenExitChildren")
	}
}

func TestHandlerPanicExitsWithForkFailure(t *testing.T) {
	rt := New()
	ordinal := rt.SpawnChild(panicHandler, 0)

	type outcome struct{ ordinal, status int }
	var failed []outcome
	rt.Wait(
		OnSuccess(func(_ *Runtime, o, _, status int) {
			t.Errorf("unexpected success for ordinal %d", o)
		}),
		OnError(func(_ *Runtime, o, _, status int) {
			failed = append(failed, outcome{o, status})
		}),
	)

	if len(failed) != 1 || failed[0] != (outcome{ordinal, ExitForkFailure}) {
		t.Fatalf("expected ordinal %d to fail with %d, got %+v", ordinal, ExitForkFailure, failed)
	}
}

func TestUnregisteredHandlerExitsWithForkFailure(t *testing.T) {
	env, err := childEnv(1, 0, Config{}, outputStdout)
	if err != nil {
		t.Fatalf("child env: %v", err)
	}
	pid, err := process.Start(process.Spec{Name: "runtime-test-unregistered", Env: env})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	status, _, err := process.Wait(pid, true)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if status.Code != ExitForkFailure {
		t.Fatalf("expected status %d, got %d", ExitForkFailure, status.Code)
	}
}

func TestWaitIsIdempotent(t *testing.T) {
	events := make(chan Event, 32)
	rt := New(WithEvents(events))

	rt.SpawnChild(exitHandler, 0, WithArgs("0"))
	rt.SpawnChild(exitHandler, 0, WithArgs("3"))

	successes, failures := 0, 0
	var failedStatus int
	opts := []ReapOption{
		OnSuccess(func(*Runtime, int, int, int) { successes++ }),
		OnError(func(_ *Runtime, _, _, status int) {
			failures++
			failedStatus = status
		}),
	}

	if n := rt.Wait(opts...); n != 2 {
		t.Fatalf("expected 2 reaped, got %d", n)
	}
	if successes != 1 || failures != 1 || failedStatus != 3 {
		t.Fatalf("unexpected callbacks: successes=%d failures=%d status=%d", successes, failures, failedStatus)
	}

	done := make(chan int, 1)
	go func() { done <- rt.Wait(opts...) }()
	select {
	case n := <-done:
		if n != 0 {
			t.Fatalf("second wait reaped %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second wait blocked")
	}
	if successes != 1 || failures != 1 {
		t.Fatalf("second wait re-invoked callbacks: successes=%d failures=%d", successes, failures)
	}

	for _, c := range rt.PidMap() {
		if !c.Reaped {
			t.Fatalf("ordinal %d not marked reaped", c.Ordinal)
		}
	}

	close(events)
	var types []EventType
	for evt := range events {
		types = append(types, evt.Type)
	}
	want := []EventType{EventTypeSpawned, EventTypeSpawned, EventTypeExited, EventTypeFailed}
	if !slices.Equal(types, want) {
		t.Fatalf("unexpected events: got %v want %v", types, want)
	}
}

func TestListenDoesNotBlock(t *testing.T) {
	rt := New()
	rt.SpawnChild(sleepHandler, 0, WithArgs("2s"))

	start := time.Now()
	if n := rt.Listen(); n != 0 {
		t.Fatalf("listen reaped %d children of a sleeping child", n)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("listen blocked for %s", elapsed)
	}
	if rt.Pending() != 1 {
		t.Fatalf("expected child to stay pending")
	}

	if n := rt.Wait(); n != 1 {
		t.Fatalf("wait should reap the sleeping child, got %d", n)
	}
	if rt.Pending() != 0 {
		t.Fatalf("expected nothing pending after wait")
	}
}

func TestListenSkipsRunningChildren(t *testing.T) {
	rt := New()
	rt.SpawnChild(sleepHandler, 0, WithArgs("2s"))
	rt.SpawnChild(exitHandler, 0, WithArgs("0"))

	var reaped []int
	collect := OnSuccess(func(_ *Runtime, ordinal, _, _ int) {
		reaped = append(reaped, ordinal)
	})

	deadline := time.Now().Add(1500 * time.Millisecond)
	for len(reaped) == 0 && time.Now().Before(deadline) {
		rt.Listen(collect)
		time.Sleep(20 * time.Millisecond)
	}
	if !slices.Equal(reaped, []int{2}) {
		t.Fatalf("expected only ordinal 2 to be reaped, got %v", reaped)
	}

	rt.Wait(collect)
	if !slices.Equal(reaped, []int{2, 1}) {
		t.Fatalf("expected ordinal 1 after wait, got %v", reaped)
	}
}

func TestReplacementKillsPreviousOccupant(t *testing.T) {
	events := make(chan Event, 32)
	rt := New(WithEvents(events))

	first := rt.SpawnChild(sleepHandler, 0, WithArgs("30s"))
	oldPid := rt.PidMap()[0].Pid

	second := rt.SpawnChild(sleepHandler, 0, WithOrdinal(first), WithArgs("30s"))
	if second != first {
		t.Fatalf("explicit ordinal not honoured: got %d want %d", second, first)
	}

	children := rt.PidMap()
	if len(children) != 1 {
		t.Fatalf("expected one registry entry, got %+v", children)
	}
	newPid := children[0].Pid
	if newPid == oldPid {
		t.Fatalf("registry still points to the replaced pid")
	}
	if process.Alive(oldPid) {
		t.Fatalf("previous occupant %d still running", oldPid)
	}

	var replaced *Event
	for len(events) > 0 {
		evt := <-events
		if evt.Type == EventTypeReplaced {
			replaced = &evt
		}
	}
	if replaced == nil || replaced.Pid != oldPid || replaced.Err != nil {
		t.Fatalf("expected replaced event for pid %d, got %+v", oldPid, replaced)
	}

	if err := rt.SignalChildren(syscall.SIGKILL); err != nil {
		t.Fatalf("signal children: %v", err)
	}
	var statuses []int
	rt.Wait(OnError(func(_ *Runtime, _, pid, status int) {
		if pid != newPid {
			t.Errorf("unexpected pid reaped: %d", pid)
		}
		statuses = append(statuses, status)
	}))
	if !slices.Equal(statuses, []int{128 + int(syscall.SIGKILL)}) {
		t.Fatalf("unexpected statuses: %v", statuses)
	}
}

func TestForkOnlyIgnoresExplicitOrdinal(t *testing.T) {
	rt := New()
	got := rt.ForkOnly(exitHandler, 0, WithOrdinal(9), WithArgs("0"))
	if got != 1 {
		t.Fatalf("expected allocated ordinal 1, got %d", got)
	}
	rt.Wait()
}

func TestChildPriority(t *testing.T) {
	current, ok := New().Priority(0)
	if !ok {
		t.Skip("priority not readable on this platform")
	}
	if current > 18 {
		t.Skipf("test process already runs at nice %d", current)
	}

	path := outputFile(t)
	rt := New(WithConfig(Config{Priority: map[int]int{1: 19}}))
	rt.SpawnChild(priorityHandler, 5, WithArgs(path))
	rt.SpawnChild(priorityHandler, 18, WithArgs(path))
	rt.Wait()

	want := []string{"1 19 true false", "2 18 true false"}
	if got := readLines(t, path); !slices.Equal(got, want) {
		t.Fatalf("unexpected priorities: got %v want %v", got, want)
	}
}

func TestForkFailureTerminatesWithReservedStatus(t *testing.T) {
	captureExit(t)
	prev := startProcess
	startProcess = func(process.Spec) (int, error) {
		return 0, errors.New("no more processes")
	}
	t.Cleanup(func() { startProcess = prev })

	var out bytes.Buffer
	rt := New(WithOutput(&out))
	expectExit(t, ExitForkFailure, func() {
		rt.SpawnChild(labelHandler, 0)
	})

	if !strings.Contains(out.String(), "fork ordinal 1: no more processes") {
		t.Fatalf("failure not reported, output %q", out.String())
	}
	if len(rt.PidMap()) != 0 {
		t.Fatalf("failed ordinal must not be recorded")
	}
}

func TestSpawnBeforeInitIsFatal(t *testing.T) {
	captureExit(t)
	initialized.Store(false)
	t.Cleanup(func() { initialized.Store(true) })

	var out bytes.Buffer
	rt := New(WithOutput(&out))
	expectExit(t, ExitForkFailure, func() {
		rt.SpawnChild(nil, 0)
	})
	if !strings.Contains(out.String(), ErrNotInitialized.Error()) {
		t.Fatalf("expected init error in output, got %q", out.String())
	}
}

func TestTerminatePrintsMessage(t *testing.T) {
	captureExit(t)
	var out bytes.Buffer
	rt := New(WithOutput(&out))

	expectExit(t, 7, func() {
		rt.Terminate(7, "bye")
	})
	if out.String() != "bye\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestTerminateIfChildOnRootIsNoop(t *testing.T) {
	captureExit(t)
	New().TerminateIfChild()

	rt := New()
	rt.id = 4
	expectExit(t, 0, rt.TerminateIfChild)
}

func TestNilHandlerChildExitsCleanly(t *testing.T) {
	rt := New()
	rt.SpawnChild(nil, 0)
	ok := false
	rt.Wait(OnSuccess(func(*Runtime, int, int, int) { ok = true }))
	if !ok {
		t.Fatalf("expected the no-op child to exit with status 0")
	}
}

func TestChildEnvRoundTrip(t *testing.T) {
	env, err := childEnv(4, 9, Config{PreGC: true, Priority: map[int]int{4: 2}}, outputStderr)
	if err != nil {
		t.Fatalf("child env: %v", err)
	}
	for _, kv := range env {
		key, value, _ := strings.Cut(kv, "=")
		t.Setenv(key, value)
	}
	prevArgs := os.Args
	os.Args = []string{"runtime-test", "a", "b"}
	t.Cleanup(func() { os.Args = prevArgs })

	rt, priority, err := childFromEnv()
	if err != nil {
		t.Fatalf("child from env: %v", err)
	}
	if rt.ID() != 4 || priority != 9 || !rt.Config().PreGC || rt.Config().Priority[4] != 2 {
		t.Fatalf("unexpected child runtime: id=%d priority=%d config=%+v", rt.ID(), priority, rt.Config())
	}
	if !slices.Equal(rt.Args(), []string{"a", "b"}) {
		t.Fatalf("unexpected args %v", rt.Args())
	}
	if rt.output() != os.Stderr {
		t.Fatalf("child messages should go to stderr")
	}
	for _, key := range []string{envOrdinal, envPriority, envConfig, envOutput} {
		if _, ok := os.LookupEnv(key); ok {
			t.Fatalf("protocol variable %s should be cleared", key)
		}
	}
}

func TestChildOutputStream(t *testing.T) {
	if got := childOutputStream(os.Stdout); got != outputStdout {
		t.Fatalf("stdout root: got %q", got)
	}
	if got := childOutputStream(os.Stderr); got != outputStderr {
		t.Fatalf("stderr root: got %q", got)
	}
	if got := childOutputStream(&bytes.Buffer{}); got != outputStderr {
		t.Fatalf("buffer root: got %q", got)
	}
}

func TestWithEnvReachesChild(t *testing.T) {
	path := outputFile(t)
	rt := New()

	rt.SpawnChild(envHandler, 0, WithArgs(path), WithEnv("RUNTIME_TEST_VALUE=from-parent"))
	rt.Wait()

	if got, want := readLines(t, path), []string{"from-parent false"}; !slices.Equal(got, want) {
		t.Fatalf("unexpected output: got %v want %v", got, want)
	}
}

func TestWaitReportsChildReapedElsewhereAsLost(t *testing.T) {
	events := make(chan Event, 8)
	rt := New(WithEvents(events))
	rt.SetPidMap([]Child{{Ordinal: 1, Pid: os.Getppid()}})

	called := false
	cb := func(*Runtime, int, int, int) { called = true }
	if n := rt.Wait(OnSuccess(cb), OnError(cb)); n != 0 {
		t.Fatalf("expected nothing reaped, got %d", n)
	}
	if called {
		t.Fatalf("callbacks must not run for a child reaped elsewhere")
	}

	children := rt.PidMap()
	if !children[0].Reaped || children[0].Status != -1 {
		t.Fatalf("unexpected registry entry: %+v", children[0])
	}
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if evt := <-events; evt.Type != EventTypeLost || evt.Ordinal != 1 || evt.Status != -1 {
		t.Fatalf("unexpected event: %+v", evt)
	}

	rt.Wait()
	if len(events) != 0 {
		t.Fatalf("a second wait must not report the child again")
	}
}

func TestSignalChildrenInterruptsBlockingWait(t *testing.T) {
	rt := New()
	rt.SpawnChild(sleepHandler, 0, WithArgs("30s"))
	rt.SpawnChild(sleepHandler, 0, WithArgs("30s"))

	signalled := make(chan error, 1)
	go func() {
		time.Sleep(100 * time.Millisecond)
		signalled <- rt.SignalChildren(syscall.SIGTERM)
	}()

	var statuses []int
	start := time.Now()
	n := rt.Wait(OnError(func(_ *Runtime, _, _, status int) {
		statuses = append(statuses, status)
	}))
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("wait was not interrupted: %s", elapsed)
	}
	if err := <-signalled; err != nil {
		t.Fatalf("signal children: %v", err)
	}
	if n != 2 || !slices.Equal(statuses, []int{143, 143}) {
		t.Fatalf("unexpected outcome: n=%d statuses=%v", n, statuses)
	}
	if rt.Pending() != 0 {
		t.Fatalf("expected no pending children")
	}
	if err := rt.SignalChildren(syscall.SIGKILL); err != nil {
		t.Fatalf("signalling after every child was reaped should do nothing, got %v", err)
	}
}
