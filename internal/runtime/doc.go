/*
Package runtime coordinates a tree of child processes spawned from the running
binary.

A Runtime assigns ordinals to the children it spawns, keeps the ordinal to pid
registry of its direct children, reaps them with a blocking (Wait) or polling
(Listen) protocol and controls the scheduling priority of its own process.
Ordinal 0 always denotes the root of a tree; every child knows itself by the
ordinal it was spawned with.

Go programs cannot fork, so spawning re-executes the current binary with the
name of a registered Handler in argv[0]. The child side of the spawn happens in
Init, which every program using this package must call first thing in main (or
TestMain):

	var worker = runtime.Register("worker", func(rt *runtime.Runtime) {
		fmt.Println("child", rt.ID())
	})

	func main() {
		runtime.Init()

		rt := runtime.New()
		if err := rt.Run(worker, nil, 4); err != nil {
			log.Fatal(err)
		}
		rt.Wait()
	}

In the child, Init rebuilds the Runtime from the environment, applies its
priority, runs the handler and exits with status 0. A handler that panics, a
child whose handler is not registered, and a spawn that cannot start the child
all terminate the affected process with ExitForkFailure.
*/
package runtime
