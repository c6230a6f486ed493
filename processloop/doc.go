// Package processloop provides a reusable main loop for long-running
// processes: it repeatedly invokes application work, reacts to OS signals,
// refreshes state on demand, and terminates gracefully or fatally under
// fixed rules.
//
// # Lifecycle
//
// A [Loop] is built by [New] from a [Hooks] value, and runs at most once.
// A run performs [Hooks.Setup], binds signals (primary control flow only),
// then ticks until an exit condition is observed. Each tick:
//  1. leaves the loop if the run has already been marked as exited
//  2. runs [Hooks.Cleanup] (graceful) and [Hooks.Exit] then leaves, if
//     [Loop.Stop] was called
//  3. runs [Hooks.Update], if [Loop.Update] was called (once at startup)
//  4. runs and times [Hooks.Tick]
//
// # Failures
//
// Setup failures abort the run, and no other hook runs. Update failures are
// logged, and never end the run. Tick failures are passed to [Hooks.OnError],
// which may swallow them, otherwise [Hooks.Cleanup] runs (not graceful) and
// the failure is returned by the run, unless [Loop.Stop] was already called
// or [WithSuppressErrors] is enabled. [ErrNotImplemented] always ends the
// run. Cancellation of the run's context is an interrupt, not an error.
//
// # Launch Modes
//
//   - [Loop.Start] runs inline, on the calling goroutine
//   - [Loop.StartThreaded] runs on a new goroutine, returning a [Worker]
//   - [Loop.StartProcess] runs in a re-executed child process, returning a
//     [Process], see [Register] and [RunChild]
//
// [Loop.Join] stops the loop and waits for any worker, including a child
// process, which is first sent SIGTERM.
//
// # Signals
//
// By default SIGTERM, SIGHUP and SIGINT are bound, see [WithSignals]. SIGHUP
// requests an update, while SIGTERM and SIGINT join the loop. Signals are
// only bound by inline runs and child processes, as handlers are
// process-wide. A supervisor of a threaded loop may forward the signals it
// receives with [Loop.HandleSignal].
//
// # Usage
//
//	loop, err := processloop.New(processloop.Hooks{
//	    Tick: func(ctx context.Context) error {
//	        return doWork(ctx)
//	    },
//	}, processloop.WithFrameInterval(time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := loop.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
package processloop
