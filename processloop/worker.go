package processloop

import (
	"context"
	"sync"
)

// nonDaemonWorkers tracks running workers which were not started as
// daemons, see WaitWorkers.
var nonDaemonWorkers struct {
	m map[*Worker]struct{}
	sync.Mutex
}

// Worker is a handle to a Loop running on its own goroutine, see
// Loop.StartThreaded.
type Worker struct {
	loop    *Loop
	ctx     context.Context
	started chan struct{}
	done    chan struct{}
	err     error
	mu      sync.Mutex
	daemon  bool
	running bool
}

// StartThreaded arranges for the loop to run on a new goroutine, returning
// a handle that Join waits on. Signals are never bound by threaded runs,
// as signal handling is process-wide. If deferred, the goroutine is not
// started until Worker.Start is called. Unless daemon, the worker is
// tracked by WaitWorkers.
func (l *Loop) StartThreaded(ctx context.Context, deferred, daemon bool) *Worker {
	w := &Worker{
		loop:    l,
		ctx:     ctx,
		started: make(chan struct{}),
		done:    make(chan struct{}),
		daemon:  daemon,
	}

	l.handleMu.Lock()
	l.worker = w
	l.handleMu.Unlock()

	if !deferred {
		_ = w.Start()
	}

	return w
}

// Start launches a deferred worker.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return ErrWorkerAlreadyStarted
	}
	w.running = true

	if !w.daemon {
		trackWorker(w)
	}
	close(w.started)

	go func() {
		defer func() {
			close(w.done)
			if !w.daemon {
				untrackWorker(w)
			}
		}()
		w.err = w.loop.run(w.ctx, false)
	}()

	return nil
}

// Daemon reports whether the worker is excluded from WaitWorkers.
func (w *Worker) Daemon() bool { return w.daemon }

// Done returns a channel that is closed once the worker's run has returned.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Wait blocks until the worker's run returns, and returns its result.
// Waiting on a deferred worker that was never started returns
// ErrWorkerNotStarted.
func (w *Worker) Wait() error {
	select {
	case <-w.started:
	default:
		return ErrWorkerNotStarted
	}
	<-w.done
	return w.err
}

// WaitWorkers blocks until every non-daemon worker has returned, or ctx is
// done. Goroutines never keep a process alive, so a main function that
// starts non-daemon workers should call this before returning.
func WaitWorkers(ctx context.Context) error {
	for {
		w := anyTrackedWorker()
		if w == nil {
			return nil
		}
		select {
		case <-w.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func trackWorker(w *Worker) {
	nonDaemonWorkers.Lock()
	defer nonDaemonWorkers.Unlock()
	if nonDaemonWorkers.m == nil {
		nonDaemonWorkers.m = make(map[*Worker]struct{})
	}
	nonDaemonWorkers.m[w] = struct{}{}
}

func untrackWorker(w *Worker) {
	nonDaemonWorkers.Lock()
	defer nonDaemonWorkers.Unlock()
	delete(nonDaemonWorkers.m, w)
}

func anyTrackedWorker() *Worker {
	nonDaemonWorkers.Lock()
	defer nonDaemonWorkers.Unlock()
	for w := range nonDaemonWorkers.m {
		return w
	}
	return nil
}
