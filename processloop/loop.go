package processloop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"
)

const tracerName = "github.com/joeycumines/go-processloop/processloop"

// Loop repeatedly invokes Hooks.Tick until stopped, reacting to signals,
// refreshing state on demand, and running cleanup on the way out.
//
// Control methods (Stop, Update, Join) are safe to call from any goroutine,
// including hooks and signal handling. A Loop must be constructed with New,
// and runs at most once.
type Loop struct {
	// Prevent copying
	_ [0]func()

	hooks      Hooks
	logger     *logiface.Logger[logiface.Event]
	observer   Observer
	tracer     trace.Tracer
	pacer      *rate.Limiter
	errLimiter *catrate.Limiter

	// stopCtx is canceled by Stop, to cut frame pacing short
	stopCtx    context.Context
	stopCancel context.CancelFunc

	// closed once the run has ended, after which err is immutable
	done     chan struct{}
	doneOnce sync.Once
	err      error

	worker  *Worker
	process *Process

	processName string
	signals     []os.Signal

	flags flags
	state lifecycle

	loopGoroutineID atomic.Uint64

	handleMu sync.Mutex

	suppressErrors bool
}

// New creates a Loop driving the given hooks. The returned loop requests an
// update before its first tick.
func New(hooks Hooks, opts ...Option) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		hooks:          hooks,
		logger:         cfg.logger,
		observer:       cfg.observer,
		processName:    cfg.processName,
		signals:        mergeSignals(DefaultSignals(), cfg.signals),
		suppressErrors: cfg.suppressErrors,
		done:           make(chan struct{}),
	}

	if l.observer == nil {
		l.observer = nopObserver{}
	}

	provider := cfg.tracerProvider
	if provider == nil {
		provider = noop.NewTracerProvider()
	}
	l.tracer = provider.Tracer(tracerName)

	if cfg.frameInterval > 0 {
		l.pacer = rate.NewLimiter(rate.Every(cfg.frameInterval), 1)
	}

	if len(cfg.errorLogRates) != 0 {
		if l.errLimiter, err = newErrorLimiter(cfg.errorLogRates); err != nil {
			return nil, err
		}
	}

	l.stopCtx, l.stopCancel = context.WithCancel(context.Background())
	l.flags.requestUpdate()
	l.flags.previousTick.Store(int64(time.Second))

	return l, nil
}

func newErrorLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processloop: invalid error log rates: %v", r)
		}
	}()
	return catrate.NewLimiter(rates), nil
}

// Start runs the loop on the calling goroutine, and blocks until it
// terminates. Bound signals are handled for the duration of the run.
//
// A nil error is returned on graceful termination, including after
// cancellation of ctx, which is treated as an interrupt: the loop exits
// without running the cleanup or exit hooks.
func (l *Loop) Start(ctx context.Context) error {
	return l.run(ctx, true)
}

// Stop requests that the loop exit at the next tick boundary. It does not
// wait.
func (l *Loop) Stop() {
	l.flags.mustExit.Store(true)
	l.stopCancel()
}

// Update requests that Hooks.Update run before the next tick.
func (l *Loop) Update() {
	l.flags.requestUpdate()
}

// Join stops the loop, then waits for any worker started by StartThreaded
// or StartProcess. A process worker is sent SIGTERM (once) before waiting.
// Calls made from the loop's own goroutine never wait. The worker's result
// is returned, and is the same for repeated calls.
func (l *Loop) Join() error {
	l.logger.Notice().Log("gracefully exiting main event loop")
	l.Stop()

	if l.isLoopGoroutine() {
		return nil
	}

	l.handleMu.Lock()
	worker, process := l.worker, l.process
	l.handleMu.Unlock()

	var err error
	if worker != nil {
		err = worker.Wait()
	}
	if process != nil {
		err = errors.Join(err, process.terminate())
	}
	return err
}

// Done returns a channel that is closed once the run has ended, for any
// reason.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Err returns the result of the run, once Done is closed.
func (l *Loop) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

// Exited reports whether the run has left its tick loop.
func (l *Loop) Exited() bool { return l.flags.exitSignaled.Load() }

// MustExit reports whether Stop has been called.
func (l *Loop) MustExit() bool { return l.flags.mustExit.Load() }

// NeedsUpdate reports whether an update is pending.
func (l *Loop) NeedsUpdate() bool { return l.flags.needsUpdate() }

// PreviousTickDuration returns the time taken by the most recent call to
// Hooks.Tick. It is one second until the first tick completes.
func (l *Loop) PreviousTickDuration() time.Duration {
	return time.Duration(l.flags.previousTick.Load())
}

// State returns the current lifecycle state.
func (l *Loop) State() LoopState { return l.state.Load() }

// Signals returns the bound signal set.
func (l *Loop) Signals() []os.Signal {
	return append([]os.Signal(nil), l.signals...)
}

// run implements the start protocol, bindSignals being true only for the
// primary control flow (inline or process child).
func (l *Loop) run(ctx context.Context, bindSignals bool) error {
	if !l.state.TryTransition(StateAwake, StateRunning) {
		if l.state.Load() == StateTerminated {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}

	l.loopGoroutineID.Store(getGoroutineID())
	defer l.loopGoroutineID.Store(0)

	err := l.runLoop(ctx, bindSignals)
	l.terminate(err)
	return err
}

func (l *Loop) terminate(err error) {
	l.doneOnce.Do(func() {
		l.flags.exitSignaled.Store(true)
		l.err = err
		l.state.Store(StateTerminated)
		close(l.done)
		l.observer.LoopExited(err)
	})
}

func (l *Loop) runLoop(ctx context.Context, bindSignals bool) error {
	l.logger.Debug().Log("initializing main event loop")
	if err := l.hooks.setup(ctx); err != nil {
		l.logger.Crit().Err(err).Log("FATAL: exception during setup")
		return fmt.Errorf("%w: %w", ErrSetupFailed, err)
	}
	l.logger.Debug().Log("initialization completed")

	if bindSignals {
		defer l.bindSignals()()
	}

	l.logger.Debug().Log("entering main event loop")
	for {
		if l.flags.exitSignaled.Load() {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return l.interrupt(err)
		}

		if l.flags.mustExit.Load() {
			return l.shutdown(ctx)
		}

		if !l.pace(ctx) {
			// re-evaluate the exit conditions
			continue
		}

		if exit, err := l.step(ctx); exit {
			return err
		}
	}
}

// step performs a pending update then the per-tick work, returning true if
// the loop must end, with the error to return to the starter.
func (l *Loop) step(ctx context.Context) (bool, error) {
	ctx, span := l.tracer.Start(ctx, "processloop.tick")
	defer span.End()

	if l.flags.needsUpdate() {
		l.update(ctx)
	}

	started := time.Now()
	err := l.hooks.tick(ctx)
	elapsed := time.Since(started)
	l.flags.previousTick.Store(int64(elapsed))
	l.observer.TickCompleted(elapsed, err)

	if err == nil {
		return false, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	return l.tickFailed(ctx, err)
}

func (l *Loop) tickFailed(ctx context.Context, err error) (bool, error) {
	if errors.Is(err, ErrNotImplemented) {
		l.logger.Crit().Err(err).Log("FATAL: tick hook not implemented")
		return true, err
	}

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return true, l.interrupt(ctxErr)
	}

	escalate, hookErr := l.hooks.onError(ctx, err)
	if hookErr != nil {
		err = errors.Join(err, hookErr)
	}
	if !escalate {
		l.logSwallowed("tick", err, "tick failed")
		return false, nil
	}

	l.logger.Err().Err(err).Log("tick failed, cleaning up")
	if cleanupErr := l.hooks.cleanup(ctx, false); cleanupErr != nil {
		err = errors.Join(err, fmt.Errorf("%w: %w", ErrCleanupFailed, cleanupErr))
	}

	if l.flags.mustExit.Load() {
		l.logger.Info().Err(err).Log("tick failure not raised, loop is exiting")
		return true, nil
	}

	if l.suppressErrors {
		l.logger.Warning().Err(err).Log("tick failure suppressed")
		return true, nil
	}

	return true, fmt.Errorf("%w: %w", ErrTickFailed, err)
}

// update runs the update hook, marking the observed request as handled
// regardless of the outcome.
func (l *Loop) update(ctx context.Context) {
	ctx, span := l.tracer.Start(ctx, "processloop.update")
	defer span.End()

	requested := l.flags.updateRequested.Load()
	defer l.flags.updateHandled.Store(requested)

	err := l.hooks.update(ctx)
	l.observer.UpdateCompleted(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.logSwallowed("update", err, "FATAL: uncaught exception in update hook")
	}
}

// shutdown is the graceful exit path.
func (l *Loop) shutdown(ctx context.Context) error {
	l.logger.Debug().Log("cleaning up and exiting")

	if err := l.hooks.cleanup(ctx, true); err != nil {
		l.logger.Crit().Err(err).Log("FATAL: cleanup failed")
		return fmt.Errorf("%w: %w", ErrCleanupFailed, err)
	}

	if err := l.hooks.exit(ctx); err != nil {
		l.logger.Crit().Err(err).Log("FATAL: exit hook failed")
		return fmt.Errorf("%w: %w", ErrExitFailed, err)
	}

	return nil
}

// interrupt is the exit path for cancellation of the run's context. The
// loop is marked as exited before joining any worker.
func (l *Loop) interrupt(cause error) error {
	l.logger.Info().Err(cause).Log("main event loop interrupted")
	l.flags.exitSignaled.Store(true)
	if err := l.Join(); err != nil {
		l.logger.Warning().Err(err).Log("worker failed during interrupt")
	}
	return nil
}

// pace blocks until the next tick may start, returning false if the wait
// was cut short by Stop or ctx. The wait always sleeps, even if it will
// outlast a deadline on ctx.
func (l *Loop) pace(ctx context.Context) bool {
	if l.pacer == nil {
		return true
	}

	r := l.pacer.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		return true
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
	case <-l.stopCtx.Done():
	}

	// return the unused token
	r.Cancel()
	return false
}

// logSwallowed logs a failure that does not affect the loop, throttled per
// category.
func (l *Loop) logSwallowed(category string, err error, msg string) {
	b := l.logger.Err()
	if !b.Enabled() {
		return
	}
	if _, ok := l.errLimiter.Allow(category); !ok {
		b.Release()
		return
	}
	b.Err(err).Str("hook", category).Log(msg)
}
