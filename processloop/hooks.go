package processloop

import (
	"context"
	"os"
)

// Hooks holds the application callbacks driven by a Loop. All fields are
// optional, but a Loop without Tick fails with ErrNotImplemented as soon as
// its first tick runs.
//
// Hooks are always invoked from the goroutine running the loop, except
// Signal, which is invoked from the signal delivery goroutine. Panics are
// recovered and reported as a *PanicError returned by the hook.
type Hooks struct {
	// Setup runs once, before signals are bound. A failure aborts the run
	// without invoking any other hook.
	Setup func(ctx context.Context) error

	// Tick is the per-tick work. Returning an error that wraps
	// ErrNotImplemented terminates the loop regardless of OnError.
	Tick func(ctx context.Context) error

	// Update refreshes application state, before the next tick, after
	// Loop.Update was called (including once before the first tick).
	// Failures are logged and otherwise ignored.
	Update func(ctx context.Context) error

	// OnError decides whether a tick failure escalates. Returning false
	// swallows the failure and the loop continues. Defaults to always true.
	OnError func(ctx context.Context, err error) bool

	// Cleanup runs before Exit on graceful termination (graceful=true), and
	// after an escalated tick failure (graceful=false).
	Cleanup func(ctx context.Context, graceful bool) error

	// Exit runs after Cleanup, on graceful termination only.
	Exit func(ctx context.Context) error

	// Signal may claim a received signal, returning true to skip the default
	// handling (SIGHUP updates, SIGTERM and SIGINT join).
	Signal func(l *Loop, sig os.Signal) bool
}

func (x *Hooks) setup(ctx context.Context) (err error) {
	if x.Setup == nil {
		return nil
	}
	defer recoverHook("setup", &err)
	return x.Setup(ctx)
}

func (x *Hooks) tick(ctx context.Context) (err error) {
	if x.Tick == nil {
		return ErrNotImplemented
	}
	defer recoverHook("tick", &err)
	return x.Tick(ctx)
}

func (x *Hooks) update(ctx context.Context) (err error) {
	if x.Update == nil {
		return nil
	}
	defer recoverHook("update", &err)
	return x.Update(ctx)
}

// onError reports a panicking error hook as an escalation.
func (x *Hooks) onError(ctx context.Context, tickErr error) (escalate bool, err error) {
	if x.OnError == nil {
		return true, nil
	}
	defer func() {
		if r := recover(); r != nil {
			escalate = true
			err = &PanicError{Value: r, Hook: "error"}
		}
	}()
	return x.OnError(ctx, tickErr), nil
}

func (x *Hooks) cleanup(ctx context.Context, graceful bool) (err error) {
	if x.Cleanup == nil {
		return nil
	}
	defer recoverHook("cleanup", &err)
	return x.Cleanup(ctx, graceful)
}

func (x *Hooks) exit(ctx context.Context) (err error) {
	if x.Exit == nil {
		return nil
	}
	defer recoverHook("exit", &err)
	return x.Exit(ctx)
}

func (x *Hooks) signal(l *Loop, sig os.Signal) (handled bool, err error) {
	if x.Signal == nil {
		return false, nil
	}
	defer recoverHook("signal", &err)
	return x.Signal(l, sig), nil
}

func recoverHook(hook string, err *error) {
	if r := recover(); r != nil {
		*err = &PanicError{Value: r, Hook: hook}
	}
}
