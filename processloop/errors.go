package processloop

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrLoopAlreadyRunning is returned when a loop is started more than once concurrently.
	ErrLoopAlreadyRunning = errors.New("processloop: loop is already running")

	// ErrLoopTerminated is returned when a finished loop is started again.
	ErrLoopTerminated = errors.New("processloop: loop has been terminated")

	// ErrNotImplemented indicates the per-tick hook is missing. It is always
	// fatal, and bypasses Hooks.OnError.
	ErrNotImplemented = errors.New("processloop: tick hook not implemented")

	// ErrSetupFailed wraps failures of Hooks.Setup.
	ErrSetupFailed = errors.New("processloop: setup failed")

	// ErrTickFailed wraps tick failures escalated by Hooks.OnError.
	ErrTickFailed = errors.New("processloop: tick failed")

	// ErrCleanupFailed wraps failures of Hooks.Cleanup.
	ErrCleanupFailed = errors.New("processloop: cleanup failed")

	// ErrExitFailed wraps failures of Hooks.Exit.
	ErrExitFailed = errors.New("processloop: exit hook failed")

	// ErrWorkerNotStarted is returned when waiting on a deferred worker that
	// was never started.
	ErrWorkerNotStarted = errors.New("processloop: worker not started")

	// ErrWorkerAlreadyStarted is returned by a second Worker.Start or Process.Start.
	ErrWorkerAlreadyStarted = errors.New("processloop: worker already started")

	// ErrProcessNotRegistered is returned by StartProcess and RunChild when no
	// factory is registered under the loop's process name.
	ErrProcessNotRegistered = errors.New("processloop: process not registered")
)

// PanicError wraps a value recovered from a panicking hook.
type PanicError struct {
	Value any
	Hook  string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("processloop: panic in %s hook: %v", e.Hook, e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type.
// This enables use with [errors.Is] and [errors.As] for error matching
// through the cause chain.
//
// If the panic Value is not an error (e.g., a string or other type),
// returns nil.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
