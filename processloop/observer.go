package processloop

import (
	"os"
	"time"
)

// Observer receives notifications about loop activity, e.g. to export
// metrics. Methods are called synchronously from the loop (or signal)
// goroutine, and must not block.
type Observer interface {
	// TickCompleted is called after every invocation of Hooks.Tick.
	TickCompleted(duration time.Duration, err error)
	// UpdateCompleted is called after every invocation of Hooks.Update.
	UpdateCompleted(err error)
	// SignalReceived is called for every bound signal delivered.
	SignalReceived(sig os.Signal)
	// LoopExited is called once, when the run has ended, with the error
	// returned to the starter (nil for graceful termination).
	LoopExited(err error)
}

type nopObserver struct{}

func (nopObserver) TickCompleted(time.Duration, error) {}

func (nopObserver) UpdateCompleted(error) {}

func (nopObserver) SignalReceived(os.Signal) {}

func (nopObserver) LoopExited(error) {}
