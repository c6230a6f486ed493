package processloop

import (
	"sync/atomic"
)

// LoopState represents the lifecycle stage of a [Loop].
//
// State Machine:
//
//	StateAwake (0) → StateRunning (1)       [Start, StartThreaded, RunChild]
//	StateRunning (1) → StateTerminated (2)  [tick loop left, for any reason]
//	StateTerminated (2) → (terminal)
//
// A Loop runs at most once. Restarting requires a new Loop.
type LoopState uint32

const (
	// StateAwake indicates the loop has been created but not started.
	StateAwake LoopState = iota
	// StateRunning indicates setup or the tick loop is in progress.
	StateRunning
	// StateTerminated indicates the loop has left its tick loop.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// lifecycle is a lock-free state holder.
//
// Use TryTransition (CAS) to enter StateRunning, and Store for the terminal
// state only.
type lifecycle struct {
	v atomic.Uint32
}

func (s *lifecycle) Load() LoopState {
	return LoopState(s.v.Load())
}

func (s *lifecycle) Store(state LoopState) {
	s.v.Store(uint32(state))
}

func (s *lifecycle) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// flags holds the state shared between the loop and its controllers
// (signal handling, Stop/Update callers).
//
// An update is pending while updateRequested differs from updateHandled.
// Only the loop writes updateHandled, after the update hook returns, so a
// request made while the hook is running is never lost.
// mustExit is monotonic. exitSignaled is set exactly once per run.
type flags struct {
	updateRequested atomic.Uint64
	updateHandled   atomic.Uint64
	mustExit        atomic.Bool
	exitSignaled    atomic.Bool
	// nanoseconds
	previousTick atomic.Int64
}

func (x *flags) requestUpdate() {
	x.updateRequested.Add(1)
}

func (x *flags) needsUpdate() bool {
	return x.updateRequested.Load() != x.updateHandled.Load()
}
