//go:build unix

package processloop

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type fakeSignal string

func (s fakeSignal) String() string { return string(s) }

func (fakeSignal) Signal() {}

func TestSignalName(t *testing.T) {
	for _, tc := range [...]struct {
		sig  os.Signal
		name string
	}{
		{syscall.SIGHUP, "SIGHUP"},
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGUSR1, "SIGUSR1"},
		{syscall.SIGABRT, "SIGABRT"},
		{syscall.Signal(200), unknownSignal},
		{fakeSignal("custom"), unknownSignal},
		{nil, unknownSignal},
	} {
		assert.Equal(t, tc.name, SignalName(tc.sig), "%v", tc.sig)
	}
}

func TestParseSignal(t *testing.T) {
	for _, tc := range [...]struct {
		name string
		sig  syscall.Signal
	}{
		{"SIGUSR1", syscall.SIGUSR1},
		{"usr2", syscall.SIGUSR2},
		{" hup ", syscall.SIGHUP},
		{"15", syscall.SIGTERM},
	} {
		sig, err := ParseSignal(tc.name)
		if assert.NoError(t, err, tc.name) {
			assert.Equal(t, tc.sig, sig, tc.name)
		}
	}

	for _, name := range [...]string{"", "bogus", "SIG_IGN", "0", "999", "IOT"} {
		_, err := ParseSignal(name)
		var unknown *UnknownSignalError
		if assert.ErrorAs(t, err, &unknown, name) {
			assert.Contains(t, unknown.Error(), "unknown signal")
		}
	}
}

func TestSignalTable_Canonical(t *testing.T) {
	for sig, name := range signalNames {
		assert.NotContains(t, name, "SIG_")
		assert.Equal(t, sig, signalNumbers[name])
	}
}

func TestLoop_Signals(t *testing.T) {
	loop, err := New(Hooks{}, WithSignals(syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR1))
	require.NoError(t, err)
	assert.Equal(t, []os.Signal{syscall.SIGTERM, syscall.SIGHUP, syscall.SIGINT, syscall.SIGUSR1}, loop.Signals())

	loop, err = New(Hooks{})
	require.NoError(t, err)
	assert.Equal(t, DefaultSignals(), loop.Signals())
}

func TestLoop_HandleSignal(t *testing.T) {
	newLoop := func(t *testing.T, hook func(l *Loop, sig os.Signal) bool) (*Loop, *recordingObserver) {
		var observer recordingObserver
		logger, _ := newTestLogger()
		loop, err := New(Hooks{Signal: hook}, WithObserver(&observer), WithLogger(logger))
		require.NoError(t, err)
		// discard the startup update request
		loop.flags.updateHandled.Store(loop.flags.updateRequested.Load())
		require.False(t, loop.NeedsUpdate())
		return loop, &observer
	}

	t.Run("hangup updates", func(t *testing.T) {
		loop, observer := newLoop(t, nil)
		loop.HandleSignal(syscall.SIGHUP)
		assert.True(t, loop.NeedsUpdate())
		assert.False(t, loop.MustExit())
		assert.Equal(t, []os.Signal{syscall.SIGHUP}, observer.signals)
	})

	for _, sig := range [...]syscall.Signal{syscall.SIGTERM, syscall.SIGINT} {
		t.Run(SignalName(sig)+" joins", func(t *testing.T) {
			loop, _ := newLoop(t, nil)
			loop.HandleSignal(sig)
			assert.True(t, loop.MustExit())
			assert.False(t, loop.NeedsUpdate())
		})
	}

	t.Run("other signals are ignored", func(t *testing.T) {
		loop, observer := newLoop(t, nil)
		loop.HandleSignal(syscall.SIGUSR1)
		assert.False(t, loop.MustExit())
		assert.False(t, loop.NeedsUpdate())
		assert.Len(t, observer.signals, 1)
	})

	t.Run("hook claims signal", func(t *testing.T) {
		var claimed []os.Signal
		loop, _ := newLoop(t, func(l *Loop, sig os.Signal) bool {
			claimed = append(claimed, sig)
			return sig == syscall.SIGHUP
		})
		loop.HandleSignal(syscall.SIGHUP)
		assert.False(t, loop.NeedsUpdate())
		loop.HandleSignal(syscall.SIGTERM)
		assert.True(t, loop.MustExit())
		assert.Equal(t, []os.Signal{syscall.SIGHUP, syscall.SIGTERM}, claimed)
	})

	t.Run("panicking hook falls back to default", func(t *testing.T) {
		loop, _ := newLoop(t, func(l *Loop, sig os.Signal) bool {
			panic(errors.New("bad handler"))
		})
		loop.HandleSignal(syscall.SIGHUP)
		assert.True(t, loop.NeedsUpdate())
	})
}

func TestLoop_DeliveredSignals(t *testing.T) {
	var (
		loop     *Loop
		observer recordingObserver
		counts   hookCounts
		usr1     = make(chan struct{}, 1)
	)
	hooks := counts.hooks(func(ctx context.Context) error {
		switch counts.ticks {
		case 1:
			require.Equal(t, 1, counts.updates)
			require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGUSR1))
			<-usr1
			require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGHUP))
			waitFor(t, loop.NeedsUpdate)
		case 2:
			// exactly one update, before this tick
			require.Equal(t, 2, counts.updates)
			require.False(t, loop.NeedsUpdate())
			require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGTERM))
			waitFor(t, loop.MustExit)
		default:
			t.Error("unexpected tick")
		}
		return nil
	})
	hooks.Signal = func(l *Loop, sig os.Signal) bool {
		if sig == syscall.SIGUSR1 {
			usr1 <- struct{}{}
			return true
		}
		return false
	}
	loop, err := New(hooks, WithSignals(syscall.SIGUSR1), WithObserver(&observer))
	require.NoError(t, err)

	require.NoError(t, loop.Start(context.Background()))

	assert.Equal(t, 2, counts.ticks)
	assert.Equal(t, 2, counts.updates)
	assert.Equal(t, []bool{true}, counts.cleanups)
	assert.Equal(t, 1, counts.exits)

	observer.mu.Lock()
	defer observer.mu.Unlock()
	assert.Equal(t, []os.Signal{syscall.SIGUSR1, syscall.SIGHUP, syscall.SIGTERM}, observer.signals)
}
