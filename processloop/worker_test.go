package processloop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBusyLoop(t *testing.T, counts *hookCounts) *Loop {
	t.Helper()
	loop, err := New(counts.hooks(func(ctx context.Context) error {
		time.Sleep(time.Millisecond)
		return nil
	}))
	require.NoError(t, err)
	return loop
}

func TestWorker_JoinWaits(t *testing.T) {
	var counts hookCounts
	loop := newBusyLoop(t, &counts)

	worker := loop.StartThreaded(context.Background(), false, false)
	assert.False(t, worker.Daemon())
	waitFor(t, func() bool { return loop.PreviousTickDuration() < time.Second })

	require.NoError(t, loop.Join())

	// join only returns once the worker is done
	select {
	case <-worker.Done():
	default:
		t.Fatal("expected worker to be done")
	}
	assert.True(t, loop.Exited())
	assert.Equal(t, []bool{true}, counts.cleanups)
	assert.Equal(t, 1, counts.exits)

	// idempotent
	require.NoError(t, loop.Join())
	assert.Equal(t, []bool{true}, counts.cleanups)
	assert.Equal(t, 1, counts.exits)
	assert.Equal(t, StateTerminated, loop.State())
}

func TestWorker_JoinDuringFailingTick(t *testing.T) {
	release := make(chan struct{})
	ticking := make(chan struct{})
	var counts hookCounts
	loop, err := New(counts.hooks(func(ctx context.Context) error {
		close(ticking)
		<-release
		return errors.New("boom")
	}))
	require.NoError(t, err)

	worker := loop.StartThreaded(context.Background(), false, true)
	<-ticking
	time.AfterFunc(10*time.Millisecond, func() { close(release) })

	// stopping takes precedence over escalation
	require.NoError(t, loop.Join())
	require.NoError(t, worker.Wait())
	assert.Zero(t, counts.exits)
	assert.Equal(t, 1, counts.ticks)
	assert.Equal(t, []bool{false}, counts.cleanups)
}

func TestWorker_EscalatedFailure(t *testing.T) {
	boom := errors.New("boom")
	loop, err := New(Hooks{
		Tick: func(ctx context.Context) error { return boom },
	})
	require.NoError(t, err)

	worker := loop.StartThreaded(context.Background(), false, false)
	<-worker.Done()

	assert.ErrorIs(t, worker.Wait(), ErrTickFailed)
	assert.ErrorIs(t, loop.Err(), boom)
	assert.ErrorIs(t, loop.Join(), ErrTickFailed)
}

func TestWorker_Deferred(t *testing.T) {
	var counts hookCounts
	loop := newBusyLoop(t, &counts)

	worker := loop.StartThreaded(context.Background(), true, true)
	assert.True(t, worker.Daemon())
	assert.ErrorIs(t, worker.Wait(), ErrWorkerNotStarted)
	assert.Equal(t, StateAwake, loop.State())
	assert.Zero(t, counts.setup)

	require.NoError(t, worker.Start())
	assert.ErrorIs(t, worker.Start(), ErrWorkerAlreadyStarted)
	waitFor(t, func() bool { return loop.State() == StateRunning })

	require.NoError(t, loop.Join())
	assert.Equal(t, 1, counts.setup)
	assert.Equal(t, 1, counts.exits)
}

func TestWorker_JoinUnstartedDeferred(t *testing.T) {
	var counts hookCounts
	loop := newBusyLoop(t, &counts)

	worker := loop.StartThreaded(context.Background(), true, true)
	assert.ErrorIs(t, loop.Join(), ErrWorkerNotStarted)
	assert.True(t, loop.MustExit())

	// a late start still observes the stop
	require.NoError(t, worker.Start())
	require.NoError(t, worker.Wait())
	assert.Zero(t, counts.ticks)
	assert.Equal(t, []bool{true}, counts.cleanups)
}

func TestWorker_ContextInterrupt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var counts hookCounts
	loop := newBusyLoop(t, &counts)

	worker := loop.StartThreaded(ctx, false, false)
	waitFor(t, func() bool { return loop.State() == StateRunning })
	cancel()

	require.NoError(t, worker.Wait())
	assert.Empty(t, counts.cleanups)
	assert.Zero(t, counts.exits)
	assert.True(t, loop.Exited())
}

func TestWaitWorkers(t *testing.T) {
	var counts1, counts2, counts3 hookCounts
	loop1 := newBusyLoop(t, &counts1)
	loop2 := newBusyLoop(t, &counts2)
	daemon := newBusyLoop(t, &counts3)

	loop1.StartThreaded(context.Background(), false, false)
	loop2.StartThreaded(context.Background(), false, false)
	daemonWorker := daemon.StartThreaded(context.Background(), false, true)
	defer func() {
		require.NoError(t, daemon.Join())
		require.NoError(t, daemonWorker.Wait())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, WaitWorkers(ctx), context.DeadlineExceeded)
	cancel()

	loop1.Stop()
	loop2.Stop()

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, WaitWorkers(ctx))
	assert.True(t, loop1.Exited())
	assert.True(t, loop2.Exited())
	assert.False(t, daemon.Exited())
}
