package processloop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// ChildEnv is the environment variable that marks a re-executed child
// process, its value being the registered process name.
const ChildEnv = "PROCESSLOOP_CHILD"

var registry struct {
	m map[string]func() (*Loop, error)
	sync.RWMutex
}

// Register makes a loop factory available to child processes, under name.
// It must be called identically in parent and child, typically from an
// init function, since the child is a fresh execution of the same binary.
// Register panics if name is empty or factory is nil.
func Register(name string, factory func() (*Loop, error)) {
	if name == `` {
		panic(`processloop: register: empty name`)
	}
	if factory == nil {
		panic(`processloop: register: nil factory`)
	}
	registry.Lock()
	defer registry.Unlock()
	if registry.m == nil {
		registry.m = make(map[string]func() (*Loop, error))
	}
	registry.m[name] = factory
}

func lookupFactory(name string) func() (*Loop, error) {
	registry.RLock()
	defer registry.RUnlock()
	return registry.m[name]
}

// RunChild runs the registered loop, if the current process was started by
// Loop.StartProcess. It must be called early in main, before any other work.
// If the process is not a child, it returns false and does nothing.
// Otherwise, the loop is run to completion as the primary control flow
// (binding signals), and its result returned.
func RunChild(ctx context.Context) (bool, error) {
	name, ok := os.LookupEnv(ChildEnv)
	if !ok {
		return false, nil
	}
	// the child's own children are not children of the loop
	_ = os.Unsetenv(ChildEnv)

	factory := lookupFactory(name)
	if factory == nil {
		return true, fmt.Errorf("%w: %q", ErrProcessNotRegistered, name)
	}

	l, err := factory()
	if err != nil {
		return true, err
	}

	return true, l.run(ctx, true)
}

// Process is a handle to a Loop running in a child process, see
// Loop.StartProcess.
type Process struct {
	cmd      *exec.Cmd
	started  chan struct{}
	done     chan struct{}
	err      error
	termErr  error
	mu       sync.Mutex
	termOnce sync.Once
	running  bool
}

// StartProcess re-executes the current binary, with the same arguments, as
// a child process running the loop registered under the name given by
// WithProcessName. The child inherits the standard streams, and binds the
// loop's signals. If deferred, the child is not started until Process.Start
// is called.
func (l *Loop) StartProcess(deferred bool) (*Process, error) {
	if l.processName == `` || lookupFactory(l.processName) == nil {
		return nil, fmt.Errorf("%w: %q", ErrProcessNotRegistered, l.processName)
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("processloop: resolve executable: %w", err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), ChildEnv+"="+l.processName)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	p := &Process{
		cmd:     cmd,
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}

	l.handleMu.Lock()
	l.process = p
	l.handleMu.Unlock()

	if !deferred {
		if err := p.Start(); err != nil {
			return p, err
		}
	}

	return p, nil
}

// Start launches a deferred child process.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrWorkerAlreadyStarted
	}

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("processloop: start child: %w", err)
	}
	p.running = true
	close(p.started)

	go func() {
		defer close(p.done)
		p.err = p.cmd.Wait()
	}()

	return nil
}

// Pid returns the child's process id, or 0 if it has not been started.
func (p *Process) Pid() int {
	select {
	case <-p.started:
		return p.cmd.Process.Pid
	default:
		return 0
	}
}

// Signal delivers sig to the child.
func (p *Process) Signal(sig os.Signal) error {
	select {
	case <-p.started:
	default:
		return ErrWorkerNotStarted
	}
	err := p.cmd.Process.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Stop asks the child to exit gracefully, without waiting.
func (p *Process) Stop() error {
	select {
	case <-p.started:
	default:
		return ErrWorkerNotStarted
	}
	return stopProcess(p.cmd.Process)
}

// Done returns a channel that is closed once the child has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Wait blocks until the child exits, returning a non-nil error (typically
// *exec.ExitError) if it did not exit cleanly. Waiting on a deferred child
// that was never started returns ErrWorkerNotStarted.
func (p *Process) Wait() error {
	select {
	case <-p.started:
	default:
		return ErrWorkerNotStarted
	}
	<-p.done
	return p.err
}

// terminate stops the child, once, then waits for it. A child that was
// never started is ignored.
func (p *Process) terminate() error {
	select {
	case <-p.started:
	default:
		return nil
	}
	p.termOnce.Do(func() {
		if err := p.Stop(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.termErr = err
		}
	})
	return errors.Join(p.termErr, p.Wait())
}
