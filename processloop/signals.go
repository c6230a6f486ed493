package processloop

import (
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
)

const unknownSignal = "<UNKNOWN>"

// DefaultSignals returns the signals every Loop binds: SIGTERM, SIGHUP and
// SIGINT.
func DefaultSignals() []os.Signal {
	return []os.Signal{syscall.SIGTERM, syscall.SIGHUP, syscall.SIGINT}
}

// SignalName returns the canonical name of sig, e.g. "SIGHUP", or
// "<UNKNOWN>" if it is not a recognized platform signal.
func SignalName(sig os.Signal) string {
	if s, ok := sig.(syscall.Signal); ok {
		if name, ok := signalNames[s]; ok {
			return name
		}
	}
	return unknownSignal
}

// ParseSignal resolves a signal by name ("SIGUSR1", "usr1") or number.
func ParseSignal(name string) (syscall.Signal, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if n, err := strconv.Atoi(name); err == nil {
		sig := syscall.Signal(n)
		if _, ok := signalNames[sig]; ok {
			return sig, nil
		}
	} else {
		if !strings.HasPrefix(name, "SIG") {
			name = "SIG" + name
		}
		if sig, ok := signalNumbers[name]; ok {
			return sig, nil
		}
	}
	return 0, &UnknownSignalError{Name: name}
}

// UnknownSignalError is returned by ParseSignal.
type UnknownSignalError struct {
	Name string
}

func (e *UnknownSignalError) Error() string {
	return "processloop: unknown signal: " + strconv.Quote(e.Name)
}

// signalNumbers is the inverse of signalNames.
var signalNumbers = func() map[string]syscall.Signal {
	m := make(map[string]syscall.Signal, len(signalNames))
	for sig, name := range signalNames {
		m[name] = sig
	}
	return m
}()

func mergeSignals(sets ...[]os.Signal) []os.Signal {
	var merged []os.Signal
	for _, set := range sets {
	Next:
		for _, sig := range set {
			for _, existing := range merged {
				if existing == sig {
					continue Next
				}
			}
			merged = append(merged, sig)
		}
	}
	return merged
}

// bindSignals relays bound signals to HandleSignal, until the returned
// function is called.
func (l *Loop) bindSignals() (unbind func()) {
	if len(l.signals) == 0 {
		return func() {}
	}

	// we can avoid missing up to 128 signals
	sigCh := make(chan os.Signal, 128)
	signal.Notify(sigCh, l.signals...)

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case sig := <-sigCh:
				l.HandleSignal(sig)
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(stop)
	}
}

// HandleSignal reacts to sig as if it had been delivered to a bound run. It
// allows a supervisor to forward signals to a threaded loop, which never
// binds them itself.
func (l *Loop) HandleSignal(sig os.Signal) {
	name := SignalName(sig)
	l.logger.Debug().Str("signal", name).Log("interrupted by " + name)
	l.observer.SignalReceived(sig)

	handled, err := l.hooks.signal(l, sig)
	if err != nil {
		l.logger.Err().Err(err).Str("signal", name).Log("signal hook failed")
	}
	if handled {
		return
	}

	switch sig {
	case syscall.SIGHUP:
		l.Update()
	case syscall.SIGTERM, syscall.SIGINT:
		_ = l.Join()
	}
}
